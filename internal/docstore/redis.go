package docstore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the connection to a Redis server with the RedisJSON module.
type RedisOptions struct {
	// Redis server address.
	Address string
	// Password required when connecting to the Redis server.
	Password string
	// DB to connect to.
	DB int
	// KeyPrefix is prepended to every document key.
	KeyPrefix string
	// TLS config.
	TLSConfig *tls.Config
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Address: "localhost:6379",
		DB:      0,
	}
}

// redisJSON is the subset of RedisJSON commands the store issues.
type redisJSON interface {
	JSONSet(ctx context.Context, key string, doc json.RawMessage) error
	JSONSetMany(ctx context.Context, docs map[string]json.RawMessage) error
	JSONGet(ctx context.Context, key string, paths ...string) (string, error)
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	Close() error
}

// RedisStore keeps documents as RedisJSON values. A lookup is a single JSON.GET
// carrying every requested path.
type RedisStore struct {
	client redisJSON
	prefix string
}

func NewRedisStore(opts RedisOptions) *RedisStore {
	c := redis.NewClient(&redis.Options{
		Addr:      opts.Address,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
		Protocol:  2,
	})
	return &RedisStore{client: goRedisJSON{c: c}, prefix: opts.KeyPrefix}
}

// NewRedisStoreWith is only for tests to inject a fake client.
func NewRedisStoreWith(c redisJSON, prefix string) *RedisStore {
	return &RedisStore{client: c, prefix: prefix}
}

func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) Upsert(ctx context.Context, key string, doc any) error {
	b, err := encode(doc)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if err := r.client.JSONSet(ctx, r.prefix+key, b); err != nil {
		return fmt.Errorf("redis json.set %q: %w", key, err)
	}
	return nil
}

func (r *RedisStore) LookupIn(ctx context.Context, key string, paths []string) (*LookupResult, error) {
	jpaths := make([]string, len(paths))
	for i, p := range paths {
		jpaths[i] = JSONPath(p)
	}
	reply, err := r.client.JSONGet(ctx, r.prefix+key, jpaths...)
	if errors.Is(err, redis.Nil) || (err == nil && reply == "") {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis json.get %q: %w", key, err)
	}
	res := NewLookupResult(key, paths)
	if err := decodeJSONGet(res, reply, paths, jpaths); err != nil {
		return nil, fmt.Errorf("redis json.get %q: %w", key, err)
	}
	return res, nil
}

func (r *RedisStore) Range(ctx context.Context, fn func(key string, doc json.RawMessage) error) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100)
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range keys {
			reply, err := r.client.JSONGet(ctx, k, "$")
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return fmt.Errorf("redis json.get %q: %w", k, err)
			}
			doc, ok, err := firstMatch(json.RawMessage(reply))
			if err != nil {
				return fmt.Errorf("redis json.get %q: %w", k, err)
			}
			if !ok {
				continue
			}
			if err := fn(strings.TrimPrefix(k, r.prefix), doc); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *RedisStore) LoadAll(ctx context.Context, docs map[string]json.RawMessage) error {
	prefixed := make(map[string]json.RawMessage, len(docs))
	for k, v := range docs {
		if !json.Valid(v) {
			return fmt.Errorf("%w: key %q", ErrCorruptDocument, k)
		}
		prefixed[r.prefix+k] = v
	}
	if err := r.client.JSONSetMany(ctx, prefixed); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// JSONPath converts a dot path into RedisJSON bracket notation, so segments such
// as fr-FR need no escaping: marketInfo.fr becomes $["marketInfo"]["fr"].
func JSONPath(path string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, seg := range SplitPath(path) {
		q, _ := json.Marshal(seg)
		sb.WriteString("[")
		sb.Write(q)
		sb.WriteString("]")
	}
	return sb.String()
}

// decodeJSONGet fills res from a JSON.GET reply. With one JSONPath the reply is
// the match array itself; with several it is an object keyed by the JSONPaths.
func decodeJSONGet(res *LookupResult, reply string, paths, jpaths []string) error {
	if len(jpaths) == 1 {
		v, ok, err := firstMatch(json.RawMessage(reply))
		if err != nil {
			return err
		}
		if ok {
			res.Set(paths[0], v)
		}
		return nil
	}
	var byPath map[string]json.RawMessage
	if err := json.Unmarshal([]byte(reply), &byPath); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	for i, jp := range jpaths {
		v, ok, err := firstMatch(byPath[jp])
		if err != nil {
			return err
		}
		if ok {
			res.Set(paths[i], v)
		}
	}
	return nil
}

// firstMatch unwraps a JSONPath match array. An empty array means absent.
func firstMatch(raw json.RawMessage) (json.RawMessage, bool, error) {
	if isNull(raw) {
		return nil, false, nil
	}
	var matches []json.RawMessage
	if err := json.Unmarshal(raw, &matches); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if len(matches) == 0 || isNull(matches[0]) {
		return nil, false, nil
	}
	return matches[0], true, nil
}

type goRedisJSON struct {
	c *redis.Client
}

func (g goRedisJSON) JSONSet(ctx context.Context, key string, doc json.RawMessage) error {
	return g.c.JSONSet(ctx, key, "$", string(doc)).Err()
}

func (g goRedisJSON) JSONSetMany(ctx context.Context, docs map[string]json.RawMessage) error {
	_, err := g.c.Pipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range docs {
			p.JSONSet(ctx, k, "$", string(v))
		}
		return nil
	})
	return err
}

func (g goRedisJSON) JSONGet(ctx context.Context, key string, paths ...string) (string, error) {
	return g.c.JSONGet(ctx, key, paths...).Result()
}

func (g goRedisJSON) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return g.c.Scan(ctx, cursor, match, count).Result()
}

func (g goRedisJSON) Close() error { return g.c.Close() }
