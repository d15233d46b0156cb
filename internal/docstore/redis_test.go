package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/internal/model"
)

var bracketSeg = regexp.MustCompile(`\["([^"]*)"\]`)

// fakeRedisJSON mimics RedisJSON reply shapes for JSONPath queries.
type fakeRedisJSON struct {
	docs map[string]json.RawMessage
	gets int
	fail error
}

func newFakeRedisJSON() *fakeRedisJSON {
	return &fakeRedisJSON{docs: map[string]json.RawMessage{}}
}

func (f *fakeRedisJSON) JSONSet(_ context.Context, key string, doc json.RawMessage) error {
	f.docs[key] = doc
	return nil
}

func (f *fakeRedisJSON) JSONSetMany(ctx context.Context, docs map[string]json.RawMessage) error {
	for k, v := range docs {
		_ = f.JSONSet(ctx, k, v)
	}
	return nil
}

func (f *fakeRedisJSON) match(doc json.RawMessage, jpath string) string {
	if jpath == "$" {
		return "[" + string(doc) + "]"
	}
	var segs []string
	for _, m := range bracketSeg.FindAllStringSubmatch(jpath, -1) {
		segs = append(segs, m[1])
	}
	v, ok := extract(doc, strings.Join(segs, "."))
	if !ok {
		return "[]"
	}
	return "[" + string(v) + "]"
}

func (f *fakeRedisJSON) JSONGet(_ context.Context, key string, paths ...string) (string, error) {
	f.gets++
	if f.fail != nil {
		return "", f.fail
	}
	doc, ok := f.docs[key]
	if !ok {
		return "", redis.Nil
	}
	if len(paths) == 1 {
		return f.match(doc, paths[0]), nil
	}
	out := map[string]json.RawMessage{}
	for _, p := range paths {
		out[p] = json.RawMessage(f.match(doc, p))
	}
	b, _ := json.Marshal(out)
	return string(b), nil
}

func (f *fakeRedisJSON) Scan(_ context.Context, cursor uint64, match string, _ int64) ([]string, uint64, error) {
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range f.docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, 0, nil
}

func (f *fakeRedisJSON) Close() error { return nil }

func TestJSONPath(t *testing.T) {
	assert.Equal(t, `$["marketInfo"]["fr"]`, JSONPath("marketInfo.fr"))
	assert.Equal(t, `$["languageInfo"]["fr-FR"]`, JSONPath("languageInfo.fr-FR"))
	assert.Equal(t, `$["id"]`, JSONPath("id"))
}

func TestRedisStore_LookupInSingleRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedisJSON()
	st := NewRedisStoreWith(fake, "catalog:")
	p := model.SampleProduct()
	require.NoError(t, st.Upsert(ctx, p.Key(), p))
	_, stored := fake.docs["catalog:Article::1::123"]
	require.True(t, stored)

	res, err := st.LookupIn(ctx, p.Key(), []string{"id", "type", "productId", "marketInfo.fr", "marketInfo.de"})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.gets)
	assert.Equal(t, []string{"marketInfo.de"}, res.Missing())

	mi, found, err := Content[model.MarketInfo](res, "marketInfo.fr")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, model.MarketInfo{Price: 200, Availability: 199}, mi)
}

func TestRedisStore_LookupInSinglePath(t *testing.T) {
	ctx := context.Background()
	st := NewRedisStoreWith(newFakeRedisJSON(), "")
	require.NoError(t, st.Upsert(ctx, "k", json.RawMessage(`{"id":"x"}`)))

	res, err := st.LookupIn(ctx, "k", []string{"id"})
	require.NoError(t, err)
	id, found, err := Content[string](res, "id")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "x", id)

	res, err = st.LookupIn(ctx, "k", []string{"nope"})
	require.NoError(t, err)
	assert.False(t, res.Exists("nope"))
}

func TestRedisStore_Errors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedisJSON()
	st := NewRedisStoreWith(fake, "")

	_, err := st.LookupIn(ctx, "missing", []string{"id", "type"})
	assert.ErrorIs(t, err, ErrKeyNotFound)

	boom := errors.New("connection refused")
	fake.fail = boom
	_, err = st.LookupIn(ctx, "missing", []string{"id"})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisStore_LoadAllAndRange(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedisJSON()
	fake.docs["other:x"] = json.RawMessage(`{}`)
	st := NewRedisStoreWith(fake, "catalog:")
	require.NoError(t, st.LoadAll(ctx, map[string]json.RawMessage{
		"a": json.RawMessage(`{"id":"a"}`),
		"b": json.RawMessage(`{"id":"b"}`),
	}))

	var keys []string
	require.NoError(t, st.Range(ctx, func(key string, doc json.RawMessage) error {
		keys = append(keys, key)
		return nil
	}))
	assert.Equal(t, []string{"a", "b"}, keys)
}
