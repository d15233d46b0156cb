package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// CassandraOptions configures the Cassandra backend.
type CassandraOptions struct {
	// ClusterHosts lists contact points for the Cassandra cluster.
	ClusterHosts []string
	Keyspace     string
	Table        string
	Username     string
	Password     string
	// Consistency defaults to LocalQuorum.
	Consistency       gocql.Consistency
	ConnectionTimeout time.Duration
	// ReplicationClause is used when the keyspace is created.
	ReplicationClause string
}

// CassandraStore keeps one JSON document per row, keyed by the document key.
// A lookup reads the row once and resolves every path from that version.
type CassandraStore struct {
	session *gocql.Session
	table   string
}

func NewCassandraStore(opts CassandraOptions) (*CassandraStore, error) {
	if opts.Keyspace == "" {
		opts.Keyspace = "catalog"
	}
	if opts.Table == "" {
		opts.Table = "documents"
	}
	if opts.Consistency == gocql.Any {
		opts.Consistency = gocql.LocalQuorum
	}
	if opts.ReplicationClause == "" {
		opts.ReplicationClause = "{'class':'SimpleStrategy', 'replication_factor':1}"
	}
	cluster := gocql.NewCluster(opts.ClusterHosts...)
	cluster.Consistency = opts.Consistency
	if opts.ConnectionTimeout > 0 {
		cluster.ConnectTimeout = opts.ConnectionTimeout
	}
	if opts.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{Username: opts.Username, Password: opts.Password}
	}
	s, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("cassandra session: %w", err)
	}
	stmts := []string{
		fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s;", opts.Keyspace, opts.ReplicationClause),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (key text PRIMARY KEY, doc text);", opts.Keyspace, opts.Table),
	}
	for _, q := range stmts {
		if err := s.Query(q).Exec(); err != nil {
			s.Close()
			return nil, fmt.Errorf("cassandra schema: %w", err)
		}
	}
	return &CassandraStore{session: s, table: opts.Keyspace + "." + opts.Table}, nil
}

func (c *CassandraStore) Close() error {
	c.session.Close()
	return nil
}

func (c *CassandraStore) Upsert(ctx context.Context, key string, doc any) error {
	b, err := encode(doc)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	q := fmt.Sprintf("INSERT INTO %s (key, doc) VALUES (?, ?)", c.table)
	if err := c.session.Query(q, key, string(b)).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("cassandra insert %q: %w", key, err)
	}
	return nil
}

func (c *CassandraStore) LookupIn(ctx context.Context, key string, paths []string) (*LookupResult, error) {
	var doc string
	q := fmt.Sprintf("SELECT doc FROM %s WHERE key = ?", c.table)
	err := c.session.Query(q, key).WithContext(ctx).Scan(&doc)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("cassandra select %q: %w", key, err)
	}
	return lookupDocument(key, json.RawMessage(doc), paths)
}

func (c *CassandraStore) Range(ctx context.Context, fn func(key string, doc json.RawMessage) error) error {
	iter := c.session.Query(fmt.Sprintf("SELECT key, doc FROM %s", c.table)).WithContext(ctx).Iter()
	var key, doc string
	for iter.Scan(&key, &doc) {
		if err := fn(key, json.RawMessage(doc)); err != nil {
			_ = iter.Close()
			return err
		}
	}
	if err := iter.Close(); err != nil {
		return fmt.Errorf("cassandra scan: %w", err)
	}
	return nil
}

func (c *CassandraStore) LoadAll(ctx context.Context, docs map[string]json.RawMessage) error {
	q := fmt.Sprintf("INSERT INTO %s (key, doc) VALUES (?, ?)", c.table)
	batch := c.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for k, v := range docs {
		if !json.Valid(v) {
			return fmt.Errorf("%w: key %q", ErrCorruptDocument, k)
		}
		batch.Query(q, k, string(v))
	}
	if batch.Size() == 0 {
		return nil
	}
	if err := c.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("cassandra batch: %w", err)
	}
	return nil
}
