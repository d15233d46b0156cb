package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

// PebbleStore keeps one JSON document per key in a local Pebble database.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		MemTableSize:          64 << 20,
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 8,
		WALBytesPerSync:       1 << 20,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func (p *PebbleStore) Upsert(_ context.Context, key string, doc any) error {
	b, err := encode(doc)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if err := p.db.Set([]byte(key), b, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set %q: %w", key, err)
	}
	return nil
}

func (p *PebbleStore) LookupIn(_ context.Context, key string, paths []string) (*LookupResult, error) {
	v, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("pebble get %q: %w", key, err)
	}
	// v is only valid until closer.Close.
	doc := append(json.RawMessage(nil), v...)
	_ = closer.Close()
	return lookupDocument(key, doc, paths)
}

func (p *PebbleStore) Range(_ context.Context, fn func(key string, doc json.RawMessage) error) error {
	it, err := p.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		k := string(it.Key())
		v := append(json.RawMessage(nil), it.Value()...)
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return it.Error()
}

func (p *PebbleStore) LoadAll(_ context.Context, docs map[string]json.RawMessage) error {
	if len(docs) == 0 {
		return nil
	}
	wb := p.db.NewBatch()
	defer wb.Close()
	for k, v := range docs {
		if !json.Valid(v) {
			return fmt.Errorf("%w: key %q", ErrCorruptDocument, k)
		}
		if err := wb.Set([]byte(k), v, nil); err != nil {
			return fmt.Errorf("batch set %q: %w", k, err)
		}
	}
	if err := wb.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("batch commit: %w", err)
	}
	return nil
}
