package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps one JSON document per key in a local Badger database.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(dir)).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Close() error { return b.db.Close() }

func (b *BadgerStore) Upsert(_ context.Context, key string, doc any) error {
	v, err := encode(doc)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), v)
	})
}

func (b *BadgerStore) LookupIn(_ context.Context, key string, paths []string) (*LookupResult, error) {
	var doc json.RawMessage
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		doc, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %q: %w", key, err)
	}
	return lookupDocument(key, doc, paths)
}

func (b *BadgerStore) Range(_ context.Context, fn func(key string, doc json.RawMessage) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStore) LoadAll(_ context.Context, docs map[string]json.RawMessage) error {
	for k, v := range docs {
		if !json.Valid(v) {
			return fmt.Errorf("%w: key %q", ErrCorruptDocument, k)
		}
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for k, v := range docs {
			if err := txn.Set([]byte(k), v); err != nil {
				return fmt.Errorf("set %q: %w", k, err)
			}
		}
		return nil
	})
}
