// Package docstore stores JSON documents by key and serves multi-path partial
// reads ("lookups") against them. Every backend answers a lookup with a single
// read of the document, so all requested paths come from the same version.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrKeyNotFound is returned by LookupIn when no document exists for the key.
	ErrKeyNotFound = errors.New("document not found")
	// ErrTypeMismatch is returned when a path value does not decode into the target type.
	ErrTypeMismatch = errors.New("path value type mismatch")
	// ErrCorruptDocument is returned when a stored document is not valid JSON.
	ErrCorruptDocument = errors.New("corrupt document")
)

// Store abstracts the document backend.
type Store interface {
	// Upsert serializes doc as JSON and writes it under key, replacing any previous version.
	Upsert(ctx context.Context, key string, doc any) error
	// LookupIn reads the given paths of the document under key in one operation.
	LookupIn(ctx context.Context, key string, paths []string) (*LookupResult, error)
	// Range visits every stored document.
	Range(ctx context.Context, fn func(key string, doc json.RawMessage) error) error
	// LoadAll writes every document in docs, overwriting existing keys.
	LoadAll(ctx context.Context, docs map[string]json.RawMessage) error
}

// encode marshals doc, passing pre-encoded JSON through after validation.
func encode(doc any) (json.RawMessage, error) {
	switch d := doc.(type) {
	case json.RawMessage:
		if !json.Valid(d) {
			return nil, ErrCorruptDocument
		}
		return d, nil
	case []byte:
		if !json.Valid(d) {
			return nil, ErrCorruptDocument
		}
		return d, nil
	}
	return json.Marshal(doc)
}
