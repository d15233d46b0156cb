package docstore

import (
	"encoding/json"
	"fmt"
)

// LookupResult holds the per-path outcome of a LookupIn. A path is either
// present with its raw JSON value or absent.
type LookupResult struct {
	Key    string
	paths  []string
	values map[string]json.RawMessage
}

func NewLookupResult(key string, paths []string) *LookupResult {
	return &LookupResult{
		Key:    key,
		paths:  append([]string(nil), paths...),
		values: make(map[string]json.RawMessage, len(paths)),
	}
}

// Set records a present value for path. A JSON null is recorded as absent.
func (r *LookupResult) Set(path string, raw json.RawMessage) {
	if isNull(raw) {
		return
	}
	r.values[path] = raw
}

// Paths returns the requested paths in request order.
func (r *LookupResult) Paths() []string { return append([]string(nil), r.paths...) }

func (r *LookupResult) Exists(path string) bool {
	_, ok := r.values[path]
	return ok
}

// Missing returns the requested paths that were absent.
func (r *LookupResult) Missing() []string {
	var out []string
	for _, p := range r.paths {
		if !r.Exists(p) {
			out = append(out, p)
		}
	}
	return out
}

func (r *LookupResult) Raw(path string) (json.RawMessage, bool) {
	v, ok := r.values[path]
	return v, ok
}

// Decode unmarshals the value at path into v. found is false, and v untouched,
// when the path is absent.
func (r *LookupResult) Decode(path string, v any) (found bool, err error) {
	raw, ok := r.values[path]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("%w: path %q: %v", ErrTypeMismatch, path, err)
	}
	return true, nil
}

// Content decodes the value at path as T.
func Content[T any](r *LookupResult, path string) (T, bool, error) {
	var v T
	found, err := r.Decode(path, &v)
	return v, found, err
}
