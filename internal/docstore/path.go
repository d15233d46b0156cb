package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// SplitPath splits a dot-separated document path into its segments.
func SplitPath(path string) []string {
	return strings.Split(path, ".")
}

// extract resolves path inside doc. A path that runs through a non-object value
// or a missing member is absent, as is a JSON null.
func extract(doc json.RawMessage, path string) (json.RawMessage, bool) {
	cur := doc
	for _, seg := range SplitPath(path) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(cur, &obj); err != nil || obj == nil {
			return nil, false
		}
		next, ok := obj[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	if isNull(cur) {
		return nil, false
	}
	return cur, true
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// lookupDocument answers a lookup from a whole stored document.
func lookupDocument(key string, doc json.RawMessage, paths []string) (*LookupResult, error) {
	if !json.Valid(doc) {
		return nil, fmt.Errorf("%w: key %q", ErrCorruptDocument, key)
	}
	res := NewLookupResult(key, paths)
	for _, p := range paths {
		if v, ok := extract(doc, p); ok {
			res.Set(p, v)
		}
	}
	return res, nil
}
