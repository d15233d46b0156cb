package docstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	doc := json.RawMessage(`{"id":"x","n":null,"a":{"b":{"c":1},"s":"str"},"arr":[1,2]}`)
	cases := []struct {
		path  string
		want  string
		found bool
	}{
		{"id", `"x"`, true},
		{"a.b.c", `1`, true},
		{"a.b", `{"c":1}`, true},
		{"n", ``, false},
		{"missing", ``, false},
		{"a.s.deeper", ``, false},
		{"arr.0", ``, false},
		{"a.b.c.d", ``, false},
	}
	for _, tc := range cases {
		got, ok := extract(doc, tc.path)
		assert.Equal(t, tc.found, ok, tc.path)
		if tc.found {
			assert.JSONEq(t, tc.want, string(got), tc.path)
		}
	}
}

func TestLookupDocument_Corrupt(t *testing.T) {
	_, err := lookupDocument("k", json.RawMessage(`{"id":`), []string{"id"})
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestLookupResult_Decode(t *testing.T) {
	res := NewLookupResult("k", []string{"id", "productId", "gone", "nil"})
	res.Set("id", json.RawMessage(`"1::123"`))
	res.Set("productId", json.RawMessage(`123`))
	res.Set("nil", json.RawMessage(`null`))

	assert.True(t, res.Exists("id"))
	assert.False(t, res.Exists("nil"))
	assert.Equal(t, []string{"gone", "nil"}, res.Missing())

	var s string
	found, err := res.Decode("gone", &s)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = Content[int](res, "id")
	assert.True(t, found)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	n, found, err := Content[int](res, "productId")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 123, n)
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"languageInfo", "fr-FR"}, SplitPath("languageInfo.fr-FR"))
	assert.Equal(t, []string{"id"}, SplitPath("id"))
}
