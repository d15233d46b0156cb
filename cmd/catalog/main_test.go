package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/internal/changelog"
	"catalog/internal/docstore"
	"catalog/internal/model"
	"catalog/internal/schema"
)

// writeConfig points every directory of the config at a temp dir.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
backend: memory
pebble:
  dir: %[1]s/pebble
badger:
  dir: %[1]s/badger
changelog:
  sink: file
  dir: %[1]s/changelog
  file: catalog.jsonl
snapshot:
  dir: %[1]s/snapshots
logging:
  level: error
`, dir)
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDemo_MemoryBackend(t *testing.T) {
	cfg, dir := writeConfig(t)
	out, err := run(t, "--config", cfg, "demo")
	require.NoError(t, err)

	var p model.Product
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, model.Product{
		ID:         "1::123",
		Type:       "Article",
		ProductID:  123,
		MarketInfo: map[string]model.MarketInfo{"fr": {Price: 200, Availability: 199}},
	}, p)

	// The upsert was journaled.
	var muts []changelog.Mutation
	require.NoError(t, changelog.ReadFile(filepath.Join(dir, "changelog", "catalog.jsonl"), func(m changelog.Mutation) error {
		muts = append(muts, m)
		return nil
	}))
	require.Len(t, muts, 1)
	assert.Equal(t, "Article::1::123", muts[0].Key)
	assert.Equal(t, int64(1), muts[0].Seq)
}

func TestDemo_SeqResumesFromChangelog(t *testing.T) {
	cfg, dir := writeConfig(t)
	_, err := run(t, "--config", cfg, "demo")
	require.NoError(t, err)
	_, err = run(t, "--config", cfg, "demo")
	require.NoError(t, err)

	var seqs []int64
	require.NoError(t, changelog.ReadFile(filepath.Join(dir, "changelog", "catalog.jsonl"), func(m changelog.Mutation) error {
		seqs = append(seqs, m.Seq)
		return nil
	}))
	assert.Equal(t, []int64{1, 2}, seqs)
}

func TestPaths(t *testing.T) {
	cfg, _ := writeConfig(t)
	out, err := run(t, "--config", cfg, "paths", "nl-BE")
	require.NoError(t, err)
	assert.Equal(t, "id\ntype\nproductId\nmarketInfo.be\nlanguageInfo.nl-BE\n", out)

	_, err = run(t, "--config", cfg, "paths", "fr")
	assert.Error(t, err)
}

func TestInvalidBackendFlag(t *testing.T) {
	cfg, _ := writeConfig(t)
	_, err := run(t, "--config", cfg, "--backend", "couchbase", "paths")
	assert.Error(t, err)
}

func TestSeedSnapshotLookupRecover(t *testing.T) {
	cfg, dir := writeConfig(t)
	products := filepath.Join(dir, "products.jsonl")
	sample := model.SampleProduct()
	b1, _ := json.Marshal(sample)
	b2, _ := json.Marshal(model.Product{ID: "1::124", Type: "Article", ProductID: 124})
	require.NoError(t, os.WriteFile(products, []byte(string(b1)+"\n\n"+string(b2)+"\n"), 0o644))

	_, err := run(t, "--config", cfg, "--backend", "pebble", "seed", products)
	require.NoError(t, err)
	_, err = run(t, "--config", cfg, "--backend", "pebble", "snapshot", "--id", "sid-1")
	require.NoError(t, err)

	// One more change after the snapshot.
	b3, _ := json.Marshal(model.Product{ID: "1::125", Type: "Article", ProductID: 125})
	more := filepath.Join(dir, "more.jsonl")
	require.NoError(t, os.WriteFile(more, append(b3, '\n'), 0o644))
	_, err = run(t, "--config", cfg, "--backend", "pebble", "seed", more)
	require.NoError(t, err)

	out, err := run(t, "--config", cfg, "--backend", "pebble", "lookup", sample.Key(), "--locale", "fr-BE")
	require.NoError(t, err)
	var p model.Product
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, 123, p.ProductID)
	// --locale picks the market as well as the culture.
	assert.Equal(t, map[string]model.MarketInfo{"be": sample.MarketInfo["be"]}, p.MarketInfo)

	_, err = run(t, "--config", cfg, "--backend", "pebble", "lookup", sample.Key(), "--locale", "be")
	assert.ErrorIs(t, err, schema.ErrMalformedLocale)

	out, err = run(t, "--config", cfg, "--backend", "pebble", "lookup", sample.Key(), "--raw", "--locale", "nl-BE")
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &raw))
	assert.Contains(t, raw, "languageInfo.nl-BE")
	assert.Contains(t, raw, "marketInfo.be")

	// Recover into an empty badger store: two docs from the snapshot, one replayed.
	out, err = run(t, "--config", cfg, "--backend", "badger", "recover", "--once")
	require.NoError(t, err)
	assert.Equal(t, "applied=1 skipped=0 last_seq=3", strings.TrimSpace(out))

	st, err := docstore.NewBadgerStore(filepath.Join(dir, "badger"))
	require.NoError(t, err)
	defer st.Close()
	n := 0
	require.NoError(t, st.Range(context.Background(), func(string, json.RawMessage) error {
		n++
		return nil
	}))
	assert.Equal(t, 3, n)
}

func TestLookup_SeveralKeys(t *testing.T) {
	cfg, dir := writeConfig(t)
	products := filepath.Join(dir, "products.jsonl")
	var lines []string
	for i := 1; i <= 3; i++ {
		b, _ := json.Marshal(model.Product{ID: fmt.Sprintf("1::%d", i), Type: "Article", ProductID: i})
		lines = append(lines, string(b))
	}
	require.NoError(t, os.WriteFile(products, []byte(strings.Join(lines, "\n")), 0o644))
	_, err := run(t, "--config", cfg, "--backend", "badger", "seed", products)
	require.NoError(t, err)

	out, err := run(t, "--config", cfg, "--backend", "badger", "lookup", "Article::1::3", "Article::1::1")
	require.NoError(t, err)
	var ps []model.Product
	require.NoError(t, json.Unmarshal([]byte(out), &ps))
	require.Len(t, ps, 2)
	assert.Equal(t, 3, ps[0].ProductID)
	assert.Equal(t, 1, ps[1].ProductID)
}

func TestSnapshot_DefaultID(t *testing.T) {
	cfg, dir := writeConfig(t)
	_, err := run(t, "--config", cfg, "--backend", "pebble", "demo")
	require.NoError(t, err)
	_, err = run(t, "--config", cfg, "--backend", "pebble", "snapshot")
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "snapshots", "manifest.latest.json"))
	require.NoError(t, err)
	var m struct {
		SnapshotID       string `json:"snapshotId"`
		LastChangelogSeq int64  `json:"lastChangelogSeq"`
		Documents        int    `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(b, &m))
	assert.True(t, strings.HasPrefix(m.SnapshotID, "sid-"), m.SnapshotID)
	assert.Equal(t, int64(1), m.LastChangelogSeq)
	assert.Equal(t, 1, m.Documents)
}

func TestSnapshot_MemoryBackendRejected(t *testing.T) {
	cfg, dir := writeConfig(t)
	_, err := run(t, "--config", cfg, "demo")
	require.NoError(t, err)
	_, err = run(t, "--config", cfg, "snapshot", "--id", "sid-x")
	assert.ErrorIs(t, err, errEphemeralSnapshot)
	assert.NoFileExists(t, filepath.Join(dir, "snapshots", "manifest.latest.json"))

	// Without a manifest, recovery replays the demo upsert.
	out, err := run(t, "--config", cfg, "--backend", "pebble", "recover", "--once")
	require.NoError(t, err)
	assert.Equal(t, "applied=1 skipped=0 last_seq=1", strings.TrimSpace(out))
	out, err = run(t, "--config", cfg, "--backend", "pebble", "lookup", model.SampleProduct().Key())
	require.NoError(t, err)
	var p model.Product
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "1::123", p.ID)
}

func TestSeed_RejectsProductWithoutKey(t *testing.T) {
	st := docstore.NewInMemoryStore()
	n, err := seedProducts(context.Background(), st, strings.NewReader(`{"id":"1::1","type":"Article"}`+"\n"+`{"productId":2}`+"\n"))
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestLookup_MissingKey(t *testing.T) {
	cfg, _ := writeConfig(t)
	_, err := run(t, "--config", cfg, "lookup", "Article::nope")
	assert.ErrorIs(t, err, docstore.ErrKeyNotFound)
}
