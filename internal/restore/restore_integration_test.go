package restore

import (
	"context"
	"path/filepath"
	"testing"

	"catalog/internal/changelog"
	"catalog/internal/docstore"
	"catalog/internal/fragment"
	"catalog/internal/manifest"
	"catalog/internal/model"
	"catalog/internal/snapshot"
)

// Integration: journaled upserts -> snapshot -> manifest -> more upserts ->
// RestoreAndReplay into a fresh pebble store -> fragment lookup.
func TestIntegration_RestoreAndReplay_EndToEnd(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()

	fw, err := changelog.NewFileWriter(filepath.Join(base, "changelog"), "catalog.jsonl")
	if err != nil {
		t.Fatalf("file writer: %v", err)
	}
	live := docstore.WithChangelog(docstore.NewInMemoryStore(), fw, 0)

	p := model.SampleProduct()
	if err := live.Upsert(ctx, p.Key(), p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	other := model.Product{ID: "1::124", Type: "Article", ProductID: 124}
	if err := live.Upsert(ctx, other.Key(), other); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	sid := "sid-int"
	n, err := snapshot.NewFilesystemSnapshotter(base).WriteSnapshot(ctx, sid, live)
	if err != nil || n != 2 {
		t.Fatalf("write snapshot: n=%d err=%v", n, err)
	}
	if err := manifest.NewFilesystemManifest(base).PublishLatest(ctx, manifest.New(sid, live.Seq(), n)); err != nil {
		t.Fatalf("publish manifest: %v", err)
	}

	// Changes after the snapshot: a price update and a new product.
	p.MarketInfo["fr"] = model.MarketInfo{Price: 180, Availability: 150}
	if err := live.Upsert(ctx, p.Key(), p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	third := model.Product{ID: "1::125", Type: "Article", ProductID: 125}
	if err := live.Upsert(ctx, third.Key(), third); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	st, err := docstore.NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("pebble: %v", err)
	}
	defer st.Close()

	r := NewRestorer(st, manifest.NewFilesystemManifest(base), base)
	res, err := r.RestoreAndReplay(ctx, FileSource(fw.Path()))
	if err != nil {
		t.Fatalf("RestoreAndReplay: %v", err)
	}
	if res.Applied != 2 || res.Skipped != 0 || res.LastSeq != 4 {
		t.Fatalf("result unexpected: %+v", res)
	}

	got, _, err := fragment.NewAssembler(st).Fetch(ctx, p.Key(), "fr-FR")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.MarketInfo["fr"].Price != 180 || got.ProductID != 123 {
		t.Fatalf("restored product unexpected: %+v", got)
	}
	if _, err := st.LookupIn(ctx, third.Key(), []string{"id"}); err != nil {
		t.Fatalf("third product missing: %v", err)
	}
}
