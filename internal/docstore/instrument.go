package docstore

import (
	"context"
	"encoding/json"
	"time"

	"catalog/internal/metrics"
)

type instrumented struct {
	Store
	m *metrics.Registry
}

// Instrument records upsert and lookup metrics for every call on s.
func Instrument(s Store, m *metrics.Registry) Store {
	return &instrumented{Store: s, m: m}
}

func (i *instrumented) Upsert(ctx context.Context, key string, doc any) error {
	if err := i.Store.Upsert(ctx, key, doc); err != nil {
		i.m.UpsertFailures.Inc()
		return err
	}
	i.m.Upserts.Inc()
	return nil
}

func (i *instrumented) LookupIn(ctx context.Context, key string, paths []string) (*LookupResult, error) {
	t0 := time.Now()
	i.m.Lookups.Inc()
	res, err := i.Store.LookupIn(ctx, key, paths)
	i.m.LookupLatencySec.Observe(time.Since(t0).Seconds())
	if err != nil {
		i.m.LookupFailures.Inc()
		return nil, err
	}
	i.m.LookupPaths.Add(float64(len(paths)))
	i.m.LookupPathsAbsent.Add(float64(len(res.Missing())))
	return res, nil
}

func (i *instrumented) LoadAll(ctx context.Context, docs map[string]json.RawMessage) error {
	if err := i.Store.LoadAll(ctx, docs); err != nil {
		i.m.UpsertFailures.Inc()
		return err
	}
	i.m.Upserts.Add(float64(len(docs)))
	return nil
}
