package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"catalog/internal/changelog"
	"catalog/internal/docstore"
	"catalog/internal/manifest"
	"catalog/internal/metrics"
	"catalog/internal/snapshot"
)

// Source feeds changelog mutations to fn in log order.
type Source func(ctx context.Context, fn func(changelog.Mutation) error) error

// FileSource replays a JSONL changelog file.
func FileSource(path string) Source {
	return func(_ context.Context, fn func(changelog.Mutation) error) error {
		return changelog.ReadFile(path, fn)
	}
}

// KafkaSource replays partition 0 of a changelog topic until it has been idle
// for the given duration.
func KafkaSource(brokers []string, topic string, idle time.Duration) Source {
	return func(ctx context.Context, fn func(changelog.Mutation) error) error {
		return changelog.ReadKafka(ctx, brokers, topic, idle, fn)
	}
}

type Restorer struct {
	store           docstore.Store
	manifestReader  manifest.Reader
	snapshotBaseDir string
	log             *zap.Logger
	metrics         *metrics.Registry
}

type Option func(*Restorer)

func WithLogger(l *zap.Logger) Option { return func(r *Restorer) { r.log = l } }

func WithMetrics(m *metrics.Registry) Option { return func(r *Restorer) { r.metrics = m } }

func NewRestorer(st docstore.Store, mr manifest.Reader, snapshotBaseDir string, opts ...Option) *Restorer {
	r := &Restorer{
		store:           st,
		manifestReader:  mr,
		snapshotBaseDir: snapshotBaseDir,
		log:             zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type RestoreResult struct {
	Applied int
	Skipped int
	// LastSeq is the highest seq seen, or the manifest seq when nothing newer was replayed.
	LastSeq int64
}

// RestoreFromSnapshot loads a snapshot into the store. A missing snapshot is
// logged and skipped.
func (r *Restorer) RestoreFromSnapshot(ctx context.Context, snapshotID string) (int, error) {
	if snapshotID == "" {
		return 0, nil
	}
	dump, err := snapshot.Read(r.snapshotBaseDir, snapshotID)
	if errors.Is(err, os.ErrNotExist) {
		r.log.Warn("snapshot not found, skipping", zap.String("snapshot", snapshotID), zap.String("dir", r.snapshotBaseDir))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if err := r.store.LoadAll(ctx, dump); err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	r.log.Info("loaded snapshot", zap.String("snapshot", snapshotID), zap.Int("documents", len(dump)))
	return len(dump), nil
}

// Replay upserts every mutation with seq > fromSeq. A mutation whose seq is not
// newer than the last one applied to the same key counts as skipped.
func (r *Restorer) Replay(ctx context.Context, src Source, fromSeq int64) (RestoreResult, error) {
	res := RestoreResult{LastSeq: fromSeq}
	lastByKey := make(map[string]int64)
	err := src(ctx, func(m changelog.Mutation) error {
		if m.Seq <= fromSeq {
			return nil
		}
		if last, ok := lastByKey[m.Key]; ok && m.Seq <= last {
			res.Skipped++
			if r.metrics != nil {
				r.metrics.Skipped.Inc()
			}
			return nil
		}
		if err := r.store.Upsert(ctx, m.Key, m.Doc); err != nil {
			return fmt.Errorf("apply %s@%d: %w", m.Key, m.Seq, err)
		}
		lastByKey[m.Key] = m.Seq
		res.Applied++
		if r.metrics != nil {
			r.metrics.Applied.Inc()
		}
		if m.Seq > res.LastSeq {
			res.LastSeq = m.Seq
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("replay: %w", err)
	}
	return res, nil
}

func (r *Restorer) ReplayChangelog(ctx context.Context, changelogPath string, fromSeq int64) (RestoreResult, error) {
	return r.Replay(ctx, FileSource(changelogPath), fromSeq)
}

// ReplayChangelogKafka consumes mutations from partition 0 of topic.
func (r *Restorer) ReplayChangelogKafka(ctx context.Context, brokers []string, topic string, fromSeq int64) (RestoreResult, error) {
	return r.Replay(ctx, KafkaSource(brokers, topic, 20*time.Second), fromSeq)
}

// RestoreAndReplay reads the latest manifest, loads its snapshot and replays
// the changelog past the manifest seq. Without a manifest the whole changelog
// is replayed into the store as is.
func (r *Restorer) RestoreAndReplay(ctx context.Context, src Source) (RestoreResult, error) {
	start := time.Now()
	var fromSeq int64
	m, err := r.manifestReader.ReadLatest(ctx)
	switch {
	case errors.Is(err, manifest.ErrNoManifest):
		r.log.Warn("no manifest, replaying full changelog")
	case err != nil:
		return RestoreResult{}, fmt.Errorf("read manifest: %w", err)
	default:
		if r.metrics != nil && m.CreatedAtEpochSecond > 0 {
			r.metrics.LastManifestAgeSec.Set(time.Since(time.Unix(m.CreatedAtEpochSecond, 0)).Seconds())
		}
		if _, err := r.RestoreFromSnapshot(ctx, m.SnapshotID); err != nil {
			return RestoreResult{}, fmt.Errorf("restore snapshot: %w", err)
		}
		fromSeq = m.LastChangelogSeq
	}

	res, err := r.Replay(ctx, src, fromSeq)
	if err != nil {
		return res, err
	}
	if r.metrics != nil {
		r.metrics.TTRSec.Set(time.Since(start).Seconds())
	}
	r.log.Info("recovery complete",
		zap.Int("applied", res.Applied),
		zap.Int("skipped", res.Skipped),
		zap.Int64("last_seq", res.LastSeq),
		zap.Duration("ttr", time.Since(start)))
	return res, nil
}
