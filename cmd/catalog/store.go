package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"catalog/internal/changelog"
	"catalog/internal/config"
	"catalog/internal/docstore"
	"catalog/internal/manifest"
)

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openBackend opens the configured document store, instrumented with the app metrics.
func (a *app) openBackend() (docstore.Store, closers, error) {
	var (
		st  docstore.Store
		cls closers
	)
	switch a.cfg.Backend {
	case config.BackendMemory:
		st = docstore.NewInMemoryStore()
	case config.BackendPebble:
		p, err := docstore.NewPebbleStore(a.cfg.Pebble.Dir)
		if err != nil {
			return nil, nil, err
		}
		st, cls = p, append(cls, p.Close)
	case config.BackendBadger:
		b, err := docstore.NewBadgerStore(a.cfg.Badger.Dir)
		if err != nil {
			return nil, nil, err
		}
		st, cls = b, append(cls, b.Close)
	case config.BackendRedis:
		opts := docstore.DefaultRedisOptions()
		opts.Address = a.cfg.Redis.Address
		opts.Password = a.cfg.Redis.Password
		opts.DB = a.cfg.Redis.DB
		opts.KeyPrefix = a.cfg.Redis.KeyPrefix
		r := docstore.NewRedisStore(opts)
		st, cls = r, append(cls, r.Close)
	case config.BackendCassandra:
		timeout, err := a.cfg.CassandraTimeout()
		if err != nil {
			return nil, nil, err
		}
		c, err := docstore.NewCassandraStore(docstore.CassandraOptions{
			ClusterHosts:      a.cfg.Cassandra.Hosts,
			Keyspace:          a.cfg.Cassandra.Keyspace,
			Table:             a.cfg.Cassandra.Table,
			Username:          a.cfg.Cassandra.Username,
			Password:          a.cfg.Cassandra.Password,
			ConnectionTimeout: timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		st, cls = c, append(cls, c.Close)
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", a.cfg.Backend)
	}
	a.log.Debug("document store opened", zap.String("backend", a.cfg.Backend))
	return docstore.Instrument(st, a.metrics), cls, nil
}

// openStore opens the backend and, unless the changelog sink is none, wraps it
// so every upsert is journaled.
func (a *app) openStore(ctx context.Context) (docstore.Store, *docstore.JournaledStore, closers, error) {
	st, cls, err := a.openBackend()
	if err != nil {
		return nil, nil, nil, err
	}
	w, wcls, err := a.openChangelog(ctx)
	if err != nil {
		_ = cls.Close()
		return nil, nil, nil, err
	}
	cls = append(cls, wcls...)
	if w == nil {
		return st, nil, cls, nil
	}
	last, err := a.lastSeq(ctx)
	if err != nil {
		_ = cls.Close()
		return nil, nil, nil, err
	}
	j := docstore.WithChangelog(st, w, last)
	return j, j, cls, nil
}

func (a *app) changelogPath() string {
	return filepath.Join(a.cfg.Changelog.Dir, a.cfg.Changelog.File)
}

func (a *app) openChangelog(ctx context.Context) (changelog.Writer, closers, error) {
	c := a.cfg.Changelog
	var ws []changelog.Writer
	var cls closers
	if c.Sink == config.SinkFile || c.Sink == config.SinkBoth {
		fw, err := changelog.NewFileWriter(c.Dir, c.File)
		if err != nil {
			return nil, nil, err
		}
		ws = append(ws, fw)
	}
	if c.Sink == config.SinkKafka || c.Sink == config.SinkBoth {
		kw := changelog.NewKafkaWriter(a.cfg.Kafka.Bootstrap, c.Topic)
		ws = append(ws, kw)
		cls = append(cls, kw.Close)
	}
	if c.Sink == config.SinkTx {
		tw, err := changelog.NewTxWriter(ctx, a.cfg.Kafka.Bootstrap, c.Topic, c.TxID, a.metrics)
		if err != nil {
			return nil, nil, err
		}
		ws = append(ws, tw)
		cls = append(cls, func() error { tw.Close(); return nil })
	}
	switch len(ws) {
	case 0:
		return nil, cls, nil
	case 1:
		return counted{ws[0], a}, cls, nil
	default:
		return counted{changelog.NewMultiWriter(ws...), a}, cls, nil
	}
}

// counted bumps the changelog metric after each successful append.
type counted struct {
	changelog.Writer
	a *app
}

func (c counted) Append(ctx context.Context, m changelog.Mutation) error {
	if err := c.Writer.Append(ctx, m); err != nil {
		return err
	}
	c.a.metrics.ChangelogAppended.Inc()
	return nil
}

// lastSeq resumes the changelog sequence: from the changelog file when there is
// one, otherwise from the latest manifest.
func (a *app) lastSeq(ctx context.Context) (int64, error) {
	if s := a.cfg.Changelog.Sink; s == config.SinkFile || s == config.SinkBoth {
		var last int64
		err := changelog.ReadFile(a.changelogPath(), func(m changelog.Mutation) error {
			if m.Seq > last {
				last = m.Seq
			}
			return nil
		})
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("resume changelog: %w", err)
		}
		return last, nil
	}
	m, err := a.manifestReader().ReadLatest(ctx)
	if errors.Is(err, manifest.ErrNoManifest) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resume changelog: %w", err)
	}
	return m.LastChangelogSeq, nil
}

func (a *app) manifestReader() manifest.Reader {
	s := a.cfg.Snapshot
	if s.ManifestSource == config.SinkKafka {
		return manifest.NewKafkaReader(changelog.Brokers(a.cfg.Kafka.Bootstrap), s.Topic, s.ManifestKey)
	}
	return manifest.NewFilesystemManifest(s.Dir)
}

func (a *app) manifestPublisher() (manifest.Publisher, closers) {
	s := a.cfg.Snapshot
	fs := manifest.NewFilesystemManifest(s.Dir)
	if s.ManifestSink == config.SinkFile {
		return fs, nil
	}
	km := manifest.NewKafkaManifest(a.cfg.Kafka.Bootstrap, s.Topic, s.ManifestKey)
	cls := closers{km.Close}
	if s.ManifestSink == config.SinkBoth {
		return manifest.MultiPublisher(fs, km), cls
	}
	return km, cls
}
