package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"catalog/internal/changelog"
	"catalog/internal/config"
	"catalog/internal/docstore"
	"catalog/internal/fragment"
	"catalog/internal/ingest"
	"catalog/internal/manifest"
	"catalog/internal/model"
	"catalog/internal/restore"
	"catalog/internal/schema"
	"catalog/internal/snapshot"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) assembler(st docstore.Store, market string) *fragment.Assembler {
	return fragment.NewAssembler(st, fragment.WithMarket(market), fragment.WithLogger(a.log))
}

// errEphemeralSnapshot rejects snapshots of a store that starts empty in every process.
var errEphemeralSnapshot = errors.New("snapshot needs a persistent backend")

// checkJournaled logs a backend write the changelog did not record.
func (a *app) checkJournaled(err error) error {
	if errors.Is(err, docstore.ErrNotJournaled) {
		a.log.Error("store is ahead of its changelog", zap.Error(err))
	}
	return err
}

func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Upsert the sample product and read it back for the configured locale",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, _, cls, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer cls.Close()

			p := model.SampleProduct()
			if err := st.Upsert(ctx, p.Key(), p); err != nil {
				return fmt.Errorf("upsert sample: %w", a.checkJournaled(err))
			}
			a.log.Info("sample product stored", zap.String("key", p.Key()))

			got, paths, err := a.assembler(st, a.cfg.Market).Fetch(ctx, p.Key(), a.cfg.Locale)
			if err != nil {
				return err
			}
			a.log.Info("fragment lookup",
				zap.String("key", p.Key()),
				zap.String("locale", a.cfg.Locale),
				zap.Strings("paths", paths))
			return printJSON(cmd.OutOrStdout(), got)
		},
	}
}

func newPathsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "paths [locale]",
		Short: "Print the lookup paths derived for a locale",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			locale := a.cfg.Locale
			if len(args) == 1 {
				locale = args[0]
			}
			paths, err := schema.DerivePaths(schema.Product, locale)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(paths, "\n"))
			return err
		},
	}
}

func newLookupCmd(a *app) *cobra.Command {
	var (
		locale   string
		raw      bool
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "lookup <key>...",
		Short: "Fetch products by key, each with a single multi-path lookup",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			market := a.cfg.Market
			if locale == "" {
				locale = a.cfg.Locale
			} else {
				loc, err := schema.ParseLocale(locale)
				if err != nil {
					return err
				}
				market = loc.Market()
			}
			st, cls, err := a.openBackend()
			if err != nil {
				return err
			}
			defer cls.Close()

			if raw {
				return printRaw(ctx, cmd.OutOrStdout(), st, args[0], locale)
			}
			if len(args) == 1 {
				p, _, err := a.assembler(st, market).Fetch(ctx, args[0], locale)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			}
			ps, err := a.assembler(st, market).FetchAll(ctx, args, locale, parallel)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ps)
		},
	}
	cmd.Flags().StringVar(&locale, "locale", "", "locale such as fr-BE, also selects the market (defaults to the configured locale and market)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the raw value of every derived path of the first key")
	cmd.Flags().IntVar(&parallel, "parallel", 8, "concurrent lookups when several keys are given")
	return cmd
}

func printRaw(ctx context.Context, w io.Writer, st docstore.Store, key, locale string) error {
	paths, err := schema.DerivePaths(schema.Product, locale)
	if err != nil {
		return err
	}
	res, err := st.LookupIn(ctx, key, paths)
	if err != nil {
		return err
	}
	out := make(map[string]json.RawMessage, len(paths))
	for _, p := range res.Paths() {
		if v, ok := res.Raw(p); ok {
			out[p] = v
		}
	}
	return printJSON(w, out)
}

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <products.jsonl>",
		Short: "Upsert products from a JSON lines file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open products: %w", err)
			}
			defer f.Close()

			st, _, cls, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer cls.Close()

			n, err := seedProducts(ctx, st, f)
			if err != nil {
				return a.checkJournaled(err)
			}
			a.log.Info("products seeded", zap.Int("count", n), zap.String("file", args[0]))
			return nil
		},
	}
}

func seedProducts(ctx context.Context, st docstore.Store, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	n, line := 0, 0
	for sc.Scan() {
		line++
		if len(strings.TrimSpace(sc.Text())) == 0 {
			continue
		}
		p, err := ingest.Decode(sc.Bytes())
		if err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if err := st.Upsert(ctx, p.Key(), p); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("scan products: %w", err)
	}
	return n, nil
}

func newIngestCmd(a *app) *cobra.Command {
	var (
		limit int
		idle  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Consume product documents from Kafka and upsert them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, _, cls, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer cls.Close()

			k := a.cfg.Kafka
			ing, err := ingest.NewKafkaIngester(k.Bootstrap, k.GroupID, k.ProductsTopic, st, a.log)
			if err != nil {
				return err
			}
			defer ing.Close()
			a.log.Info("ingesting products", zap.String("topic", k.ProductsTopic), zap.String("group", k.GroupID))
			stats, err := ing.Run(ctx, limit, idle)
			if err != nil {
				return a.checkJournaled(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested=%d rejected=%d\n", stats.Ingested, stats.Rejected)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many messages (0 = unlimited)")
	cmd.Flags().DurationVar(&idle, "idle", 0, "stop after no message for this long (0 = never)")
	return cmd
}

func newSnapshotCmd(a *app) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Dump every document and publish a manifest pointing at the dump",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// The manifest seq would cover changelog entries the empty dump lacks.
			if a.cfg.Backend == config.BackendMemory {
				return fmt.Errorf("%w: backend %q", errEphemeralSnapshot, a.cfg.Backend)
			}
			st, j, cls, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer cls.Close()

			if id == "" {
				id = "sid-" + uuid.NewString()
			}
			var seq int64
			if j != nil {
				seq = j.Seq()
			}
			n, err := snapshot.NewFilesystemSnapshotter(a.cfg.Snapshot.Dir).WriteSnapshot(ctx, id, st)
			if err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
			pub, pcls := a.manifestPublisher()
			defer pcls.Close()
			if err := pub.PublishLatest(ctx, manifest.New(id, seq, n)); err != nil {
				return fmt.Errorf("publish manifest: %w", err)
			}
			a.log.Info("snapshot published",
				zap.String("snapshot", id),
				zap.Int("documents", n),
				zap.Int64("changelog_seq", seq))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "snapshot id (defaults to sid-<uuid>)")
	return cmd
}

func newRecoverCmd(a *app) *cobra.Command {
	var (
		source string
		poll   time.Duration
		once   bool
	)
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Restore the latest snapshot and replay the changelog into the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, cls, err := a.openBackend()
			if err != nil {
				return err
			}
			defer cls.Close()

			if !once && a.cfg.Metrics.Addr != "" {
				srv := a.serveMetrics()
				defer srv.Close()
			}

			var src restore.Source
			brokers := changelog.Brokers(a.cfg.Kafka.Bootstrap)
			switch source {
			case config.SinkFile:
				src = restore.FileSource(a.changelogPath())
			case config.SinkKafka:
				src = restore.KafkaSource(brokers, a.cfg.Changelog.Topic, 20*time.Second)
			default:
				return fmt.Errorf("unknown changelog source %q", source)
			}
			r := restore.NewRestorer(st, a.manifestReader(), a.cfg.Snapshot.Dir,
				restore.WithLogger(a.log), restore.WithMetrics(a.metrics))

			ticker := time.NewTicker(poll)
			defer ticker.Stop()
			for {
				res, err := r.RestoreAndReplay(ctx, src)
				switch {
				case err != nil && once:
					return err
				case err != nil:
					a.log.Error("recovery cycle failed", zap.Error(err))
				case source == config.SinkKafka:
					if head := headOffset(ctx, a.cfg.Kafka.Bootstrap, a.cfg.Changelog.Topic); head >= 0 {
						// seq and offset advance together on a single-partition changelog
						a.metrics.Lag.Set(float64(head + 1 - res.LastSeq))
					}
				}
				if once {
					fmt.Fprintf(cmd.OutOrStdout(), "applied=%d skipped=%d last_seq=%d\n", res.Applied, res.Skipped, res.LastSeq)
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().StringVar(&source, "changelog-source", config.SinkFile, "file|kafka")
	cmd.Flags().DurationVar(&poll, "poll", 10*time.Second, "interval between recovery cycles")
	cmd.Flags().BoolVar(&once, "once", false, "run a single recovery cycle and exit")
	return cmd
}

func (a *app) serveMetrics() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}

// headOffset returns the last offset of partition 0 for a topic, or -1.
func headOffset(ctx context.Context, bootstrap, topic string) int64 {
	brokers := changelog.Brokers(bootstrap)
	if len(brokers) == 0 {
		return -1
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conn, err := kafka.DialLeader(ctx, "tcp", brokers[0], topic, 0)
	if err != nil {
		return -1
	}
	defer conn.Close()
	off, err := conn.ReadLastOffset()
	if err != nil {
		return -1
	}
	return off - 1
}
