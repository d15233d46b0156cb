package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"catalog/internal/config"
	"catalog/internal/logging"
	"catalog/internal/metrics"
)

// app carries what every subcommand needs once the root has loaded config.
type app struct {
	cfgFile  string
	backend  string
	logLevel string

	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog document store with partial, locale-driven product reads",
		Long: `catalog stores product documents and reads them back fragment by fragment.

A locale such as fr-FR selects the marketInfo.fr and languageInfo.fr-FR
fragments; plain fields are always read. All paths of a product are fetched
in a single lookup against the configured backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			if a.backend != "" {
				cfg.Backend = a.backend
			}
			if a.logLevel != "" {
				cfg.Logging.Level = a.logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			a.cfg, a.log, a.metrics = cfg, logger, metrics.NewRegistry()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "catalog.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "document store: memory, pebble, badger, redis, cassandra")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newDemoCmd(a),
		newPathsCmd(a),
		newLookupCmd(a),
		newSeedCmd(a),
		newIngestCmd(a),
		newSnapshotCmd(a),
		newRecoverCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
