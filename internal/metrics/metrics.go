package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	// Store operations
	Upserts           prometheus.Counter
	UpsertFailures    prometheus.Counter
	Lookups           prometheus.Counter
	LookupFailures    prometheus.Counter
	LookupPaths       prometheus.Counter
	LookupPathsAbsent prometheus.Counter
	LookupLatencySec  prometheus.Histogram

	// Recovery
	Applied            prometheus.Counter
	Skipped            prometheus.Counter
	TTRSec             prometheus.Gauge
	LastManifestAgeSec prometheus.Gauge
	Lag                prometheus.Gauge

	// Changelog
	ChangelogAppended prometheus.Counter
	TxCommits         prometheus.Counter
	TxAborts          prometheus.Counter
	TxLatencySec      prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	m := &Registry{
		reg:               r,
		Upserts:           prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_upserts_total"}),
		UpsertFailures:    prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_upsert_failures_total"}),
		Lookups:           prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_lookups_total"}),
		LookupFailures:    prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_lookup_failures_total"}),
		LookupPaths:       prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_lookup_paths_total"}),
		LookupPathsAbsent: prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_lookup_paths_absent_total"}),
		LookupLatencySec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_lookup_latency_seconds",
			Buckets: prometheus.DefBuckets,
		}),
		Applied:            prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_replay_applied_total"}),
		Skipped:            prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_replay_skipped_total"}),
		TTRSec:             prometheus.NewGauge(prometheus.GaugeOpts{Name: "catalog_recovery_ttr_seconds"}),
		LastManifestAgeSec: prometheus.NewGauge(prometheus.GaugeOpts{Name: "catalog_last_manifest_age_seconds"}),
		Lag:                prometheus.NewGauge(prometheus.GaugeOpts{Name: "catalog_changelog_lag"}),
		ChangelogAppended:  prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_changelog_appended_total"}),
		TxCommits:          prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_tx_produced_total"}),
		TxAborts:           prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_tx_aborted_total"}),
		TxLatencySec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_tx_latency_seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
	r.MustRegister(
		m.Upserts, m.UpsertFailures, m.Lookups, m.LookupFailures, m.LookupPaths, m.LookupPathsAbsent, m.LookupLatencySec,
		m.Applied, m.Skipped, m.TTRSec, m.LastManifestAgeSec, m.Lag,
		m.ChangelogAppended, m.TxCommits, m.TxAborts, m.TxLatencySec,
	)
	return m
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// TxCommitted and TxAborted let the registry observe changelog transactions.
func (r *Registry) TxCommitted(latency time.Duration) {
	r.TxCommits.Inc()
	r.TxLatencySec.Observe(latency.Seconds())
}

func (r *Registry) TxAborted() { r.TxAborts.Inc() }
