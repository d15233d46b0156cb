package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory    = "memory"
	BackendPebble    = "pebble"
	BackendBadger    = "badger"
	BackendRedis     = "redis"
	BackendCassandra = "cassandra"
)

// ValidBackends lists the document store backends.
var ValidBackends = []string{BackendMemory, BackendPebble, BackendBadger, BackendRedis, BackendCassandra}

// Changelog and manifest sinks.
const (
	SinkNone  = "none"
	SinkFile  = "file"
	SinkKafka = "kafka"
	SinkBoth  = "both"
	SinkTx    = "tx"
)

// Config holds the catalog configuration.
type Config struct {
	// Backend selects the document store.
	Backend string `yaml:"backend"`
	// Locale drives path derivation for demo and lookup.
	Locale string `yaml:"locale"`
	// Market is the marketInfo entry the assembler fills.
	Market string `yaml:"market"`

	Pebble    PebbleConfig    `yaml:"pebble"`
	Badger    BadgerConfig    `yaml:"badger"`
	Redis     RedisConfig     `yaml:"redis"`
	Cassandra CassandraConfig `yaml:"cassandra"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Changelog ChangelogConfig `yaml:"changelog"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type PebbleConfig struct {
	Dir string `yaml:"dir"`
}

type BadgerConfig struct {
	Dir string `yaml:"dir"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type CassandraConfig struct {
	Hosts    []string `yaml:"hosts"`
	Keyspace string   `yaml:"keyspace"`
	Table    string   `yaml:"table"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Timeout  string   `yaml:"timeout"`
}

type KafkaConfig struct {
	// Bootstrap is a comma-separated broker list.
	Bootstrap string `yaml:"bootstrap"`
	// ProductsTopic and GroupID drive the ingest consumer.
	ProductsTopic string `yaml:"products_topic"`
	GroupID       string `yaml:"group_id"`
}

// ChangelogConfig configures where upserts are journaled.
type ChangelogConfig struct {
	Sink string `yaml:"sink"` // none, file, kafka, both, tx
	Dir  string `yaml:"dir"`
	File string `yaml:"file"`
	// Topic is written and replayed through partition 0 only. Extra
	// partitions are left empty.
	Topic string `yaml:"topic"`
	TxID  string `yaml:"tx_id"`
}

// SnapshotConfig configures snapshots and the manifest pointing at them.
type SnapshotConfig struct {
	Dir            string `yaml:"dir"`
	ManifestSink   string `yaml:"manifest_sink"`   // file, kafka, both
	ManifestSource string `yaml:"manifest_source"` // file, kafka
	Topic          string `yaml:"topic"`
	ManifestKey    string `yaml:"manifest_key"`
}

type MetricsConfig struct {
	// Addr serves /metrics during recover. Empty disables it.
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Backend: BackendMemory,
		Locale:  "fr-FR",
		Market:  "fr",
		Pebble:  PebbleConfig{Dir: "data/pebble"},
		Badger:  BadgerConfig{Dir: "data/badger"},
		Redis: RedisConfig{
			Address:   "localhost:6379",
			KeyPrefix: "catalog:",
		},
		Cassandra: CassandraConfig{
			Hosts:    []string{"localhost:9042"},
			Keyspace: "catalog",
			Table:    "documents",
			Timeout:  "10s",
		},
		Kafka: KafkaConfig{
			Bootstrap:     "localhost:9092",
			ProductsTopic: "catalog-products",
			GroupID:       "catalog-ingest",
		},
		Changelog: ChangelogConfig{
			Sink:  SinkFile,
			Dir:   "changelog",
			File:  "catalog.jsonl",
			Topic: "catalog-changelog",
			TxID:  "catalog-tx",
		},
		Snapshot: SnapshotConfig{
			Dir:            "snapshots",
			ManifestSink:   SinkFile,
			ManifestSource: SinkFile,
			Topic:          "catalog-manifest",
			ManifestKey:    "catalog-manifest-latest",
		},
		Metrics: MetricsConfig{Addr: ":9108"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults and applies env overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CATALOG_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("CATALOG_REDIS_ADDR"); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv("CATALOG_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CATALOG_CASSANDRA_HOSTS"); v != "" {
		var hosts []string
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
		c.Cassandra.Hosts = hosts
	}
	if v := os.Getenv("CATALOG_KAFKA_BOOTSTRAP"); v != "" {
		c.Kafka.Bootstrap = v
	}
	if v := os.Getenv("CATALOG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the fields the selected backend and sinks depend on.
func (c *Config) Validate() error {
	if !contains(ValidBackends, c.Backend) {
		return fmt.Errorf("invalid backend: %s (valid: %v)", c.Backend, ValidBackends)
	}
	switch c.Backend {
	case BackendPebble:
		if c.Pebble.Dir == "" {
			return fmt.Errorf("pebble.dir is required for the pebble backend")
		}
	case BackendBadger:
		if c.Badger.Dir == "" {
			return fmt.Errorf("badger.dir is required for the badger backend")
		}
	case BackendRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address is required for the redis backend")
		}
	case BackendCassandra:
		if len(c.Cassandra.Hosts) == 0 || c.Cassandra.Keyspace == "" || c.Cassandra.Table == "" {
			return fmt.Errorf("cassandra.hosts, keyspace and table are required for the cassandra backend")
		}
		if _, err := c.CassandraTimeout(); err != nil {
			return err
		}
	}
	if c.Market == "" {
		return fmt.Errorf("market must not be empty")
	}
	if !contains([]string{SinkNone, SinkFile, SinkKafka, SinkBoth, SinkTx}, c.Changelog.Sink) {
		return fmt.Errorf("invalid changelog sink: %s", c.Changelog.Sink)
	}
	if !contains([]string{SinkFile, SinkKafka, SinkBoth}, c.Snapshot.ManifestSink) {
		return fmt.Errorf("invalid manifest sink: %s", c.Snapshot.ManifestSink)
	}
	if !contains([]string{SinkFile, SinkKafka}, c.Snapshot.ManifestSource) {
		return fmt.Errorf("invalid manifest source: %s", c.Snapshot.ManifestSource)
	}
	usesKafka := c.Changelog.Sink == SinkKafka || c.Changelog.Sink == SinkBoth || c.Changelog.Sink == SinkTx ||
		c.Snapshot.ManifestSink != SinkFile || c.Snapshot.ManifestSource == SinkKafka
	if usesKafka && c.Kafka.Bootstrap == "" {
		return fmt.Errorf("kafka.bootstrap is required for kafka sinks")
	}
	return nil
}

// CassandraTimeout parses Cassandra.Timeout, defaulting to 10s when empty.
func (c *Config) CassandraTimeout() (time.Duration, error) {
	if c.Cassandra.Timeout == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Cassandra.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid cassandra.timeout %q: %w", c.Cassandra.Timeout, err)
	}
	return d, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
