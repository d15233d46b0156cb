package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, "fr-FR", cfg.Locale)
	assert.Equal(t, "fr", cfg.Market)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Changelog, cfg.Changelog)
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `
backend: pebble
locale: nl-BE
market: be
pebble:
  dir: /var/lib/catalog
changelog:
  sink: both
  topic: products
logging:
  level: debug
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendPebble, cfg.Backend)
	assert.Equal(t, "nl-BE", cfg.Locale)
	assert.Equal(t, "be", cfg.Market)
	assert.Equal(t, "/var/lib/catalog", cfg.Pebble.Dir)
	assert.Equal(t, SinkBoth, cfg.Changelog.Sink)
	assert.Equal(t, "products", cfg.Changelog.Topic)
	// Untouched keys keep their defaults.
	assert.Equal(t, "catalog.jsonl", cfg.Changelog.File)
	assert.True(t, cfg.Logging.Development)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [unterminated"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CATALOG_BACKEND", "redis")
	t.Setenv("CATALOG_REDIS_ADDR", "redis:6380")
	t.Setenv("CATALOG_REDIS_PASSWORD", "secret")
	t.Setenv("CATALOG_CASSANDRA_HOSTS", "c1:9042, c2:9042,")
	t.Setenv("CATALOG_KAFKA_BOOTSTRAP", "k1:9092,k2:9092")
	t.Setenv("CATALOG_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, "redis:6380", cfg.Redis.Address)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, []string{"c1:9042", "c2:9042"}, cfg.Cassandra.Hosts)
	assert.Equal(t, "k1:9092,k2:9092", cfg.Kafka.Bootstrap)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "couchbase" }},
		{"pebble without dir", func(c *Config) { c.Backend = BackendPebble; c.Pebble.Dir = "" }},
		{"badger without dir", func(c *Config) { c.Backend = BackendBadger; c.Badger.Dir = "" }},
		{"redis without address", func(c *Config) { c.Backend = BackendRedis; c.Redis.Address = "" }},
		{"cassandra without hosts", func(c *Config) { c.Backend = BackendCassandra; c.Cassandra.Hosts = nil }},
		{"cassandra bad timeout", func(c *Config) { c.Backend = BackendCassandra; c.Cassandra.Timeout = "soon" }},
		{"empty market", func(c *Config) { c.Market = "" }},
		{"unknown changelog sink", func(c *Config) { c.Changelog.Sink = "s3" }},
		{"unknown manifest sink", func(c *Config) { c.Snapshot.ManifestSink = "none" }},
		{"kafka sink without bootstrap", func(c *Config) { c.Changelog.Sink = SinkKafka; c.Kafka.Bootstrap = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCassandraTimeout(t *testing.T) {
	cfg := Default()
	d, err := cfg.CassandraTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)

	cfg.Cassandra.Timeout = ""
	d, err = cfg.CassandraTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
}
