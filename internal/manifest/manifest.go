package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/kafka-go"

	"catalog/internal/changelog"
)

const latestFile = "manifest.latest.json"

// DefaultKey is the record key of the latest manifest on a compacted topic.
const DefaultKey = "catalog-manifest-latest"

var ErrNoManifest = errors.New("no manifest found")

// Manifest points at the latest snapshot and the changelog seq it covers.
type Manifest struct {
	SnapshotID           string `json:"snapshotId"`
	LastChangelogSeq     int64  `json:"lastChangelogSeq"`
	Documents            int    `json:"documents"`
	CreatedAtEpochSecond int64  `json:"createdAt"`
}

// New stamps a manifest with the current time.
func New(snapshotID string, lastChangelogSeq int64, documents int) Manifest {
	return Manifest{
		SnapshotID:           snapshotID,
		LastChangelogSeq:     lastChangelogSeq,
		Documents:            documents,
		CreatedAtEpochSecond: time.Now().UTC().Unix(),
	}
}

type Publisher interface {
	PublishLatest(ctx context.Context, m Manifest) error
}

type Reader interface {
	ReadLatest(ctx context.Context) (Manifest, error)
}

type multiPublisher struct {
	pubs []Publisher
}

// MultiPublisher writes to multiple publishers sequentially.
func MultiPublisher(pubs ...Publisher) Publisher {
	return &multiPublisher{pubs: pubs}
}

func (m *multiPublisher) PublishLatest(ctx context.Context, man Manifest) error {
	for _, p := range m.pubs {
		if err := p.PublishLatest(ctx, man); err != nil {
			return err
		}
	}
	return nil
}

type FilesystemManifest struct {
	baseDir string
}

func NewFilesystemManifest(baseDir string) *FilesystemManifest {
	return &FilesystemManifest{baseDir: baseDir}
}

func (f *FilesystemManifest) PublishLatest(_ context.Context, m Manifest) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	b, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	tmp := filepath.Join(f.baseDir, latestFile+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return os.Rename(tmp, filepath.Join(f.baseDir, latestFile))
}

func (f *FilesystemManifest) ReadLatest(_ context.Context) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(f.baseDir, latestFile))
	if errors.Is(err, os.ErrNotExist) {
		return Manifest{}, ErrNoManifest
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return m, nil
}

// KafkaManifest publishes the latest manifest as a compacted Kafka record.
type KafkaManifest struct {
	writer kafkaMessageWriter
	key    []byte
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaManifest creates a Kafka manifest publisher.
// bootstrap can be comma-separated brokers.
func NewKafkaManifest(bootstrap string, topic string, key string) *KafkaManifest {
	return &KafkaManifest{writer: &kafka.Writer{
		Addr:         kafka.TCP(changelog.Brokers(bootstrap)...),
		Topic:        topic,
		Balancer:     changelog.FirstPartition,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}, key: []byte(key)}
}

func (k *KafkaManifest) PublishLatest(ctx context.Context, m Manifest) error {
	b, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: k.key, Value: b})
}

func (k *KafkaManifest) Close() error { return k.writer.Close() }

// NewKafkaManifestWith is only for tests to inject a fake writer.
func NewKafkaManifestWith(w kafkaMessageWriter, key string) *KafkaManifest {
	return &KafkaManifest{writer: w, key: []byte(key)}
}

// KafkaReader reads the latest manifest record from a compacted Kafka topic.
type KafkaReader struct {
	brokers []string
	topic   string
	key     []byte
	idle    time.Duration
}

func NewKafkaReader(brokers []string, topic string, key string) *KafkaReader {
	return &KafkaReader{brokers: brokers, topic: topic, key: []byte(key), idle: 10 * time.Second}
}

// ReadLatest scans partition 0 from the beginning and keeps the last record for
// the key. Fine for compacted dev topics.
func (k *KafkaReader) ReadLatest(ctx context.Context) (Manifest, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   k.brokers,
		Topic:     k.topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer r.Close()

	var last Manifest
	for {
		rctx, cancel := context.WithTimeout(ctx, k.idle)
		msg, err := r.ReadMessage(rctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return Manifest{}, ctx.Err()
			}
			if rctx.Err() != nil {
				break
			}
			return Manifest{}, fmt.Errorf("read kafka: %w", err)
		}
		if string(msg.Key) != string(k.key) {
			continue
		}
		var man Manifest
		if err := json.Unmarshal(msg.Value, &man); err != nil {
			return Manifest{}, fmt.Errorf("unmarshal kafka manifest: %w", err)
		}
		last = man
	}
	if last.SnapshotID == "" {
		return Manifest{}, ErrNoManifest
	}
	return last, nil
}
