package changelog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/segmentio/kafka-go"
)

// Mutation is one document upsert. Seq is store-wide and strictly increasing.
type Mutation struct {
	Key string          `json:"key"`
	Seq int64           `json:"seq"`
	Doc json.RawMessage `json:"doc"`
	TS  int64           `json:"ts"`
}

type Writer interface {
	Append(ctx context.Context, m Mutation) error
}

// MultiWriter fans out appends to multiple underlying writers.
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

func (m *MultiWriter) Append(ctx context.Context, mu Mutation) error {
	for _, w := range m.writers {
		if err := w.Append(ctx, mu); err != nil {
			return err
		}
	}
	return nil
}

// FileWriter appends mutations as JSON lines.
type FileWriter struct {
	path string
}

func NewFileWriter(dir string, filename string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &FileWriter{path: filepath.Join(dir, filename)}, nil
}

func (w *FileWriter) Path() string { return w.path }

func (w *FileWriter) Append(_ context.Context, m Mutation) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(&m); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// KafkaWriter publishes mutations keyed by document key, so a compacted topic
// keeps the latest version of each document.
type KafkaWriter struct {
	writer kafkaMessageWriter
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Brokers splits a comma-separated bootstrap list.
func Brokers(bootstrap string) []string {
	var brokers []string
	for _, a := range strings.Split(bootstrap, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			brokers = append(brokers, a)
		}
	}
	return brokers
}

// FirstPartition sends every message to the lowest partition of the topic.
// Replay reads partition 0 only and seqs need a single total order, so extra
// partitions of a changelog or manifest topic stay empty.
var FirstPartition kafka.Balancer = kafka.BalancerFunc(func(_ kafka.Message, partitions ...int) int {
	return slices.Min(partitions)
})

func NewKafkaWriter(bootstrap string, topic string) *KafkaWriter {
	return &KafkaWriter{writer: &kafka.Writer{
		Addr:         kafka.TCP(Brokers(bootstrap)...),
		Topic:        topic,
		Balancer:     FirstPartition,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

func (k *KafkaWriter) Append(ctx context.Context, m Mutation) error {
	b, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(m.Key), Value: b})
}

// Close flushes pending writes and releases the broker connections.
func (k *KafkaWriter) Close() error { return k.writer.Close() }

// NewKafkaWriterWith is only for tests to inject a fake writer.
func NewKafkaWriterWith(w kafkaMessageWriter) *KafkaWriter {
	return &KafkaWriter{writer: w}
}
