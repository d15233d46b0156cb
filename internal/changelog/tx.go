package changelog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// TxObserver receives transaction outcomes. metrics.Registry implements it.
type TxObserver interface {
	TxCommitted(latency time.Duration)
	TxAborted()
}

// txProducer is the subset of *ck.Producer used by TxWriter.
type txProducer interface {
	BeginTransaction() error
	Produce(msg *ck.Message, deliveryChan chan ck.Event) error
	Flush(timeoutMs int) int
	CommitTransaction(ctx context.Context) error
	AbortTransaction(ctx context.Context) error
	Close()
}

// TxWriter produces every mutation in its own Kafka transaction, so readers
// using isolation.level=read_committed never see an upsert that was not committed.
type TxWriter struct {
	p     txProducer
	topic string
	obs   TxObserver
}

func NewTxWriter(ctx context.Context, bootstrap, topic, txID string, obs TxObserver) (*TxWriter, error) {
	p, err := ck.NewProducer(&ck.ConfigMap{
		"bootstrap.servers":  bootstrap,
		"enable.idempotence": true,
		"acks":               "all",
		"transactional.id":   txID,
	})
	if err != nil {
		return nil, fmt.Errorf("producer: %w", err)
	}
	if err := p.InitTransactions(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("init tx: %w", err)
	}
	return &TxWriter{p: p, topic: topic, obs: obs}, nil
}

// NewTxWriterWith is only for tests to inject a fake producer.
func NewTxWriterWith(p txProducer, topic string, obs TxObserver) *TxWriter {
	return &TxWriter{p: p, topic: topic, obs: obs}
}

func (w *TxWriter) Append(ctx context.Context, m Mutation) error {
	b, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	t0 := time.Now()
	if err := w.p.BeginTransaction(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	msg := &ck.Message{
		TopicPartition: ck.TopicPartition{Topic: &w.topic, Partition: 0},
		Key:            []byte(m.Key),
		Value:          b,
	}
	if err := w.p.Produce(msg, nil); err != nil {
		return w.abort(ctx, fmt.Errorf("produce: %w", err))
	}
	_ = w.p.Flush(5000)
	if err := w.p.CommitTransaction(ctx); err != nil {
		return w.abort(ctx, fmt.Errorf("commit tx: %w", err))
	}
	if w.obs != nil {
		w.obs.TxCommitted(time.Since(t0))
	}
	return nil
}

func (w *TxWriter) abort(ctx context.Context, cause error) error {
	_ = w.p.AbortTransaction(ctx)
	if w.obs != nil {
		w.obs.TxAborted()
	}
	return cause
}

func (w *TxWriter) Close() { w.p.Close() }
