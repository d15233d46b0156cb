// Package ingest consumes product documents from Kafka and upserts them.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"catalog/internal/docstore"
	"catalog/internal/model"
	"catalog/internal/schema"
)

var ErrInvalidProduct = errors.New("invalid product")

// consumer is the subset of *ck.Consumer used by Ingester.
type consumer interface {
	ReadMessage(timeout time.Duration) (*ck.Message, error)
	CommitMessage(m *ck.Message) ([]ck.TopicPartition, error)
	Close() error
}

type Stats struct {
	Ingested int
	Rejected int
}

// Ingester reads one product per message, normalizes it and upserts it under
// its document key. Offsets are committed only after the upsert succeeded.
type Ingester struct {
	c     consumer
	store docstore.Store
	log   *zap.Logger
	poll  time.Duration
}

// NewKafkaIngester subscribes a read_committed consumer to topic.
func NewKafkaIngester(bootstrap, groupID, topic string, st docstore.Store, log *zap.Logger) (*Ingester, error) {
	c, err := ck.NewConsumer(&ck.ConfigMap{
		"bootstrap.servers":  bootstrap,
		"group.id":           groupID,
		"enable.auto.commit": false,
		"isolation.level":    "read_committed",
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		return nil, fmt.Errorf("consumer: %w", err)
	}
	if err := c.SubscribeTopics([]string{topic}, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return NewIngesterWith(c, st, log), nil
}

// NewIngesterWith is only for tests to inject a fake consumer.
func NewIngesterWith(c consumer, st docstore.Store, log *zap.Logger) *Ingester {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingester{c: c, store: st, log: log, poll: time.Second}
}

func (i *Ingester) Close() error { return i.c.Close() }

// Run consumes until ctx is done, limit messages were handled (limit > 0), or no
// message arrived for idle (idle > 0).
func (i *Ingester) Run(ctx context.Context, limit int, idle time.Duration) (Stats, error) {
	var st Stats
	lastMsg := time.Now()
	for ctx.Err() == nil {
		if limit > 0 && st.Ingested+st.Rejected >= limit {
			break
		}
		msg, err := i.c.ReadMessage(i.poll)
		if err != nil {
			var kerr ck.Error
			if errors.As(err, &kerr) && kerr.IsTimeout() {
				if idle > 0 && time.Since(lastMsg) >= idle {
					break
				}
				continue
			}
			return st, fmt.Errorf("read message: %w", err)
		}
		lastMsg = time.Now()

		p, err := Decode(msg.Value)
		if err != nil {
			// bad input is skipped but its offset still committed
			i.log.Warn("product rejected", zap.Error(err), zap.ByteString("key", msg.Key))
			st.Rejected++
		} else {
			if err := i.store.Upsert(ctx, p.Key(), p); err != nil {
				return st, fmt.Errorf("upsert %s: %w", p.Key(), err)
			}
			st.Ingested++
		}
		if _, err := i.c.CommitMessage(msg); err != nil {
			return st, fmt.Errorf("commit: %w", err)
		}
	}
	i.log.Info("ingest stopped", zap.Int("ingested", st.Ingested), zap.Int("rejected", st.Rejected))
	return st, nil
}

// Decode parses and normalizes a product: ids are trimmed, market keys are
// lower-cased and must stay unique, and every languageInfo key must be a
// language-region locale.
func Decode(b []byte) (model.Product, error) {
	var p model.Product
	if err := json.Unmarshal(b, &p); err != nil {
		return model.Product{}, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	p.ID = strings.TrimSpace(p.ID)
	p.Type = strings.TrimSpace(p.Type)
	if p.ID == "" || p.Type == "" {
		return model.Product{}, fmt.Errorf("%w: id and type are required", ErrInvalidProduct)
	}
	if len(p.MarketInfo) > 0 {
		mi := make(map[string]model.MarketInfo, len(p.MarketInfo))
		for m, v := range p.MarketInfo {
			if v.Price < 0 || v.Availability < 0 {
				return model.Product{}, fmt.Errorf("%w: negative price or availability for market %q", ErrInvalidProduct, m)
			}
			lm := strings.ToLower(m)
			if _, dup := mi[lm]; dup {
				return model.Product{}, fmt.Errorf("%w: market %q given twice", ErrInvalidProduct, lm)
			}
			mi[lm] = v
		}
		p.MarketInfo = mi
	}
	for c := range p.LanguageInfo {
		if _, err := schema.ParseLocale(c); err != nil {
			return model.Product{}, fmt.Errorf("%w: languageInfo key: %w", ErrInvalidProduct, err)
		}
	}
	return p, nil
}
