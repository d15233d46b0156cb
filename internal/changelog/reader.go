package changelog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReadFile calls fn for every mutation in a JSONL changelog, in file order.
func ReadFile(path string, fn func(Mutation) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open changelog: %w", err)
	}
	defer f.Close()
	return Decode(f, fn)
}

// Decode reads JSON lines from r.
func Decode(r io.Reader, fn func(Mutation) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var m Mutation
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			return fmt.Errorf("unmarshal line %d: %w", line, err)
		}
		if err := fn(m); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan changelog: %w", err)
	}
	return nil
}

// ReadKafka consumes partition 0 of topic until no message arrives within idle,
// calling fn for every mutation.
func ReadKafka(ctx context.Context, brokers []string, topic string, idle time.Duration, fn func(Mutation) error) error {
	rd := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer rd.Close()
	for {
		rctx, cancel := context.WithTimeout(ctx, idle)
		msg, err := rd.ReadMessage(rctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if rctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read kafka: %w", err)
		}
		var m Mutation
		if err := json.Unmarshal(msg.Value, &m); err != nil {
			return fmt.Errorf("unmarshal offset %d: %w", msg.Offset, err)
		}
		if err := fn(m); err != nil {
			return fmt.Errorf("offset %d: %w", msg.Offset, err)
		}
	}
}
