// Package sink publishes flushed entity documents to downstream consumers.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"curveVolume/internal/model"
	"curveVolume/internal/storage"
)

const defaultWriteTimeout = 5 * time.Second

// DefaultKinds are the append-mostly records consumers follow.
var DefaultKinds = []model.Kind{model.KindSwapEvent, model.KindLiquidityEvent, model.KindCandle}

// Config selects the topic and which entity kinds are published.
type Config struct {
	Brokers      []string
	Topic        string
	Kinds        []model.Kind
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the message value.
type Envelope struct {
	Kind model.Kind      `json:"kind"`
	ID   string          `json:"id"`
	Doc  json.RawMessage `json:"doc"`
}

// Kafka publishes documents keyed by kind and id, so updates of the same
// candle land on one partition in order.
type Kafka struct {
	writer  messageWriter
	kinds   map[model.Kind]bool
	timeout time.Duration
	logger  *zap.Logger
}

func NewKafka(cfg Config, logger *zap.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Zstd,
	}
	return newKafka(writer, cfg, logger), nil
}

func newKafka(writer messageWriter, cfg Config, logger *zap.Logger) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = DefaultKinds
	}
	set := make(map[model.Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Kafka{writer: writer, kinds: set, timeout: timeout, logger: logger}
}

// Publish writes the selected documents in flush order.
func (k *Kafka) Publish(ctx context.Context, docs []storage.Document) error {
	msgs := make([]kafka.Message, 0, len(docs))
	for _, d := range docs {
		if !k.kinds[d.Kind] {
			continue
		}
		value, err := json.Marshal(Envelope{Kind: d.Kind, ID: d.ID, Doc: d.Data})
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", d.Kind, d.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(string(d.Kind) + ":" + d.ID),
			Value:   value,
			Headers: []kafka.Header{{Key: "kind", Value: []byte(d.Kind)}},
		})
	}
	if len(msgs) == 0 {
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	if err := k.writer.WriteMessages(writeCtx, msgs...); err != nil {
		return fmt.Errorf("publish %d records: %w", len(msgs), err)
	}
	k.logger.Debug("records published", zap.Int("records", len(msgs)))
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
