package sink

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	apperrors "chanlun/internal/errors"
	"chanlun/internal/stream"
)

// KafkaConfig holds producer configuration.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	RequiredAcks string // none, one, all
	BatchTimeout time.Duration
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each envelope as one JSON message keyed by stream ID,
// so a stream's bars stay ordered within its partition.
type KafkaSink struct {
	w      messageWriter
	mu     sync.Mutex
	closed bool
}

// NewKafkaSink creates a producer for cfg.Topic.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, apperrors.NewValidationError("kafka.brokers", cfg.Brokers, "at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, apperrors.NewValidationError("kafka.topic", cfg.Topic, "must not be empty")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: writerAcks(cfg.RequiredAcks),
		BatchTimeout: cfg.BatchTimeout,
	}
	return newKafkaSink(w), nil
}

func newKafkaSink(w messageWriter) *KafkaSink {
	return &KafkaSink{w: w}
}

// Name implements Sink.
func (k *KafkaSink) Name() string { return "kafka" }

// Publish implements Sink.
func (k *KafkaSink) Publish(ctx context.Context, env stream.Envelope) error {
	k.mu.Lock()
	closed := k.closed
	k.mu.Unlock()
	if closed {
		return apperrors.NewSinkError("kafka", apperrors.ErrSinkClosed)
	}

	value, err := json.Marshal(env)
	if err != nil {
		return apperrors.NewSinkError("kafka", err)
	}
	msg := kafka.Message{
		Key:   env.Key(),
		Value: value,
		Time:  time.Unix(env.BarTime, 0).UTC(),
		Headers: []kafka.Header{
			{Key: "schema", Value: []byte(strconv.Itoa(env.Schema))},
			{Key: "fingerprint", Value: []byte(env.Fingerprint)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return apperrors.NewSinkError("kafka", err)
	}
	return nil
}

// Close implements Sink.
func (k *KafkaSink) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.w.Close()
}

func writerAcks(raw string) kafka.RequiredAcks {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "all", "-1":
		return kafka.RequireAll
	case "none", "0":
		return kafka.RequireNone
	default:
		return kafka.RequireOne
	}
}
