// Package sink delivers event envelopes to external destinations.
package sink

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "chanlun/internal/errors"
	"chanlun/internal/ledger"
	"chanlun/internal/store"
	"chanlun/internal/stream"
)

// Sink receives one envelope per processed bar.
type Sink interface {
	Name() string
	Publish(ctx context.Context, env stream.Envelope) error
	Close() error
}

// LedgerSink appends envelopes to a JSONL ledger.
type LedgerSink struct {
	ledger *ledger.Ledger
}

// NewLedgerSink wraps l.
func NewLedgerSink(l *ledger.Ledger) *LedgerSink {
	return &LedgerSink{ledger: l}
}

// Name implements Sink.
func (s *LedgerSink) Name() string { return "ledger" }

// Publish implements Sink.
func (s *LedgerSink) Publish(_ context.Context, env stream.Envelope) error {
	return s.ledger.Append(env)
}

// Close implements Sink.
func (s *LedgerSink) Close() error {
	return s.ledger.Close()
}

// StoreSink appends envelope events to a DataStore. Re-published envelopes
// are ignored by the store, so replays are safe.
type StoreSink struct {
	store store.DataStore
}

// NewStoreSink wraps ds.
func NewStoreSink(ds store.DataStore) *StoreSink {
	return &StoreSink{store: ds}
}

// Name implements Sink.
func (s *StoreSink) Name() string { return "store" }

// Publish implements Sink.
func (s *StoreSink) Publish(ctx context.Context, env stream.Envelope) error {
	if len(env.Events) == 0 {
		return nil
	}
	rows, err := store.FromEvents(env.Events)
	if err != nil {
		return err
	}
	_, err = s.store.AppendEvents(ctx, env.StreamID.String(), rows)
	return err
}

// Close implements Sink. The store is owned by the caller and stays open.
func (s *StoreSink) Close() error { return nil }

// Multi publishes to every sink in order and stops at the first failure.
type Multi []Sink

// Name implements Sink.
func (m Multi) Name() string { return "multi" }

// Publish implements Sink.
func (m Multi) Publish(ctx context.Context, env stream.Envelope) error {
	for _, s := range m {
		if err := s.Publish(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Sink and returns the first close error.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Consumer adapts a Sink to a hub consumer. Each publish gets its own
// timeout; failures are logged and counted, never retried.
type Consumer struct {
	sink    Sink
	timeout time.Duration
	logger  zerolog.Logger

	mu       sync.Mutex
	failures int
}

// NewConsumer wraps s for registration on a stream hub.
func NewConsumer(s Sink, timeout time.Duration, logger zerolog.Logger) *Consumer {
	return &Consumer{sink: s, timeout: timeout, logger: logger}
}

// OnEnvelope implements stream.Consumer.
func (c *Consumer) OnEnvelope(env stream.Envelope) {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.sink.Publish(ctx, env); err != nil {
		c.mu.Lock()
		c.failures++
		c.mu.Unlock()
		c.logger.Error().
			Err(apperrors.NewSinkError(c.sink.Name(), err)).
			Str("stream", env.StreamID.String()).
			Int("bar", env.BarIndex).
			Msg("Sink publish failed")
	}
}

// Streams implements stream.Consumer.
func (c *Consumer) Streams() []string {
	return nil
}

// Failures returns the number of failed publishes.
func (c *Consumer) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}
