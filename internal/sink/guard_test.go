package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

type flakyWriter struct {
	fakeWriter
	failFirst int
	calls     int
}

func (f *flakyWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.calls++
	if f.calls <= f.failFirst {
		return errors.New("leader not available")
	}
	return f.fakeWriter.WriteMessages(ctx, msgs...)
}

func newTestGuard(s Sink, cfg GuardConfig, clock *time.Time) *Guarded {
	g := NewGuarded(s, cfg)
	g.now = func() time.Time { return *clock }
	g.sleep = func(context.Context, time.Duration) error { return nil }
	return g
}

func TestGuardedRetriesTransientFailures(t *testing.T) {
	w := &flakyWriter{failFirst: 2}
	clock := time.Unix(0, 0)
	g := newTestGuard(newKafkaSink(w), DefaultGuardConfig(), &clock)

	if err := g.Publish(context.Background(), testEnvelope(0)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	st := g.Stats()
	if st.Published != 1 || st.Retries != 2 || st.Failed != 0 || st.State != CircuitClosed {
		t.Errorf("stats %+v", st)
	}
	if len(w.msgs) != 1 {
		t.Errorf("wrote %d messages", len(w.msgs))
	}
}

func TestGuardedOpensAndRecovers(t *testing.T) {
	w := &flakyWriter{failFirst: 1 << 30}
	clock := time.Unix(0, 0)
	cfg := GuardConfig{MaxAttempts: 1, FailureThreshold: 2, OpenTimeout: time.Minute}
	g := newTestGuard(newKafkaSink(w), cfg, &clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := g.Publish(ctx, testEnvelope(i)); err == nil {
			t.Fatal("expected failure")
		}
	}
	if g.Stats().State != CircuitOpen {
		t.Fatalf("state %s, want open", g.Stats().State)
	}
	if err := g.Publish(ctx, testEnvelope(2)); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open circuit error = %v", err)
	}
	if w.calls != 2 {
		t.Errorf("open circuit reached the writer: %d calls", w.calls)
	}

	clock = clock.Add(2 * time.Minute)
	w.failFirst = 0
	if err := g.Publish(ctx, testEnvelope(3)); err != nil {
		t.Fatalf("trial publish: %v", err)
	}
	st := g.Stats()
	if st.State != CircuitClosed || st.Rejected != 1 || st.Failed != 2 || st.Published != 1 {
		t.Errorf("stats %+v", st)
	}
}

func TestGuardedHalfOpenFailureReopens(t *testing.T) {
	w := &flakyWriter{failFirst: 1 << 30}
	clock := time.Unix(0, 0)
	g := newTestGuard(newKafkaSink(w), GuardConfig{MaxAttempts: 1, FailureThreshold: 1, OpenTimeout: time.Second}, &clock)
	ctx := context.Background()

	_ = g.Publish(ctx, testEnvelope(0))
	clock = clock.Add(2 * time.Second)
	_ = g.Publish(ctx, testEnvelope(1))
	if g.Stats().State != CircuitOpen {
		t.Errorf("state %s after failed trial", g.Stats().State)
	}
}

func TestBackoffCaps(t *testing.T) {
	if backoff(3*time.Second, 5*time.Second) != 5*time.Second {
		t.Error("backoff should cap at the limit")
	}
	if backoff(time.Second, 0) != 2*time.Second {
		t.Error("zero limit means uncapped")
	}
}

func TestSleepCtxHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
