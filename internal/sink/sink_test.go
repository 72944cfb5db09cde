package sink

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafka "github.com/segmentio/kafka-go"

	apperrors "chanlun/internal/errors"
	"chanlun/internal/events"
	"chanlun/internal/ledger"
	"chanlun/internal/models"
	"chanlun/internal/store"
	"chanlun/internal/stream"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testEnvelope(bar int) stream.Envelope {
	id := stream.Identity{Symbol: "NIFTY", Interval: "1m", Provenance: "test"}
	b := events.NewBuilder(uint64(bar * 10))
	b.SetBar(bar, 1704186900+int64(bar*60))
	s := models.Stroke{StartIndex: bar, EndIndex: bar + 4, Direction: models.DirectionUp, High: 12, Low: 10}
	b.Emit(events.LayerStroke, events.TransitionCandidate, 0, s.Key(), events.StrokePayload{Stroke: s})
	evs := b.Drain()
	return stream.Envelope{
		StreamID:    id.ID(),
		Symbol:      id.Symbol,
		Interval:    id.Interval,
		Provenance:  id.Provenance,
		Schema:      events.SchemaVersion,
		BarIndex:    bar,
		BarTime:     1704186900 + int64(bar*60),
		Events:      evs,
		Fingerprint: events.StreamFingerprint(evs),
	}
}

func TestKafkaSinkPublish(t *testing.T) {
	w := &fakeWriter{}
	k := newKafkaSink(w)
	env := testEnvelope(3)

	if err := k.Publish(context.Background(), env); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != env.StreamID.String() {
		t.Errorf("key %s, want stream id", msg.Key)
	}

	var decoded struct {
		StreamID uuid.UUID         `json:"stream_id"`
		BarIndex int               `json:"bar_index"`
		Events   []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.StreamID != env.StreamID || decoded.BarIndex != 3 || len(decoded.Events) != 1 {
		t.Errorf("decoded %+v", decoded)
	}

	if err := k.Close(); err != nil || !w.closed {
		t.Fatal("close did not reach the writer")
	}
	if err := k.Publish(context.Background(), env); !apperrors.Is(err, apperrors.ErrSinkClosed) {
		t.Errorf("publish after close error = %v", err)
	}
}

func TestNewKafkaSinkValidates(t *testing.T) {
	if _, err := NewKafkaSink(KafkaConfig{Topic: "t"}); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("missing brokers error = %v", err)
	}
	if _, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}}); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("missing topic error = %v", err)
	}
}

func TestWriterAcks(t *testing.T) {
	tests := map[string]kafka.RequiredAcks{
		"all":  kafka.RequireAll,
		"-1":   kafka.RequireAll,
		"none": kafka.RequireNone,
		"one":  kafka.RequireOne,
		"":     kafka.RequireOne,
	}
	for in, want := range tests {
		if got := writerAcks(in); got != want {
			t.Errorf("writerAcks(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConsumerCountsFailures(t *testing.T) {
	boom := errors.New("broker down")
	w := &fakeWriter{err: boom}
	c := NewConsumer(newKafkaSink(w), 0, zerolog.Nop())

	c.OnEnvelope(testEnvelope(0))
	c.OnEnvelope(testEnvelope(1))
	if c.Failures() != 2 {
		t.Errorf("failures %d, want 2", c.Failures())
	}

	w.err = nil
	c.OnEnvelope(testEnvelope(2))
	if c.Failures() != 2 || len(w.msgs) != 1 {
		t.Errorf("failures %d, messages %d", c.Failures(), len(w.msgs))
	}
}

func TestMultiWithLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l, err := ledger.New(ledger.Config{Path: path, MaxSize: 1}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	w := &fakeWriter{}
	m := Multi{NewLedgerSink(l), newKafkaSink(w)}

	for i := 0; i < 3; i++ {
		if err := m.Publish(context.Background(), testEnvelope(i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	entries, err := ledger.Read(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || len(w.msgs) != 3 {
		t.Errorf("ledger %d entries, kafka %d messages", len(entries), len(w.msgs))
	}
}

func TestStoreSinkIsReplaySafe(t *testing.T) {
	ds, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chanlun.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	s := NewStoreSink(ds)
	env := testEnvelope(4)
	for i := 0; i < 2; i++ {
		if err := s.Publish(context.Background(), env); err != nil {
			t.Fatal(err)
		}
	}
	got, err := ds.GetEvents(context.Background(), env.StreamID.String(), store.EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != env.Events[0].ID {
		t.Errorf("stored %d events", len(got))
	}
}
