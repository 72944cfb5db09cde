package stream

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"chanlun/internal/engine"
	"chanlun/internal/models"
)

func envelope(id Identity, bar int) Envelope {
	return Envelope{StreamID: id.ID(), Symbol: id.Symbol, BarIndex: bar}
}

func drainAll(ch <-chan Envelope) []Envelope {
	var out []Envelope
	for env := range ch {
		out = append(out, env)
	}
	return out
}

func TestIdentityIsStable(t *testing.T) {
	a := Identity{Symbol: "NIFTY", Interval: "5m", Provenance: "csv"}
	b := Identity{Symbol: "NIFTY", Interval: "5m", Provenance: "csv"}
	if a.ID() != b.ID() {
		t.Error("same identity must give the same stream id")
	}
	if a.ID() == (Identity{Symbol: "NIFTY", Interval: "1m", Provenance: "csv"}).ID() {
		t.Error("interval must be part of the stream id")
	}
	if a.ID().Version() != 5 {
		t.Errorf("expected a name-based SHA-1 uuid, got version %d", a.ID().Version())
	}
}

// Feature: chanlun-engine, Property 11: Ordered fan-out
//
// Property: with buffers large enough, every subscriber of a stream receives
// every envelope of that stream in publish order and nothing from other
// streams; consumers see the same order.
func TestProperty_OrderedFanOut(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("subscribers see their stream in order", prop.ForAll(
		func(subscribers, count int) bool {
			hub := NewHubWithConfig(HubConfig{BufferSize: 200, SubscriberBufferSize: 200})
			hub.Start(context.Background())

			mine := Identity{Symbol: "NIFTY", Interval: "1m", Provenance: "test"}
			other := Identity{Symbol: "BANKNIFTY", Interval: "1m", Provenance: "test"}

			chans := make([]<-chan Envelope, subscribers)
			for i := range chans {
				chans[i] = hub.Subscribe(mine.ID().String())
			}
			var consumed []int
			hub.RegisterConsumer(NewConsumerFunc([]string{mine.ID().String()}, func(env Envelope) {
				consumed = append(consumed, env.BarIndex)
			}))

			for i := 0; i < count; i++ {
				hub.Publish(envelope(mine, i))
				hub.Publish(envelope(other, i))
			}
			hub.Stop()

			for _, ch := range chans {
				got := drainAll(ch)
				if len(got) != count {
					return false
				}
				for i, env := range got {
					if env.BarIndex != i || env.Symbol != "NIFTY" {
						return false
					}
				}
			}
			if len(consumed) != count {
				return false
			}
			for i, b := range consumed {
				if b != i {
					return false
				}
			}
			return hub.Metrics().Dropped == 0
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

func TestSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{BufferSize: 100, SubscriberBufferSize: 2})
	hub.Start(context.Background())

	id := Identity{Symbol: "NIFTY", Interval: "1m"}
	slow := hub.Subscribe(id.ID().String())
	for i := 0; i < 10; i++ {
		hub.Publish(envelope(id, i))
	}
	hub.Stop()

	got := drainAll(slow)
	if len(got) != 2 {
		t.Fatalf("slow subscriber kept %d envelopes, want 2", len(got))
	}
	m := hub.Metrics()
	if m.Received != 10 || m.Dropped != 8 || m.Broadcast != 2 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestUnsubscribe(t *testing.T) {
	hub := NewHub()
	id := Identity{Symbol: "NIFTY"}.ID().String()
	ch := hub.Subscribe(id)
	if hub.SubscriberCount(id) != 1 {
		t.Fatal("subscriber not registered")
	}
	hub.Unsubscribe(id, ch)
	if hub.SubscriberCount(id) != 0 {
		t.Error("subscriber not removed")
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
}

func TestPublisherObservesChain(t *testing.T) {
	hub := NewHub()
	hub.Start(context.Background())

	id := Identity{Symbol: "NIFTY", Interval: "1m", Provenance: "test"}
	ch := hub.Subscribe(id.ID().String())

	chain, err := engine.NewChain(engine.DefaultOptions(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	chain.SetObserver(NewPublisher(hub, id))

	base := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		p := 100 + float64(i)
		bar := models.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: p, High: p + 1, Low: p - 1, Close: p}
		if _, err := chain.Step(bar); err != nil {
			t.Fatal(err)
		}
	}
	hub.Stop()

	got := drainAll(ch)
	if len(got) != 5 {
		t.Fatalf("received %d envelopes, want 5", len(got))
	}
	last := got[4]
	if last.BarIndex != 4 || last.Fingerprint != chain.Fingerprint() || last.Schema != 1 || last.BarTime != base.Add(4*time.Minute).Unix() {
		t.Errorf("unexpected envelope %+v", last)
	}
}

func TestPublishWaitNeverDrops(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{BufferSize: 1, SubscriberBufferSize: 1})
	id := Identity{Symbol: "NIFTY", Interval: "1m"}
	if hub.PublishWait(envelope(id, 0)) {
		t.Fatal("PublishWait on a stopped hub should fail")
	}

	var seen []int
	hub.RegisterConsumer(NewConsumerFunc(nil, func(env Envelope) {
		seen = append(seen, env.BarIndex)
	}))
	hub.Start(context.Background())
	for i := 0; i < 50; i++ {
		if !hub.PublishWait(envelope(id, i)) {
			t.Fatalf("PublishWait %d failed", i)
		}
	}
	hub.Stop()

	if len(seen) != 50 {
		t.Fatalf("consumer saw %d envelopes, want 50", len(seen))
	}
	for i, b := range seen {
		if b != i {
			t.Fatalf("envelope %d out of order: %d", i, b)
		}
	}
	if m := hub.Metrics(); m.Dropped != 0 || m.Received != 50 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestPublishWaitReturnsAfterContextCancel(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{BufferSize: 4, SubscriberBufferSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	hub.Start(ctx)
	cancel()

	id := Identity{Symbol: "NIFTY", Interval: "1m"}
	done := make(chan int)
	go func() {
		queued := 0
		for i := 0; i < 10; i++ {
			if hub.PublishWait(envelope(id, i)) {
				queued++
			}
		}
		done <- queued
	}()

	select {
	case queued := <-done:
		if queued > 4 {
			t.Errorf("queued %d envelopes into a 4-slot buffer after cancel", queued)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PublishWait blocked after the hub context was cancelled")
	}
	hub.Stop()
}
