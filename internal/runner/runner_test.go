package runner

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chanlun/internal/engine"
	apperrors "chanlun/internal/errors"
	"chanlun/internal/models"
	"chanlun/internal/stream"
)

func zigzag(n, period int, offset float64) []models.Bar {
	start := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	half := period / 2
	step := 40 / float64(half)
	out := make([]models.Bar, n)
	for t := range out {
		phase := t % period
		p := 100 - step*float64(phase)
		if phase > half {
			p = 60 + step*float64(phase-half)
		}
		p += offset
		out[t] = models.Bar{Timestamp: start.Add(time.Duration(t) * time.Minute), Open: p, High: p + 1, Low: p - 1, Close: p}
	}
	return out
}

func serialFingerprint(t *testing.T, bars []models.Bar) string {
	t.Helper()
	c, err := engine.NewChain(engine.DefaultOptions(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(bars); err != nil {
		t.Fatal(err)
	}
	return c.Fingerprint()
}

func TestRunMatchesSerialChains(t *testing.T) {
	var jobs []Job
	for i, sym := range []string{"NIFTY", "BANKNIFTY", "INFY", "TCS", "RELIANCE"} {
		jobs = append(jobs, Job{
			Identity: stream.Identity{Symbol: sym, Interval: "1m", Provenance: "test"},
			Bars:     zigzag(40+i*10, 8+2*i, float64(i)),
		})
	}

	r, err := New(engine.DefaultOptions(), 2, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	results := r.Run(context.Background(), jobs)
	if len(results) != len(jobs) {
		t.Fatalf("got %d results", len(results))
	}

	for i, res := range results {
		if res.Index != i || res.Identity != jobs[i].Identity {
			t.Errorf("result %d out of order: %+v", i, res.Identity)
		}
		if res.Err != nil {
			t.Errorf("%s: %v", res.Identity, res.Err)
		}
		if res.Bars != len(jobs[i].Bars) {
			t.Errorf("%s processed %d bars", res.Identity, res.Bars)
		}
		if want := serialFingerprint(t, jobs[i].Bars); res.Fingerprint != want {
			t.Errorf("%s fingerprint differs from a serial run", res.Identity)
		}
		if res.StreamID != jobs[i].Identity.ID() {
			t.Errorf("%s stream id mismatch", res.Identity)
		}
	}
	if len(Failed(results)) != 0 {
		t.Error("no stream should fail")
	}
}

func TestBadStreamDoesNotStopOthers(t *testing.T) {
	bad := zigzag(20, 8, 0)
	bad[10].High = math.NaN()

	jobs := []Job{
		{Identity: stream.Identity{Symbol: "GOOD", Interval: "1m"}, Bars: zigzag(30, 8, 0)},
		{Identity: stream.Identity{Symbol: "BAD", Interval: "1m"}, Bars: bad},
	}
	r, err := New(engine.DefaultOptions(), 0, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	results := r.Run(context.Background(), jobs)

	if results[0].Err != nil || results[0].Bars != 30 {
		t.Errorf("good stream: bars %d err %v", results[0].Bars, results[0].Err)
	}
	if !apperrors.Is(results[1].Err, apperrors.ErrInvalidBar) {
		t.Errorf("bad stream error = %v", results[1].Err)
	}
	if results[1].Bars != 10 {
		t.Errorf("bad stream kept %d bars, want 10", results[1].Bars)
	}
	if failed := Failed(results); len(failed) != 1 || failed[0].Identity.Symbol != "BAD" {
		t.Errorf("failed = %+v", failed)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := New(engine.DefaultOptions(), 1, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	results := r.Run(ctx, []Job{{Identity: stream.Identity{Symbol: "X"}, Bars: zigzag(10, 8, 0)}})
	if results[0].Err != context.Canceled || results[0].Bars != 0 {
		t.Errorf("bars %d err %v", results[0].Bars, results[0].Err)
	}
}

type countingObserver struct {
	mu   sync.Mutex
	bars map[string]int
}

func TestObserverPerStream(t *testing.T) {
	obs := &countingObserver{bars: map[string]int{}}
	r, err := New(engine.DefaultOptions(), 3, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	r.SetObserver(func(id stream.Identity, _ int) engine.Observer {
		return observerFunc(func(*engine.Snapshot, time.Duration) {
			obs.mu.Lock()
			obs.bars[id.Symbol]++
			obs.mu.Unlock()
		})
	})

	r.Run(context.Background(), []Job{
		{Identity: stream.Identity{Symbol: "A"}, Bars: zigzag(12, 8, 0)},
		{Identity: stream.Identity{Symbol: "B"}, Bars: zigzag(17, 8, 0)},
	})
	if obs.bars["A"] != 12 || obs.bars["B"] != 17 {
		t.Errorf("observed %v", obs.bars)
	}
}

type observerFunc func(*engine.Snapshot, time.Duration)

func (f observerFunc) ObserveBar(s *engine.Snapshot, d time.Duration) { f(s, d) }

func TestNewValidatesOptions(t *testing.T) {
	opts := engine.DefaultOptions()
	opts.MaxLevels = -1
	if _, err := New(opts, 1, zerolog.Nop()); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("error = %v", err)
	}
}
