package engine

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"chanlun/internal/audit"
	apperrors "chanlun/internal/errors"
	"chanlun/internal/events"
	"chanlun/internal/models"
)

var base = time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)

func bar(i int, p, spread float64) models.Bar {
	return models.Bar{
		Timestamp: base.Add(time.Duration(i) * time.Minute),
		Open:      p,
		High:      p + spread,
		Low:       p - spread,
		Close:     p,
		Volume:    1000,
	}
}

// zigzag oscillates between 100 and 60 with the given period.
func zigzag(n, period int) []models.Bar {
	half := period / 2
	step := 40 / float64(half)
	out := make([]models.Bar, n)
	for t := range out {
		phase := t % period
		p := 100 - step*float64(phase)
		if phase > half {
			p = 60 + step*float64(phase-half)
		}
		out[t] = bar(t, p, 1)
	}
	return out
}

// pathBars walks linearly between turning prices, legLen bars per leg.
func pathBars(turns []float64, legLen int, spread float64) []models.Bar {
	var out []models.Bar
	for i := 1; i < len(turns); i++ {
		a, b := turns[i-1], turns[i]
		for k := 0; k < legLen; k++ {
			p := a + (b-a)*float64(k)/float64(legLen)
			out = append(out, bar(len(out), p, spread))
		}
	}
	return append(out, bar(len(out), turns[len(turns)-1], spread))
}

func newTestChain(t *testing.T, opts Options) *Chain {
	t.Helper()
	c, err := NewChain(opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	return c
}

func TestZigzagEndToEnd(t *testing.T) {
	c := newTestChain(t, DefaultOptions())

	violations := 0
	for _, b := range zigzag(60, 8) {
		snap, err := c.Step(b)
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		violations += len(snap.Violations)
	}

	snap := c.Last()
	var tops, bottoms int
	for _, f := range snap.Fractals {
		if f.Kind == models.FractalTop {
			tops++
		} else {
			bottoms++
		}
	}
	if tops == 0 || bottoms == 0 {
		t.Errorf("expected both fractal kinds, got %d tops %d bottoms", tops, bottoms)
	}
	if len(snap.Strokes) < 3 {
		t.Fatalf("expected at least 3 strokes, got %d", len(snap.Strokes))
	}
	for i := 1; i < len(snap.Strokes); i++ {
		if snap.Strokes[i].Direction == snap.Strokes[i-1].Direction {
			t.Errorf("strokes %d and %d do not alternate", i-1, i)
		}
	}
	if violations != 0 {
		t.Errorf("expected no violations, got %d", violations)
	}
	for _, e := range c.Events() {
		if e.IsViolation() {
			t.Errorf("unexpected violation event %+v", e.Payload)
		}
	}
}

func TestDegenerateSegmentIsFlagged(t *testing.T) {
	c := newTestChain(t, DefaultOptions())
	turns := []float64{15, 10, 20, 2, 12, 1, 5, 0.5, 8, 3, 7, 2, 4}

	snap, err := c.Run(pathBars(turns, 5, 0.01))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(snap.Segments) == 0 || !snap.Segments[0].Degenerate() {
		t.Fatalf("expected a degenerate first segment, got %+v", snap.Segments)
	}

	found := false
	for _, e := range c.Events() {
		if v, ok := e.Payload.(events.ViolationPayload); ok && v.Code == string(audit.CodeDegenerateSegment) {
			found = true
			if v.Key != snap.Segments[0].Key() {
				t.Errorf("violation names %s, want %s", v.Key, snap.Segments[0].Key())
			}
		}
	}
	if !found {
		t.Error("degenerate segment was not flagged")
	}
}

func TestStepRejectsBadBars(t *testing.T) {
	c := newTestChain(t, DefaultOptions())
	if _, err := c.Step(bar(5, 100, 1)); err != nil {
		t.Fatalf("Step: %v", err)
	}
	before := c.Fingerprint()

	nan := bar(6, 100, 1)
	nan.High = math.NaN()
	inverted := bar(6, 100, 1)
	inverted.High, inverted.Low = 90, 110
	zero := bar(6, 100, 1)
	zero.Timestamp = time.Unix(0, 0)

	tests := []struct {
		name string
		bar  models.Bar
		want error
	}{
		{"nan price", nan, apperrors.ErrInvalidBar},
		{"high below low", inverted, apperrors.ErrInvalidBar},
		{"non-positive timestamp", zero, apperrors.ErrInvalidBar},
		{"backwards timestamp", bar(1, 100, 1), apperrors.ErrOutOfOrderBar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Step(tt.bar)
			if !apperrors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var be *apperrors.BarError
			if !apperrors.As(err, &be) || be.Index != 1 {
				t.Errorf("expected BarError at index 1, got %v", err)
			}
			if c.Len() != 1 || c.Fingerprint() != before {
				t.Error("rejected bar changed the chain")
			}
		})
	}
}

func TestNewChainValidates(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Options)
		want error
	}{
		{"stroke mode", func(o *Options) { o.StrokeMode = "loose" }, apperrors.ErrUnsupportedMode},
		{"segment algo", func(o *Options) { o.SegmentAlgo = "v9" }, apperrors.ErrUnsupportedMode},
		{"levels", func(o *Options) { o.MaxLevels = 0 }, apperrors.ErrConfigInvalid},
		{"macd", func(o *Options) { o.MACDFast = 40 }, apperrors.ErrConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.edit(&opts)
			if _, err := NewChain(opts, zerolog.Nop()); !apperrors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResetReplaysIdentically(t *testing.T) {
	c := newTestChain(t, DefaultOptions())
	bars := zigzag(40, 8)

	first, err := c.Run(bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	firstEvents := c.Events()

	c.Reset()
	if c.Len() != 0 || len(c.Events()) != 0 || c.Last() != nil || c.Fingerprint() != "" {
		t.Fatal("reset left state behind")
	}

	second, err := c.Run(bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(first, second) || !reflect.DeepEqual(firstEvents, c.Events()) {
		t.Error("replay after reset diverged")
	}
}

type countingObserver struct{ bars int }

func (o *countingObserver) ObserveBar(*Snapshot, time.Duration) { o.bars++ }

func TestObserver(t *testing.T) {
	c := newTestChain(t, DefaultOptions())
	obs := &countingObserver{}
	c.SetObserver(obs)
	if _, err := c.Run(zigzag(12, 8)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if obs.bars != 12 {
		t.Errorf("observer saw %d bars, want 12", obs.bars)
	}
}

func walk(steps []float64) []models.Bar {
	out := make([]models.Bar, len(steps))
	p := 100.0
	for i, s := range steps {
		p = math.Max(10, p+s)
		out[i] = bar(i, p, 0.5)
	}
	return out
}

// Feature: chanlun-engine, Property 9: Stream determinism
//
// Property: two chains fed the same bars produce identical event streams and
// fingerprints; sequence numbers strictly increase and bar times never go
// backwards across the whole stream.
func TestProperty_StreamDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	for _, algo := range []models.SegmentAlgo{models.SegmentFeature, models.SegmentOverlap} {
		opts := DefaultOptions()
		opts.SegmentAlgo = algo
		opts.StrokeMode = models.StrokeWide

		properties.Property("identical runs with "+string(algo)+" segments", prop.ForAll(
			func(steps []float64) bool {
				a, errA := NewChain(opts, zerolog.Nop())
				b, errB := NewChain(opts, zerolog.Nop())
				if errA != nil || errB != nil {
					return false
				}
				bars := walk(steps)
				if _, err := a.Run(bars); err != nil {
					return false
				}
				if _, err := b.Run(bars); err != nil {
					return false
				}
				if a.Fingerprint() != b.Fingerprint() || !reflect.DeepEqual(a.Events(), b.Events()) {
					return false
				}
				if a.Fingerprint() != events.StreamFingerprint(a.Events()) {
					return false
				}

				var lastSeq uint64
				var lastTime int64
				for _, e := range a.Events() {
					if e.Seq <= lastSeq || e.BarTime < lastTime || len(e.ID) != 16 {
						return false
					}
					lastSeq, lastTime = e.Seq, e.BarTime
				}
				return true
			},
			gen.SliceOfN(150, gen.Float64Range(-2, 2)),
		))
	}

	properties.TestingRun(t)
}
