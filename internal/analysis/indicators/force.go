package indicators

import (
	"math"

	"chanlun/internal/models"
)

// ForceSource names the proxy a Force measured legs with.
type ForceSource string

const (
	ForceMACDArea  ForceSource = "macd_area"
	ForceAmplitude ForceSource = "amplitude"
)

// Force measures the momentum of a leg. With enough bars it sums the MACD
// histogram over the leg's bar span on the side of the leg's direction;
// otherwise every leg falls back to its price amplitude. Pair keeps the two
// legs of one comparison on the same proxy.
type Force struct {
	hist   []float64
	warmup int
	source ForceSource
}

// Span is the raw bar range and price envelope of one leg.
type Span struct {
	Start, End int
	High, Low  float64
}

// NewForce prepares leg measurement over bars.
func NewForce(bars []models.Bar, macd *MACD) *Force {
	if macd == nil {
		macd = DefaultMACD()
	}
	series, err := macd.Calculate(bars)
	if err != nil {
		return &Force{source: ForceAmplitude}
	}
	return &Force{hist: series["histogram"], warmup: macd.Lookback(), source: ForceMACDArea}
}

// Source reports which proxy is in use.
func (f *Force) Source() ForceSource {
	return f.source
}

// Leg returns the force of a leg spanning raw bars [start, end].
func (f *Force) Leg(start, end int, dir models.Direction, high, low float64) float64 {
	if f.source == ForceAmplitude || len(f.hist) == 0 {
		return math.Abs(high - low)
	}

	start, end = clampSpan(start, end, len(f.hist))
	var area float64
	for i := start; i <= end; i++ {
		v := f.hist[i]
		switch {
		case dir == models.DirectionUp && v > 0:
			area += v
		case dir == models.DirectionDown && v < 0:
			area -= v
		}
	}
	return area
}

// Pair measures two legs with one proxy. The histogram area is used only
// when both legs start after the MACD warm-up; a leg reaching into it would
// sum the leading zeros, so both legs fall back to amplitude instead.
func (f *Force) Pair(a, c Span, dir models.Direction) (float64, float64) {
	if !f.covers(a.Start) || !f.covers(c.Start) {
		return math.Abs(a.High - a.Low), math.Abs(c.High - c.Low)
	}
	return f.Leg(a.Start, a.End, dir, a.High, a.Low), f.Leg(c.Start, c.End, dir, c.High, c.Low)
}

func (f *Force) covers(start int) bool {
	return f.source == ForceMACDArea && len(f.hist) > 0 && start >= f.warmup
}
