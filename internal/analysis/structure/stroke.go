package structure

import (
	"math"

	"chanlun/internal/models"
)

// strokeRule holds the separation policy of a stroke mode.
type strokeRule struct {
	minGap     int
	strictEdge bool
}

var strokeRules = map[models.StrokeMode]strokeRule{
	models.StrokeStrict: {minGap: 4, strictEdge: true},
	models.StrokeWide:   {minGap: 3, strictEdge: false},
}

// ValidStrokeMode reports whether mode is a known separation policy.
func ValidStrokeMode(mode models.StrokeMode) bool {
	_, ok := strokeRules[mode]
	return ok
}

// BuildStrokes turns fractals into alternating strokes. Consecutive fractals of
// the same kind keep the more extreme one; an opposite fractal becomes a new
// endpoint only when it is far enough from the previous endpoint. The last
// stroke is always unconfirmed.
func BuildStrokes(merged []models.MergedBar, fractals []models.Fractal, mode models.StrokeMode) []models.Stroke {
	rule, ok := strokeRules[mode]
	if !ok {
		rule = strokeRules[models.StrokeStrict]
	}

	pts := make([]models.Fractal, 0, len(fractals))
	for _, f := range fractals {
		n := len(pts)
		if n == 0 {
			pts = append(pts, f)
			continue
		}

		last := pts[n-1]
		if f.Kind == last.Kind {
			if moreExtreme(f, last) {
				pts[n-1] = f
			}
			continue
		}

		if validStroke(merged, last, f, rule) {
			pts = append(pts, f)
			continue
		}

		// The opposite fractal is too close, but it breaks beyond the start of
		// the current stroke: the current stroke is void and the previous
		// stroke extends to the new extreme.
		if n >= 2 && moreExtreme(f, pts[n-2]) {
			pts = pts[:n-1]
			pts[n-2] = f
		}
	}

	if len(pts) < 2 {
		return nil
	}

	out := make([]models.Stroke, 0, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		out = append(out, newStroke(merged, pts[i-1], pts[i], i < len(pts)-1))
	}
	return out
}

func moreExtreme(f, than models.Fractal) bool {
	if f.Kind != than.Kind {
		return false
	}
	if f.Kind == models.FractalTop {
		return f.Price > than.Price
	}
	return f.Price < than.Price
}

func validStroke(merged []models.MergedBar, start, end models.Fractal, rule strokeRule) bool {
	if end.Index-start.Index < rule.minGap {
		return false
	}

	if start.Kind == models.FractalBottom {
		if end.Price <= start.Price {
			return false
		}
		if rule.strictEdge && end.Price <= windowHigh(merged, start.Index) {
			return false
		}
		return true
	}

	if end.Price >= start.Price {
		return false
	}
	if rule.strictEdge && end.Price >= windowLow(merged, start.Index) {
		return false
	}
	return true
}

func windowHigh(merged []models.MergedBar, i int) float64 {
	h := math.Inf(-1)
	for j := i - 1; j <= i+1; j++ {
		if j >= 0 && j < len(merged) && merged[j].High > h {
			h = merged[j].High
		}
	}
	return h
}

func windowLow(merged []models.MergedBar, i int) float64 {
	l := math.Inf(1)
	for j := i - 1; j <= i+1; j++ {
		if j >= 0 && j < len(merged) && merged[j].Low < l {
			l = merged[j].Low
		}
	}
	return l
}

func newStroke(merged []models.MergedBar, start, end models.Fractal, confirmed bool) models.Stroke {
	dir := models.DirectionUp
	if start.Kind == models.FractalTop {
		dir = models.DirectionDown
	}
	return models.Stroke{
		StartIndex: start.Index,
		EndIndex:   end.Index,
		StartBar:   rawBar(merged, start),
		EndBar:     rawBar(merged, end),
		Direction:  dir,
		High:       math.Max(start.Price, end.Price),
		Low:        math.Min(start.Price, end.Price),
		StartPrice: start.Price,
		EndPrice:   end.Price,
		Confirmed:  confirmed,
	}
}

func rawBar(merged []models.MergedBar, f models.Fractal) int {
	if f.Index < 0 || f.Index >= len(merged) {
		return f.Index
	}
	if f.Kind == models.FractalTop {
		return merged[f.Index].HighBar
	}
	return merged[f.Index].LowBar
}
