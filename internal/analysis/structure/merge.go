// Package structure builds the recursive hierarchy of merged bars, fractals,
// strokes, segments, pivots and moves. Every builder is a pure function of its
// input and returns a freshly allocated slice.
package structure

import "chanlun/internal/models"

// Merge collapses bars whose ranges contain one another. Upward merging keeps
// the higher high and higher low, downward merging the lower of both; until
// two non-containing bars establish a direction, merging defaults to upward.
func Merge(bars []models.Bar) []models.MergedBar {
	if len(bars) == 0 {
		return nil
	}

	out := make([]models.MergedBar, 0, len(bars))
	dir := models.DirectionNone

	for i, b := range bars {
		if len(out) == 0 {
			out = append(out, newMergedBar(0, i, b))
			continue
		}

		last := &out[len(out)-1]
		if contains(last.High, last.Low, b.High, b.Low) || contains(b.High, b.Low, last.High, last.Low) {
			if dir == models.DirectionDown {
				if b.High < last.High {
					last.High, last.HighBar = b.High, i
				}
				if b.Low < last.Low {
					last.Low, last.LowBar = b.Low, i
				}
			} else {
				if b.High > last.High {
					last.High, last.HighBar = b.High, i
				}
				if b.Low > last.Low {
					last.Low, last.LowBar = b.Low, i
				}
			}
			last.Close = b.Close
			last.RawEnd = i
			continue
		}

		switch {
		case b.High > last.High && b.Low > last.Low:
			dir = models.DirectionUp
		case b.High < last.High && b.Low < last.Low:
			dir = models.DirectionDown
		}
		out = append(out, newMergedBar(len(out), i, b))
	}

	return out
}

func newMergedBar(index, raw int, b models.Bar) models.MergedBar {
	return models.MergedBar{
		Index:    index,
		High:     b.High,
		Low:      b.Low,
		Open:     b.Open,
		Close:    b.Close,
		RawStart: raw,
		RawEnd:   raw,
		HighBar:  raw,
		LowBar:   raw,
	}
}

// contains reports whether range a contains range b.
func contains(aHigh, aLow, bHigh, bLow float64) bool {
	return aHigh >= bHigh && aLow <= bLow
}

// Contained reports whether either of two merged bars contains the other.
func Contained(a, b models.MergedBar) bool {
	return contains(a.High, a.Low, b.High, b.Low) || contains(b.High, b.Low, a.High, a.Low)
}
