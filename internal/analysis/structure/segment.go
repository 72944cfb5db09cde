package structure

import (
	"math"

	"chanlun/internal/models"
)

// ValidSegmentAlgo reports whether algo names a known segment strategy.
func ValidSegmentAlgo(algo models.SegmentAlgo) bool {
	return algo == models.SegmentOverlap || algo == models.SegmentFeature
}

// BuildSegments dispatches to the selected segment strategy. Both strategies
// take the same input and produce the same record shape.
func BuildSegments(strokes []models.Stroke, algo models.SegmentAlgo) []models.Segment {
	if algo == models.SegmentOverlap {
		return BuildSegmentsV0(strokes)
	}
	return BuildSegmentsV1(strokes)
}

// BuildSegmentsV0 slides a three-stroke window over the strokes; each window
// whose price ranges intersect becomes a segment and is consumed whole.
func BuildSegmentsV0(strokes []models.Stroke) []models.Segment {
	var out []models.Segment
	for i := 0; i+2 < len(strokes); {
		if !overlap3(strokes, i) {
			i++
			continue
		}
		seg := newSegment(strokes, i, i+2)
		seg.Kind = models.SegmentSettled
		seg.Confirmed = true
		if i+3 < len(strokes) {
			seg.Break = models.BreakEvidence{Valid: true, TriggerStroke: i + 3}
		}
		out = append(out, seg)
		i += 3
	}

	if n := len(out); n > 0 {
		out[n-1].Kind = models.SegmentCandidate
		out[n-1].Confirmed = false
		out[n-1].Break = models.BreakEvidence{}
	}
	return out
}

// overlap3 reports whether strokes k, k+1 and k+2 share a strictly non-empty
// price range.
func overlap3(strokes []models.Stroke, k int) bool {
	if k < 0 || k+2 >= len(strokes) {
		return false
	}
	hi := math.Min(strokes[k].High, math.Min(strokes[k+1].High, strokes[k+2].High))
	lo := math.Max(strokes[k].Low, math.Max(strokes[k+1].Low, strokes[k+2].Low))
	return hi > lo
}

func newSegment(strokes []models.Stroke, start, end int) models.Segment {
	first, last := strokes[start], strokes[end]
	seg := models.Segment{
		StartStroke: start,
		EndStroke:   end,
		StartBar:    first.StartBar,
		EndBar:      last.EndBar,
		Direction:   first.Direction,
		High:        first.High,
		Low:         first.Low,
		StartPrice:  first.StartPrice,
		EndPrice:    last.EndPrice,
		StartType:   models.FractalBottom,
		EndType:     models.FractalBottom,
	}
	if first.Direction == models.DirectionDown {
		seg.StartType = models.FractalTop
	}
	if last.Direction == models.DirectionUp {
		seg.EndType = models.FractalTop
	}
	for i := start + 1; i <= end; i++ {
		seg.High = math.Max(seg.High, strokes[i].High)
		seg.Low = math.Min(seg.Low, strokes[i].Low)
	}
	return seg
}
