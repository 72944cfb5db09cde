package structure

import "chanlun/internal/models"

// featureElem is one element of a feature sequence: the range of an
// opposite-direction stroke, possibly merged with its neighbours.
type featureElem struct {
	high   float64
	low    float64
	stroke int
}

type gapOutcome int

const (
	gapConfirmed gapOutcome = iota
	gapVoided
	gapPending
)

// segmentClose describes how the scan from a segment start ended.
type segmentClose struct {
	end     int
	trigger int
	gap     bool
	closed  bool
	pending bool
}

// BuildSegmentsV1 partitions strokes using feature-sequence fractals. A
// segment closes when the feature sequence of its opposite strokes forms a
// fractal; with a gap between the first two fractal elements the close also
// needs a fractal in the reverse feature sequence. The last segment stays open.
func BuildSegmentsV1(strokes []models.Stroke) []models.Segment {
	start := nextAnchor(strokes, 0)
	if start < 0 {
		return nil
	}

	var out []models.Segment
	for {
		res := scanSegment(strokes, start)
		if !res.closed {
			out = append(out, openSegment(strokes, start, res.pending))
			return out
		}

		seg := newSegment(strokes, start, res.end)
		seg.Kind = models.SegmentSettled
		seg.Confirmed = true
		seg.Break = models.BreakEvidence{Valid: true, TriggerStroke: res.trigger, Gap: res.gap}
		out = append(out, seg)
		start = res.end + 1
	}
}

// nextAnchor returns the first k >= from at which three strokes overlap, or -1.
func nextAnchor(strokes []models.Stroke, from int) int {
	for k := from; k+2 < len(strokes); k++ {
		if overlap3(strokes, k) {
			return k
		}
	}
	return -1
}

func scanSegment(strokes []models.Stroke, start int) segmentClose {
	dir := strokes[start].Direction
	var fs []featureElem

	for k := start + 1; k < len(strokes); k += 2 {
		fs = pushFeature(fs, elemOf(strokes, k), dir)
		if len(fs) < 3 {
			continue
		}
		a, b, c := fs[len(fs)-3], fs[len(fs)-2], fs[len(fs)-1]
		if !featureFractal(a, b, c, dir) {
			continue
		}

		// The peak stroke opens the next segment, which must itself be anchored.
		p := b.stroke
		if !overlap3(strokes, p) {
			continue
		}

		if !featureGap(a, b, dir) {
			return segmentClose{end: p - 1, trigger: k, closed: true}
		}

		outcome, trigger := confirmGap(strokes, p, dir)
		switch outcome {
		case gapConfirmed:
			return segmentClose{end: p - 1, trigger: trigger, gap: true, closed: true}
		case gapPending:
			return segmentClose{pending: true}
		}
	}
	return segmentClose{}
}

// confirmGap scans the reverse feature sequence starting after peak stroke p.
// A new extreme beyond the peak voids the candidate break.
func confirmGap(strokes []models.Stroke, p int, dir models.Direction) (gapOutcome, int) {
	peak := strokes[p-1].EndPrice
	rev := dir.Opposite()
	var fs []featureElem

	for k := p + 1; k < len(strokes); k += 2 {
		s := strokes[k]
		if dir == models.DirectionUp && s.High > peak {
			return gapVoided, -1
		}
		if dir == models.DirectionDown && s.Low < peak {
			return gapVoided, -1
		}

		fs = pushFeature(fs, elemOf(strokes, k), rev)
		if len(fs) < 3 {
			continue
		}
		if featureFractal(fs[len(fs)-3], fs[len(fs)-2], fs[len(fs)-1], rev) {
			return gapConfirmed, k
		}
	}
	return gapPending, -1
}

func elemOf(strokes []models.Stroke, k int) featureElem {
	return featureElem{high: strokes[k].High, low: strokes[k].Low, stroke: k}
}

// pushFeature appends e, merging it into the last element on containment. An
// up segment merges upward, a down segment downward; the merged element keeps
// the stroke that holds the extreme.
func pushFeature(fs []featureElem, e featureElem, dir models.Direction) []featureElem {
	n := len(fs)
	if n == 0 || !contains2(fs[n-1], e) {
		return append(fs, e)
	}

	last := &fs[n-1]
	if dir == models.DirectionUp {
		if e.high > last.high {
			last.high = e.high
			last.stroke = e.stroke
		}
		if e.low > last.low {
			last.low = e.low
		}
		return fs
	}

	if e.low < last.low {
		last.low = e.low
		last.stroke = e.stroke
	}
	if e.high < last.high {
		last.high = e.high
	}
	return fs
}

func contains2(a, b featureElem) bool {
	return contains(a.high, a.low, b.high, b.low) || contains(b.high, b.low, a.high, a.low)
}

// featureFractal checks for a top in an up segment's feature sequence and a
// bottom in a down segment's.
func featureFractal(a, b, c featureElem, dir models.Direction) bool {
	if dir == models.DirectionUp {
		return b.high > a.high && b.high > c.high && b.low > a.low && b.low > c.low
	}
	return b.low < a.low && b.low < c.low && b.high < a.high && b.high < c.high
}

func featureGap(a, b featureElem, dir models.Direction) bool {
	if dir == models.DirectionUp {
		return b.low > a.high
	}
	return b.high < a.low
}

// openSegment builds the trailing unconfirmed segment, ending at the most
// extreme stroke in its direction. Ties resolve to the latest stroke.
func openSegment(strokes []models.Stroke, start int, pending bool) models.Segment {
	dir := strokes[start].Direction
	end := start
	for k := start; k < len(strokes); k += 2 {
		if dir == models.DirectionUp && strokes[k].EndPrice >= strokes[end].EndPrice {
			end = k
		}
		if dir == models.DirectionDown && strokes[k].EndPrice <= strokes[end].EndPrice {
			end = k
		}
	}

	seg := newSegment(strokes, start, end)
	seg.Kind = models.SegmentCandidate
	seg.BreakPending = pending
	return seg
}
