package models

import (
	"strconv"
	"strings"
)

// Identity keys. Two entities with equal keys are the same structure in
// possibly different states; a changed key means a replacement.

func joinKey(parts ...string) string {
	return strings.Join(parts, "|")
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Key is (start index, direction).
func (s Stroke) Key() string {
	return joinKey(strconv.Itoa(s.StartIndex), string(s.Direction))
}

// Key is (start stroke, direction).
func (s Segment) Key() string {
	return joinKey(strconv.Itoa(s.StartStroke), string(s.Direction))
}

// Key is (fixed lower bound, fixed upper bound, first constituent).
func (p Pivot) Key() string {
	return joinKey(formatPrice(p.Low), formatPrice(p.High), strconv.Itoa(p.SegStart))
}

// Key is the first component index.
func (m Move) Key() string {
	return strconv.Itoa(m.SegStart)
}

// Key is (kind, A-leg start, C-leg start).
func (d Divergence) Key() string {
	return joinKey(string(d.Kind), strconv.Itoa(d.AStart), strconv.Itoa(d.CStart))
}

// Key is (anchoring component, class, side).
func (b BuySellPoint) Key() string {
	return joinKey(strconv.Itoa(b.SegIndex), string(b.Class), string(b.Side))
}
