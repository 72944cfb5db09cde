package audit

import (
	"cmp"
	"fmt"
	"slices"

	"chanlun/internal/analysis/structure"
	"chanlun/internal/events"
	"chanlun/internal/models"
)

// geometry checks the structural invariants of every layer in the frame.
func geometry(f Frame) []Violation {
	var out []Violation
	out = append(out, checkMerged(f.Merged)...)
	out = append(out, checkFractals(f.Merged, f.Fractals)...)
	out = append(out, checkStrokes(f.Strokes)...)
	out = append(out, checkSegments(f.Segments)...)
	for _, lvl := range f.Levels {
		out = append(out, checkPivots(lvl)...)
		out = append(out, checkMoves(lvl)...)
	}
	return out
}

func checkMerged(merged []models.MergedBar) []Violation {
	var out []Violation
	for i := 1; i < len(merged); i++ {
		if structure.Contained(merged[i-1], merged[i]) {
			out = append(out, Violation{
				Code:   CodeMergedContainment,
				Key:    fmt.Sprintf("merged|%d", i),
				Detail: fmt.Sprintf("merged bars %d and %d contain each other", i-1, i),
			})
		}
	}
	return out
}

func checkFractals(merged []models.MergedBar, fractals []models.Fractal) []Violation {
	var out []Violation
	for _, f := range fractals {
		i := f.Index
		ok := i > 0 && i < len(merged)-1
		if ok && f.Kind == models.FractalTop {
			ok = structure.IsTop(merged[i-1], merged[i], merged[i+1])
		}
		if ok && f.Kind == models.FractalBottom {
			ok = structure.IsBottom(merged[i-1], merged[i], merged[i+1])
		}
		if !ok {
			out = append(out, Violation{
				Code:   CodeFractalCondition,
				Key:    fmt.Sprintf("fractal|%d", i),
				Detail: fmt.Sprintf("%s fractal at %d fails the double condition", f.Kind, i),
			})
		}
	}
	return out
}

func checkStrokes(strokes []models.Stroke) []Violation {
	var out []Violation
	for i, s := range strokes {
		key := s.Key()
		if i > 0 && s.Direction == strokes[i-1].Direction {
			out = append(out, Violation{Code: CodeStrokeAlternation, Layer: events.LayerStroke, Key: key,
				Detail: fmt.Sprintf("strokes %d and %d both %s", i-1, i, s.Direction)})
		}
		if last := i == len(strokes)-1; s.Confirmed == last {
			out = append(out, Violation{Code: CodeStrokeConfirmation, Layer: events.LayerStroke, Key: key,
				Detail: fmt.Sprintf("stroke %d confirmed=%v", i, s.Confirmed)})
		}
	}
	return out
}

func checkSegments(segs []models.Segment) []Violation {
	var out []Violation
	for i, s := range segs {
		if s.EndStroke < s.StartStroke || (i > 0 && s.StartStroke <= segs[i-1].StartStroke) {
			out = append(out, Violation{Code: CodeSegmentOrder, Layer: events.LayerSegment, Key: s.Key(),
				Detail: fmt.Sprintf("segment %d spans strokes %d..%d", i, s.StartStroke, s.EndStroke)})
		}
		if s.Degenerate() {
			out = append(out, Violation{Code: CodeDegenerateSegment, Layer: events.LayerSegment, Key: s.Key(),
				Detail: fmt.Sprintf("%s segment runs from %s to %s", s.Direction, events.FormatFloat(s.StartPrice), events.FormatFloat(s.EndPrice))})
		}
	}
	return out
}

func checkPivots(lvl models.Level) []Violation {
	var out []Violation
	for _, p := range lvl.Pivots {
		if p.High > p.Low && p.Count >= 3 && p.SegStart <= p.SegEnd {
			continue
		}
		out = append(out, Violation{Code: CodePivotBounds, Layer: events.LayerPivot, Level: lvl.Level,
			Key:    p.Key(),
			Detail: fmt.Sprintf("pivot [%s, %s] with %d components", events.FormatFloat(p.Low), events.FormatFloat(p.High), p.Count)})
	}
	return out
}

func checkMoves(lvl models.Level) []Violation {
	var out []Violation
	for i, m := range lvl.Moves {
		ordered := m.SegStart <= m.SegEnd && (i == 0 || m.SegStart > lvl.Moves[i-1].SegStart)
		lifecycle := m.Settled != (i == len(lvl.Moves)-1)
		if ordered && lifecycle {
			continue
		}
		out = append(out, Violation{Code: CodeMoveOrder, Layer: events.LayerMove, Level: lvl.Level,
			Key:    m.Key(),
			Detail: fmt.Sprintf("move %d spans %d..%d settled=%v", i, m.SegStart, m.SegEnd, m.Settled)})
	}
	return out
}

func sortViolations(vs []Violation) {
	slices.SortStableFunc(vs, func(a, b Violation) int {
		return cmp.Or(
			cmp.Compare(a.Layer, b.Layer),
			cmp.Compare(a.Level, b.Level),
			cmp.Compare(a.Key, b.Key),
			cmp.Compare(a.Code, b.Code),
		)
	})
}
