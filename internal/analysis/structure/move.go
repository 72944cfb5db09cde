package structure

import (
	"math"

	"chanlun/internal/models"
)

// BuildMoves groups consecutive settled pivots into moves. Pivots stay in one
// group while each successor sits strictly above (or strictly below) its
// predecessor's envelope. One pivot makes a consolidation; more make a trend.
// The components after a group's last pivot belong to that group's move, and
// the most recent move is never settled.
func BuildMoves(pivots []models.Pivot, comps []Component, level int) []models.Move {
	settled := make([]int, 0, len(pivots))
	for i, p := range pivots {
		if p.Settled {
			settled = append(settled, i)
		}
	}
	if len(settled) == 0 {
		return nil
	}

	var groups [][]int
	group := []int{settled[0]}
	dir := models.DirectionNone
	for _, idx := range settled[1:] {
		cur := pivots[group[len(group)-1]]
		step := pivotStep(cur, pivots[idx])
		if step != models.DirectionNone && (dir == models.DirectionNone || step == dir) {
			group = append(group, idx)
			dir = step
			continue
		}
		groups = append(groups, group)
		group = []int{idx}
		dir = models.DirectionNone
	}
	groups = append(groups, group)

	out := make([]models.Move, 0, len(groups))
	for g, members := range groups {
		first, last := pivots[members[0]], pivots[members[len(members)-1]]
		m := models.Move{
			Level:      level,
			Kind:       models.MoveConsolidation,
			Direction:  last.BreakDirection,
			SegStart:   first.SegStart,
			PivotStart: members[0],
			PivotEnd:   members[len(members)-1],
			PivotCount: len(members),
			Settled:    g < len(groups)-1,
		}
		if len(members) > 1 {
			m.Kind = models.MoveTrend
			m.Direction = pivotStep(first, pivots[members[1]])
		}

		if g < len(groups)-1 {
			next := pivots[groups[g+1][0]]
			m.SegEnd = max(last.BreakSeg, next.SegStart-1)
		} else {
			m.SegEnd = max(last.BreakSeg, lastIndex(comps))
		}
		m.High, m.Low = envelope(comps, m.SegStart, m.SegEnd)
		out = append(out, m)
	}
	return out
}

// pivotStep reports whether next sits strictly above or below cur.
func pivotStep(cur, next models.Pivot) models.Direction {
	switch {
	case next.RangeLow > cur.RangeHigh:
		return models.DirectionUp
	case next.RangeHigh < cur.RangeLow:
		return models.DirectionDown
	}
	return models.DirectionNone
}

func lastIndex(comps []Component) int {
	if len(comps) == 0 {
		return -1
	}
	return comps[len(comps)-1].ComponentIndex()
}

func envelope(comps []Component, from, to int) (high, low float64) {
	high, low = math.Inf(-1), math.Inf(1)
	for _, c := range comps {
		if i := c.ComponentIndex(); i < from || i > to {
			continue
		}
		high = math.Max(high, c.High())
		low = math.Min(low, c.Low())
	}
	if math.IsInf(high, -1) {
		return 0, 0
	}
	return high, low
}
