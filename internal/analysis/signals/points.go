package signals

import (
	"cmp"
	"slices"

	"chanlun/internal/analysis/structure"
	"chanlun/internal/models"
)

type pointKey struct {
	seg   int
	class models.PointClass
	side  models.Side
}

// Points classifies buy/sell points on the level. First-type points come from
// confirmed trend divergences, second-type points from the pullback after a
// first-type point that holds above (or below) it, third-type points from a
// pivot break whose pullback stays outside the pivot's fixed range.
func (a *Analyzer) Points(lvl structure.LevelBuild, divs []models.Divergence) []models.BuySellPoint {
	comps := lvl.Components
	seen := make(map[pointKey]int)
	var out []models.BuySellPoint

	add := func(p models.BuySellPoint) {
		k := pointKey{p.SegIndex, p.Class, p.Side}
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = len(out)
		out = append(out, p)
	}

	for _, d := range divs {
		if d.Kind != models.DivergenceTrend || !d.Confirmed {
			continue
		}
		first, ok := firstPoint(lvl, d)
		if !ok {
			continue
		}
		add(first)
		if second, ok := secondPoint(comps, first); ok {
			add(second)
		}
	}

	for i, p := range lvl.Pivots {
		third, ok := thirdPoint(lvl, i, p)
		if !ok {
			continue
		}
		if _, dup := seen[pointKey{third.SegIndex, models.PointSecond, third.Side}]; dup {
			third.OverlapsWith = models.PointSecond
		}
		add(third)
	}

	slices.SortStableFunc(out, func(x, y models.BuySellPoint) int {
		return cmp.Or(
			cmp.Compare(x.SegIndex, y.SegIndex),
			cmp.Compare(x.Class, y.Class),
			cmp.Compare(x.Side, y.Side),
		)
	})
	return out
}

// firstPoint anchors at the extreme component of the divergent C-leg.
func firstPoint(lvl structure.LevelBuild, d models.Divergence) (models.BuySellPoint, bool) {
	comps := lvl.Components
	if d.CStart < 0 || d.CEnd >= len(comps) {
		return models.BuySellPoint{}, false
	}

	p := models.BuySellPoint{
		Level:      lvl.Level,
		Class:      models.PointFirst,
		MoveStart:  d.MoveStart,
		PivotStart: pivotBefore(lvl.Pivots, d.CStart),
		SegIndex:   d.CStart,
	}
	if d.Direction == models.DirectionDown {
		p.Side = models.SideBuy
		p.Price = comps[d.CStart].Low()
		for i := d.CStart + 1; i <= d.CEnd; i++ {
			if comps[i].Low() <= p.Price {
				p.SegIndex, p.Price = i, comps[i].Low()
			}
		}
	} else {
		p.Side = models.SideSell
		p.Price = comps[d.CStart].High()
		for i := d.CStart + 1; i <= d.CEnd; i++ {
			if comps[i].High() >= p.Price {
				p.SegIndex, p.Price = i, comps[i].High()
			}
		}
	}
	p.Confirmed = p.SegIndex+1 < len(comps)
	return p, true
}

// secondPoint looks at the pullback two components after a first-type point.
func secondPoint(comps []structure.Component, first models.BuySellPoint) (models.BuySellPoint, bool) {
	idx := first.SegIndex + 2
	if idx >= len(comps) {
		return models.BuySellPoint{}, false
	}
	c := comps[idx]

	p := first
	p.Class = models.PointSecond
	p.SegIndex = idx
	p.Confirmed = c.Completed()
	if first.Side == models.SideBuy {
		if c.Low() <= first.Price {
			return models.BuySellPoint{}, false
		}
		p.Price = c.Low()
		return p, true
	}
	if c.High() >= first.Price {
		return models.BuySellPoint{}, false
	}
	p.Price = c.High()
	return p, true
}

// thirdPoint checks the pullback right after a settled pivot's break.
func thirdPoint(lvl structure.LevelBuild, pivotIndex int, pv models.Pivot) (models.BuySellPoint, bool) {
	if !pv.Settled {
		return models.BuySellPoint{}, false
	}
	idx := pv.BreakSeg + 1
	if idx >= len(lvl.Components) {
		return models.BuySellPoint{}, false
	}
	c := lvl.Components[idx]

	p := models.BuySellPoint{
		Level:      lvl.Level,
		Class:      models.PointThird,
		SegIndex:   idx,
		MoveStart:  moveOf(lvl.Moves, pivotIndex),
		PivotStart: pv.SegStart,
		Confirmed:  c.Completed(),
	}
	switch {
	case pv.BreakDirection == models.DirectionUp && c.Low() > pv.High:
		p.Side, p.Price = models.SideBuy, c.Low()
	case pv.BreakDirection == models.DirectionDown && c.High() < pv.Low:
		p.Side, p.Price = models.SideSell, c.High()
	default:
		return models.BuySellPoint{}, false
	}
	return p, true
}

// pivotBefore returns the first constituent of the last settled pivot that
// broke at or before seg, or -1.
func pivotBefore(pivots []models.Pivot, seg int) int {
	start := -1
	for _, p := range pivots {
		if p.Settled && p.BreakSeg <= seg {
			start = p.SegStart
		}
	}
	return start
}

func moveOf(moves []models.Move, pivotIndex int) int {
	for _, m := range moves {
		if pivotIndex >= m.PivotStart && pivotIndex <= m.PivotEnd {
			return m.SegStart
		}
	}
	return -1
}
