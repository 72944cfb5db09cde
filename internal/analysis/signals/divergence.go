// Package signals derives divergences and buy/sell points from one level of
// the structure stack.
package signals

import (
	"math"
	"slices"

	"chanlun/internal/analysis/indicators"
	"chanlun/internal/analysis/structure"
	"chanlun/internal/models"
)

// Analyzer compares leg forces within the moves of a level.
type Analyzer struct {
	force *indicators.Force
}

// NewAnalyzer creates an analyzer that measures legs with force.
func NewAnalyzer(force *indicators.Force) *Analyzer {
	return &Analyzer{force: force}
}

func (a *Analyzer) Name() string {
	return "DivergenceAnalyzer"
}

// leg is a contiguous run of components measured as one swing.
type leg struct {
	from, to  int
	startBar  int
	endBar    int
	high      float64
	low       float64
	completed bool
}

func legOf(comps []structure.Component, from, to int) (leg, bool) {
	if from < 0 || to < from || to >= len(comps) {
		return leg{}, false
	}
	l := leg{from: from, to: to, high: math.Inf(-1), low: math.Inf(1), completed: true}
	l.startBar, _ = comps[from].BarSpan()
	_, l.endBar = comps[to].BarSpan()
	for i := from; i <= to; i++ {
		l.high = math.Max(l.high, comps[i].High())
		l.low = math.Min(l.low, comps[i].Low())
	}
	l.completed = comps[to].Completed()
	return l, true
}

func (l leg) span() indicators.Span {
	return indicators.Span{Start: l.startBar, End: l.endBar, High: l.high, Low: l.low}
}

// newExtreme reports whether c reaches beyond a in direction dir.
func newExtreme(a, c leg, dir models.Direction) bool {
	if dir == models.DirectionUp {
		return c.high > a.high
	}
	return c.low < a.low
}

// Divergences returns every leg pair on the level whose later leg is
// strictly weaker than the earlier one.
func (a *Analyzer) Divergences(lvl structure.LevelBuild) []models.Divergence {
	var out []models.Divergence
	for _, m := range lvl.Moves {
		var (
			d  models.Divergence
			ok bool
		)
		if m.Kind == models.MoveTrend {
			d, ok = a.trendDivergence(lvl, m)
		} else {
			d, ok = a.consolidationDivergence(lvl, m)
		}
		if ok {
			out = append(out, d)
		}
	}

	slices.SortStableFunc(out, func(x, y models.Divergence) int {
		if x.CStart != y.CStart {
			return x.CStart - y.CStart
		}
		return x.AStart - y.AStart
	})
	return out
}

// trendDivergence compares the departure from the penultimate pivot with the
// departure from the last pivot of a trend move.
func (a *Analyzer) trendDivergence(lvl structure.LevelBuild, m models.Move) (models.Divergence, bool) {
	if m.PivotEnd >= len(lvl.Pivots) {
		return models.Divergence{}, false
	}
	last := lvl.Pivots[m.PivotEnd]
	if !last.Settled || last.BreakDirection != m.Direction {
		return models.Divergence{}, false
	}

	prev := -1
	for i := m.PivotEnd - 1; i >= m.PivotStart; i-- {
		if lvl.Pivots[i].Settled {
			prev = i
			break
		}
	}
	if prev < 0 {
		return models.Divergence{}, false
	}
	penult := lvl.Pivots[prev]

	aLeg, ok := legOf(lvl.Components, penult.BreakSeg, penult.BreakSeg)
	if !ok {
		return models.Divergence{}, false
	}
	cLeg, ok := legOf(lvl.Components, last.BreakSeg, max(last.BreakSeg, m.SegEnd))
	if !ok {
		return models.Divergence{}, false
	}
	return a.compare(lvl.Level, models.DivergenceTrend, m, aLeg, cLeg)
}

// consolidationDivergence compares the break leg of a single-pivot move with
// the last same-direction component inside the pivot.
func (a *Analyzer) consolidationDivergence(lvl structure.LevelBuild, m models.Move) (models.Divergence, bool) {
	if m.PivotStart >= len(lvl.Pivots) {
		return models.Divergence{}, false
	}
	p := lvl.Pivots[m.PivotStart]
	if !p.Settled {
		return models.Divergence{}, false
	}

	inside := -1
	for i := p.SegEnd; i >= p.SegStart && i < len(lvl.Components); i-- {
		if lvl.Components[i].Direction() == p.BreakDirection {
			inside = i
			break
		}
	}
	aLeg, ok := legOf(lvl.Components, inside, inside)
	if !ok {
		return models.Divergence{}, false
	}
	cLeg, ok := legOf(lvl.Components, p.BreakSeg, p.BreakSeg)
	if !ok {
		return models.Divergence{}, false
	}

	m.Direction = p.BreakDirection
	return a.compare(lvl.Level, models.DivergenceConsolidation, m, aLeg, cLeg)
}

func (a *Analyzer) compare(level int, kind models.DivergenceKind, m models.Move, aLeg, cLeg leg) (models.Divergence, bool) {
	forceA, forceC := a.force.Pair(aLeg.span(), cLeg.span(), m.Direction)
	if !(forceC < forceA) {
		return models.Divergence{}, false
	}
	return models.Divergence{
		Level:     level,
		Kind:      kind,
		Direction: m.Direction,
		MoveStart: m.SegStart,
		AStart:    aLeg.from,
		AEnd:      aLeg.to,
		CStart:    cLeg.from,
		CEnd:      cLeg.to,
		ForceA:    forceA,
		ForceC:    forceC,
		Confirmed: cLeg.completed && newExtreme(aLeg, cLeg, m.Direction),
	}, true
}
