package signals

import (
	"testing"

	"chanlun/internal/analysis/indicators"
	"chanlun/internal/analysis/structure"
	"chanlun/internal/models"
)

func seg(i int, low, high float64, dir models.Direction) models.Segment {
	return models.Segment{
		StartStroke: i * 3,
		EndStroke:   i*3 + 2,
		StartBar:    i * 10,
		EndBar:      i*10 + 10,
		Direction:   dir,
		High:        high,
		Low:         low,
		Kind:        models.SegmentSettled,
		Confirmed:   true,
	}
}

// downTrendLevel is a two-pivot down trend whose final leg is weaker than the
// departure from the first pivot.
func downTrendLevel() structure.LevelBuild {
	up, down := models.DirectionUp, models.DirectionDown
	segs := []models.Segment{
		seg(0, 92, 104, up),
		seg(1, 94, 103, down),
		seg(2, 95, 102, up),
		seg(3, 50, 90, down),
		seg(4, 60, 80, up),
		seg(5, 52, 66, down),
		seg(6, 54, 68, up),
		seg(7, 35, 48, down),
		seg(8, 38, 45, up),
		seg(9, 33, 44, down),
		seg(10, 36, 42, up),
		seg(11, 35, 40, down),
	}
	pivots := []models.Pivot{
		{Level: 1, Low: 95, High: 100, RangeLow: 92, RangeHigh: 104, SegStart: 0, SegEnd: 2, Count: 3, Settled: true, BreakSeg: 3, BreakDirection: down},
		{Level: 1, Low: 55, High: 65, RangeLow: 52, RangeHigh: 80, SegStart: 4, SegEnd: 6, Count: 3, Settled: true, BreakSeg: 7, BreakDirection: down},
	}
	moves := []models.Move{
		{Level: 1, Kind: models.MoveTrend, Direction: down, SegStart: 0, SegEnd: 11, PivotStart: 0, PivotEnd: 1, PivotCount: 2, High: 104, Low: 33},
	}
	return structure.LevelBuild{Level: 1, Components: structure.SegmentComponents(segs), Pivots: pivots, Moves: moves}
}

func TestTrendDivergence(t *testing.T) {
	a := NewAnalyzer(indicators.NewForce(nil, nil))
	lvl := downTrendLevel()

	divs := a.Divergences(lvl)
	if len(divs) != 1 {
		t.Fatalf("expected one divergence, got %d", len(divs))
	}
	d := divs[0]
	if d.Kind != models.DivergenceTrend || d.Direction != models.DirectionDown {
		t.Errorf("unexpected divergence %+v", d)
	}
	if d.AStart != 3 || d.CStart != 7 || d.CEnd != 11 {
		t.Errorf("legs A=%d C=%d..%d, want A=3 C=7..11", d.AStart, d.CStart, d.CEnd)
	}
	if d.ForceA != 40 || d.ForceC != 15 {
		t.Errorf("forces %v / %v, want 40 / 15", d.ForceA, d.ForceC)
	}
	if !d.Confirmed {
		t.Error("completed C-leg with a new low should confirm")
	}
}

func TestPoints(t *testing.T) {
	a := NewAnalyzer(indicators.NewForce(nil, nil))
	lvl := downTrendLevel()

	points := a.Points(lvl, a.Divergences(lvl))
	want := []struct {
		seg   int
		class models.PointClass
		side  models.Side
		price float64
	}{
		{4, models.PointThird, models.SideSell, 80},
		{8, models.PointThird, models.SideSell, 45},
		{9, models.PointFirst, models.SideBuy, 33},
		{11, models.PointSecond, models.SideBuy, 35},
	}
	if len(points) != len(want) {
		t.Fatalf("got %d points, want %d: %+v", len(points), len(want), points)
	}
	for i, w := range want {
		p := points[i]
		if p.SegIndex != w.seg || p.Class != w.class || p.Side != w.side || p.Price != w.price {
			t.Errorf("point %d = %+v, want %+v", i, p, w)
		}
	}
	if !points[2].Confirmed {
		t.Error("first-type point followed by a rebound should be confirmed")
	}
	if points[2].PivotStart != 4 || points[2].MoveStart != 0 {
		t.Errorf("first-type references pivot %d move %d", points[2].PivotStart, points[2].MoveStart)
	}
}

func TestConsolidationDivergence(t *testing.T) {
	up := models.DirectionUp
	segs := []models.Segment{
		seg(0, 10, 20, up),
		seg(1, 12, 19, models.DirectionDown),
		seg(2, 13, 18, up),
		seg(3, 21, 24, up),
	}
	lvl := structure.LevelBuild{
		Level:      1,
		Components: structure.SegmentComponents(segs),
		Pivots: []models.Pivot{
			{Level: 1, Low: 13, High: 18, RangeLow: 10, RangeHigh: 20, SegStart: 0, SegEnd: 2, Count: 3, Settled: true, BreakSeg: 3, BreakDirection: up},
		},
		Moves: []models.Move{
			{Level: 1, Kind: models.MoveConsolidation, Direction: up, SegStart: 0, SegEnd: 3, PivotStart: 0, PivotEnd: 0, PivotCount: 1},
		},
	}
	divs := NewAnalyzer(indicators.NewForce(nil, nil)).Divergences(lvl)
	if len(divs) != 1 {
		t.Fatalf("expected one divergence, got %d", len(divs))
	}
	d := divs[0]
	if d.Kind != models.DivergenceConsolidation || d.AStart != 2 || d.CStart != 3 {
		t.Errorf("unexpected divergence %+v", d)
	}
	if !d.Confirmed {
		t.Error("break leg above the inside leg should confirm")
	}
}

func TestNoDivergenceWhenStronger(t *testing.T) {
	lvl := downTrendLevel()
	lvl.Components[3] = structure.NewSegmentComponent(3, seg(3, 80, 90, models.DirectionDown))

	if divs := NewAnalyzer(indicators.NewForce(nil, nil)).Divergences(lvl); len(divs) != 0 {
		t.Errorf("stronger C-leg should not diverge: %+v", divs)
	}
}
