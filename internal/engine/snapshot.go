package engine

import (
	"chanlun/internal/audit"
	"chanlun/internal/events"
	"chanlun/internal/models"
)

// LevelSnapshot is the state of one rung of the recursive stack.
type LevelSnapshot struct {
	Level       int
	Pivots      []models.Pivot
	Moves       []models.Move
	Divergences []models.Divergence
	Points      []models.BuySellPoint
}

// Snapshot is the full state of a chain after one bar, with that bar's events.
// Snapshots are never modified after Step returns them.
type Snapshot struct {
	BarIndex   int
	Bar        models.Bar
	Merged     []models.MergedBar
	Fractals   []models.Fractal
	Strokes    []models.Stroke
	Segments   []models.Segment
	Levels     []LevelSnapshot
	Events     []events.Event
	Violations []audit.Violation
	// Fingerprint covers every event up to and including this bar.
	Fingerprint string
}

// Level returns the snapshot of level n, if present.
func (s *Snapshot) Level(n int) (LevelSnapshot, bool) {
	for _, l := range s.Levels {
		if l.Level == n {
			return l, true
		}
	}
	return LevelSnapshot{}, false
}

// Points returns the buy/sell points of every level.
func (s *Snapshot) Points() []models.BuySellPoint {
	var out []models.BuySellPoint
	for _, l := range s.Levels {
		out = append(out, l.Points...)
	}
	return out
}

func (s *Snapshot) levelModels() []models.Level {
	out := make([]models.Level, len(s.Levels))
	for i, l := range s.Levels {
		out[i] = models.Level{Level: l.Level, Pivots: l.Pivots, Moves: l.Moves}
	}
	return out
}
