package structure

import "chanlun/internal/models"

// DefaultMaxLevels caps recursion when the caller does not.
const DefaultMaxLevels = 4

// minComponents is the fewest components that can ever form a pivot.
const minComponents = 3

// LevelBuild is one rung of the recursive stack together with the components
// it was built from.
type LevelBuild struct {
	Level      int
	Components []Component
	Pivots     []models.Pivot
	Moves      []models.Move
}

// Model drops the components.
func (b LevelBuild) Model() models.Level {
	return models.Level{Level: b.Level, Pivots: b.Pivots, Moves: b.Moves}
}

// BuildLevels runs pivot and move construction over the segments, then again
// over each level's settled moves, until maxLevels is reached or a level has
// too few settled moves to form another pivot. Level one is always present.
func BuildLevels(segments []models.Segment, maxLevels int) []LevelBuild {
	if maxLevels <= 0 {
		maxLevels = DefaultMaxLevels
	}

	comps := SegmentComponents(segments)
	out := make([]LevelBuild, 0, maxLevels)
	for lvl := 1; lvl <= maxLevels; lvl++ {
		pivots := BuildPivots(comps, lvl)
		moves := BuildMoves(pivots, comps, lvl)
		out = append(out, LevelBuild{Level: lvl, Components: comps, Pivots: pivots, Moves: moves})

		next := MoveComponents(moves, comps)
		if len(next) < minComponents {
			break
		}
		comps = next
	}
	return out
}
