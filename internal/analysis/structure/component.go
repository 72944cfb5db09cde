package structure

import "chanlun/internal/models"

// Component is anything a pivot can be built from: a segment at level one, a
// settled move at higher levels.
type Component interface {
	ComponentIndex() int
	High() float64
	Low() float64
	Direction() models.Direction
	Completed() bool
	LevelID() int
	// BarSpan returns the inclusive raw bar range the component covers.
	BarSpan() (start, end int)
}

// SegmentComponent adapts a Segment to Component.
type SegmentComponent struct {
	index int
	seg   models.Segment
}

// NewSegmentComponent wraps seg found at position index.
func NewSegmentComponent(index int, seg models.Segment) SegmentComponent {
	return SegmentComponent{index: index, seg: seg}
}

func (c SegmentComponent) ComponentIndex() int         { return c.index }
func (c SegmentComponent) High() float64               { return c.seg.High }
func (c SegmentComponent) Low() float64                { return c.seg.Low }
func (c SegmentComponent) Direction() models.Direction { return c.seg.Direction }
func (c SegmentComponent) Completed() bool             { return c.seg.Kind == models.SegmentSettled }
func (c SegmentComponent) LevelID() int                { return 0 }
func (c SegmentComponent) BarSpan() (int, int)         { return c.seg.StartBar, c.seg.EndBar }

// MoveComponent adapts a Move to Component for the next level up.
type MoveComponent struct {
	index    int
	move     models.Move
	startBar int
	endBar   int
}

// NewMoveComponent wraps move found at position index. The bar span is
// resolved from the components of the move's own level.
func NewMoveComponent(index int, move models.Move, startBar, endBar int) MoveComponent {
	return MoveComponent{index: index, move: move, startBar: startBar, endBar: endBar}
}

func (c MoveComponent) ComponentIndex() int         { return c.index }
func (c MoveComponent) High() float64               { return c.move.High }
func (c MoveComponent) Low() float64                { return c.move.Low }
func (c MoveComponent) Direction() models.Direction { return c.move.Direction }
func (c MoveComponent) Completed() bool             { return c.move.Settled }
func (c MoveComponent) LevelID() int                { return c.move.Level }
func (c MoveComponent) BarSpan() (int, int)         { return c.startBar, c.endBar }

// SegmentComponents adapts a segment list.
func SegmentComponents(segs []models.Segment) []Component {
	out := make([]Component, len(segs))
	for i, s := range segs {
		out[i] = NewSegmentComponent(i, s)
	}
	return out
}

// MoveComponents adapts the settled prefix of a move list, resolving each
// move's bar span through the components it was built from.
func MoveComponents(moves []models.Move, below []Component) []Component {
	out := make([]Component, 0, len(moves))
	for _, m := range moves {
		if !m.Settled {
			continue
		}
		start, end := spanOf(below, m.SegStart, m.SegEnd)
		out = append(out, NewMoveComponent(len(out), m, start, end))
	}
	return out
}

func spanOf(comps []Component, from, to int) (int, int) {
	if len(comps) == 0 {
		return 0, 0
	}
	from = clampIndex(from, len(comps))
	to = clampIndex(to, len(comps))
	start, _ := comps[from].BarSpan()
	_, end := comps[to].BarSpan()
	return start, end
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
