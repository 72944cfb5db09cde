package models

// MergedBar is a bar produced by containment merging. RawStart/RawEnd give
// the inclusive range of raw bar positions it absorbed.
type MergedBar struct {
	Index    int
	High     float64
	Low      float64
	Open     float64
	Close    float64
	RawStart int
	RawEnd   int
	HighBar  int // raw position that supplied High
	LowBar   int // raw position that supplied Low
}

// Fractal is a three-bar extremum on the merged sequence.
type Fractal struct {
	Index int
	Kind  FractalKind
	Price float64
}

// Stroke is the smallest directional swing between two alternating fractals.
type Stroke struct {
	StartIndex int // merged position
	EndIndex   int
	StartBar   int // raw position
	EndBar     int
	Direction  Direction
	High       float64
	Low        float64
	StartPrice float64
	EndPrice   float64
	Confirmed  bool
}

// SegmentKind is the lifecycle kind of a segment.
type SegmentKind string

const (
	SegmentCandidate SegmentKind = "candidate"
	SegmentSettled   SegmentKind = "settled"
)

// BreakEvidence records what closed a segment.
type BreakEvidence struct {
	Valid         bool
	TriggerStroke int
	Gap           bool
}

// Segment is a directional swing made of three or more strokes.
type Segment struct {
	StartStroke  int
	EndStroke    int
	StartBar     int
	EndBar       int
	Direction    Direction
	High         float64
	Low          float64
	StartPrice   float64
	EndPrice     float64
	StartType    FractalKind
	EndType      FractalKind
	Confirmed    bool
	Kind         SegmentKind
	Break        BreakEvidence
	BreakPending bool
}

// Degenerate reports whether the endpoint prices contradict the direction.
func (s Segment) Degenerate() bool {
	switch s.Direction {
	case DirectionUp:
		return s.EndPrice <= s.StartPrice
	case DirectionDown:
		return s.EndPrice >= s.StartPrice
	}
	return false
}

// Pivot is a price range formed by three or more overlapping components.
// Low/High are the fixed overlap bound; RangeLow/RangeHigh the running envelope.
type Pivot struct {
	Level          int
	Low            float64
	High           float64
	RangeLow       float64
	RangeHigh      float64
	SegStart       int
	SegEnd         int
	Count          int
	Settled        bool
	BreakSeg       int
	BreakDirection Direction
}

// MoveKind distinguishes consolidation from trend moves.
type MoveKind string

const (
	MoveConsolidation MoveKind = "consolidation"
	MoveTrend         MoveKind = "trend"
)

// Move groups consecutive settled pivots.
type Move struct {
	Level      int
	Kind       MoveKind
	Direction  Direction
	SegStart   int
	SegEnd     int
	PivotStart int
	PivotEnd   int
	PivotCount int
	Settled    bool
	High       float64
	Low        float64
}

// DivergenceKind distinguishes trend from consolidation divergences.
type DivergenceKind string

const (
	DivergenceTrend         DivergenceKind = "trend"
	DivergenceConsolidation DivergenceKind = "consolidation"
)

// Divergence compares the force of two same-direction legs.
type Divergence struct {
	Level     int
	Kind      DivergenceKind
	Direction Direction
	MoveStart int
	AStart    int
	AEnd      int
	CStart    int
	CEnd      int
	ForceA    float64
	ForceC    float64
	Confirmed bool
}

// PointClass is the buy/sell point type.
type PointClass string

const (
	PointFirst  PointClass = "1"
	PointSecond PointClass = "2"
	PointThird  PointClass = "3"
)

// Side is the trade side of a buy/sell point.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// BuySellPoint is a classified trade-significant level.
type BuySellPoint struct {
	Level        int
	Class        PointClass
	Side         Side
	SegIndex     int
	Price        float64
	MoveStart    int
	PivotStart   int
	OverlapsWith PointClass
	Confirmed    bool
}

// Level is the output of one rung of the recursive level stack.
type Level struct {
	Level  int
	Pivots []Pivot
	Moves  []Move
}
