// Package events defines the domain event stream: lifecycle transitions of
// structural entities, their content-derived identifiers and the builder and
// bus that sequence them.
package events

// SchemaVersion is stamped on every event.
const SchemaVersion = 1

// Layer names the structural layer an event belongs to.
type Layer string

const (
	LayerStroke     Layer = "stroke"
	LayerSegment    Layer = "segment"
	LayerPivot      Layer = "pivot"
	LayerMove       Layer = "move"
	LayerDivergence Layer = "divergence"
	LayerPoint      Layer = "bsp"
	LayerInvariant  Layer = "invariant"
)

// Transition is a lifecycle step of an entity.
type Transition string

const (
	TransitionCandidate    Transition = "candidate"
	TransitionSettle       Transition = "settle"
	TransitionExtend       Transition = "extend"
	TransitionInvalidate   Transition = "invalidate"
	TransitionBreakPending Transition = "break_pending"
	TransitionViolation    Transition = "violation"
)

// Kind is the event discriminator, "<layer>.<transition>".
type Kind string

// KindOf joins a layer and a transition.
func KindOf(layer Layer, tr Transition) Kind {
	return Kind(string(layer) + "." + string(tr))
}

// KindViolation is the kind of invariant violation events.
var KindViolation = KindOf(LayerInvariant, TransitionViolation)

// Event is one entry of the stream. Events are values; two runs over the same
// bars produce equal events.
type Event struct {
	Kind       Kind       `json:"kind"`
	Layer      Layer      `json:"layer"`
	Transition Transition `json:"transition"`
	Level      int        `json:"level"`
	Key        string     `json:"key"`
	BarIndex   int        `json:"bar_index"`
	BarTime    int64      `json:"bar_time"`
	Seq        uint64     `json:"seq"`
	ID         string     `json:"id"`
	Schema     int        `json:"schema"`
	Payload    Payload    `json:"payload"`
}

// IsViolation reports whether e is an invariant violation.
func (e Event) IsViolation() bool {
	return e.Kind == KindViolation
}
