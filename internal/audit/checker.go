// Package audit checks the event stream and the per-bar structure for broken
// invariants. Findings are reported as violations, never as errors, so a
// replay always runs to completion.
package audit

import (
	"fmt"

	"chanlun/internal/events"
	"chanlun/internal/models"
)

// Code identifies the invariant a violation breaks.
type Code string

const (
	// Stream ordering
	CodeSeqOrder     Code = "seq_order"
	CodeBarTimeOrder Code = "bar_time_order"

	// Lifecycle
	CodeDuplicateCandidate Code = "duplicate_candidate"
	CodeSettleUnknown      Code = "settle_without_candidate"
	CodeTransitionUnknown  Code = "transition_without_candidate"
	CodeInvalidateUnknown  Code = "invalidate_unknown"
	CodeReappeared         Code = "reappeared_after_invalidate"
	CodeSilentOverwrite    Code = "silent_overwrite"
	CodeSilentRemoval      Code = "silent_removal"

	// Geometry
	CodeMergedContainment  Code = "merged_containment"
	CodeFractalCondition   Code = "fractal_condition"
	CodeStrokeAlternation  Code = "stroke_alternation"
	CodeStrokeConfirmation Code = "stroke_confirmation"
	CodeSegmentOrder       Code = "segment_order"
	CodeDegenerateSegment  Code = "degenerate_segment"
	CodePivotBounds        Code = "pivot_bounds"
	CodeMoveOrder          Code = "move_order"
)

// Violation is one broken invariant.
type Violation struct {
	Code   Code
	Layer  events.Layer
	Level  int
	Key    string
	Detail string
}

// Payload converts v for emission.
func (v Violation) Payload() events.ViolationPayload {
	return events.ViolationPayload{Code: string(v.Code), Layer: v.Layer, Level: v.Level, Key: v.Key, Detail: v.Detail}
}

// Entity is the identity and payload digest of one entity in a layer snapshot.
type Entity struct {
	Layer  events.Layer
	Level  int
	Key    string
	Digest string
}

// Frame is everything the checker sees for one bar.
type Frame struct {
	BarIndex int
	BarTime  int64
	Merged   []models.MergedBar
	Fractals []models.Fractal
	Strokes  []models.Stroke
	Segments []models.Segment
	Levels   []models.Level
	// Entities lists every diffed entity currently alive, across layers.
	Entities []Entity
}

type lifecycle struct {
	settled bool
	digest  string
}

type identity struct {
	layer events.Layer
	level int
	key   string
}

// Checker tracks the lifecycle of every identity across bars.
type Checker struct {
	lastSeq  uint64
	lastTime int64
	started  bool
	alive    map[identity]lifecycle
	reported map[string]bool
}

// NewChecker creates an empty checker.
func NewChecker() *Checker {
	return &Checker{
		alive:    make(map[identity]lifecycle),
		reported: make(map[string]bool),
	}
}

// Reset forgets all state.
func (c *Checker) Reset() {
	*c = *NewChecker()
}

// Check audits one bar's batch against the state built from earlier batches,
// then audits the frame's structure. Geometric findings are reported once per
// entity while they persist.
func (c *Checker) Check(batch []events.Event, f Frame) []Violation {
	var out []Violation
	invalidated := make(map[identity]bool)

	for _, e := range batch {
		out = append(out, c.order(e)...)
		if e.IsViolation() {
			continue
		}

		id := identity{e.Layer, e.Level, e.Key}
		state, ok := c.alive[id]
		digest := events.Digest(e.Payload)
		switch e.Transition {
		case events.TransitionCandidate:
			if ok {
				out = append(out, violation(CodeDuplicateCandidate, e, "candidate for a live identity"))
			}
			if invalidated[id] {
				out = append(out, violation(CodeReappeared, e, "identity invalidated earlier in the same batch"))
			}
			c.alive[id] = lifecycle{digest: digest}
		case events.TransitionSettle:
			if !ok {
				out = append(out, violation(CodeSettleUnknown, e, "settle without a preceding candidate"))
			}
			c.alive[id] = lifecycle{settled: true, digest: digest}
		case events.TransitionExtend, events.TransitionBreakPending:
			if !ok {
				out = append(out, violation(CodeTransitionUnknown, e, string(e.Transition)+" without a preceding candidate"))
			}
			if invalidated[id] {
				out = append(out, violation(CodeReappeared, e, "identity invalidated earlier in the same batch"))
			}
			state.digest = digest
			c.alive[id] = state
		case events.TransitionInvalidate:
			if !ok {
				out = append(out, violation(CodeInvalidateUnknown, e, "invalidate of an unknown identity"))
			}
			delete(c.alive, id)
			invalidated[id] = true
		}
	}

	out = append(out, c.consistency(f.Entities)...)
	out = append(out, c.dedupe(geometry(f))...)
	return out
}

// Observe advances the ordering state over events the checker did not audit,
// such as the violations it just reported.
func (c *Checker) Observe(evs []events.Event) {
	for _, e := range evs {
		c.order(e)
	}
}

func (c *Checker) order(e events.Event) []Violation {
	var out []Violation
	if c.started && e.Seq <= c.lastSeq {
		out = append(out, violation(CodeSeqOrder, e, fmt.Sprintf("seq %d after %d", e.Seq, c.lastSeq)))
	}
	if c.started && e.BarTime < c.lastTime {
		out = append(out, violation(CodeBarTimeOrder, e, fmt.Sprintf("bar time %d after %d", e.BarTime, c.lastTime)))
	}
	c.started = true
	c.lastSeq = max(c.lastSeq, e.Seq)
	c.lastTime = max(c.lastTime, e.BarTime)
	return out
}

// consistency compares the live identities with what the layers hold now.
func (c *Checker) consistency(entities []Entity) []Violation {
	var out []Violation
	present := make(map[identity]bool, len(entities))
	for _, ent := range entities {
		id := identity{ent.Layer, ent.Level, ent.Key}
		present[id] = true
		state, ok := c.alive[id]
		switch {
		case !ok:
			out = append(out, Violation{Code: CodeSilentOverwrite, Layer: ent.Layer, Level: ent.Level, Key: ent.Key, Detail: "entity present without any announcing event"})
		case state.digest != ent.Digest:
			out = append(out, Violation{Code: CodeSilentOverwrite, Layer: ent.Layer, Level: ent.Level, Key: ent.Key, Detail: "entity differs from its last announced state"})
		}
	}
	for id := range c.alive {
		if !present[id] {
			out = append(out, Violation{Code: CodeSilentRemoval, Layer: id.layer, Level: id.level, Key: id.key, Detail: "live identity missing without an invalidate"})
		}
	}
	sortViolations(out)
	return out
}

// dedupe drops geometric findings already reported on an earlier bar and
// forgets findings that no longer hold.
func (c *Checker) dedupe(found []Violation) []Violation {
	var out []Violation
	now := make(map[string]bool, len(found))
	for _, v := range found {
		k := fmt.Sprintf("%s|%s|%d|%s", v.Code, v.Layer, v.Level, v.Key)
		now[k] = true
		if !c.reported[k] {
			out = append(out, v)
		}
	}
	c.reported = now
	return out
}

func violation(code Code, e events.Event, detail string) Violation {
	return Violation{Code: code, Layer: e.Layer, Level: e.Level, Key: e.Key, Detail: detail}
}
