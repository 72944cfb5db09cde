// Package diff compares two successive recomputations of one layer and emits
// the lifecycle events that turn the first into the second.
package diff

import "chanlun/internal/events"

// Policy tells Diff how to read entities of one layer.
type Policy[T comparable] struct {
	Layer events.Layer
	Level int
	// Key returns the identity of an entity. Entities with equal keys are the
	// same thing in different states.
	Key     func(T) string
	Settled func(T) bool
	// Pending marks an entity waiting on break confirmation. Optional.
	Pending func(T) bool
	Payload func(T) events.Payload
}

// Diff emits events through b for the change from prev to curr.
//
// The longest equal prefix is skipped. The rest of prev is invalidated from
// the newest entity backwards, except where curr holds an entity with the same
// identity at the same position. The rest of curr then produces, per position,
// either an in-place transition (settle, break_pending or extend) for a kept
// identity, or a candidate for a new one followed by settle when the entity
// arrives already settled. Positions equal in both lists emit nothing.
func Diff[T comparable](prev, curr []T, p Policy[T], b *events.Builder) []events.Event {
	k := 0
	for k < len(prev) && k < len(curr) && prev[k] == curr[k] {
		k++
	}

	var out []events.Event
	for i := len(prev) - 1; i >= k; i-- {
		if i < len(curr) && p.Key(curr[i]) == p.Key(prev[i]) {
			continue
		}
		out = append(out, b.Emit(p.Layer, events.TransitionInvalidate, p.Level, p.Key(prev[i]), p.Payload(prev[i])))
	}

	for i := k; i < len(curr); i++ {
		c := curr[i]
		if i < len(prev) && prev[i] == c {
			continue
		}
		key := p.Key(c)
		if i < len(prev) && p.Key(prev[i]) == key {
			out = append(out, b.Emit(p.Layer, transition(p, prev[i], c), p.Level, key, p.Payload(c)))
			continue
		}
		out = append(out, b.Emit(p.Layer, events.TransitionCandidate, p.Level, key, p.Payload(c)))
		if p.Settled(c) {
			out = append(out, b.Emit(p.Layer, events.TransitionSettle, p.Level, key, p.Payload(c)))
		}
	}
	return out
}

func transition[T comparable](p Policy[T], old, cur T) events.Transition {
	switch {
	case p.Settled(cur) && !p.Settled(old):
		return events.TransitionSettle
	case p.Pending != nil && p.Pending(cur) && !p.Pending(old):
		return events.TransitionBreakPending
	}
	return events.TransitionExtend
}
