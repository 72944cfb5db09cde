package engine

import (
	"chanlun/internal/audit"
	"chanlun/internal/diff"
	"chanlun/internal/events"
	"chanlun/internal/models"
)

// layer owns the previous output of one structural layer.
type layer[T comparable] struct {
	policy diff.Policy[T]
	prev   []T
}

func newLayer[T comparable](policy diff.Policy[T]) *layer[T] {
	return &layer[T]{policy: policy}
}

// apply diffs curr against the held output, emits through b and keeps curr.
func (l *layer[T]) apply(curr []T, b *events.Builder) []events.Event {
	evs := diff.Diff(l.prev, curr, l.policy, b)
	l.prev = curr
	return evs
}

func (l *layer[T]) current() []T {
	return l.prev
}

func (l *layer[T]) entities() []audit.Entity {
	out := make([]audit.Entity, len(l.prev))
	for i, v := range l.prev {
		out[i] = audit.Entity{
			Layer:  l.policy.Layer,
			Level:  l.policy.Level,
			Key:    l.policy.Key(v),
			Digest: events.Digest(l.policy.Payload(v)),
		}
	}
	return out
}

// levelLayers holds the per-level layers of one rung of the stack.
type levelLayers struct {
	pivots      *layer[models.Pivot]
	moves       *layer[models.Move]
	divergences *layer[models.Divergence]
	points      *layer[models.BuySellPoint]
}

func newLevelLayers(level int) *levelLayers {
	return &levelLayers{
		pivots:      newLayer(pivotPolicy(level)),
		moves:       newLayer(movePolicy(level)),
		divergences: newLayer(divergencePolicy(level)),
		points:      newLayer(pointPolicy(level)),
	}
}

func (l *levelLayers) entities() []audit.Entity {
	var out []audit.Entity
	out = append(out, l.pivots.entities()...)
	out = append(out, l.moves.entities()...)
	out = append(out, l.divergences.entities()...)
	out = append(out, l.points.entities()...)
	return out
}
