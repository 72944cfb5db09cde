package engine

import (
	"chanlun/internal/diff"
	"chanlun/internal/events"
	"chanlun/internal/models"
)

func strokePolicy() diff.Policy[models.Stroke] {
	return diff.Policy[models.Stroke]{
		Layer:   events.LayerStroke,
		Key:     models.Stroke.Key,
		Settled: func(s models.Stroke) bool { return s.Confirmed },
		Payload: func(s models.Stroke) events.Payload { return events.StrokePayload{Stroke: s} },
	}
}

func segmentPolicy() diff.Policy[models.Segment] {
	return diff.Policy[models.Segment]{
		Layer:   events.LayerSegment,
		Key:     models.Segment.Key,
		Settled: func(s models.Segment) bool { return s.Kind == models.SegmentSettled },
		Pending: func(s models.Segment) bool { return s.BreakPending },
		Payload: func(s models.Segment) events.Payload { return events.SegmentPayload{Segment: s} },
	}
}

func pivotPolicy(level int) diff.Policy[models.Pivot] {
	return diff.Policy[models.Pivot]{
		Layer:   events.LayerPivot,
		Level:   level,
		Key:     models.Pivot.Key,
		Settled: func(p models.Pivot) bool { return p.Settled },
		Payload: func(p models.Pivot) events.Payload { return events.PivotPayload{Pivot: p} },
	}
}

func movePolicy(level int) diff.Policy[models.Move] {
	return diff.Policy[models.Move]{
		Layer:   events.LayerMove,
		Level:   level,
		Key:     models.Move.Key,
		Settled: func(m models.Move) bool { return m.Settled },
		Payload: func(m models.Move) events.Payload { return events.MovePayload{Move: m} },
	}
}

func divergencePolicy(level int) diff.Policy[models.Divergence] {
	return diff.Policy[models.Divergence]{
		Layer:   events.LayerDivergence,
		Level:   level,
		Key:     models.Divergence.Key,
		Settled: func(d models.Divergence) bool { return d.Confirmed },
		Payload: func(d models.Divergence) events.Payload { return events.DivergencePayload{Divergence: d} },
	}
}

func pointPolicy(level int) diff.Policy[models.BuySellPoint] {
	return diff.Policy[models.BuySellPoint]{
		Layer:   events.LayerPoint,
		Level:   level,
		Key:     models.BuySellPoint.Key,
		Settled: func(b models.BuySellPoint) bool { return b.Confirmed },
		Payload: func(b models.BuySellPoint) events.Payload { return events.PointPayload{BuySellPoint: b} },
	}
}
