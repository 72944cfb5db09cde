// Package engine composes the structural layers into a per-bar pipeline.
// Every bar triggers a full recomputation, a per-layer diff against the
// previous output and an audit of the resulting events.
package engine

import (
	"time"

	"github.com/rs/zerolog"

	"chanlun/internal/analysis/indicators"
	"chanlun/internal/analysis/signals"
	"chanlun/internal/analysis/structure"
	"chanlun/internal/audit"
	apperrors "chanlun/internal/errors"
	"chanlun/internal/events"
	"chanlun/internal/logging"
	"chanlun/internal/models"
)

// Observer is notified after every processed bar.
type Observer interface {
	ObserveBar(snap *Snapshot, elapsed time.Duration)
}

// Observers notifies each observer in order.
type Observers []Observer

// ObserveBar implements Observer.
func (obs Observers) ObserveBar(snap *Snapshot, elapsed time.Duration) {
	for _, o := range obs {
		if o != nil {
			o.ObserveBar(snap, elapsed)
		}
	}
}

// Chain is one stream's engine. It is not safe for concurrent use; separate
// streams use separate chains.
type Chain struct {
	opts     Options
	macd     *indicators.MACD
	logger   zerolog.Logger
	observer Observer

	bars    []models.Bar
	builder *events.Builder
	bus     *events.Bus
	checker *audit.Checker
	fp      string
	last    *Snapshot

	strokes  *layer[models.Stroke]
	segments *layer[models.Segment]
	levels   []*levelLayers
}

// NewChain validates opts and returns an empty chain.
func NewChain(opts Options, logger zerolog.Logger) (*Chain, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c := &Chain{
		opts:    opts,
		macd:    opts.macd(),
		logger:  logger,
		builder: events.NewBuilder(0),
		bus:     events.NewBus(),
		checker: audit.NewChecker(),
	}
	c.Reset()
	return c, nil
}

// SetObserver installs o; nil removes it.
func (c *Chain) SetObserver(o Observer) {
	c.observer = o
}

// Options returns the chain's configuration.
func (c *Chain) Options() Options {
	return c.opts
}

// Len returns the number of bars processed since the last reset.
func (c *Chain) Len() int {
	return len(c.bars)
}

// Last returns the most recent snapshot, or nil before the first bar.
func (c *Chain) Last() *Snapshot {
	return c.last
}

// Events returns every event emitted since the last reset.
func (c *Chain) Events() []events.Event {
	return c.bus.Events()
}

// Fingerprint returns the stream fingerprint of all events so far.
func (c *Chain) Fingerprint() string {
	return c.fp
}

// Reset clears every layer, the event stream and the audit state.
func (c *Chain) Reset() {
	c.bars = nil
	c.builder.Reset(0)
	c.bus.Reset()
	c.checker.Reset()
	c.fp = ""
	c.last = nil
	c.strokes = newLayer(strokePolicy())
	c.segments = newLayer(segmentPolicy())
	c.levels = nil
}

// Run steps through bars in order and returns the final snapshot.
func (c *Chain) Run(bars []models.Bar) (*Snapshot, error) {
	for _, b := range bars {
		if _, err := c.Step(b); err != nil {
			return c.last, err
		}
	}
	return c.last, nil
}

// Step appends one bar and recomputes. A malformed or out-of-order bar is
// rejected with a *errors.BarError and leaves the chain unchanged.
func (c *Chain) Step(bar models.Bar) (*Snapshot, error) {
	idx := len(c.bars)
	if field, reason := bar.Problem(); field != "" {
		return nil, apperrors.NewBarError(idx, field, reason, apperrors.ErrInvalidBar)
	}
	if idx > 0 && bar.Timestamp.Before(c.bars[idx-1].Timestamp) {
		return nil, apperrors.NewBarError(idx, "timestamp", "earlier than the previous bar", apperrors.ErrOutOfOrderBar)
	}

	start := time.Now()
	c.bars = append(c.bars, bar)
	c.builder.SetBar(idx, bar.Unix())

	merged := structure.Merge(c.bars)
	fractals := structure.Fractals(merged)
	strokes := structure.BuildStrokes(merged, fractals, c.opts.StrokeMode)
	segments := structure.BuildSegments(strokes, c.opts.SegmentAlgo)
	stack := structure.BuildLevels(segments, c.opts.MaxLevels)
	analyzer := signals.NewAnalyzer(indicators.NewForce(c.bars, c.macd))

	c.strokes.apply(strokes, c.builder)
	c.segments.apply(segments, c.builder)

	levels := make([]LevelSnapshot, 0, len(stack))
	for _, lb := range stack {
		divs := analyzer.Divergences(lb)
		points := analyzer.Points(lb, divs)

		ll := c.levelAt(lb.Level)
		ll.pivots.apply(lb.Pivots, c.builder)
		ll.moves.apply(lb.Moves, c.builder)
		ll.divergences.apply(divs, c.builder)
		ll.points.apply(points, c.builder)

		levels = append(levels, LevelSnapshot{
			Level:       lb.Level,
			Pivots:      lb.Pivots,
			Moves:       lb.Moves,
			Divergences: divs,
			Points:      points,
		})
	}

	// Levels the stack no longer reaches are emptied, highest level last.
	for _, ll := range c.levels[len(stack):] {
		ll.pivots.apply(nil, c.builder)
		ll.moves.apply(nil, c.builder)
		ll.divergences.apply(nil, c.builder)
		ll.points.apply(nil, c.builder)
	}
	c.levels = c.levels[:len(stack)]

	snap := &Snapshot{
		BarIndex: idx,
		Bar:      bar,
		Merged:   merged,
		Fractals: fractals,
		Strokes:  strokes,
		Segments: segments,
		Levels:   levels,
	}

	batch := c.builder.Drain()
	snap.Violations = c.checker.Check(batch, audit.Frame{
		BarIndex: idx,
		BarTime:  bar.Unix(),
		Merged:   merged,
		Fractals: fractals,
		Strokes:  strokes,
		Segments: segments,
		Levels:   snap.levelModels(),
		Entities: c.entities(),
	})
	for _, v := range snap.Violations {
		c.builder.Emit(events.LayerInvariant, events.TransitionViolation, v.Level, string(v.Code)+"|"+v.Key, v.Payload())
		logging.LogViolation(c.logger, idx, string(v.Code), string(v.Layer), v.Level, v.Key, v.Detail)
	}
	reported := c.builder.Drain()
	c.checker.Observe(reported)
	batch = append(batch, reported...)

	c.bus.Publish(batch...)
	c.fp = events.ExtendFingerprint(c.fp, batch)
	snap.Events = batch
	snap.Fingerprint = c.fp
	c.last = snap

	elapsed := time.Since(start)
	logging.LogBar(c.logger, idx, len(strokes), len(segments), len(levels), len(batch), elapsed)
	if c.observer != nil {
		c.observer.ObserveBar(snap, elapsed)
	}
	return snap, nil
}

func (c *Chain) levelAt(level int) *levelLayers {
	for len(c.levels) < level {
		c.levels = append(c.levels, newLevelLayers(len(c.levels)+1))
	}
	return c.levels[level-1]
}

func (c *Chain) entities() []audit.Entity {
	out := c.strokes.entities()
	out = append(out, c.segments.entities()...)
	for _, ll := range c.levels {
		out = append(out, ll.entities()...)
	}
	return out
}
