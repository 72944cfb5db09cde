package diff

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"chanlun/internal/events"
	"chanlun/internal/models"
)

var strokePolicy = Policy[models.Stroke]{
	Layer:   events.LayerStroke,
	Key:     func(s models.Stroke) string { return fmt.Sprintf("%d|%s", s.StartIndex, s.Direction) },
	Settled: func(s models.Stroke) bool { return s.Confirmed },
	Payload: func(s models.Stroke) events.Payload { return events.StrokePayload{Stroke: s} },
}

func stroke(start, end int, confirmed bool) models.Stroke {
	dir := models.DirectionUp
	if start%2 == 1 {
		dir = models.DirectionDown
	}
	return models.Stroke{StartIndex: start, EndIndex: end, Direction: dir, High: float64(end), Low: float64(start), Confirmed: confirmed}
}

func transitions(evs []events.Event) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = string(e.Transition) + ":" + e.Key
	}
	return out
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name string
		prev []models.Stroke
		curr []models.Stroke
		want []string
	}{
		{
			name: "equal lists emit nothing",
			prev: []models.Stroke{stroke(0, 5, true), stroke(5, 9, false)},
			curr: []models.Stroke{stroke(0, 5, true), stroke(5, 9, false)},
			want: []string{},
		},
		{
			name: "new tail is a candidate",
			prev: []models.Stroke{stroke(0, 5, false)},
			curr: []models.Stroke{stroke(0, 5, true), stroke(5, 9, false)},
			want: []string{"settle:0|up", "candidate:5|down"},
		},
		{
			name: "unchanged entity after a change stays silent",
			prev: []models.Stroke{stroke(0, 5, false), stroke(5, 9, false)},
			curr: []models.Stroke{stroke(0, 5, true), stroke(5, 9, false)},
			want: []string{"settle:0|up"},
		},
		{
			name: "same identity extends in place",
			prev: []models.Stroke{stroke(0, 5, true), stroke(5, 9, false)},
			curr: []models.Stroke{stroke(0, 5, true), stroke(5, 11, false)},
			want: []string{"extend:5|down"},
		},
		{
			name: "replaced identity is invalidated then recreated",
			prev: []models.Stroke{stroke(0, 5, true), stroke(5, 9, true), stroke(9, 14, false)},
			curr: []models.Stroke{stroke(0, 5, true), stroke(6, 12, false)},
			want: []string{"invalidate:9|down", "invalidate:5|down", "candidate:6|up"},
		},
		{
			name: "settled on arrival",
			prev: nil,
			curr: []models.Stroke{stroke(0, 5, true)},
			want: []string{"candidate:0|up", "settle:0|up"},
		},
		{
			name: "removal only",
			prev: []models.Stroke{stroke(0, 5, true), stroke(5, 9, false)},
			curr: []models.Stroke{stroke(0, 5, true)},
			want: []string{"invalidate:5|down"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := transitions(Diff(tt.prev, tt.curr, strokePolicy, events.NewBuilder(0)))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiffBreakPending(t *testing.T) {
	policy := Policy[models.Segment]{
		Layer:   events.LayerSegment,
		Key:     func(s models.Segment) string { return fmt.Sprintf("%d|%s", s.StartStroke, s.Direction) },
		Settled: func(s models.Segment) bool { return s.Kind == models.SegmentSettled },
		Pending: func(s models.Segment) bool { return s.BreakPending },
		Payload: func(s models.Segment) events.Payload { return events.SegmentPayload{Segment: s} },
	}
	open := models.Segment{StartStroke: 0, EndStroke: 2, Direction: models.DirectionUp, Kind: models.SegmentCandidate}
	pending := open
	pending.BreakPending = true

	got := transitions(Diff([]models.Segment{open}, []models.Segment{pending}, policy, events.NewBuilder(0)))
	if !reflect.DeepEqual(got, []string{"break_pending:0|up"}) {
		t.Errorf("got %v", got)
	}
}

// Feature: chanlun-engine, Property 8: Diff idempotence
//
// Property: diffing the same pair twice from the same seed yields identical
// event lists, and diffing a list against itself yields nothing.
func TestProperty_DiffIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	strokesGen := func() gopter.Gen {
		return gen.SliceOfN(8, gen.IntRange(1, 6)).Map(func(steps []int) []models.Stroke {
			out := make([]models.Stroke, 0, len(steps))
			pos := 0
			for i, s := range steps {
				out = append(out, stroke(pos, pos+s, i < len(steps)-1))
				pos += s
			}
			return out
		})
	}

	properties.Property("same pair, same events", prop.ForAll(
		func(prev, curr []models.Stroke, seed uint64) bool {
			a := Diff(prev, curr, strokePolicy, events.NewBuilder(seed))
			b := Diff(prev, curr, strokePolicy, events.NewBuilder(seed))
			return reflect.DeepEqual(a, b)
		},
		strokesGen(), strokesGen(), gen.UInt64Range(0, 1000),
	))

	properties.Property("self diff is empty", prop.ForAll(
		func(list []models.Stroke) bool {
			return len(Diff(list, list, strokePolicy, events.NewBuilder(0))) == 0
		},
		strokesGen(),
	))

	properties.Property("sequence numbers strictly increase", prop.ForAll(
		func(prev, curr []models.Stroke) bool {
			evs := Diff(prev, curr, strokePolicy, events.NewBuilder(0))
			for i := range evs {
				if evs[i].Seq != uint64(i+1) {
					return false
				}
			}
			return true
		},
		strokesGen(), strokesGen(),
	))

	properties.TestingRun(t)
}
