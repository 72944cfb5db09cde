package events

import (
	"strconv"

	"github.com/shopspring/decimal"

	"chanlun/internal/models"
)

// Payload is the kind-specific part of an event. The set of payloads is closed.
type Payload interface {
	// Fields returns the canonical name/value pairs hashed into the event ID.
	Fields() []Field
	payload() // marker method
}

// Field is one canonical payload field.
type Field struct {
	Name  string
	Value string
}

// FormatFloat renders v in its shortest exact decimal form, so equal floats
// always serialize identically.
func FormatFloat(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func intField(name string, v int) Field { return Field{name, strconv.Itoa(v)} }

func floatField(name string, v float64) Field { return Field{name, FormatFloat(v)} }

func boolField(name string, v bool) Field { return Field{name, strconv.FormatBool(v)} }

func strField(name, v string) Field { return Field{name, v} }

// StrokePayload carries a stroke.
type StrokePayload struct {
	models.Stroke
}

func (StrokePayload) payload() {}

func (p StrokePayload) Fields() []Field {
	s := p.Stroke
	return []Field{
		intField("start_index", s.StartIndex),
		intField("end_index", s.EndIndex),
		intField("start_bar", s.StartBar),
		intField("end_bar", s.EndBar),
		strField("direction", string(s.Direction)),
		floatField("high", s.High),
		floatField("low", s.Low),
		floatField("start_price", s.StartPrice),
		floatField("end_price", s.EndPrice),
		boolField("confirmed", s.Confirmed),
	}
}

// SegmentPayload carries a segment.
type SegmentPayload struct {
	models.Segment
}

func (SegmentPayload) payload() {}

func (p SegmentPayload) Fields() []Field {
	s := p.Segment
	return []Field{
		intField("start_stroke", s.StartStroke),
		intField("end_stroke", s.EndStroke),
		intField("start_bar", s.StartBar),
		intField("end_bar", s.EndBar),
		strField("direction", string(s.Direction)),
		floatField("high", s.High),
		floatField("low", s.Low),
		floatField("start_price", s.StartPrice),
		floatField("end_price", s.EndPrice),
		strField("start_type", string(s.StartType)),
		strField("end_type", string(s.EndType)),
		boolField("confirmed", s.Confirmed),
		strField("lifecycle", string(s.Kind)),
		boolField("break_valid", s.Break.Valid),
		intField("break_trigger", s.Break.TriggerStroke),
		boolField("break_gap", s.Break.Gap),
		boolField("break_pending", s.BreakPending),
	}
}

// PivotPayload carries a pivot.
type PivotPayload struct {
	models.Pivot
}

func (PivotPayload) payload() {}

func (p PivotPayload) Fields() []Field {
	v := p.Pivot
	return []Field{
		intField("level", v.Level),
		floatField("low", v.Low),
		floatField("high", v.High),
		floatField("range_low", v.RangeLow),
		floatField("range_high", v.RangeHigh),
		intField("seg_start", v.SegStart),
		intField("seg_end", v.SegEnd),
		intField("count", v.Count),
		boolField("settled", v.Settled),
		intField("break_seg", v.BreakSeg),
		strField("break_direction", string(v.BreakDirection)),
	}
}

// MovePayload carries a move.
type MovePayload struct {
	models.Move
}

func (MovePayload) payload() {}

func (p MovePayload) Fields() []Field {
	m := p.Move
	return []Field{
		intField("level", m.Level),
		strField("move_kind", string(m.Kind)),
		strField("direction", string(m.Direction)),
		intField("seg_start", m.SegStart),
		intField("seg_end", m.SegEnd),
		intField("pivot_start", m.PivotStart),
		intField("pivot_end", m.PivotEnd),
		intField("pivot_count", m.PivotCount),
		boolField("settled", m.Settled),
		floatField("high", m.High),
		floatField("low", m.Low),
	}
}

// DivergencePayload carries a divergence.
type DivergencePayload struct {
	models.Divergence
}

func (DivergencePayload) payload() {}

func (p DivergencePayload) Fields() []Field {
	d := p.Divergence
	return []Field{
		intField("level", d.Level),
		strField("divergence_kind", string(d.Kind)),
		strField("direction", string(d.Direction)),
		intField("move_start", d.MoveStart),
		intField("a_start", d.AStart),
		intField("a_end", d.AEnd),
		intField("c_start", d.CStart),
		intField("c_end", d.CEnd),
		floatField("force_a", d.ForceA),
		floatField("force_c", d.ForceC),
		boolField("confirmed", d.Confirmed),
	}
}

// PointPayload carries a buy/sell point.
type PointPayload struct {
	models.BuySellPoint
}

func (PointPayload) payload() {}

func (p PointPayload) Fields() []Field {
	b := p.BuySellPoint
	return []Field{
		intField("level", b.Level),
		strField("class", string(b.Class)),
		strField("side", string(b.Side)),
		intField("seg_index", b.SegIndex),
		floatField("price", b.Price),
		intField("move_start", b.MoveStart),
		intField("pivot_start", b.PivotStart),
		strField("overlaps_with", string(b.OverlapsWith)),
		boolField("confirmed", b.Confirmed),
	}
}

// ViolationPayload describes a broken invariant.
type ViolationPayload struct {
	Code   string `json:"code"`
	Layer  Layer  `json:"layer"`
	Level  int    `json:"level"`
	Key    string `json:"key"`
	Detail string `json:"detail"`
}

func (ViolationPayload) payload() {}

func (p ViolationPayload) Fields() []Field {
	return []Field{
		strField("code", p.Code),
		strField("subject_layer", string(p.Layer)),
		intField("subject_level", p.Level),
		strField("subject_key", p.Key),
		strField("detail", p.Detail),
	}
}
