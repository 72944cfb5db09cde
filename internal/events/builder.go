package events

// Builder stamps events with the current bar context and a running sequence
// number. One builder belongs to one stream.
type Builder struct {
	seq      uint64
	barIndex int
	barTime  int64
	batch    []Event
}

// NewBuilder starts numbering after seed.
func NewBuilder(seed uint64) *Builder {
	return &Builder{seq: seed}
}

// SetBar sets the bar context for subsequent events.
func (b *Builder) SetBar(index int, unix int64) {
	b.barIndex = index
	b.barTime = unix
}

// Seq returns the last sequence number handed out.
func (b *Builder) Seq() uint64 {
	return b.seq
}

// Emit creates the next event and appends it to the pending batch.
func (b *Builder) Emit(layer Layer, tr Transition, level int, key string, p Payload) Event {
	b.seq++
	kind := KindOf(layer, tr)

	fields := []Field{intField("layer_level", level), strField("identity", key)}
	if p != nil {
		fields = append(fields, p.Fields()...)
	}

	e := Event{
		Kind:       kind,
		Layer:      layer,
		Transition: tr,
		Level:      level,
		Key:        key,
		BarIndex:   b.barIndex,
		BarTime:    b.barTime,
		Seq:        b.seq,
		Schema:     SchemaVersion,
		Payload:    p,
	}
	e.ID = ComputeEventID(b.barIndex, b.barTime, kind, b.seq, fields)
	b.batch = append(b.batch, e)
	return e
}

// Drain returns the pending batch and starts a new one.
func (b *Builder) Drain() []Event {
	out := b.batch
	b.batch = nil
	return out
}

// Reset restarts numbering after seed and drops the pending batch.
func (b *Builder) Reset(seed uint64) {
	*b = Builder{seq: seed}
}
