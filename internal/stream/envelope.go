// Package stream distributes per-bar event batches to subscribers and
// consumers, one logical stream per symbol, interval and provenance.
package stream

import (
	"github.com/google/uuid"

	"chanlun/internal/engine"
	"chanlun/internal/events"
)

// namespace seeds deterministic stream IDs.
var namespace = uuid.MustParse("3f0c6a52-9d1e-4b7a-8c25-6e1f0d9b7a44")

// Identity names a stream. Two chains fed the same identity must see the
// same bars.
type Identity struct {
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	Provenance string `json:"provenance"`
}

// ID returns the stream's name-based (SHA-1) UUID. It is stable across
// processes so replays of a stream land under the same ID.
func (id Identity) ID() uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(id.Symbol+"|"+id.Interval+"|"+id.Provenance))
}

// String renders the identity as symbol/interval@provenance.
func (id Identity) String() string {
	return id.Symbol + "/" + id.Interval + "@" + id.Provenance
}

// Envelope carries one bar's event batch.
type Envelope struct {
	StreamID    uuid.UUID      `json:"stream_id"`
	Symbol      string         `json:"symbol"`
	Interval    string         `json:"interval"`
	Provenance  string         `json:"provenance"`
	Schema      int            `json:"schema"`
	BarIndex    int            `json:"bar_index"`
	BarTime     int64          `json:"bar_time"`
	Events      []events.Event `json:"events"`
	Fingerprint string         `json:"fingerprint"`
}

// NewEnvelope wraps a snapshot's batch for distribution.
func NewEnvelope(id Identity, snap *engine.Snapshot) Envelope {
	return Envelope{
		StreamID:    id.ID(),
		Symbol:      id.Symbol,
		Interval:    id.Interval,
		Provenance:  id.Provenance,
		Schema:      events.SchemaVersion,
		BarIndex:    snap.BarIndex,
		BarTime:     snap.Bar.Unix(),
		Events:      snap.Events,
		Fingerprint: snap.Fingerprint,
	}
}

// Key identifies the stream a message belongs to, suitable for partitioning.
func (e Envelope) Key() []byte {
	return []byte(e.StreamID.String())
}
