// Package store provides persistence for bars and emitted events.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chanlun/internal/events"
	"chanlun/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Bars
	SaveBars(ctx context.Context, symbol, interval string, bars []models.Bar) error
	GetBars(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Bar, error)
	ListStreams(ctx context.Context) ([]StreamInfo, error)

	// Events
	AppendEvents(ctx context.Context, streamID string, evs []StoredEvent) (int, error)
	GetEvents(ctx context.Context, streamID string, filter EventFilter) ([]StoredEvent, error)

	// Lifecycle
	Close() error
}

// StreamInfo summarises the bars stored for one symbol and interval.
type StreamInfo struct {
	Symbol   string
	Interval string
	Bars     int
	First    time.Time
	Last     time.Time
}

// StoredEvent is an event as persisted: the envelope fields plus the payload
// encoded as JSON.
type StoredEvent struct {
	ID         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	BarIndex   int             `json:"bar_index"`
	BarTime    int64           `json:"bar_time"`
	Kind       string          `json:"kind"`
	Layer      string          `json:"layer"`
	Transition string          `json:"transition"`
	Level      int             `json:"level"`
	Key        string          `json:"key"`
	Schema     int             `json:"schema"`
	Payload    json.RawMessage `json:"payload"`
}

// EventFilter represents filters for querying events.
type EventFilter struct {
	FromSeq uint64
	Layer   string
	Kind    string
	Limit   int
}

// FromEvents encodes engine events for persistence.
func FromEvents(evs []events.Event) ([]StoredEvent, error) {
	out := make([]StoredEvent, 0, len(evs))
	for _, e := range evs {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("encoding payload of %s: %w", e.ID, err)
		}
		out = append(out, StoredEvent{
			ID:         e.ID,
			Seq:        e.Seq,
			BarIndex:   e.BarIndex,
			BarTime:    e.BarTime,
			Kind:       string(e.Kind),
			Layer:      string(e.Layer),
			Transition: string(e.Transition),
			Level:      e.Level,
			Key:        e.Key,
			Schema:     e.Schema,
			Payload:    payload,
		})
	}
	return out, nil
}
