// Package models provides the immutable value records shared by every layer
// of the structural engine.
package models

import (
	"math"
	"time"
)

// Direction represents the direction of a structural swing.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionUp:
		return DirectionDown
	case DirectionDown:
		return DirectionUp
	default:
		return DirectionNone
	}
}

// FractalKind represents the kind of a three-bar extremum.
type FractalKind string

const (
	FractalTop    FractalKind = "top"
	FractalBottom FractalKind = "bottom"
)

// StrokeMode selects the stroke separation policy.
type StrokeMode string

const (
	StrokeStrict StrokeMode = "strict"
	StrokeWide   StrokeMode = "wide"
)

// SegmentAlgo selects the segment construction strategy.
type SegmentAlgo string

const (
	SegmentOverlap SegmentAlgo = "v0"
	SegmentFeature SegmentAlgo = "v1"
)

// Bar represents OHLCV data for a time period.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Unix returns the bar timestamp in seconds.
func (b Bar) Unix() int64 {
	return b.Timestamp.Unix()
}

// Problem reports the first field that makes the bar malformed, or "" if the
// bar is well formed.
func (b Bar) Problem() (field, reason string) {
	for _, f := range []struct {
		name string
		v    float64
	}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return f.name, "not a finite number"
		}
	}
	switch {
	case b.Timestamp.Unix() <= 0:
		return "timestamp", "must be positive"
	case b.High < b.Low:
		return "high", "below low"
	case b.Open > b.High || b.Open < b.Low:
		return "open", "outside high/low range"
	case b.Close > b.High || b.Close < b.Low:
		return "close", "outside high/low range"
	case b.Volume < 0:
		return "volume", "negative"
	}
	return "", ""
}
