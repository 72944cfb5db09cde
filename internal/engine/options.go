package engine

import (
	"chanlun/internal/analysis/indicators"
	"chanlun/internal/analysis/structure"
	apperrors "chanlun/internal/errors"
	"chanlun/internal/models"
)

// maxLevelsLimit bounds recursion depth.
const maxLevelsLimit = 16

// Options selects the interchangeable algorithms of a chain.
type Options struct {
	StrokeMode  models.StrokeMode
	SegmentAlgo models.SegmentAlgo
	MaxLevels   int
	MACDFast    int
	MACDSlow    int
	MACDSignal  int
}

// DefaultOptions returns strict strokes, feature-sequence segments, four
// levels and MACD 12/26/9.
func DefaultOptions() Options {
	return Options{
		StrokeMode:  models.StrokeStrict,
		SegmentAlgo: models.SegmentFeature,
		MaxLevels:   structure.DefaultMaxLevels,
		MACDFast:    indicators.DefaultFastPeriod,
		MACDSlow:    indicators.DefaultSlowPeriod,
		MACDSignal:  indicators.DefaultSignalPeriod,
	}
}

// Validate rejects unknown modes and out-of-range parameters.
func (o Options) Validate() error {
	if !structure.ValidStrokeMode(o.StrokeMode) {
		return apperrors.NewModeError("stroke_mode", o.StrokeMode)
	}
	if !structure.ValidSegmentAlgo(o.SegmentAlgo) {
		return apperrors.NewModeError("segment_algo", o.SegmentAlgo)
	}
	if o.MaxLevels < 1 || o.MaxLevels > maxLevelsLimit {
		return apperrors.NewValidationError("max_levels", o.MaxLevels, "must be between 1 and 16")
	}
	if err := o.macd().Validate(); err != nil {
		return apperrors.NewValidationError("macd", [3]int{o.MACDFast, o.MACDSlow, o.MACDSignal}, err.Error())
	}
	return nil
}

func (o Options) macd() *indicators.MACD {
	return indicators.NewMACD(o.MACDFast, o.MACDSlow, o.MACDSignal)
}
