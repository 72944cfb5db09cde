// Package replay wraps an engine chain with step, seek and play controls over
// a fixed bar sequence.
package replay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chanlun/internal/engine"
	apperrors "chanlun/internal/errors"
	"chanlun/internal/logging"
	"chanlun/internal/models"
)

// Status describes where a session stands.
type Status struct {
	Position    int    `json:"position"`
	Total       int    `json:"total"`
	Done        bool   `json:"done"`
	Events      int    `json:"events"`
	Violations  int    `json:"violations"`
	Fingerprint string `json:"fingerprint"`
}

// Session owns a chain and the bars it replays. Position counts the bars
// already fed to the chain.
type Session struct {
	chain      *engine.Chain
	bars       []models.Bar
	logger     zerolog.Logger
	violations int
}

// NewSession resets chain and positions the session before the first bar.
func NewSession(chain *engine.Chain, bars []models.Bar, logger zerolog.Logger) *Session {
	chain.Reset()
	return &Session{chain: chain, bars: bars, logger: logger}
}

// Chain exposes the underlying chain.
func (s *Session) Chain() *engine.Chain {
	return s.chain
}

// Status reports the current position and stream totals.
func (s *Session) Status() Status {
	return Status{
		Position:    s.chain.Len(),
		Total:       len(s.bars),
		Done:        s.chain.Len() >= len(s.bars),
		Events:      len(s.chain.Events()),
		Violations:  s.violations,
		Fingerprint: s.chain.Fingerprint(),
	}
}

// Step feeds up to n more bars and returns the latest snapshot. Stepping past
// the end is not an error; the session simply stays done.
func (s *Session) Step(n int) (*engine.Snapshot, error) {
	for ; n > 0 && s.chain.Len() < len(s.bars); n-- {
		snap, err := s.chain.Step(s.bars[s.chain.Len()])
		if err != nil {
			return s.chain.Last(), err
		}
		s.violations += len(snap.Violations)
	}
	logging.LogReplay(s.logger, "step", s.chain.Len(), len(s.bars))
	return s.chain.Last(), nil
}

// Seek resets the chain and replays bars[0..k]. Seeking to -1 rewinds to the
// empty state.
func (s *Session) Seek(k int) (*engine.Snapshot, error) {
	if k < -1 || k >= len(s.bars) {
		return nil, apperrors.Wrapf(apperrors.ErrSeekOutOfRange, "seek to %d of %d bars", k, len(s.bars))
	}

	s.chain.Reset()
	s.violations = 0
	for i := 0; i <= k; i++ {
		snap, err := s.chain.Step(s.bars[i])
		if err != nil {
			return s.chain.Last(), err
		}
		s.violations += len(snap.Violations)
	}
	logging.LogReplay(s.logger, "seek", s.chain.Len(), len(s.bars))
	return s.chain.Last(), nil
}

// Play steps one bar per interval until the bars run out, fn returns an
// error or ctx is done. A non-positive interval plays without pausing.
func (s *Session) Play(ctx context.Context, interval time.Duration, fn func(*engine.Snapshot) error) error {
	logging.LogReplay(s.logger, "play", s.chain.Len(), len(s.bars))

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for s.chain.Len() < len(s.bars) {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		snap, err := s.chain.Step(s.bars[s.chain.Len()])
		if err != nil {
			return err
		}
		s.violations += len(snap.Violations)
		if fn != nil {
			if err := fn(snap); err != nil {
				return err
			}
		}
	}

	logging.LogReplay(s.logger, "done", s.chain.Len(), len(s.bars))
	return nil
}
