// Package ledger keeps an append-only, rotating JSONL record of emitted
// events, one line per event.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	apperrors "chanlun/internal/errors"
	"chanlun/internal/events"
	"chanlun/internal/store"
	"chanlun/internal/stream"
)

// Entry is one ledger line: an event with its stream and the stream
// fingerprint after the event's bar.
type Entry struct {
	StreamID       string `json:"stream_id"`
	Symbol         string `json:"symbol"`
	Interval       string `json:"interval"`
	Provenance     string `json:"provenance"`
	BarFingerprint string `json:"bar_fingerprint"`
	store.StoredEvent
}

// Config holds ledger configuration.
type Config struct {
	Path       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultConfig returns the default ledger configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Path:       filepath.Join(home, ".config", "chanlun", "ledger", "events.jsonl"),
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     90,
		Compress:   true,
	}
}

// Ledger writes entries through a rotating file writer.
type Ledger struct {
	writer *lumberjack.Logger
	mu     sync.Mutex
	logger zerolog.Logger
	lines  int
}

// New creates a ledger, making its directory if needed.
func New(cfg Config, logger zerolog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	return &Ledger{writer: writer, logger: logger}, nil
}

// Append writes every event of env as its own line.
func (l *Ledger) Append(env stream.Envelope) error {
	stored, err := store.FromEvents(env.Events)
	if err != nil {
		return err
	}

	var buf []byte
	for _, ev := range stored {
		data, err := json.Marshal(Entry{
			StreamID:       env.StreamID.String(),
			Symbol:         env.Symbol,
			Interval:       env.Interval,
			Provenance:     env.Provenance,
			BarFingerprint: env.Fingerprint,
			StoredEvent:    ev,
		})
		if err != nil {
			return fmt.Errorf("serializing ledger entry: %w", err)
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	if len(buf) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.writer.Write(buf); err != nil {
		return apperrors.NewSinkError("ledger", err)
	}
	l.lines += len(stored)
	return nil
}

// OnEnvelope implements stream.Consumer. Write failures are logged.
func (l *Ledger) OnEnvelope(env stream.Envelope) {
	if err := l.Append(env); err != nil {
		l.logger.Error().Err(err).Str("stream", env.StreamID.String()).Int("bar", env.BarIndex).Msg("Ledger append failed")
	}
}

// Streams implements stream.Consumer; the ledger records every stream.
func (l *Ledger) Streams() []string {
	return nil
}

// Lines returns the number of entries written by this ledger.
func (l *Ledger) Lines() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lines
}

// Close closes the ledger file.
func (l *Ledger) Close() error {
	return l.writer.Close()
}

// Read decodes ledger entries.
func Read(r io.Reader) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", line, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// Verify recomputes each stream's chained fingerprint from the event ids and
// checks it against the fingerprint recorded at the end of every bar. An
// entry with seq 1 starts a new run of its stream and restarts the chain.
func Verify(entries []Entry) error {
	fps := make(map[string]string)
	for i, e := range entries {
		prev := fps[e.StreamID]
		if e.Seq == 1 {
			prev = ""
		}
		fp := events.ExtendFingerprint(prev, []events.Event{{ID: e.ID}})
		fps[e.StreamID] = fp

		lastOfBar := i+1 == len(entries) ||
			entries[i+1].StreamID != e.StreamID ||
			entries[i+1].BarIndex != e.BarIndex ||
			entries[i+1].Seq == 1
		if lastOfBar && fp != e.BarFingerprint {
			return apperrors.NewDataError("ledger", e.StreamID,
				fmt.Sprintf("bar %d", e.BarIndex), apperrors.ErrFingerprint)
		}
	}
	return nil
}
