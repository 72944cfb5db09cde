package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	apperrors "chanlun/internal/errors"
	"chanlun/internal/logging"
	"chanlun/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db, logger: zerolog.Nop()}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// SetLogger installs the logger used for per-operation diagnostics.
func (s *SQLiteStore) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Bars keyed by stream; timestamps are unix seconds
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, timestamp)
	);

	-- Emitted events; a replayed stream re-inserts nothing
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stream_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		bar_index INTEGER NOT NULL,
		bar_time INTEGER NOT NULL,
		kind TEXT NOT NULL,
		layer TEXT NOT NULL,
		transition TEXT NOT NULL,
		level INTEGER NOT NULL,
		entity_key TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(stream_id, event_id)
	);

	CREATE INDEX IF NOT EXISTS idx_bars_stream ON bars(symbol, timeframe, timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_stream ON events(stream_id, seq);
	CREATE INDEX IF NOT EXISTS idx_events_layer ON events(stream_id, layer);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func dbError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrDatabaseError, err)
}

// SaveBars upserts bars for a stream.
func (s *SQLiteStore) SaveBars(ctx context.Context, symbol, interval string, bars []models.Bar) (err error) {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { logging.LogStoreOp(s.logger, "save_bars", symbol+"/"+interval, len(bars), time.Since(start), err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, interval, b.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return dbError("failed to insert bar", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("failed to commit transaction", err)
	}
	return nil
}

// GetBars returns a stream's bars within [from, to] in time order. Zero bounds
// are open.
func (s *SQLiteStore) GetBars(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Bar, error) {
	lo, hi := int64(0), int64(1<<62)
	if !from.IsZero() {
		lo = from.Unix()
	}
	if !to.IsZero() {
		hi = to.Unix()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, symbol, interval, lo, hi)
	if err != nil {
		return nil, dbError("failed to query bars", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		var ts int64
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, dbError("failed to scan bar", err)
		}
		b.Timestamp = time.Unix(ts, 0).UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating bars", err)
	}
	return bars, nil
}

// ListStreams summarises every stored symbol and interval.
func (s *SQLiteStore) ListStreams(ctx context.Context) ([]StreamInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timeframe, COUNT(*), MIN(timestamp), MAX(timestamp)
		FROM bars
		GROUP BY symbol, timeframe
		ORDER BY symbol, timeframe
	`)
	if err != nil {
		return nil, dbError("failed to list streams", err)
	}
	defer rows.Close()

	var out []StreamInfo
	for rows.Next() {
		var info StreamInfo
		var first, last int64
		if err := rows.Scan(&info.Symbol, &info.Interval, &info.Bars, &first, &last); err != nil {
			return nil, dbError("failed to scan stream", err)
		}
		info.First = time.Unix(first, 0).UTC()
		info.Last = time.Unix(last, 0).UTC()
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating streams", err)
	}
	return out, nil
}

// AppendEvents inserts events for a stream and returns how many were new.
// Events already stored under the same stream and id are skipped, so
// persisting a replayed stream is a no-op.
func (s *SQLiteStore) AppendEvents(ctx context.Context, streamID string, evs []StoredEvent) (inserted int, err error) {
	if len(evs) == 0 {
		return 0, nil
	}
	start := time.Now()
	defer func() { logging.LogStoreOp(s.logger, "append_events", streamID, inserted, time.Since(start), err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO events (stream_id, event_id, seq, bar_index, bar_time, kind, layer, transition, level, entity_key, schema_version, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, e := range evs {
		res, err := stmt.ExecContext(ctx, streamID, e.ID, int64(e.Seq), e.BarIndex, e.BarTime,
			e.Kind, e.Layer, e.Transition, e.Level, e.Key, e.Schema, string(e.Payload))
		if err != nil {
			return 0, dbError("failed to insert event", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, dbError("failed to commit transaction", err)
	}
	return inserted, nil
}

// GetEvents returns a stream's events in sequence order.
func (s *SQLiteStore) GetEvents(ctx context.Context, streamID string, filter EventFilter) ([]StoredEvent, error) {
	query := `
		SELECT event_id, seq, bar_index, bar_time, kind, layer, transition, level, entity_key, schema_version, payload
		FROM events
		WHERE stream_id = ? AND seq >= ?
	`
	args := []interface{}{streamID, int64(filter.FromSeq)}

	var conds []string
	if filter.Layer != "" {
		conds = append(conds, "layer = ?")
		args = append(args, filter.Layer)
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, filter.Kind)
	}
	if len(conds) > 0 {
		query += " AND " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("failed to query events", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var seq int64
		var payload string
		if err := rows.Scan(&e.ID, &seq, &e.BarIndex, &e.BarTime, &e.Kind, &e.Layer, &e.Transition,
			&e.Level, &e.Key, &e.Schema, &payload); err != nil {
			return nil, dbError("failed to scan event", err)
		}
		e.Seq = uint64(seq)
		e.Payload = []byte(payload)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating events", err)
	}
	return out, nil
}
