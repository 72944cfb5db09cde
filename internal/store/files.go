package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/parquet-go/parquet-go"

	apperrors "chanlun/internal/errors"
	"chanlun/internal/models"
)

// csvBar is the CSV row layout. Timestamps are RFC 3339 or unix seconds.
type csvBar struct {
	Timestamp string  `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    int64   `csv:"volume"`
}

// parquetBar matches the columnar layout written by bar crawlers: t is unix
// milliseconds.
type parquetBar struct {
	Timestamp int64   `parquet:"t"`
	Open      float64 `parquet:"o"`
	High      float64 `parquet:"h"`
	Low       float64 `parquet:"l"`
	Close     float64 `parquet:"c"`
	Volume    int64   `parquet:"v"`
}

// ReadBarsCSV decodes bars from CSV with a header row.
func ReadBarsCSV(r io.Reader) ([]models.Bar, error) {
	var rows []*csvBar
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("decoding csv: %w", err)
	}

	bars := make([]models.Bar, 0, len(rows))
	for i, row := range rows {
		ts, err := ParseTimestamp(row.Timestamp)
		if err != nil {
			return nil, apperrors.NewBarError(i, "timestamp", err.Error(), apperrors.ErrInvalidBar)
		}
		bars = append(bars, models.Bar{
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}
	return bars, nil
}

// WriteBarsCSV encodes bars as CSV with RFC 3339 timestamps.
func WriteBarsCSV(w io.Writer, bars []models.Bar) error {
	rows := make([]*csvBar, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, &csvBar{
			Timestamp: b.Timestamp.UTC().Format(time.RFC3339),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return gocsv.Marshal(rows, w)
}

// ParseTimestamp accepts unix seconds, RFC3339, "2006-01-02 15:04:05" or a
// bare date, all read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ReadBarsParquet loads bars from a parquet file.
func ReadBarsParquet(path string) ([]models.Bar, error) {
	rows, err := parquet.ReadFile[parquetBar](path)
	if err != nil {
		return nil, fmt.Errorf("reading parquet %s: %w", path, err)
	}
	bars := make([]models.Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, models.Bar{
			Timestamp: time.UnixMilli(row.Timestamp).UTC(),
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}
	return bars, nil
}

// WriteBarsParquet stores bars as a parquet file.
func WriteBarsParquet(path string, bars []models.Bar) error {
	rows := make([]parquetBar, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, parquetBar{
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return parquet.WriteFile(path, rows)
}

// LoadBars reads a .csv or .parquet file, choosing the codec by extension.
func LoadBars(path string) ([]models.Bar, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return ReadBarsParquet(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, apperrors.NewDataError("bars", path, "cannot open file", err)
		}
		defer f.Close()
		return ReadBarsCSV(f)
	}
	return nil, apperrors.NewDataError("bars", path, "unsupported file type", apperrors.ErrUnsupportedMode)
}

// SaveBarsFile writes bars to a .csv or .parquet file.
func SaveBarsFile(path string, bars []models.Bar) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return WriteBarsParquet(path, bars)
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return apperrors.NewDataError("bars", path, "cannot create file", err)
		}
		if err := WriteBarsCSV(f, bars); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return apperrors.NewDataError("bars", path, "unsupported file type", apperrors.ErrUnsupportedMode)
}
