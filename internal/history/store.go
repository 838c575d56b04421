// Package history serves historical OHLC candles from SQLite. Candles
// are written into per-day measurements named
// ohlc_{instrument}_{YYYYMMDD}_{interval}, with days taken in
// America/New_York, and fetched either in one range query or day by
// day depending on the interval frequency.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chartstream/internal/displaytime"
	"chartstream/internal/model"
)

// Candle is one historical bar. UnixTimestamp is the display-local
// (fake UTC) epoch used by charts; Timestamp is the real UTC instant
// and stays out of JSON responses.
type Candle struct {
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        int64     `json:"volume"`
	UnixTimestamp float64   `json:"unix_timestamp"`
	Timestamp     time.Time `json:"-"`
}

// Bar converts to the streaming bar shape.
func (c Candle) Bar() model.Bar {
	return model.Bar{
		Open:          c.Open,
		High:          c.High,
		Low:           c.Low,
		Close:         c.Close,
		Volume:        c.Volume,
		UnixTimestamp: c.UnixTimestamp,
	}
}

// Page is one fetch result. NextStart, when set, is the upper bound
// for the next (older) page: one microsecond before the oldest candle
// returned.
type Page struct {
	Candles   []Candle
	NextStart *time.Time
}

// Partial reports whether more data remains before this page.
func (p Page) Partial() bool { return p.NextStart != nil }

// Measurement days are always taken in the exchange zone, regardless
// of the display timezone a client asks for.
var eastern = displaytime.Load("America/New_York")

// Measurement returns the per-day measurement name an instant falls
// into.
func Measurement(instrument string, ts time.Time, interval string) string {
	return fmt.Sprintf("ohlc_%s_%s_%s", instrument, ts.In(eastern).Format("20060102"), interval)
}

// Store provides read access to the candle database.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database in WAL mode and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[history] opened database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ohlc (
			measurement TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			ts          INTEGER NOT NULL,
			open        REAL    NOT NULL,
			high        REAL    NOT NULL,
			low         REAL    NOT NULL,
			close       REAL    NOT NULL,
			volume      INTEGER NOT NULL,
			PRIMARY KEY (measurement, ts)
		);

		CREATE INDEX IF NOT EXISTS idx_ohlc_symbol_ts ON ohlc (symbol, ts);
	`)
	return err
}

// DB returns the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Insert writes one candle into its per-day measurement. Used by the
// feed side and by tests; replaces on conflict so replays are
// idempotent.
func (s *Store) Insert(ctx context.Context, instrument, interval string, ts time.Time, open, high, low, close float64, volume int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO ohlc (measurement, symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, Measurement(instrument, ts, interval), instrument, ts.UTC().UnixMicro(), open, high, low, close, volume)
	if err != nil {
		return fmt.Errorf("sqlite insert ohlc: %w", err)
	}
	return nil
}

// FetchRange returns up to limit candles in [start, end), ascending,
// converted to the display timezone. High-frequency intervals (second
// bars and tick bars) fetch day by day, newest first, so a single
// dense day cannot starve the range scan; everything else fetches the
// whole range at once.
func (s *Store) FetchRange(ctx context.Context, instrument, interval string, start, end time.Time, displayTZ *time.Location, limit int) (Page, error) {
	start, end = start.UTC(), end.UTC()
	if model.HighFrequency(interval) {
		return s.fetchDayByDay(ctx, instrument, interval, start, end, displayTZ, limit)
	}
	return s.fetchFullRange(ctx, instrument, interval, start, end, displayTZ, limit)
}

// measurementDays lists every exchange-zone calendar day the window
// touches, oldest first.
func measurementDays(start, end time.Time) []time.Time {
	startDay := start.In(eastern)
	startDay = time.Date(startDay.Year(), startDay.Month(), startDay.Day(), 0, 0, 0, 0, eastern)
	endDay := end.In(eastern)
	endDay = time.Date(endDay.Year(), endDay.Month(), endDay.Day(), 0, 0, 0, 0, eastern)

	var days []time.Time
	for d := startDay; !d.After(endDay); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (s *Store) fetchFullRange(ctx context.Context, instrument, interval string, start, end time.Time, displayTZ *time.Location, limit int) (Page, error) {
	days := measurementDays(start, end)
	if len(days) == 0 {
		return Page{}, nil
	}

	query := `
		SELECT ts, open, high, low, close, volume FROM ohlc
		WHERE symbol = ? AND ts >= ? AND ts < ? AND measurement IN (`
	args := []any{instrument, start.UnixMicro(), end.UnixMicro()}
	for i, day := range days {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, Measurement(instrument, day, interval))
	}
	query += `) ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	candles, err := s.queryCandles(ctx, query, args, displayTZ)
	if err != nil {
		return Page{}, err
	}
	return pageOf(candles, start, limit), nil
}

func (s *Store) fetchDayByDay(ctx context.Context, instrument, interval string, start, end time.Time, displayTZ *time.Location, limit int) (Page, error) {
	days := measurementDays(start, end)

	var all []Candle
	for i := len(days) - 1; i >= 0; i-- {
		remaining := limit - len(all)
		if remaining <= 0 {
			break
		}
		candles, err := s.queryCandles(ctx, `
			SELECT ts, open, high, low, close, volume FROM ohlc
			WHERE measurement = ? AND symbol = ? AND ts >= ? AND ts < ?
			ORDER BY ts DESC LIMIT ?
		`, []any{Measurement(instrument, days[i], interval), instrument, start.UnixMicro(), end.UnixMicro(), remaining}, displayTZ)
		if err != nil {
			return Page{}, err
		}
		all = append(all, candles...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return pageOf(all, start, limit), nil
}

// queryCandles runs a query producing (ts, o, h, l, c, v) rows in
// descending time order and returns them ascending with fake-UTC
// display timestamps.
func (s *Store) queryCandles(ctx context.Context, query string, args []any, displayTZ *time.Location) ([]Candle, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query ohlc: %w", err)
	}
	defer rows.Close()

	var candles []Candle
	for rows.Next() {
		var c Candle
		var tsMicro int64
		if err := rows.Scan(&tsMicro, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan ohlc: %w", err)
		}
		c.Timestamp = time.UnixMicro(tsMicro).UTC()
		c.UnixTimestamp = displaytime.FakeUTC(c.Timestamp, displayTZ)
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows arrive newest first; responses are oldest first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// pageOf attaches the continuation bound: when a full page came back
// and older data may remain, the next page ends one microsecond before
// the oldest candle returned.
func pageOf(candles []Candle, windowStart time.Time, limit int) Page {
	p := Page{Candles: candles}
	if len(candles) > 0 && len(candles) >= limit && candles[0].Timestamp.After(windowStart) {
		next := candles[0].Timestamp.Add(-time.Microsecond)
		p.NextStart = &next
	}
	return p
}
