package history

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"chartstream/internal/model"
)

// Cursor is the opaque pagination token handed back as request_id. It
// carries the original query window so every chunk stays inside it,
// plus the end bound for the next (older) chunk. Heikin-Ashi
// pagination also carries the last converted candle so the recurrence
// continues seamlessly across pages.
type Cursor struct {
	OriginalStart string `json:"original_start_iso"`
	OriginalEnd   string `json:"original_end_iso"`
	NextStart     string `json:"next_start_iso"`
	Token         string `json:"token"`
	Interval      string `json:"interval"`
	Timezone      string `json:"timezone"`
	LastHACandle  string `json:"last_ha_candle,omitempty"`
}

// NewCursor builds an encoded cursor, or "" when there is no more data
// to page through.
func NewCursor(originalStart, originalEnd time.Time, nextStart *time.Time, instrument, interval, timezone string, seed *model.HeikinAshiBar) (string, error) {
	if nextStart == nil {
		return "", nil
	}
	c := Cursor{
		OriginalStart: originalStart.UTC().Format(time.RFC3339Nano),
		OriginalEnd:   originalEnd.UTC().Format(time.RFC3339Nano),
		NextStart:     nextStart.UTC().Format(time.RFC3339Nano),
		Token:         instrument,
		Interval:      interval,
		Timezone:      timezone,
	}
	if seed != nil {
		raw, err := json.Marshal(seed)
		if err != nil {
			return "", fmt.Errorf("encoding cursor seed: %w", err)
		}
		c.LastHACandle = string(raw)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// DecodeCursor parses an encoded cursor.
func DecodeCursor(encoded string) (*Cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	return &c, nil
}

// Window returns the original query start and the end bound for this
// chunk.
func (c *Cursor) Window() (start, end time.Time, err error) {
	start, err = time.Parse(time.RFC3339Nano, c.OriginalStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid cursor start: %w", err)
	}
	end, err = time.Parse(time.RFC3339Nano, c.NextStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid cursor next start: %w", err)
	}
	return start, end, nil
}

// HASeed returns the carried Heikin-Ashi recurrence seed, or nil when
// this cursor belongs to a regular-candle pagination.
func (c *Cursor) HASeed() (*model.HeikinAshiBar, error) {
	if c.LastHACandle == "" {
		return nil, nil
	}
	var seed model.HeikinAshiBar
	if err := json.Unmarshal([]byte(c.LastHACandle), &seed); err != nil {
		return nil, fmt.Errorf("invalid cursor seed: %w", err)
	}
	return &seed, nil
}
