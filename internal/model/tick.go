package model

import (
	"encoding/json"
	"fmt"
)

// Tick represents a single trade print published on the tick bus.
// Timestamp is seconds since epoch with microsecond precision, as
// produced by the ingestion pipeline.
type Tick struct {
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	Timestamp float64 `json:"timestamp"`
}

// ParseTick decodes a JSON tick from the bus or the intraday cache.
// A payload missing any of price, volume or timestamp is rejected so
// that resamplers never see partial ticks.
func ParseTick(data []byte) (Tick, error) {
	var raw struct {
		Price     *float64 `json:"price"`
		Volume    *float64 `json:"volume"`
		Timestamp *float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Tick{}, fmt.Errorf("decode tick: %w", err)
	}
	if raw.Price == nil || raw.Volume == nil || raw.Timestamp == nil {
		return Tick{}, fmt.Errorf("malformed tick: missing price, volume or timestamp")
	}
	return Tick{
		Price:     *raw.Price,
		Volume:    int64(*raw.Volume),
		Timestamp: *raw.Timestamp,
	}, nil
}

// JSON returns the JSON-encoded tick (ignoring errors for hot-path usage).
func (t *Tick) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
