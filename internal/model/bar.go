package model

import "encoding/json"

// Bar represents an OHLCV candle for a single instrument view.
// UnixTimestamp is the bar's start in display-local ("fake UTC") seconds:
// the wall-clock time in the view's timezone reinterpreted as if it were
// UTC, so charting frontends can render it without a second conversion.
type Bar struct {
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        int64   `json:"volume"`
	UnixTimestamp float64 `json:"unix_timestamp"`
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// HeikinAshiBar is a Heikin-Ashi candle. The regular open/close of the
// source bar ride along so frontends can show both series.
type HeikinAshiBar struct {
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        int64   `json:"volume"`
	UnixTimestamp float64 `json:"unix_timestamp"`
	RegularOpen   float64 `json:"regular_open"`
	RegularClose  float64 `json:"regular_close"`
}
