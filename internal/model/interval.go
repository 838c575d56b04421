package model

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// IntervalKind distinguishes the two bar-closing rules.
type IntervalKind int

const (
	// TimeInterval closes bars on wall-clock boundary alignment.
	TimeInterval IntervalKind = iota
	// TickInterval closes bars after a fixed number of ticks.
	TickInterval
)

// Interval is the rule for closing a bar: either a wall-clock duration
// or a count of ticks.
type Interval struct {
	Kind     IntervalKind
	Duration time.Duration // set for TimeInterval
	Ticks    int           // set for TickInterval
	raw      string
}

// timeIntervals is the set of supported time-based interval strings.
var timeIntervals = map[string]time.Duration{
	"1s":  time.Second,
	"5s":  5 * time.Second,
	"10s": 10 * time.Second,
	"15s": 15 * time.Second,
	"30s": 30 * time.Second,
	"45s": 45 * time.Second,
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"10m": 10 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"45m": 45 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
}

const fallbackTicksPerBar = 1000

// ParseInterval parses an interval string such as "5m" or "100tick".
//
// An unparsable tick count (e.g. "abctick") falls back to 1000 ticks per
// bar with a warning rather than failing; deployed clients depend on
// that behavior. Unknown time-based intervals are an error.
func ParseInterval(s string) (Interval, error) {
	if strings.HasSuffix(s, "tick") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "tick"))
		if err != nil || n <= 0 {
			log.Printf("[interval] invalid tick interval %q, defaulting to %dtick", s, fallbackTicksPerBar)
			n = fallbackTicksPerBar
		}
		return Interval{Kind: TickInterval, Ticks: n, raw: s}, nil
	}
	d, ok := timeIntervals[s]
	if !ok {
		return Interval{}, fmt.Errorf("unknown interval %q", s)
	}
	return Interval{Kind: TimeInterval, Duration: d, raw: s}, nil
}

// Seconds returns the bar duration in seconds for time intervals.
func (iv Interval) Seconds() float64 {
	return iv.Duration.Seconds()
}

// String returns the original interval spelling.
func (iv Interval) String() string {
	if iv.raw != "" {
		return iv.raw
	}
	if iv.Kind == TickInterval {
		return strconv.Itoa(iv.Ticks) + "tick"
	}
	return iv.Duration.String()
}

// HighFrequency reports whether the interval uses the day-by-day
// historical fetch strategy: second-based or tick-count intervals.
func HighFrequency(interval string) bool {
	return strings.HasSuffix(interval, "s") || strings.HasSuffix(interval, "tick")
}

// ValidInterval reports whether s names a supported interval.
// Tick intervals are validated against the advertised counts; the
// parse-time fallback still applies for legacy clients that send
// other spellings.
func ValidInterval(s string) bool {
	if _, ok := timeIntervals[s]; ok {
		return true
	}
	switch s {
	case "1tick", "10tick", "100tick", "1000tick":
		return true
	}
	return false
}
