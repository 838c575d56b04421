// Package displaytime implements the display-local ("fake UTC") timestamp
// convention shared by the historical and live paths: take the UTC instant,
// convert to wall clock in the display timezone, then reinterpret those
// wall-clock fields as if they were UTC. Charting frontends treat the
// resulting number as UTC and render the user's local wall time without a
// second conversion. Both paths MUST produce the identical number for the
// identical instant, so this package is the only implementation.
package displaytime

import (
	"log"
	"math"
	"time"
)

// Load resolves an IANA timezone name, falling back to UTC with a warning
// on anything unknown. Unknown timezones are never a reason to reject a
// client.
func Load(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("[displaytime] timezone %q not found, defaulting to UTC", name)
		return time.UTC
	}
	return loc
}

// FakeUTC converts an instant to display-local epoch seconds with
// microsecond precision.
func FakeUTC(t time.Time, loc *time.Location) float64 {
	lt := t.In(loc)
	y, m, d := lt.Date()
	hh, mm, ss := lt.Clock()
	fake := time.Date(y, m, d, hh, mm, ss, lt.Nanosecond(), time.UTC)
	return float64(fake.UnixMicro()) / 1e6
}

// FakeUTCSecond is FakeUTC truncated to whole seconds. Time-based bar
// boundaries carry no sub-second component.
func FakeUTCSecond(t time.Time, loc *time.Location) float64 {
	lt := t.In(loc)
	y, m, d := lt.Date()
	hh, mm, ss := lt.Clock()
	fake := time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
	return float64(fake.Unix())
}

// FromEpoch converts float epoch seconds to a UTC time.Time, preserving
// microsecond precision.
func FromEpoch(epoch float64) time.Time {
	sec, frac := math.Modf(epoch)
	// Round the fractional part to whole microseconds to avoid float noise.
	usec := math.Round(frac * 1e6)
	return time.Unix(int64(sec), int64(usec)*1e3).UTC()
}
