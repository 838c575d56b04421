// Package resample folds raw tick streams into OHLCV bars.
//
// Two resampler variants sit behind one interface: tick-count bars close
// after a fixed number of ticks, time bars close on wall-clock boundary
// alignment. Both stamp bars with display-local ("fake UTC") timestamps
// and guarantee strictly increasing timestamps across completed bars.
package resample

import (
	"time"

	"chartstream/internal/model"
)

// Resampler incrementally folds ticks into bars for one (interval,
// timezone) view.
//
// Add returns the completed bar when the incoming tick closes one, nil
// otherwise. Current returns a copy of the in-progress bar, nil if no
// tick has been accepted since the last close.
type Resampler interface {
	Add(t model.Tick) *model.Bar
	Current() *model.Bar
}

// New constructs the resampler variant matching the interval kind.
func New(iv model.Interval, loc *time.Location) Resampler {
	if iv.Kind == model.TickInterval {
		return newTickBarResampler(iv.Ticks, loc)
	}
	return newTimeBarResampler(iv.Seconds(), loc)
}
