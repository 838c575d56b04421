package resample

import (
	"time"

	"chartstream/internal/displaytime"
	"chartstream/internal/model"
)

const timestampNudge = 1e-6 // 1µs, keeps completed-bar timestamps strictly increasing

// tickBarResampler aggregates raw ticks into bars of a fixed tick count.
// The first tick of a bar fixes its timestamp; subsequent ticks only fold
// into OHLCV.
type tickBarResampler struct {
	ticksPerBar int
	loc         *time.Location

	current          *model.Bar
	tickCount        int
	lastCompletedTS  float64
	haveLastComplete bool
}

func newTickBarResampler(n int, loc *time.Location) *tickBarResampler {
	return &tickBarResampler{ticksPerBar: n, loc: loc}
}

func (r *tickBarResampler) Add(t model.Tick) *model.Bar {
	ts := displaytime.FakeUTC(displaytime.FromEpoch(t.Timestamp), r.loc)
	if r.haveLastComplete && ts <= r.lastCompletedTS {
		ts = r.lastCompletedTS + timestampNudge
	}

	if r.current == nil {
		r.current = &model.Bar{
			Open:          t.Price,
			High:          t.Price,
			Low:           t.Price,
			Close:         t.Price,
			Volume:        0,
			UnixTimestamp: ts,
		}
	}

	if t.Price > r.current.High {
		r.current.High = t.Price
	}
	if t.Price < r.current.Low {
		r.current.Low = t.Price
	}
	r.current.Close = t.Price
	r.current.Volume += t.Volume
	r.tickCount++

	if r.tickCount >= r.ticksPerBar {
		completed := r.current
		r.lastCompletedTS = completed.UnixTimestamp
		r.haveLastComplete = true
		r.current = nil
		r.tickCount = 0
		return completed
	}
	return nil
}

func (r *tickBarResampler) Current() *model.Bar {
	if r.current == nil {
		return nil
	}
	cp := *r.current
	return &cp
}
