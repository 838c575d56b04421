package resample

import (
	"math"
	"time"

	"chartstream/internal/displaytime"
	"chartstream/internal/model"
)

// timeBarResampler aggregates raw ticks into fixed-duration bars. Bucket
// boundaries are floored on the epoch second, then stamped display-local;
// a tick landing past the current bucket finalizes it and opens the next
// bar from that tick.
type timeBarResampler struct {
	intervalSecs float64
	loc          *time.Location

	current *model.Bar
}

func newTimeBarResampler(secs float64, loc *time.Location) *timeBarResampler {
	return &timeBarResampler{intervalSecs: secs, loc: loc}
}

func (r *timeBarResampler) Add(t model.Tick) *model.Bar {
	boundary := t.Timestamp - math.Mod(t.Timestamp, r.intervalSecs)
	barStart := displaytime.FakeUTCSecond(time.Unix(int64(boundary), 0), r.loc)

	switch {
	case r.current == nil:
		r.current = newBar(t, barStart)
		return nil
	case barStart > r.current.UnixTimestamp:
		completed := r.current
		r.current = newBar(t, barStart)
		return completed
	default:
		if t.Price > r.current.High {
			r.current.High = t.Price
		}
		if t.Price < r.current.Low {
			r.current.Low = t.Price
		}
		r.current.Close = t.Price
		r.current.Volume += t.Volume
		return nil
	}
}

func (r *timeBarResampler) Current() *model.Bar {
	if r.current == nil {
		return nil
	}
	cp := *r.current
	return &cp
}

func newBar(t model.Tick, ts float64) *model.Bar {
	return &model.Bar{
		Open:          t.Price,
		High:          t.Price,
		Low:           t.Price,
		Close:         t.Price,
		Volume:        t.Volume,
		UnixTimestamp: ts,
	}
}
