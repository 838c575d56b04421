package livereg

import (
	"context"
	"sort"
	"sync"
	"time"

	"chartstream/internal/model"
	"chartstream/internal/resample"
)

// liveTrimSlack is how many candles beyond the largest possible
// regression window the live vector retains.
const liveTrimSlack = 100

// Context carries the data backing the regressions for one
// (instrument, timeframe) pair. Both candle vectors are kept newest
// first. The resampler is the context's own and only ever consumes
// live ticks; the historical vector never changes after load.
type Context struct {
	instrument string
	timeframe  string
	timezone   string
	loc        *time.Location
	length     int
	lookbacks  []int

	mu         sync.Mutex
	historical []model.Bar
	live       []model.Bar
	resampler  resample.Resampler
	lastCalc   time.Time

	cancel context.CancelFunc
}

func (c *Context) key() string {
	return c.instrument + ":" + c.timeframe
}

func (c *Context) maxLookback() int {
	m := 0
	for _, l := range c.lookbacks {
		if l > m {
			m = l
		}
	}
	return m
}

// addTick feeds one live tick to the context's resampler. A completed
// bar is prepended to the live vector, which is then trimmed to the
// largest window any configured regression can need plus slack.
// Reports whether a bar completed.
func (c *Context) addTick(t model.Tick) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	completed := c.resampler.Add(t)
	if completed == nil {
		return false
	}

	c.live = append([]model.Bar{*completed}, c.live...)
	maxLive := c.length + c.maxLookback() + liveTrimSlack
	if len(c.live) > maxLive {
		c.live = c.live[:maxLive]
	}
	return true
}

// compose merges live and historical candles newest first. Historical
// candles at or after the oldest live candle are dropped so the two
// sources never overlap.
func (c *Context) compose() []model.Bar {
	all := make([]model.Bar, 0, len(c.live)+len(c.historical))
	all = append(all, c.live...)

	liveStart := 0.0
	if len(c.live) > 0 {
		liveStart = c.live[len(c.live)-1].UnixTimestamp
	}
	for _, b := range c.historical {
		if len(c.live) == 0 || b.UnixTimestamp < liveStart {
			all = append(all, b)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].UnixTimestamp > all[j].UnixTimestamp })
	return all
}
