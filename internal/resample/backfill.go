package resample

import (
	"context"
	"runtime"
	"time"

	"chartstream/internal/model"
)

// backfillChunkSize is how many ticks are folded between cooperative
// yields when replaying a large intraday cache.
const backfillChunkSize = 25000

// FoldTicks replays a tick slice through a fresh resampler and returns
// the resulting bar series oldest-to-newest. If a non-empty partial bar
// remains after the last tick it is appended and partial reports true.
//
// Large caches are folded in chunks with a scheduler yield between
// chunks so concurrent connection work keeps progressing. Returns
// ctx.Err() if cancelled between chunks.
func FoldTicks(ctx context.Context, ticks []model.Tick, iv model.Interval, loc *time.Location) (bars []model.Bar, partial bool, err error) {
	if len(ticks) == 0 {
		return nil, false, nil
	}

	r := New(iv, loc)
	for i := 0; i < len(ticks); i += backfillChunkSize {
		end := i + backfillChunkSize
		if end > len(ticks) {
			end = len(ticks)
		}
		for _, t := range ticks[i:end] {
			if completed := r.Add(t); completed != nil {
				bars = append(bars, *completed)
			}
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		default:
			runtime.Gosched()
		}
	}

	if cur := r.Current(); cur != nil {
		bars = append(bars, *cur)
		partial = true
	}
	return bars, partial, nil
}
