// Package tickcache reads the intraday tick cache and live tick
// channels backing each instrument in Redis.
package tickcache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"chartstream/internal/model"
)

// readTimeout bounds the full-list read of an intraday cache. Large
// caches run to millions of entries, so this is generous.
const readTimeout = 60 * time.Second

// CacheKey is the Redis list holding the day's ticks for an instrument,
// oldest first.
func CacheKey(instrument string) string {
	return fmt.Sprintf("intraday_ticks:%s", instrument)
}

// ChannelKey is the pub/sub channel carrying live ticks for an
// instrument.
func ChannelKey(instrument string) string {
	return fmt.Sprintf("live_ticks:%s", instrument)
}

// Client wraps the Redis connection used for tick reads and
// subscriptions.
type Client struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// IntradayTicks returns every cached tick for the instrument in cache
// order. Entries that fail to parse are dropped with a warning rather
// than aborting the read.
func (c *Client) IntradayTicks(ctx context.Context, instrument string) ([]model.Tick, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	raw, err := c.rdb.LRange(ctx, CacheKey(instrument), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading intraday cache for %s: %w", instrument, err)
	}

	ticks := make([]model.Tick, 0, len(raw))
	dropped := 0
	for _, entry := range raw {
		t, err := model.ParseTick([]byte(entry))
		if err != nil {
			dropped++
			continue
		}
		ticks = append(ticks, t)
	}
	if dropped > 0 {
		log.Printf("[tickcache] %s: dropped %d malformed cache entries", instrument, dropped)
	}
	return ticks, nil
}

// Subscribe opens a pub/sub subscription on the instrument's live tick
// channel. The caller owns the returned PubSub and must Close it.
func (c *Client) Subscribe(ctx context.Context, instrument string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, ChannelKey(instrument))
}

// Ping verifies connectivity for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
