package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"chartstream/internal/metrics"
	"chartstream/internal/model"
	"chartstream/internal/resample"
)

// barUpdate is the per-tick frame for regular-candle clients. A nil
// completed_bar means the tick extended the current bar without
// closing one.
type barUpdate struct {
	CompletedBar *model.Bar `json:"completed_bar"`
	CurrentBar   *model.Bar `json:"current_bar"`
}

// haUpdate is the per-tick frame for Heikin-Ashi clients.
type haUpdate struct {
	CompletedBar *model.HeikinAshiBar `json:"completed_bar"`
	CurrentBar   *model.HeikinAshiBar `json:"current_bar"`
}

// Group multiplexes one instrument's live tick channel to every client
// watching that instrument. Each distinct (interval, timezone) view
// gets exactly one resampler regardless of how many clients share it.
type Group struct {
	instrument string
	channel    string

	mu         sync.Mutex
	clients    map[*Client]bool
	resamplers map[viewKey]resample.Resampler
	emptySince time.Time

	pubsub *redis.PubSub
	cancel context.CancelFunc
	met    *metrics.Metrics
}

func newGroup(instrument, channel string, pubsub *redis.PubSub, met *metrics.Metrics) *Group {
	return &Group{
		instrument: instrument,
		channel:    channel,
		clients:    make(map[*Client]bool),
		resamplers: make(map[viewKey]resample.Resampler),
		pubsub:     pubsub,
		met:        met,
	}
}

// ensureResampler creates the shared resampler for a view if it does
// not exist yet.
func (g *Group) ensureResampler(key viewKey, iv model.Interval, loc *time.Location) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.resamplers[key]; !ok {
		g.resamplers[key] = resample.New(iv, loc)
		log.Printf("[stream] created resampler for %s key=%s/%s", g.instrument, key.Interval, key.Timezone)
	}
}

func (g *Group) addClient(c *Client) {
	g.mu.Lock()
	g.clients[c] = true
	g.emptySince = time.Time{}
	g.mu.Unlock()
}

// removeClient reports whether the client was in the live set.
func (g *Group) removeClient(c *Client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.clients[c] {
		return false
	}
	delete(g.clients, c)
	return true
}

func (g *Group) clientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// reapable reports whether the group has been empty for a full grace
// period. The first empty observation only starts the clock, so a
// group whose sole client is still mid-backfill survives the sweep.
func (g *Group) reapable(now time.Time, grace time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.clients) > 0 {
		g.emptySince = time.Time{}
		return false
	}
	if g.emptySince.IsZero() {
		g.emptySince = now
		return false
	}
	return now.Sub(g.emptySince) >= grace
}

// run consumes the instrument's tick channel until the group is torn
// down. Malformed ticks are dropped; the loop never stops for them.
func (g *Group) run(ctx context.Context) {
	log.Printf("[stream] listener started for %s", g.channel)
	defer log.Printf("[stream] listener stopped for %s", g.channel)

	ch := g.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			tick, err := model.ParseTick([]byte(msg.Payload))
			if err != nil {
				log.Printf("[stream] %s: dropping malformed tick: %v", g.instrument, err)
				continue
			}
			g.handleTick(tick)
		}
	}
}

// handleTick advances every view's resampler once and fans the results
// out to the clients watching each view.
func (g *Group) handleTick(t model.Tick) {
	g.met.TicksProcessed.WithLabelValues(g.instrument).Inc()

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.clients) == 0 {
		return
	}

	type viewUpdate struct {
		completed *model.Bar
		current   *model.Bar
		encoded   []byte
	}
	updates := make(map[viewKey]viewUpdate, len(g.resamplers))

	for key, r := range g.resamplers {
		completed := r.Add(t)
		current := r.Current()
		if completed != nil {
			g.met.BarsCompleted.WithLabelValues(key.Interval).Inc()
		}
		encoded, err := json.Marshal(barUpdate{CompletedBar: completed, CurrentBar: current})
		if err != nil {
			log.Printf("[stream] %s: encoding update for %s/%s: %v", g.instrument, key.Interval, key.Timezone, err)
			continue
		}
		updates[key] = viewUpdate{completed: completed, current: current, encoded: encoded}
	}

	for c := range g.clients {
		u, ok := updates[c.key()]
		if !ok {
			continue
		}
		if !c.heikin {
			c.enqueue(u.encoded)
			continue
		}

		// Heikin-Ashi framing is per client: the recurrence state
		// advances only when a bar completes, and the forming bar is
		// a preview against the pending state.
		var frame haUpdate
		if u.completed != nil {
			ha := c.ha.Apply(*u.completed)
			frame.CompletedBar = &ha
		}
		if u.current != nil {
			ha := c.ha.Preview(*u.current)
			frame.CurrentBar = &ha
		}
		encoded, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		c.enqueue(encoded)
	}
}

// shutdown tears down the upstream subscription and listener.
func (g *Group) shutdown() {
	if g.cancel != nil {
		g.cancel()
	}
	if g.pubsub == nil {
		return
	}
	if err := g.pubsub.Close(); err != nil {
		log.Printf("[stream] closing subscription for %s: %v", g.channel, err)
	}
}
