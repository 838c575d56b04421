package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"chartstream/internal/heikinashi"
	"chartstream/internal/metrics"
	"chartstream/internal/model"
	"chartstream/internal/resample"
	"chartstream/internal/tickcache"
)

// Manager owns the subscription groups and the connection lifecycle:
// accept, backfill, promote to live, detach, and periodic teardown of
// empty groups.
type Manager struct {
	cache *tickcache.Client
	met   *metrics.Metrics
	sweep time.Duration

	mu      sync.Mutex
	groups  map[string]*Group
	baseCtx context.Context
}

func NewManager(cache *tickcache.Client, met *metrics.Metrics, sweep time.Duration) *Manager {
	return &Manager{
		cache:   cache,
		met:     met,
		sweep:   sweep,
		groups:  make(map[string]*Group),
		baseCtx: context.Background(),
	}
}

// Run drives the sweeper until ctx is cancelled, then tears every
// group down. Group listeners are children of ctx.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()

	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdownAll()
			return
		case <-ticker.C:
			m.sweepEmptyGroups()
		}
	}
}

// Attach runs the backfill-then-live handshake for a new client. The
// group's live resamplers are never touched during backfill; a fresh
// resampler folds the cached ticks so the live state cannot be
// corrupted by a replay. Returns false when the client went away
// before it could be promoted to the live set.
func (m *Manager) Attach(ctx context.Context, c *Client) (bool, error) {
	g := m.ensureGroup(c.instrument)
	g.ensureResampler(c.key(), c.interval, c.loc)

	if c.closed.Load() {
		log.Printf("[stream] client %s disconnected before backfill for %s", c.id, c.instrument)
		return false, nil
	}

	if err := m.sendBackfill(ctx, c); err != nil {
		return false, err
	}

	if c.closed.Load() {
		log.Printf("[stream] client %s disconnected during backfill for %s", c.id, c.instrument)
		return false, nil
	}

	if !m.promote(g, c) {
		log.Printf("[stream] client %s disconnected while going live on %s", c.id, c.instrument)
		return false, nil
	}
	log.Printf("[stream] client %s live on %s/%s/%s", c.id, c.instrument, c.interval, c.timezone)
	return true, nil
}

// promote moves a client into its group's live set. The read pump can
// observe a disconnect between the last liveness check and addClient,
// in which case its Detach found nothing to remove; the re-check here
// undoes the insertion so a dead client cannot pin the group open.
func (m *Manager) promote(g *Group, c *Client) bool {
	g.addClient(c)
	c.live.Store(true)
	m.met.ActiveClients.Inc()
	if c.closed.Load() {
		m.Detach(c)
		return false
	}
	return true
}

// Detach removes a client from its group. Safe to call for clients
// that never made it past backfill.
func (m *Manager) Detach(c *Client) {
	m.mu.Lock()
	g := m.groups[c.instrument]
	m.mu.Unlock()

	if g != nil && g.removeClient(c) {
		m.met.ActiveClients.Dec()
	}
}

// Counts reports live groups and clients for the health endpoint.
func (m *Manager) Counts() (groups, clients int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		clients += g.clientCount()
	}
	return len(m.groups), clients
}

// ensureGroup returns the instrument's group, creating it and starting
// its upstream subscription on first use.
func (m *Manager) ensureGroup(instrument string) *Group {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.groups[instrument]; ok {
		return g
	}

	channel := tickcache.ChannelKey(instrument)
	pubsub := m.cache.Subscribe(m.baseCtx, instrument)
	g := newGroup(instrument, channel, pubsub, m.met)

	gctx, cancel := context.WithCancel(m.baseCtx)
	g.cancel = cancel
	go g.run(gctx)

	m.groups[instrument] = g
	m.met.ActiveGroups.Inc()
	log.Printf("[stream] created subscription group for %s", instrument)
	return g
}

// sendBackfill replays the intraday tick cache through a fresh
// resampler and sends the resulting bar array as one frame. An empty
// cache still produces an empty array so the client can finish its
// handshake.
func (m *Manager) sendBackfill(ctx context.Context, c *Client) error {
	start := time.Now()

	ticks, err := m.cache.IntradayTicks(ctx, c.instrument)
	if err != nil {
		return fmt.Errorf("backfill read for %s: %w", c.instrument, err)
	}

	bars, partial, err := resample.FoldTicks(ctx, ticks, c.interval, c.loc)
	if err != nil {
		return fmt.Errorf("backfill fold for %s: %w", c.instrument, err)
	}

	var payload []byte
	if c.heikin {
		payload, err = seedHeikinAshi(c, bars, partial)
	} else {
		if bars == nil {
			bars = []model.Bar{}
		}
		payload, err = json.Marshal(bars)
	}
	if err != nil {
		return fmt.Errorf("backfill encode for %s: %w", c.instrument, err)
	}

	if c.closed.Load() {
		return nil
	}
	c.enqueue(payload)
	m.met.BackfillDuration.Observe(time.Since(start).Seconds())
	log.Printf("[stream] sent %d backfilled bars to client %s for %s/%s", len(bars), c.id, c.instrument, c.interval)
	return nil
}

// seedHeikinAshi converts the backfill series and leaves the client's
// recurrence state exactly where the live stream will pick it up: the
// trailing partial bar, if any, is previewed rather than applied.
func seedHeikinAshi(c *Client, bars []model.Bar, partial bool) ([]byte, error) {
	t := heikinashi.New()
	out := make([]model.HeikinAshiBar, 0, len(bars))
	for i, b := range bars {
		if partial && i == len(bars)-1 {
			out = append(out, t.Preview(b))
		} else {
			out = append(out, t.Apply(b))
		}
	}
	c.ha = t
	return json.Marshal(out)
}

func (m *Manager) sweepEmptyGroups() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for instrument, g := range m.groups {
		if g.reapable(now, m.sweep) {
			g.shutdown()
			delete(m.groups, instrument)
			m.met.ActiveGroups.Dec()
			log.Printf("[stream] cleaned up unused subscription group for %s", instrument)
		}
	}
}

func (m *Manager) shutdownAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for instrument, g := range m.groups {
		g.shutdown()
		delete(m.groups, instrument)
	}
	m.met.ActiveGroups.Set(0)
}
