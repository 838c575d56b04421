// Package livereg maintains rolling linear regressions over live
// candle streams. Each (instrument, timeframe) pair gets one
// calculation context fed by a shared per-instrument tick
// subscription; results fan out to every client watching that pair.
package livereg

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"chartstream/internal/displaytime"
	"chartstream/internal/history"
	"chartstream/internal/metrics"
	"chartstream/internal/model"
	"chartstream/internal/regression"
	"chartstream/internal/resample"
	"chartstream/internal/tickcache"
)

// contextCandleLimit caps how many historical candles a context loads.
const contextCandleLimit = 1000

// highFrequencyDays limits the historical window for second and tick
// bars, which are far too dense to scan a full month of.
const highFrequencyDays = 7

type upstream struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// lookbackResult is one regression fit in a live_regression_update.
type lookbackResult struct {
	regression.Result
	Timestamp string `json:"timestamp"`
}

// Service owns the regression contexts, upstream tick subscriptions,
// and periodic calculation tasks.
type Service struct {
	cache       *tickcache.Client
	store       *history.Store
	met         *metrics.Metrics
	calcEvery   time.Duration
	historyDays int

	mu        sync.Mutex
	clients   map[*Client]bool
	contexts  map[string]*Context
	upstreams map[string]*upstream
	baseCtx   context.Context
}

func NewService(cache *tickcache.Client, store *history.Store, met *metrics.Metrics, calcEvery time.Duration, historyDays int) *Service {
	return &Service{
		cache:       cache,
		store:       store,
		met:         met,
		calcEvery:   calcEvery,
		historyDays: historyDays,
		clients:     make(map[*Client]bool),
		contexts:    make(map[string]*Context),
		upstreams:   make(map[string]*upstream),
		baseCtx:     context.Background(),
	}
}

// SetBaseContext sets the lifetime parent for upstream subscriptions
// and calculation tasks. Call before serving.
func (s *Service) SetBaseContext(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
}

// Counts reports active clients and contexts for the health endpoint.
func (s *Service) Counts() (clients, contexts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients), len(s.contexts)
}

// ContextKeys lists the active context keys for the status endpoint.
func (s *Service) ContextKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.contexts))
	for k := range s.contexts {
		keys = append(keys, k)
	}
	return keys
}

// AddSubscription initializes contexts for every timeframe the client
// asked for, sending initialization_progress frames as each stage
// runs, then computes and sends the first round of results.
func (s *Service) AddSubscription(ctx context.Context, c *Client) error {
	log.Printf("[livereg] new subscription for %s timeframes=%v L=%d lookbacks=%v",
		c.sub.Instrument, c.sub.Timeframes, c.sub.Length, c.sub.Lookbacks)

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	for _, tf := range c.sub.Timeframes {
		if err := s.ensureContext(ctx, c, tf); err != nil {
			return fmt.Errorf("initializing context %s:%s: %w", c.sub.Instrument, tf, err)
		}
	}

	s.ensureUpstream(c.sub.Instrument)

	// First results immediately, not a second later.
	for _, tf := range c.sub.Timeframes {
		s.calcAndBroadcast(c.sub.Instrument + ":" + tf)
	}
	return nil
}

// RemoveSubscription drops a client and tears down every context and
// upstream subscription no remaining client refers to.
func (s *Service) RemoveSubscription(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.clients[c] {
		return
	}
	delete(s.clients, c)
	log.Printf("[livereg] removing subscription for %s (%d timeframes)", c.sub.Instrument, len(c.sub.Timeframes))

	for _, tf := range c.sub.Timeframes {
		key := c.sub.Instrument + ":" + tf
		if s.hasWatcherLocked(c.sub.Instrument, tf) {
			continue
		}
		if cc, ok := s.contexts[key]; ok {
			cc.cancel()
			delete(s.contexts, key)
			s.met.ActiveContexts.Dec()
			log.Printf("[livereg] deleted calculation context %s", key)
		}
	}

	if !s.instrumentWatchedLocked(c.sub.Instrument) {
		if u, ok := s.upstreams[c.sub.Instrument]; ok {
			u.cancel()
			u.pubsub.Close()
			delete(s.upstreams, c.sub.Instrument)
			log.Printf("[livereg] unsubscribed from ticks for %s", c.sub.Instrument)
		}
	}
}

// Close tears down every task and subscription.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, cc := range s.contexts {
		cc.cancel()
		delete(s.contexts, key)
	}
	for instrument, u := range s.upstreams {
		u.cancel()
		u.pubsub.Close()
		delete(s.upstreams, instrument)
	}
	s.met.ActiveContexts.Set(0)
	log.Printf("[livereg] service closed")
}

func (s *Service) hasWatcherLocked(instrument, tf string) bool {
	for cl := range s.clients {
		if cl.sub.Instrument != instrument {
			continue
		}
		for _, t := range cl.sub.Timeframes {
			if t == tf {
				return true
			}
		}
	}
	return false
}

func (s *Service) instrumentWatchedLocked(instrument string) bool {
	for cl := range s.clients {
		if cl.sub.Instrument == instrument {
			return true
		}
	}
	return false
}

func (s *Service) progress(c *Client, tf, stage string) {
	c.SendJSON(map[string]any{
		"type":      "initialization_progress",
		"symbol":    c.sub.Instrument,
		"timeframe": tf,
		"stage":     stage,
		"timestamp": time.Now().Format(time.RFC3339Nano),
	})
}

// ensureContext builds and registers the context for one timeframe if
// it does not exist yet: historical load, live cache resample, then
// the periodic calculation task.
func (s *Service) ensureContext(ctx context.Context, c *Client, tf string) error {
	key := c.sub.Instrument + ":" + tf

	s.mu.Lock()
	if _, ok := s.contexts[key]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	iv, err := model.ParseInterval(tf)
	if err != nil {
		return err
	}
	loc := displaytime.Load(c.sub.Timezone)

	cc := &Context{
		instrument: c.sub.Instrument,
		timeframe:  tf,
		timezone:   c.sub.Timezone,
		loc:        loc,
		length:     c.sub.Length,
		lookbacks:  c.sub.Lookbacks,
		resampler:  resample.New(iv, loc),
	}

	s.progress(c, tf, "loading_historical_data")
	if err := s.loadHistorical(ctx, cc); err != nil {
		// A context with no history can still regress over live bars.
		log.Printf("[livereg] historical load failed for %s: %v", key, err)
	}

	s.progress(c, tf, "loading_live_data")
	if err := s.loadLive(ctx, cc, iv); err != nil {
		log.Printf("[livereg] live cache load failed for %s: %v", key, err)
	}

	s.progress(c, tf, "starting_calculations")

	s.mu.Lock()
	if _, ok := s.contexts[key]; ok {
		// Another client initialized the same context concurrently.
		s.mu.Unlock()
		return nil
	}
	if !s.hasWatcherLocked(cc.instrument, tf) {
		// Every client that wanted this context disconnected while the
		// loads ran; registering it now would leak the calculation task.
		s.mu.Unlock()
		log.Printf("[livereg] discarding context %s: no watchers left after init", key)
		return nil
	}
	taskCtx, cancel := context.WithCancel(s.baseCtx)
	cc.cancel = cancel
	s.contexts[key] = cc
	s.met.ActiveContexts.Inc()
	s.mu.Unlock()

	go s.calculationLoop(taskCtx, key)
	log.Printf("[livereg] context %s ready: %d historical, %d live candles", key, len(cc.historical), len(cc.live))
	return nil
}

// loadHistorical fills the context's historical vector, newest first.
// Second and tick bars only look at the newest few days; everything
// else scans the full configured window.
func (s *Service) loadHistorical(ctx context.Context, cc *Context) error {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -s.historyDays)
	if model.HighFrequency(cc.timeframe) {
		if hf := end.AddDate(0, 0, -highFrequencyDays); hf.After(start) {
			start = hf
		}
	}

	page, err := s.store.FetchRange(ctx, cc.instrument, cc.timeframe, start, end, cc.loc, contextCandleLimit)
	if err != nil {
		return err
	}

	bars := make([]model.Bar, 0, len(page.Candles))
	for i := len(page.Candles) - 1; i >= 0; i-- {
		bars = append(bars, page.Candles[i].Bar())
	}
	cc.historical = bars
	return nil
}

// loadLive replays the intraday tick cache through a throwaway
// resampler and stores the bars newest first. The context's own
// resampler stays untouched so its live state starts clean.
func (s *Service) loadLive(ctx context.Context, cc *Context, iv model.Interval) error {
	ticks, err := s.cache.IntradayTicks(ctx, cc.instrument)
	if err != nil {
		return err
	}

	bars, _, err := resample.FoldTicks(ctx, ticks, iv, cc.loc)
	if err != nil {
		return err
	}

	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	cc.live = bars
	return nil
}

// ensureUpstream starts the shared tick subscription for an
// instrument. All of the instrument's contexts feed off the one
// subscription.
func (s *Service) ensureUpstream(instrument string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.upstreams[instrument]; ok {
		return
	}
	if !s.instrumentWatchedLocked(instrument) {
		return
	}

	pubsub := s.cache.Subscribe(s.baseCtx, instrument)
	uctx, cancel := context.WithCancel(s.baseCtx)
	s.upstreams[instrument] = &upstream{pubsub: pubsub, cancel: cancel}

	go s.tickLoop(uctx, instrument, pubsub)
	log.Printf("[livereg] started tick subscription for %s", instrument)
}

func (s *Service) tickLoop(ctx context.Context, instrument string, pubsub *redis.PubSub) {
	defer log.Printf("[livereg] tick subscription stopped for %s", instrument)

	ch := pubsub.Channel()
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
				log.Printf("[livereg] %s: dropping malformed tick: %v", instrument, err)
				continue
			}
			s.processTick(instrument, tick)
		}
	}
}

// processTick routes a tick to every context on its instrument. A
// completed bar triggers an immediate recalculation rather than
// waiting for the periodic task.
func (s *Service) processTick(instrument string, t model.Tick) {
	s.met.TicksProcessed.WithLabelValues(instrument).Inc()

	s.mu.Lock()
	relevant := make([]*Context, 0, 2)
	for _, cc := range s.contexts {
		if cc.instrument == instrument {
			relevant = append(relevant, cc)
		}
	}
	s.mu.Unlock()

	for _, cc := range relevant {
		if cc.addTick(t) {
			s.met.BarsCompleted.WithLabelValues(cc.timeframe).Inc()
			s.calcAndBroadcast(cc.key())
		}
	}
}

func (s *Service) calculationLoop(ctx context.Context, key string) {
	ticker := time.NewTicker(s.calcEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.calcAndBroadcast(key)
		}
	}
}

// calcAndBroadcast recomputes every configured lookback's regression
// over the composed candle series and fans the result map out to the
// watchers of this context. Lookbacks whose window runs past the
// available data are omitted from the map.
func (s *Service) calcAndBroadcast(key string) {
	s.mu.Lock()
	cc, ok := s.contexts[key]
	s.mu.Unlock()
	if !ok {
		return
	}

	start := time.Now()

	cc.mu.Lock()
	all := cc.compose()
	length := cc.length
	lookbacks := cc.lookbacks
	cc.lastCalc = start
	cc.mu.Unlock()

	if len(all) < length {
		return
	}

	results := make(map[string]lookbackResult, len(lookbacks))
	for _, lookback := range lookbacks {
		if lookback+length > len(all) {
			continue
		}

		// all is newest first; the regression wants oldest first.
		window := all[lookback : lookback+length]
		closes := make([]float64, length)
		for i, b := range window {
			closes[length-1-i] = b.Close
		}

		res, err := regression.Linear(closes)
		if err != nil {
			log.Printf("[livereg] regression failed for %s lookback=%d: %v", key, lookback, err)
			continue
		}
		results[strconv.Itoa(lookback)] = lookbackResult{
			Result:    res,
			Timestamp: time.Now().Format(time.RFC3339Nano),
		}
	}

	s.met.CalcDuration.Observe(time.Since(start).Seconds())
	s.broadcast(cc, key, results)
}

func (s *Service) broadcast(cc *Context, key string, results map[string]lookbackResult) {
	payload := map[string]any{
		"type":      "live_regression_update",
		"symbol":    cc.instrument,
		"timeframe": cc.timeframe,
		"context":   key,
		"results":   results,
		"timestamp": time.Now().Format(time.RFC3339Nano),
	}

	s.mu.Lock()
	watchers := make([]*Client, 0, len(s.clients))
	for cl := range s.clients {
		if cl.sub.Instrument != cc.instrument {
			continue
		}
		for _, tf := range cl.sub.Timeframes {
			if tf == cc.timeframe {
				watchers = append(watchers, cl)
				break
			}
		}
	}
	s.mu.Unlock()

	if len(watchers) == 0 {
		return
	}
	for _, cl := range watchers {
		cl.SendJSON(payload)
	}
}
