package stream

import (
	"encoding/json"
	"testing"
	"time"

	"chartstream/internal/model"
)

func mb(o, h, l, c float64, ts float64) model.Bar {
	return model.Bar{Open: o, High: h, Low: l, Close: c, Volume: 1, UnixTimestamp: ts}
}

func TestSeedHeikinAshiPreviewsTrailingPartial(t *testing.T) {
	m := testManager(t)
	c := NewClient(m, nil, "@NQ#", mustInterval(t, "1m"), "UTC", time.UTC, true)

	bars := []model.Bar{
		mb(10, 12, 9, 11, 0),
		mb(11, 13, 10, 12, 60),
		mb(12, 14, 11, 13, 120),
	}
	payload, err := seedHeikinAshi(c, bars, true)
	if err != nil {
		t.Fatalf("seedHeikinAshi: %v", err)
	}

	var out []model.HeikinAshiBar
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("decoding backfill payload: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("backfill has %d candles, want 3", len(out))
	}

	// The trailing partial was previewed, so applying it once the bar
	// completes must produce the same candle the backfill promised.
	applied := c.ha.Apply(bars[2])
	if applied != out[2] {
		t.Errorf("apply after seed = %+v, want %+v", applied, out[2])
	}
}

func TestSeedHeikinAshiEmptyCache(t *testing.T) {
	m := testManager(t)
	c := NewClient(m, nil, "@NQ#", mustInterval(t, "1m"), "UTC", time.UTC, true)

	payload, err := seedHeikinAshi(c, nil, false)
	if err != nil {
		t.Fatalf("seedHeikinAshi: %v", err)
	}
	if string(payload) != "[]" {
		t.Errorf("empty cache payload = %s, want []", payload)
	}
	if c.ha == nil {
		t.Error("transformer must be installed even for an empty cache")
	}
}

func TestPromoteUndoneWhenPeerAlreadyGone(t *testing.T) {
	m := testManager(t)
	g := newGroup("@NQ#", "live_ticks:@NQ#", nil, m.met)
	m.mu.Lock()
	m.groups["@NQ#"] = g
	m.mu.Unlock()

	// The read pump can observe the disconnect after the pre-live
	// checks pass; its Detach then finds nothing to remove.
	c := NewClient(m, nil, "@NQ#", mustInterval(t, "1m"), "UTC", time.UTC, false)
	c.closed.Store(true)
	m.Detach(c)

	if m.promote(g, c) {
		t.Error("closed client promoted to live")
	}
	if g.clientCount() != 0 {
		t.Errorf("dead client pinned in live set: %d", g.clientCount())
	}

	open := NewClient(m, nil, "@NQ#", mustInterval(t, "1m"), "UTC", time.UTC, false)
	if !m.promote(g, open) {
		t.Error("open client failed to promote")
	}
	if g.clientCount() != 1 {
		t.Errorf("clientCount = %d, want 1", g.clientCount())
	}
}

func TestSweepSparesFreshEmptyGroups(t *testing.T) {
	m := testManager(t)
	g := newGroup("@NQ#", "live_ticks:@NQ#", nil, m.met)
	m.mu.Lock()
	m.groups["@NQ#"] = g
	m.mu.Unlock()

	m.sweepEmptyGroups()
	m.mu.Lock()
	_, ok := m.groups["@NQ#"]
	m.mu.Unlock()
	if !ok {
		t.Fatal("fresh empty group reaped without a grace period")
	}

	g.mu.Lock()
	g.emptySince = time.Now().Add(-2 * m.sweep)
	g.mu.Unlock()
	m.sweepEmptyGroups()
	m.mu.Lock()
	_, ok = m.groups["@NQ#"]
	m.mu.Unlock()
	if ok {
		t.Fatal("expired empty group survived the sweep")
	}
}

func TestDetachUnknownClientIsSafe(t *testing.T) {
	m := testManager(t)
	c := NewClient(m, nil, "@NQ#", mustInterval(t, "1m"), "UTC", time.UTC, false)
	// No group exists for the instrument; Detach must not panic or
	// touch the client gauge.
	m.Detach(c)
	if groups, clients := m.Counts(); groups != 0 || clients != 0 {
		t.Errorf("Counts = %d/%d, want 0/0", groups, clients)
	}
}
