// Package heikinashi converts regular OHLC candles into Heikin-Ashi
// candles. The transform is a stateful recurrence: each candle's HA open
// depends on the previous HA candle, so a series must be computed in
// order and a paginated computation must be seeded with the last HA
// candle of the previous page to match the single-shot result.
package heikinashi

import "chartstream/internal/model"

// Transformer carries the recurrence state across candles.
type Transformer struct {
	prevOpen  float64
	prevClose float64
	seeded    bool
}

// New returns an unseeded transformer. The first candle applied seeds
// the recurrence: prev HA open = (open+close)/2, prev HA close =
// (open+high+low+close)/4 of that candle.
func New() *Transformer {
	return &Transformer{}
}

// NewSeeded returns a transformer continuing from a prior HA candle,
// as carried in a pagination cursor.
func NewSeeded(prev model.HeikinAshiBar) *Transformer {
	return &Transformer{prevOpen: prev.Open, prevClose: prev.Close, seeded: true}
}

func (t *Transformer) convert(b model.Bar) model.HeikinAshiBar {
	haClose := (b.Open + b.High + b.Low + b.Close) / 4
	haOpen := (t.prevOpen + t.prevClose) / 2
	haHigh := max3(b.High, haOpen, haClose)
	haLow := min3(b.Low, haOpen, haClose)
	return model.HeikinAshiBar{
		Open:          haOpen,
		High:          haHigh,
		Low:           haLow,
		Close:         haClose,
		Volume:        b.Volume,
		UnixTimestamp: b.UnixTimestamp,
		RegularOpen:   b.Open,
		RegularClose:  b.Close,
	}
}

func (t *Transformer) seedFrom(b model.Bar) {
	t.prevOpen = (b.Open + b.Close) / 2
	t.prevClose = (b.Open + b.High + b.Low + b.Close) / 4
	t.seeded = true
}

// Apply converts a completed candle and advances the recurrence.
func (t *Transformer) Apply(b model.Bar) model.HeikinAshiBar {
	if !t.seeded {
		t.seedFrom(b)
	}
	ha := t.convert(b)
	t.prevOpen, t.prevClose = ha.Open, ha.Close
	return ha
}

// Preview converts an in-progress candle without advancing the
// recurrence, so the forming bar can be redrawn on every tick until it
// completes.
func (t *Transformer) Preview(b model.Bar) model.HeikinAshiBar {
	if !t.seeded {
		t.seedFrom(b)
	}
	return t.convert(b)
}

// Series converts an ordered candle slice. A nil seed starts a fresh
// recurrence; a non-nil seed continues a paginated one.
func Series(bars []model.Bar, seed *model.HeikinAshiBar) []model.HeikinAshiBar {
	if len(bars) == 0 {
		return nil
	}
	var t *Transformer
	if seed != nil {
		t = NewSeeded(*seed)
	} else {
		t = New()
	}
	out := make([]model.HeikinAshiBar, 0, len(bars))
	for _, b := range bars {
		out = append(out, t.Apply(b))
	}
	return out
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
