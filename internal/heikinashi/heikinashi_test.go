package heikinashi

import (
	"testing"

	"chartstream/internal/model"
)

func bar(o, h, l, c float64, ts float64) model.Bar {
	return model.Bar{Open: o, High: h, Low: l, Close: c, Volume: 1, UnixTimestamp: ts}
}

func TestSeries_SeedsFromFirstCandle(t *testing.T) {
	out := Series([]model.Bar{
		bar(10, 12, 9, 11, 0),
		bar(11, 13, 10, 12, 60),
	}, nil)

	if len(out) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(out))
	}

	first := out[0]
	if first.Open != 10.5 || first.Close != 10.5 {
		t.Errorf("first HA open/close = %v/%v, want 10.5/10.5", first.Open, first.Close)
	}
	if first.High != 12 || first.Low != 9 {
		t.Errorf("first HA high/low = %v/%v, want 12/9", first.High, first.Low)
	}
	if first.RegularOpen != 10 || first.RegularClose != 11 {
		t.Errorf("first regular open/close = %v/%v, want 10/11", first.RegularOpen, first.RegularClose)
	}

	second := out[1]
	if second.Open != 10.5 {
		t.Errorf("second HA open = %v, want 10.5", second.Open)
	}
	if second.Close != 11.5 {
		t.Errorf("second HA close = %v, want 11.5", second.Close)
	}
	if second.High != 13 || second.Low != 10 {
		t.Errorf("second HA high/low = %v/%v, want 13/10", second.High, second.Low)
	}
	if second.RegularOpen != 11 || second.RegularClose != 12 {
		t.Errorf("second regular open/close = %v/%v, want 11/12", second.RegularOpen, second.RegularClose)
	}
}

func TestSeries_PaginationSeedMatchesSingleShot(t *testing.T) {
	var bars []model.Bar
	for i := 0; i < 20; i++ {
		f := float64(i)
		bars = append(bars, bar(100+f, 103+f, 98+f, 101+f, f*60))
	}

	full := Series(bars, nil)

	for _, split := range []int{1, 7, 19} {
		prefix := Series(bars[:split], nil)
		seed := prefix[len(prefix)-1]
		suffix := Series(bars[split:], &seed)

		combined := append(append([]model.HeikinAshiBar{}, prefix...), suffix...)
		if len(combined) != len(full) {
			t.Fatalf("split %d: length %d, want %d", split, len(combined), len(full))
		}
		for i := range full {
			if combined[i] != full[i] {
				t.Errorf("split %d: candle %d = %+v, want %+v", split, i, combined[i], full[i])
			}
		}
	}
}

func TestPreviewDoesNotAdvanceState(t *testing.T) {
	tr := New()
	tr.Apply(bar(10, 12, 9, 11, 0))

	forming := bar(11, 14, 10, 13, 60)
	p1 := tr.Preview(forming)
	p2 := tr.Preview(forming)
	if p1 != p2 {
		t.Errorf("repeated previews differ: %+v vs %+v", p1, p2)
	}

	// Applying after previews must give the same candle the preview
	// promised.
	applied := tr.Apply(forming)
	if applied != p1 {
		t.Errorf("apply after preview = %+v, want %+v", applied, p1)
	}
}

func TestApplyAdvancesRecurrence(t *testing.T) {
	tr := New()
	a := tr.Apply(bar(10, 12, 9, 11, 0))
	b := tr.Apply(bar(14, 16, 13, 15, 60))
	if b.Open != (a.Open+a.Close)/2 {
		t.Errorf("second HA open = %v, want %v", b.Open, (a.Open+a.Close)/2)
	}
	if b.Close != (14.0+16+13+15)/4 {
		t.Errorf("second HA close = %v, want %v", b.Close, (14.0+16+13+15)/4)
	}
}
