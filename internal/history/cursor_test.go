package history

import (
	"testing"
	"time"

	"chartstream/internal/model"
)

func TestCursorRoundTrip(t *testing.T) {
	origStart := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	origEnd := time.Date(2023, 6, 16, 0, 0, 0, 0, time.UTC)
	next := time.Date(2023, 6, 15, 12, 0, 0, 999999000, time.UTC)

	encoded, err := NewCursor(origStart, origEnd, &next, "@NQ#", "5m", "America/New_York", nil)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	if encoded == "" {
		t.Fatal("expected a non-empty cursor")
	}

	cur, err := DecodeCursor(encoded)
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if cur.Token != "@NQ#" || cur.Interval != "5m" || cur.Timezone != "America/New_York" {
		t.Errorf("decoded cursor = %+v", cur)
	}

	start, end, err := cur.Window()
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if !start.Equal(origStart) || !end.Equal(next) {
		t.Errorf("window = [%v, %v], want [%v, %v]", start, end, origStart, next)
	}

	seed, err := cur.HASeed()
	if err != nil {
		t.Fatalf("HASeed: %v", err)
	}
	if seed != nil {
		t.Errorf("regular cursor carried a seed: %+v", seed)
	}
}

func TestCursorCarriesHeikinAshiSeed(t *testing.T) {
	origStart := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	origEnd := time.Date(2023, 6, 16, 0, 0, 0, 0, time.UTC)
	next := origStart.Add(6 * time.Hour)
	seed := &model.HeikinAshiBar{
		Open: 10.5, High: 13, Low: 10, Close: 11.5,
		Volume: 7, UnixTimestamp: 60, RegularOpen: 11, RegularClose: 12,
	}

	encoded, err := NewCursor(origStart, origEnd, &next, "@NQ#", "1m", "UTC", seed)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	cur, err := DecodeCursor(encoded)
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	got, err := cur.HASeed()
	if err != nil {
		t.Fatalf("HASeed: %v", err)
	}
	if got == nil || *got != *seed {
		t.Errorf("seed = %+v, want %+v", got, seed)
	}
}

func TestCursorEmptyWhenExhausted(t *testing.T) {
	encoded, err := NewCursor(time.Now(), time.Now(), nil, "@NQ#", "1m", "UTC", nil)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	if encoded != "" {
		t.Errorf("exhausted pagination produced cursor %q", encoded)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"not base64!!", "bm90IGpzb24="} {
		if _, err := DecodeCursor(raw); err == nil {
			t.Errorf("DecodeCursor(%q) accepted a malformed cursor", raw)
		}
	}
}
