package model

import "testing"

func TestParseTick(t *testing.T) {
	tick, err := ParseTick([]byte(`{"price":101.5,"volume":3,"timestamp":1700000000.25}`))
	if err != nil {
		t.Fatalf("ParseTick: %v", err)
	}
	if tick.Price != 101.5 || tick.Volume != 3 || tick.Timestamp != 1700000000.25 {
		t.Errorf("parsed tick = %+v", tick)
	}
}

func TestParseTickRejectsMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{}`,
		`{"price":1.0,"volume":2}`,
		`{"price":1.0,"timestamp":3.0}`,
		`{"volume":2,"timestamp":3.0}`,
	}
	for _, raw := range cases {
		if _, err := ParseTick([]byte(raw)); err == nil {
			t.Errorf("ParseTick(%q) accepted a malformed payload", raw)
		}
	}
}

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("5m")
	if err != nil {
		t.Fatalf("ParseInterval(5m): %v", err)
	}
	if iv.Kind != TimeInterval || iv.Seconds() != 300 {
		t.Errorf("5m parsed to %+v", iv)
	}

	iv, err = ParseInterval("100tick")
	if err != nil {
		t.Fatalf("ParseInterval(100tick): %v", err)
	}
	if iv.Kind != TickInterval || iv.Ticks != 100 {
		t.Errorf("100tick parsed to %+v", iv)
	}

	if _, err := ParseInterval("3m"); err == nil {
		t.Error("unsupported time interval must fail")
	}

	iv, err = ParseInterval("abctick")
	if err != nil {
		t.Fatalf("tick parse failure must fall back, got error: %v", err)
	}
	if iv.Ticks != 1000 {
		t.Errorf("fallback ticks = %d, want 1000", iv.Ticks)
	}
}

func TestHighFrequency(t *testing.T) {
	for _, s := range []string{"1s", "45s", "100tick"} {
		if !HighFrequency(s) {
			t.Errorf("HighFrequency(%q) = false", s)
		}
	}
	for _, s := range []string{"1m", "1h", "1d"} {
		if HighFrequency(s) {
			t.Errorf("HighFrequency(%q) = true", s)
		}
	}
}

func TestValidInterval(t *testing.T) {
	for _, s := range []string{"1s", "5m", "1d", "1000tick"} {
		if !ValidInterval(s) {
			t.Errorf("ValidInterval(%q) = false", s)
		}
	}
	for _, s := range []string{"", "3m", "2d", "abctick"} {
		if ValidInterval(s) {
			t.Errorf("ValidInterval(%q) = true", s)
		}
	}
}
