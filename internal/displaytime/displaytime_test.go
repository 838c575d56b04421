package displaytime

import (
	"testing"
	"time"
)

func TestLoadFallsBackToUTC(t *testing.T) {
	if loc := Load("Not/AZone"); loc != time.UTC {
		t.Errorf("unknown timezone resolved to %v, want UTC", loc)
	}
	if loc := Load("UTC"); loc != time.UTC {
		t.Errorf("UTC resolved to %v", loc)
	}
}

func TestFakeUTC_NewYork(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	// 14:30 UTC in June is 10:30 EDT; the fake-UTC number reads as
	// 10:30 UTC.
	instant := time.Date(2023, 6, 15, 14, 30, 0, 0, time.UTC)
	got := FakeUTC(instant, loc)
	want := float64(time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC).Unix())
	if got != want {
		t.Errorf("FakeUTC = %v, want %v", got, want)
	}

	// January is EST (UTC-5).
	instant = time.Date(2023, 1, 15, 14, 30, 0, 0, time.UTC)
	got = FakeUTC(instant, loc)
	want = float64(time.Date(2023, 1, 15, 9, 30, 0, 0, time.UTC).Unix())
	if got != want {
		t.Errorf("FakeUTC in EST = %v, want %v", got, want)
	}
}

func TestFakeUTC_PreservesMicroseconds(t *testing.T) {
	instant := time.Date(2023, 6, 15, 14, 30, 0, 123456000, time.UTC)
	got := FakeUTC(instant, time.UTC)
	want := float64(instant.UnixMicro()) / 1e6
	if got != want {
		t.Errorf("FakeUTC = %v, want %v", got, want)
	}

	if sec := FakeUTCSecond(instant, time.UTC); sec != float64(instant.Unix()) {
		t.Errorf("FakeUTCSecond = %v, want %v", sec, float64(instant.Unix()))
	}
}

func TestFromEpochRoundTrip(t *testing.T) {
	instant := time.Date(2023, 6, 15, 14, 30, 1, 500000000, time.UTC)
	epoch := float64(instant.UnixMicro()) / 1e6
	if got := FromEpoch(epoch); !got.Equal(instant) {
		t.Errorf("FromEpoch(%v) = %v, want %v", epoch, got, instant)
	}
}
