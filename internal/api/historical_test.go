package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chartstream/internal/history"
	"chartstream/internal/metrics"
	"chartstream/internal/model"
)

func testServer(t *testing.T) (*Server, *history.Store) {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "ohlc.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	met := metrics.New(prometheus.NewRegistry())
	return NewServer(nil, nil, store, nil, met), store
}

func seedCandles(t *testing.T, store *history.Store, n int) (start, end time.Time) {
	t.Helper()
	base := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		if err := store.Insert(context.Background(), "@NQ#", "1m", ts, 100+float64(i), 101+float64(i), 99+float64(i), 100.5+float64(i), 10); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	return base, base.Add(time.Duration(n) * time.Minute)
}

func get(t *testing.T, s *Server, path string, q url.Values) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path+"?"+q.Encode(), nil)
	s.Router().ServeHTTP(rec, req)
	return rec
}

func fetchQuery(start, end time.Time) url.Values {
	return url.Values{
		"token":      {"@NQ#"},
		"interval":   {"1m"},
		"start_time": {start.Format(time.RFC3339)},
		"end_time":   {end.Format(time.RFC3339)},
	}
}

func TestHistoricalRejectsBadQueries(t *testing.T) {
	s, _ := testServer(t)
	start := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	cases := []struct {
		name string
		q    url.Values
	}{
		{"missing token", url.Values{"interval": {"1m"}, "start_time": {start.Format(time.RFC3339)}, "end_time": {end.Format(time.RFC3339)}}},
		{"bad interval", url.Values{"token": {"@NQ#"}, "interval": {"3m"}, "start_time": {start.Format(time.RFC3339)}, "end_time": {end.Format(time.RFC3339)}}},
		{"bad start", url.Values{"token": {"@NQ#"}, "interval": {"1m"}, "start_time": {"yesterday"}, "end_time": {end.Format(time.RFC3339)}}},
		{"inverted window", url.Values{"token": {"@NQ#"}, "interval": {"1m"}, "start_time": {end.Format(time.RFC3339)}, "end_time": {start.Format(time.RFC3339)}}},
	}
	for _, tc := range cases {
		rec := get(t, s, "/historical/", tc.q)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", tc.name, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["detail"] == "" {
			t.Errorf("%s: error body = %s", tc.name, rec.Body.String())
		}
	}
}

func TestHistoricalReturnsAscendingCandles(t *testing.T) {
	s, store := testServer(t)
	start, end := seedCandles(t, store, 5)

	rec := get(t, s, "/historical/", fetchQuery(start, end))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RequestID *string          `json:"request_id"`
		Candles   []history.Candle `json:"candles"`
		IsPartial bool             `json:"is_partial"`
		Message   string           `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Candles) != 5 || resp.IsPartial || resp.RequestID != nil {
		t.Errorf("got %d candles partial=%v request_id=%v", len(resp.Candles), resp.IsPartial, resp.RequestID)
	}
	if resp.Message != "Loaded initial 5 bars." {
		t.Errorf("message = %q", resp.Message)
	}
	for i := 1; i < len(resp.Candles); i++ {
		if resp.Candles[i-1].UnixTimestamp >= resp.Candles[i].UnixTimestamp {
			t.Fatal("candles must be ascending")
		}
	}
}

func TestHistoricalEmptyRange(t *testing.T) {
	s, _ := testServer(t)
	start := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)

	rec := get(t, s, "/historical/", fetchQuery(start, start.Add(time.Hour)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp struct {
		Candles []history.Candle `json:"candles"`
		Message string           `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Candles) != 0 || resp.Message != "No data available for this range." {
		t.Errorf("empty range response = %s", rec.Body.String())
	}
}

func TestHistoricalChunkWalk(t *testing.T) {
	s, store := testServer(t)
	start, end := seedCandles(t, store, 5)

	cursor, err := history.NewCursor(start, end, &end, "@NQ#", "1m", "UTC", nil)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}

	var chunk struct {
		RequestID *string          `json:"request_id"`
		Candles   []history.Candle `json:"candles"`
		IsPartial bool             `json:"is_partial"`
		Limit     int              `json:"limit"`
	}

	var total int
	for steps := 0; cursor != ""; steps++ {
		if steps > 5 {
			t.Fatal("pagination did not terminate")
		}
		rec := get(t, s, "/historical/chunk", url.Values{"request_id": {cursor}, "limit": {"2"}})
		if rec.Code != http.StatusOK {
			t.Fatalf("chunk status %d: %s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &chunk); err != nil {
			t.Fatalf("decoding chunk: %v", err)
		}
		if chunk.Limit != 2 {
			t.Errorf("echoed limit = %d", chunk.Limit)
		}
		total += len(chunk.Candles)

		cursor = ""
		if chunk.RequestID != nil {
			if !chunk.IsPartial {
				t.Error("request_id present on a final chunk")
			}
			cursor = *chunk.RequestID
		}
	}

	if total != 5 {
		t.Errorf("pagination walked %d candles, want 5", total)
	}
	if chunk.IsPartial {
		t.Error("last chunk still partial")
	}
}

func TestHistoricalChunkRejectsBadCursor(t *testing.T) {
	s, _ := testServer(t)
	rec := get(t, s, "/historical/chunk", url.Values{"request_id": {"garbage"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}

	start := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	cursor, _ := history.NewCursor(start, start.Add(time.Hour), &start, "@NQ#", "1m", "UTC", nil)
	rec = get(t, s, "/historical/chunk", url.Values{"request_id": {cursor}, "limit": {"0"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("limit 0 status %d, want 400", rec.Code)
	}
}

func TestHeikinAshiChunkContinuesFromSeed(t *testing.T) {
	s, store := testServer(t)
	start, end := seedCandles(t, store, 3)

	seed := &model.HeikinAshiBar{Open: 200, Close: 210}
	cursor, err := history.NewCursor(start, end, &end, "@NQ#", "1m", "UTC", seed)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}

	rec := get(t, s, "/heikin-ashi/chunk", url.Values{"request_id": {cursor}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Candles []model.HeikinAshiBar `json:"candles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Candles) != 3 {
		t.Fatalf("got %d candles, want 3", len(resp.Candles))
	}
	// The recurrence picks up from the carried candle instead of
	// reseeding on the chunk's first bar.
	if got, want := resp.Candles[0].Open, (seed.Open+seed.Close)/2; got != want {
		t.Errorf("first HA open = %v, want %v", got, want)
	}
}
