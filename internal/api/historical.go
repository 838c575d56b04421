package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"chartstream/internal/displaytime"
	"chartstream/internal/heikinashi"
	"chartstream/internal/history"
	"chartstream/internal/model"
)

const (
	initialFetchLimit = 5000
	maxChunkLimit     = 10000
)

type historicalResponse struct {
	RequestID *string          `json:"request_id"`
	Candles   []history.Candle `json:"candles"`
	IsPartial bool             `json:"is_partial"`
	Message   string           `json:"message"`
}

type historicalChunkResponse struct {
	RequestID *string          `json:"request_id"`
	Candles   []history.Candle `json:"candles"`
	IsPartial bool             `json:"is_partial"`
	Limit     int              `json:"limit"`
}

type heikinAshiResponse struct {
	RequestID *string               `json:"request_id"`
	Candles   []model.HeikinAshiBar `json:"candles"`
	IsPartial bool                  `json:"is_partial"`
	Message   string                `json:"message"`
}

type heikinAshiChunkResponse struct {
	RequestID *string               `json:"request_id"`
	Candles   []model.HeikinAshiBar `json:"candles"`
	IsPartial bool                  `json:"is_partial"`
	Limit     int                   `json:"limit"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

// fetchParams validates the shared query parameters of the initial
// historical endpoints.
type fetchParams struct {
	instrument string
	interval   string
	start      time.Time
	end        time.Time
	timezone   string
	loc        *time.Location
}

func parseFetchParams(r *http.Request) (*fetchParams, error) {
	q := r.URL.Query()

	instrument := q.Get("token")
	if instrument == "" {
		return nil, fmt.Errorf("token is required")
	}

	interval := q.Get("interval")
	if !model.ValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval %q", interval)
	}

	start, err := time.Parse(time.RFC3339, q.Get("start_time"))
	if err != nil {
		return nil, fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, q.Get("end_time"))
	if err != nil {
		return nil, fmt.Errorf("invalid end_time: %w", err)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("start_time must be earlier than end_time")
	}

	timezone := q.Get("timezone")
	if timezone == "" {
		timezone = "UTC"
	}

	return &fetchParams{
		instrument: instrument,
		interval:   interval,
		start:      start.UTC(),
		end:        end.UTC(),
		timezone:   timezone,
		loc:        displaytime.Load(timezone),
	}, nil
}

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	p, err := parseFetchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.store.FetchRange(r.Context(), p.instrument, p.interval, p.start, p.end, p.loc, initialFetchLimit)
	if err != nil {
		log.Printf("[api] historical fetch failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Error fetching historical data")
		return
	}

	if len(page.Candles) == 0 {
		writeJSON(w, http.StatusOK, historicalResponse{
			Candles: []history.Candle{},
			Message: "No data available for this range.",
		})
		return
	}

	cursor, err := history.NewCursor(p.start, p.end, page.NextStart, p.instrument, p.interval, p.timezone, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error building pagination cursor")
		return
	}

	writeJSON(w, http.StatusOK, historicalResponse{
		RequestID: optional(cursor),
		Candles:   page.Candles,
		IsPartial: page.Partial(),
		Message:   fmt.Sprintf("Loaded initial %d bars.", len(page.Candles)),
	})
}

func (s *Server) handleHistoricalChunk(w http.ResponseWriter, r *http.Request) {
	cur, limit, ok := s.parseChunkRequest(w, r)
	if !ok {
		return
	}

	start, end, err := cur.Window()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request_id cursor.")
		return
	}
	loc := displaytime.Load(cur.Timezone)

	page, err := s.store.FetchRange(r.Context(), cur.Token, cur.Interval, start, end, loc, limit)
	if err != nil {
		log.Printf("[api] historical chunk fetch failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Error fetching historical chunk")
		return
	}

	if len(page.Candles) == 0 {
		writeJSON(w, http.StatusOK, historicalChunkResponse{Candles: []history.Candle{}, Limit: limit})
		return
	}

	next, err := s.continueCursor(cur, page.NextStart, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error building pagination cursor")
		return
	}

	writeJSON(w, http.StatusOK, historicalChunkResponse{
		RequestID: optional(next),
		Candles:   page.Candles,
		IsPartial: page.Partial(),
		Limit:     limit,
	})
}

func (s *Server) handleHeikinAshi(w http.ResponseWriter, r *http.Request) {
	p, err := parseFetchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.store.FetchRange(r.Context(), p.instrument, p.interval, p.start, p.end, p.loc, initialFetchLimit)
	if err != nil {
		log.Printf("[api] heikin-ashi fetch failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Error fetching Heikin Ashi data")
		return
	}

	if len(page.Candles) == 0 {
		writeJSON(w, http.StatusOK, heikinAshiResponse{
			Candles: []model.HeikinAshiBar{},
			Message: "No data available for this range.",
		})
		return
	}

	haCandles := heikinashi.Series(toBars(page.Candles), nil)

	cursor, err := history.NewCursor(p.start, p.end, page.NextStart, p.instrument, p.interval, p.timezone, lastOf(haCandles))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error building pagination cursor")
		return
	}

	writeJSON(w, http.StatusOK, heikinAshiResponse{
		RequestID: optional(cursor),
		Candles:   haCandles,
		IsPartial: page.Partial(),
		Message:   fmt.Sprintf("Loaded initial %d Heikin Ashi bars.", len(haCandles)),
	})
}

func (s *Server) handleHeikinAshiChunk(w http.ResponseWriter, r *http.Request) {
	cur, limit, ok := s.parseChunkRequest(w, r)
	if !ok {
		return
	}

	start, end, err := cur.Window()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request_id cursor.")
		return
	}
	seed, err := cur.HASeed()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request_id cursor.")
		return
	}
	loc := displaytime.Load(cur.Timezone)

	page, err := s.store.FetchRange(r.Context(), cur.Token, cur.Interval, start, end, loc, limit)
	if err != nil {
		log.Printf("[api] heikin-ashi chunk fetch failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Error fetching Heikin Ashi chunk")
		return
	}

	if len(page.Candles) == 0 {
		writeJSON(w, http.StatusOK, heikinAshiChunkResponse{Candles: []model.HeikinAshiBar{}, Limit: limit})
		return
	}

	haCandles := heikinashi.Series(toBars(page.Candles), seed)

	next, err := s.continueCursor(cur, page.NextStart, lastOf(haCandles))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error building pagination cursor")
		return
	}

	writeJSON(w, http.StatusOK, heikinAshiChunkResponse{
		RequestID: optional(next),
		Candles:   haCandles,
		IsPartial: page.Partial(),
		Limit:     limit,
	})
}

// parseChunkRequest decodes the request_id cursor and clamps the limit.
func (s *Server) parseChunkRequest(w http.ResponseWriter, r *http.Request) (*history.Cursor, int, bool) {
	q := r.URL.Query()

	cur, err := history.DecodeCursor(q.Get("request_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request_id cursor.")
		return nil, 0, false
	}

	limit := initialFetchLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxChunkLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxChunkLimit))
			return nil, 0, false
		}
		limit = n
	}
	return cur, limit, true
}

// continueCursor rebuilds a cursor for the page after this one,
// preserving the original query window.
func (s *Server) continueCursor(cur *history.Cursor, nextStart *time.Time, seed *model.HeikinAshiBar) (string, error) {
	if nextStart == nil {
		return "", nil
	}
	origStart, err := time.Parse(time.RFC3339Nano, cur.OriginalStart)
	if err != nil {
		return "", err
	}
	origEnd, err := time.Parse(time.RFC3339Nano, cur.OriginalEnd)
	if err != nil {
		return "", err
	}
	return history.NewCursor(origStart, origEnd, nextStart, cur.Token, cur.Interval, cur.Timezone, seed)
}

func toBars(candles []history.Candle) []model.Bar {
	bars := make([]model.Bar, len(candles))
	for i, c := range candles {
		bars[i] = c.Bar()
	}
	return bars
}

func lastOf(candles []model.HeikinAshiBar) *model.HeikinAshiBar {
	if len(candles) == 0 {
		return nil
	}
	return &candles[len(candles)-1]
}

// optional turns "" into a JSON null request_id.
func optional(cursor string) *string {
	if cursor == "" {
		return nil
	}
	return &cursor
}
