package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"chartstream/internal/displaytime"
	"chartstream/internal/livereg"
	"chartstream/internal/model"
	"chartstream/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleLiveWS(w http.ResponseWriter, r *http.Request) {
	s.serveLive(w, r, false)
}

func (s *Server) handleLiveHAWS(w http.ResponseWriter, r *http.Request) {
	s.serveLive(w, r, true)
}

// serveLive runs the backfill-then-live handshake for one connection.
// Unknown intervals are rejected before the upgrade; unknown timezones
// fall back to UTC and never reject.
func (s *Server) serveLive(w http.ResponseWriter, r *http.Request, heikin bool) {
	vars := mux.Vars(r)
	instrument := vars["instrument"]
	timezone := vars["timezone"]

	iv, err := model.ParseInterval(vars["interval"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	loc := displaytime.Load(timezone)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] websocket upgrade failed: %v", err)
		return
	}

	c := stream.NewClient(s.manager, conn, instrument, iv, timezone, loc, heikin)
	go c.Run()

	live, err := s.manager.Attach(context.Background(), c)
	if err != nil {
		log.Printf("[api] attach failed for %s/%s: %v", instrument, iv, err)
		conn.Close()
		return
	}
	if !live {
		conn.Close()
	}
}

// wsError sends a single error frame and closes. The regression
// endpoint reports validation problems in-band after the upgrade.
func wsError(conn *websocket.Conn, message string) {
	conn.WriteJSON(map[string]any{"type": "error", "message": message})
	conn.Close()
}

func (s *Server) handleRegressionWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	instrument := vars["instrument"]
	exchange := vars["exchange"]
	q := r.URL.Query()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] websocket upgrade failed: %v", err)
		return
	}

	var timeframes []string
	for _, tf := range strings.Split(q.Get("timeframes"), ",") {
		if tf = strings.TrimSpace(tf); tf != "" {
			timeframes = append(timeframes, tf)
		}
	}
	if len(timeframes) == 0 {
		wsError(conn, "Invalid timeframes format: at least one timeframe must be specified")
		return
	}

	var lookbacks []int
	for _, raw := range strings.Split(q.Get("lookback_periods"), ",") {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			wsError(conn, "Invalid lookback_periods format. Use comma-separated integers.")
			return
		}
		if n < 0 {
			wsError(conn, "Lookback periods must be non-negative")
			return
		}
		lookbacks = append(lookbacks, n)
	}

	length, err := strconv.Atoi(q.Get("regression_length"))
	if err != nil {
		wsError(conn, "Invalid regression_length. Must be an integer.")
		return
	}
	if length < 2 {
		wsError(conn, "Regression length must be at least 2")
		return
	}
	if length > 1000 {
		wsError(conn, "Regression length cannot exceed 1000")
		return
	}

	var invalid []string
	for _, tf := range timeframes {
		if !model.ValidInterval(tf) {
			invalid = append(invalid, tf)
		}
	}
	if len(invalid) > 0 {
		wsError(conn, "Invalid timeframes: "+strings.Join(invalid, ", "))
		return
	}

	timezone := q.Get("timezone")
	if timezone == "" {
		timezone = "UTC"
	}

	sub := livereg.Subscription{
		Instrument: instrument,
		Exchange:   exchange,
		Timeframes: timeframes,
		Timezone:   timezone,
		Length:     length,
		Lookbacks:  lookbacks,
	}

	c := livereg.NewClient(s.livereg, conn, sub)
	go c.Run()

	if err := s.livereg.AddSubscription(context.Background(), c); err != nil {
		log.Printf("[api] regression subscription failed for %s: %v", instrument, err)
		s.livereg.RemoveSubscription(c)
		c.Fail("Failed to initialize live regression subscription")
		return
	}

	c.SendJSON(map[string]any{
		"type":              "subscription_confirmed",
		"symbol":            instrument,
		"exchange":          exchange,
		"timeframes":        timeframes,
		"regression_length": length,
		"lookback_periods":  lookbacks,
		"timezone":          timezone,
		"timestamp":         time.Now().Format(time.RFC3339Nano),
	})
}
