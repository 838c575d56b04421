// Package api wires the HTTP surface: live-data websockets, the live
// regression websocket, historical REST endpoints, health and metrics.
package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chartstream/internal/history"
	"chartstream/internal/livereg"
	"chartstream/internal/metrics"
	"chartstream/internal/stream"
	"chartstream/internal/tickcache"
)

// Server holds the handler dependencies.
type Server struct {
	manager *stream.Manager
	livereg *livereg.Service
	store   *history.Store
	cache   *tickcache.Client
	met     *metrics.Metrics
}

func NewServer(manager *stream.Manager, lr *livereg.Service, store *history.Store, cache *tickcache.Client, met *metrics.Metrics) *Server {
	return &Server{
		manager: manager,
		livereg: lr,
		store:   store,
		cache:   cache,
		met:     met,
	}
}

// Router builds the route table. The timezone path segment uses a
// catch-all pattern because IANA names contain slashes
// (America/New_York).
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.countRequests)

	r.HandleFunc("/ws/live/{instrument}/{interval}/{timezone:.+}", s.handleLiveWS)
	r.HandleFunc("/ws-ha/live/{instrument}/{interval}/{timezone:.+}", s.handleLiveHAWS)
	r.HandleFunc("/ws/live-regression/{instrument}/{exchange}", s.handleRegressionWS)

	r.HandleFunc("/historical/", s.handleHistorical).Methods(http.MethodGet)
	r.HandleFunc("/historical/chunk", s.handleHistoricalChunk).Methods(http.MethodGet)
	r.HandleFunc("/heikin-ashi/", s.handleHeikinAshi).Methods(http.MethodGet)
	r.HandleFunc("/heikin-ashi/chunk", s.handleHeikinAshiChunk).Methods(http.MethodGet)

	r.HandleFunc("/live-regression/status", s.handleRegressionStatus).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the counting
// middleware.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.met.HTTPRequests.WithLabelValues(route, http.StatusText(rec.status)).Inc()
	})
}
