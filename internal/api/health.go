package api

import (
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	redisConnected := s.cache.Ping(r.Context()) == nil
	sqliteConnected := s.store.DB().PingContext(r.Context()) == nil

	groups, clients := s.manager.Counts()
	regClients, contexts := s.livereg.Counts()

	status := "healthy"
	if !redisConnected || !sqliteConnected {
		status = "unhealthy"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status": status,
		"redis_connected": redisConnected,
		"sqlite_connected": sqliteConnected,
		"active_connections": clients,
		"active_subscription_groups": groups,
		"active_subscriptions": regClients,
		"active_calculation_contexts": contexts,
		"service": "chartstream",
		"timestamp": time.Now().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleRegressionStatus(w http.ResponseWriter, r *http.Request) {
	regClients, contexts := s.livereg.Counts()

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"active_subscriptions": regClients,
		"active_calculation_contexts": contexts,
		"contexts": s.livereg.ContextKeys(),
	})
}
