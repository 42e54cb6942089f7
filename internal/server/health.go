package server

import (
	"net/http"
	"time"
)

// handleHealth serves GET /health: a basic liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "aigateway",
	})
}

// providerHealth is one row of /health/detailed's per-provider section.
type providerHealth struct {
	Configured bool `json:"configured"`
	Healthy    bool `json:"healthy"`
	Priority   int  `json:"priority"`
}

// handleHealthDetailed serves GET /health/detailed: liveness plus a
// per-provider {configured, healthy, priority} triple (§6 supplemented
// feature). Each provider's HealthCheck is bounded by its own adapter
// logic (5-10s probes per §4.1). Providers are probed one after another,
// so the handler can take as long as the sum of their probes.
func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	providers := make(map[string]providerHealth, len(s.rt.Providers()))
	for _, p := range s.rt.Providers() {
		providers[p.Name()] = providerHealth{
			Configured: p.Available(),
			Healthy:    p.Available() && p.HealthCheck(r.Context()),
			Priority:   p.Priority(),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "aigateway",
		"providers": providers,
	})
}
