package server

import "net/http"

// modelEntry is one row in GET /v1/models.
type modelEntry struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// handleModels serves GET /v1/models: a flat list of {id, provider} pairs
// computed from the currently-available adapters' advertised models (§6
// supplemented feature).
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	var models []modelEntry
	for _, p := range s.rt.Providers() {
		if !p.Available() {
			continue
		}
		for _, id := range p.Models() {
			models = append(models, modelEntry{ID: id, Provider: p.Name()})
		}
	}
	if models == nil {
		models = []modelEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": models})
}
