package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleAdminCacheInvalidate serves DELETE /admin/cache?pattern=…: bulk
// cache invalidation (§6 supplemented feature, explicitly unauthenticated
// per the spec's admin non-goals).
func (s *Server) handleAdminCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "ai:cache:*"
	}

	cleared, err := s.cache.Invalidate(r.Context(), pattern)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status": "error", "message": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "cleared": cleared})
}

// handleAdminRateLimitGet serves GET /admin/ratelimit/{id}: the caller's
// current bucket state without consuming a token.
func (s *Server) handleAdminRateLimitGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap := s.limiter.Peek(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"identifier":   id,
		"limit":        snap.Limit,
		"remaining":    snap.Remaining,
		"resetSeconds": snap.ResetSeconds,
	})
}

// handleAdminRateLimitReset serves DELETE /admin/ratelimit/{id}: resets
// the identifier's bucket to full capacity.
func (s *Server) handleAdminRateLimitReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.limiter.Reset(id)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "identifier": id})
}
