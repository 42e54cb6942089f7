// Package server wires the HTTP surface: routing, middleware, and the
// handlers that translate requests into router/cache/limiter calls.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/howard-nolan/aigateway/internal/breaker"
	"github.com/howard-nolan/aigateway/internal/cache"
	"github.com/howard-nolan/aigateway/internal/config"
	"github.com/howard-nolan/aigateway/internal/metrics"
	"github.com/howard-nolan/aigateway/internal/ratelimit"
	"github.com/howard-nolan/aigateway/internal/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP router and every dependency handlers need: the
// request router (C3), the cache (C4), the rate limiter (C5), the breaker
// registry (for /health/detailed), and the metrics bundle.
type Server struct {
	chi chi.Router
	cfg *config.Config

	rt       *router.Router
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	breakers *breaker.Registry
	metrics  *metrics.Metrics
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler.
func New(cfg *config.Config, rt *router.Router, ch *cache.Cache, limiter *ratelimit.Limiter, breakers *breaker.Registry, m *metrics.Metrics) *Server {
	s := &Server{cfg: cfg, rt: rt, cache: ch, limiter: limiter, breakers: breakers, metrics: m}
	s.routes()
	return s
}

// routes builds the chi router with all middleware and route definitions.
func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleHealthDetailed)
	r.Get("/v1/models", s.handleModels)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Post("/v1/chat/completions/stream", s.handleChatCompletionsStream)
	r.Post("/v1/embeddings", s.handleEmbeddings)

	r.Delete("/admin/cache", s.handleAdminCacheInvalidate)
	r.Get("/admin/ratelimit/{id}", s.handleAdminRateLimitGet)
	r.Delete("/admin/ratelimit/{id}", s.handleAdminRateLimitReset)

	s.chi = r
}

// ServeHTTP makes Server satisfy the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.chi.ServeHTTP(w, r)
}
