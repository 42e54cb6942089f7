// Package breaker wraps provider adapter calls in a per-provider circuit
// breaker, isolating a failing upstream from the rest of the fleet without
// the router needing to know anything about breaker internals — a
// short-circuited call just looks like another upstream error to it.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/howard-nolan/aigateway/internal/gwerror"
	"github.com/sony/gobreaker/v2"
)

// Config holds the tunables for every breaker this registry creates. All
// breakers share the same settings; only their observed counts differ.
type Config struct {
	// FailureRatio is the fraction of failing calls within Window that
	// trips the breaker from Closed to Open.
	FailureRatio float64
	// MinRequests is the minimum sample size in Window before
	// FailureRatio is evaluated — avoids tripping on one unlucky call.
	MinRequests uint32
	// Window is the sliding interval over which counts reset while Closed.
	Window time.Duration
	// OpenTimeout is how long the breaker stays Open before allowing
	// Half-Open probes.
	OpenTimeout time.Duration
	// HalfOpenProbes is how many calls are allowed through in Half-Open
	// before deciding whether to close or re-open.
	HalfOpenProbes uint32

	// OnStateChange, if set, is called whenever any breaker transitions —
	// used by the server to emit metrics/logs without this package
	// depending on the metrics package.
	OnStateChange func(name string, from, to gobreaker.State)
}

// Registry lazily creates and caches one breaker per provider name.
type Registry struct {
	mu  sync.Mutex
	cfg Config
	cbs map[string]*gobreaker.CircuitBreaker[any]
}

// NewRegistry builds an empty registry. Breakers are created on first use,
// keyed by the provider name passed to Execute.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, cbs: make(map[string]*gobreaker.CircuitBreaker[any])}
}

func (r *Registry) breakerFor(name string) *gobreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.cbs[name]; ok {
		return cb
	}

	settings := gobreaker.Settings{
		Name:        name,
		Interval:    r.cfg.Window,
		Timeout:     r.cfg.OpenTimeout,
		MaxRequests: r.cfg.HalfOpenProbes,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < r.cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= r.cfg.FailureRatio
		},
	}
	if r.cfg.OnStateChange != nil {
		settings.OnStateChange = r.cfg.OnStateChange
	}

	cb := gobreaker.NewCircuitBreaker[any](settings)
	r.cbs[name] = cb
	return cb
}

// Execute runs fn through the named provider's breaker. When the breaker is
// open or a half-open probe slot isn't available, fn never runs and the
// call fails fast with CodeProviderUnavailable — indistinguishable to the
// router from any other upstream error, so it participates in fallback
// exactly like a real failure.
//
// Execute is a free function rather than a Registry method because Go
// methods can't carry their own type parameters — T is fixed per call site
// (*provider.ChatResponse, *provider.EmbeddingResponse), not per Registry.
// Streaming calls do not go through a breaker.
func Execute[T any](r *Registry, name string, fn func() (T, error)) (T, error) {
	cb := r.breakerFor(name)

	result, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, gwerror.New(gwerror.CodeProviderUnavailable, false,
				"%s: circuit breaker open", name)
		}
		return zero, err
	}

	typed, _ := result.(T)
	return typed, nil
}

// State reports the current state of name's breaker, for /health/detailed
// and metrics. A provider never yet called through Execute reports Closed.
func (r *Registry) State(name string) gobreaker.State {
	r.mu.Lock()
	cb, ok := r.cbs[name]
	r.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}
