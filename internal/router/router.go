// Package router composes the candidate list for each request, drives
// retry-with-backoff against the head candidate, and falls back through
// the remaining candidates on terminal failure. It is the one package that
// knows about both the provider fleet and the breaker registry.
package router

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/howard-nolan/aigateway/internal/breaker"
	"github.com/howard-nolan/aigateway/internal/gwerror"
	"github.com/howard-nolan/aigateway/internal/provider"
)

// Config holds the routing tunables read from configuration.
type Config struct {
	FallbackEnabled bool
	MaxRetries      int           // per-candidate retry budget, default 2
	RetryDelay      time.Duration // initial backoff delay, default 1s
}

// Router selects candidates and drives execution. It holds no per-request
// state; every method is safe for concurrent use.
type Router struct {
	providers []provider.Provider
	breakers  *breaker.Registry
	cfg       Config
}

// New builds a Router over the given (immutable, post-startup) provider
// fleet.
func New(providers []provider.Provider, breakers *breaker.Registry, cfg Config) *Router {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	return &Router{providers: providers, breakers: breakers, cfg: cfg}
}

// candidateMode distinguishes chat routing from embedding routing — only
// the latter applies the supports-embedding filter (§4.3 step 5).
type candidateMode int

const (
	modeChat candidateMode = iota
	modeEmbedding
)

// candidates builds the ordered candidate list for one request, per the
// deterministic selection procedure in §4.3:
//  1. available adapters only
//  2. stable sort by priority, ties broken by name
//  3. hoist the preferred provider (if named and available) to the head
//  4. narrow by model hint, unless doing so would empty the list
//  5. (embeddings only) drop adapters without embedding support
//  6. if fallback is globally disabled, truncate to the head
func (r *Router) candidates(model, preferred string, mode candidateMode) []provider.Provider {
	var available []provider.Provider
	for _, p := range r.providers {
		if p.Available() {
			available = append(available, p)
		}
	}

	sort.SliceStable(available, func(i, j int) bool {
		if available[i].Priority() != available[j].Priority() {
			return available[i].Priority() < available[j].Priority()
		}
		return available[i].Name() < available[j].Name()
	})

	if preferred != "" {
		for i, p := range available {
			if strings.EqualFold(p.Name(), preferred) {
				hoisted := append([]provider.Provider{p}, append(append([]provider.Provider{}, available[:i]...), available[i+1:]...)...)
				available = hoisted
				break
			}
		}
	}

	if model != "" {
		var filtered []provider.Provider
		for _, p := range available {
			if p.SupportsModel(model) {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) > 0 {
			available = filtered
		}
	}

	if mode == modeEmbedding {
		var embeddable []provider.Provider
		for _, p := range available {
			if p.Capabilities().Embedding {
				embeddable = append(embeddable, p)
			}
		}
		available = embeddable
	}

	if !r.cfg.FallbackEnabled && len(available) > 1 {
		available = available[:1]
	}

	return available
}

// backoff computes the jittered-exponential delay before retry attempt n
// (0-indexed: n=0 is the first retry after the initial attempt).
func backoff(base time.Duration, n int) time.Duration {
	mult := math.Pow(2, float64(n))
	d := time.Duration(float64(base) * mult)
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d + jitter
}

// runWithRetry invokes fn against one candidate, retrying on retryable
// errors up to cfg.MaxRetries times with jittered-exponential backoff.
// Returns the final value/error and how many retries were actually used.
func runWithRetry[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error, int) {
	var (
		result T
		err    error
	)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil, attempt
		}
		if !gwerror.IsRetryable(err) {
			return result, err, attempt
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := backoff(cfg.RetryDelay, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return result, ctx.Err(), attempt
		}
	}

	return result, err, cfg.MaxRetries
}

// Route executes fn (a closure over the one canonical call, ChatCompletion
// or Embed, bound to a candidate) against the ordered candidate list: the
// head candidate gets its own retry budget, and on terminal failure the
// router falls through to the next candidate with an independent budget.
// Each fallback hop beyond the first candidate adds one to the returned
// retry count, on top of whatever retries the winning candidate itself
// used.
func Route[T any](
	ctx context.Context,
	r *Router,
	candidates []provider.Provider,
	call func(ctx context.Context, p provider.Provider) (T, error),
) (T, provider.Provider, int, error) {
	var (
		zero    T
		lastErr error
	)

	if len(candidates) == 0 {
		return zero, nil, 0, gwerror.New(gwerror.CodeNoProviders, false, "no providers available for this request")
	}

	fallbackHops := 0
	for i, p := range candidates {
		value, err, retries := runWithRetry(ctx, r.cfg, func(ctx context.Context) (T, error) {
			return breaker.Execute(r.breakers, p.Name(), func() (T, error) {
				return call(ctx, p)
			})
		})
		if err == nil {
			return value, p, fallbackHops + retries, nil
		}

		lastErr = err
		if i < len(candidates)-1 {
			fallbackHops++
		}
	}

	return zero, nil, 0, lastErr
}

// ChatCandidates and EmbeddingCandidates are the two public entry points
// ingress uses to build a candidate list before calling Route.
func (r *Router) ChatCandidates(model, preferred string) []provider.Provider {
	return r.candidates(model, preferred, modeChat)
}

func (r *Router) EmbeddingCandidates(model, preferred string) []provider.Provider {
	return r.candidates(model, preferred, modeEmbedding)
}

// Head returns the first candidate for streaming, which bypasses retry and
// fallback entirely (§4.3 "Streaming chat").
func Head(candidates []provider.Provider) (provider.Provider, error) {
	if len(candidates) == 0 {
		return nil, gwerror.New(gwerror.CodeNoProviders, false, "no providers available for this request")
	}
	return candidates[0], nil
}

// Providers exposes the full configured fleet, for /v1/models and
// /health/detailed.
func (r *Router) Providers() []provider.Provider {
	return r.providers
}
