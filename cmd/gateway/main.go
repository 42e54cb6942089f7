// Package main is the entry point for the AI inference gateway.
package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/howard-nolan/aigateway/internal/breaker"
	"github.com/howard-nolan/aigateway/internal/cache"
	"github.com/howard-nolan/aigateway/internal/config"
	"github.com/howard-nolan/aigateway/internal/metrics"
	"github.com/howard-nolan/aigateway/internal/provider"
	"github.com/howard-nolan/aigateway/internal/ratelimit"
	"github.com/howard-nolan/aigateway/internal/router"
	"github.com/howard-nolan/aigateway/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// providerFactory builds one adapter from its configuration. Keeping this
// as a map of constructors (rather than a big if/else chain) is the
// pattern this gateway's teacher used for its two-provider registry; here
// it scales to all four adapter shapes.
type providerFactory func(name string, cfg config.ProviderConfig) provider.Provider

func adapterConfig(name string, cfg config.ProviderConfig, requireCredential bool) provider.AdapterConfig {
	return provider.AdapterConfig{
		Name:                 name,
		Priority:             cfg.Priority,
		Enabled:              cfg.Enabled,
		Credential:           cfg.APIKey,
		RequireCredential:    requireCredential,
		BaseURL:              cfg.BaseURL,
		DefaultModel:         cfg.DefaultModel,
		ModelPatterns:        cfg.Models,
		PromptPricePer1K:     cfg.PromptPricePer1K,
		CompletionPricePer1K: cfg.CompletionPricePer1K,
	}
}

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	httpClient := http.DefaultClient

	constructors := map[string]providerFactory{
		"openai": func(name string, pc config.ProviderConfig) provider.Provider {
			timeout := time.Duration(pc.TimeoutSeconds) * time.Second
			return provider.NewOpenAIProvider(adapterConfig(name, pc, true), timeout, httpClient)
		},
		"gemini": func(name string, pc config.ProviderConfig) provider.Provider {
			timeout := time.Duration(pc.TimeoutSeconds) * time.Second
			return provider.NewGeminiProvider(adapterConfig(name, pc, true), timeout, httpClient)
		},
		"claude": func(name string, pc config.ProviderConfig) provider.Provider {
			timeout := time.Duration(pc.TimeoutSeconds) * time.Second
			return provider.NewClaudeProvider(adapterConfig(name, pc, true), timeout, httpClient)
		},
		"local-worker": func(name string, pc config.ProviderConfig) provider.Provider {
			timeout := time.Duration(pc.TimeoutSeconds) * time.Second
			return provider.NewWorkerProvider(adapterConfig(name, pc, false), timeout, httpClient)
		},
	}

	var providers []provider.Provider
	for name, provCfg := range cfg.Providers {
		factory, ok := constructors[name]
		if !ok {
			log.Fatalf("unknown provider in config: %q", name)
		}
		p := factory(name, provCfg)
		providers = append(providers, p)
		log.Printf("configured provider %q (available=%v priority=%d)", name, p.Available(), p.Priority())
	}

	reg := prometheus.DefaultRegisterer
	m := metrics.NewRegistered(reg)

	breakers := breaker.NewRegistry(breaker.Config{
		FailureRatio:   cfg.Breaker.FailureRatio,
		MinRequests:    uint32(cfg.Breaker.MinRequests),
		Window:         time.Duration(cfg.Breaker.WindowSeconds) * time.Second,
		OpenTimeout:    time.Duration(cfg.Breaker.OpenTimeoutSeconds) * time.Second,
		HalfOpenProbes: uint32(cfg.Breaker.HalfOpenProbes),
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("breaker %q: %s -> %s", name, from, to)
			m.SetBreakerState(name, float64(to))
		},
	})

	rt := router.New(providers, breakers, router.Config{
		FallbackEnabled: cfg.Routing.FallbackEnabled,
		MaxRetries:      cfg.Routing.MaxRetries,
		RetryDelay:      time.Duration(cfg.Routing.RetryDelayMs) * time.Millisecond,
	})

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
	ch := cache.New(rdb, time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.Cache.Enabled)

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Enabled)

	srv := server.New(cfg, rt, ch, limiter, breakers, m)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("aigateway listening on :%d", cfg.Server.Port)

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
