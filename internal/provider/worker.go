package provider

import (
	"context"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// WorkerProvider — the local-worker passthrough adapter shape
// ---------------------------------------------------------------------------

// WorkerProvider implements Provider for the in-cluster inference worker.
// It speaks the same wire shape as OpenAIProvider but needs no credential
// and is never billed — estimated cost is always 0 because the
// zero-valued PromptPricePer1K/CompletionPricePer1K on its AdapterConfig
// make OpenAIProvider-style cost math come out to exactly 0 as well, so
// this type simply wraps an *OpenAIProvider rather than duplicating its
// wire translation.
type WorkerProvider struct {
	*OpenAIProvider
}

// NewWorkerProvider constructs the worker adapter. cfg.RequireCredential
// should be false — the worker is unauthenticated by design.
func NewWorkerProvider(cfg AdapterConfig, timeout time.Duration, client *http.Client) *WorkerProvider {
	cfg.PromptPricePer1K = 0
	cfg.CompletionPricePer1K = 0
	inner := NewOpenAIProvider(cfg, timeout, client)
	return &WorkerProvider{OpenAIProvider: inner}
}

// HealthCheck hits the worker's dedicated /health route rather than a
// model-list endpoint — in-cluster workers don't expose one.
func (w *WorkerProvider) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}

	httpResp, err := w.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer httpResp.Body.Close()
	return httpResp.StatusCode == http.StatusOK
}
