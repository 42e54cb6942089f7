package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_ChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var wireReq openaiChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&wireReq))
		assert.Equal(t, "gpt-4o-mini", wireReq.Model)

		resp := openaiChatResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o-mini",
			Choices: []openaiChoice{{
				Index:        0,
				Message:      openaiMessage{Role: "assistant", Content: "hi"},
				FinishReason: "stop",
			}},
			Usage: openaiUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(AdapterConfig{Name: "openai", Enabled: true, BaseURL: srv.URL, Credential: "sk-test"}, 5*time.Second, srv.Client())

	resp, err := p.ChatCompletion(context.Background(), &ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: "user", Content: "hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, FinishStop, resp.Choices[0].FinishReason)
	assert.Equal(t, "openai", resp.Gateway.Provider)
	require.NotNil(t, resp.Gateway.EstimatedCost)
}

func TestOpenAIProvider_ChatCompletionStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		events := []string{
			`{"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	p := NewOpenAIProvider(AdapterConfig{Name: "openai", Enabled: true, BaseURL: srv.URL, Credential: "k"}, 5*time.Second, srv.Client())

	ch, err := p.ChatCompletionStream(context.Background(), &ChatRequest{Model: "gpt-4o-mini", Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)

	var deltas []string
	var final StreamChunk
	for chunk := range ch {
		if chunk.Delta != "" {
			deltas = append(deltas, chunk.Delta)
		}
		if chunk.Done {
			final = chunk
		}
	}

	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 3, final.Usage.TotalTokens)
}

func TestOpenAIProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openaiEmbeddingResponse{
			Model: "text-embedding-3-small",
			Data:  []openaiEmbeddingData{{Index: 0, Embedding: []float64{0.1, 0.2}}},
			Usage: openaiUsage{PromptTokens: 2, TotalTokens: 2},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(AdapterConfig{Name: "openai", Enabled: true, BaseURL: srv.URL, Credential: "k"}, 5*time.Second, srv.Client())

	resp, err := p.Embed(context.Background(), &EmbeddingRequest{Model: "text-embedding-3-small", Input: EmbeddingInput{Values: []string{"hi"}}})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, []float64{0.1, 0.2}, resp.Data[0].Embedding)
}

func TestOpenAIProvider_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(AdapterConfig{Name: "openai", Enabled: true, BaseURL: srv.URL, Credential: "k"}, 5*time.Second, srv.Client())
	assert.True(t, p.HealthCheck(context.Background()))
}

func TestOpenAIProvider_HealthCheck_NonOKIsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(AdapterConfig{Name: "openai", Enabled: true, BaseURL: srv.URL, Credential: "k"}, 5*time.Second, srv.Client())
	assert.False(t, p.HealthCheck(context.Background()))
}
