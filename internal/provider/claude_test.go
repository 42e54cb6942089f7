package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/howard-nolan/aigateway/internal/gwerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToClaudeRequest_OnlyFirstSystemMessageKept(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "first"},
			{Role: "system", Content: "second"},
			{Role: "user", Content: "hi"},
		},
	}

	cr := toClaudeRequest(req)

	assert.Equal(t, "first", cr.System)
	require.Len(t, cr.Messages, 1)
	assert.Equal(t, "user", cr.Messages[0].Role)
}

func TestToClaudeRequest_DefaultsMaxTokens(t *testing.T) {
	cr := toClaudeRequest(&ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	assert.Equal(t, claudeDefaultMaxTokens, cr.MaxTokens)
}

func TestToClaudeRequest_RespectsExplicitMaxTokens(t *testing.T) {
	cr := toClaudeRequest(&ChatRequest{MaxTokens: 256, Messages: []Message{{Role: "user", Content: "hi"}}})
	assert.Equal(t, 256, cr.MaxTokens)
}

func TestClaudeFinishReason(t *testing.T) {
	assert.Equal(t, FinishStop, claudeFinishReason("end_turn"))
	assert.Equal(t, FinishStop, claudeFinishReason("stop_sequence"))
	assert.Equal(t, FinishLength, claudeFinishReason("max_tokens"))
	assert.Equal(t, FinishStop, claudeFinishReason(""))
}

func TestClaudeProvider_ChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Equal(t, "sekret", r.Header.Get("x-api-key"))
		resp := claudeResponse{
			ID:         "msg_1",
			Content:    []claudeContentBlock{{Type: "text", Text: "hi there"}},
			Model:      "claude-3-opus",
			StopReason: "end_turn",
			Usage:      claudeUsage{InputTokens: 4, OutputTokens: 6},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewClaudeProvider(AdapterConfig{Name: "claude", Enabled: true, BaseURL: srv.URL, Credential: "sekret"}, 5*time.Second, srv.Client())

	resp, err := p.ChatCompletion(context.Background(), &ChatRequest{
		Model:    "claude-3-opus",
		Messages: []Message{{Role: "user", Content: "hello"}},
	})

	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hi there", resp.Choices[0].Message.Content)
	assert.Equal(t, FinishStop, resp.Choices[0].FinishReason)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
}

func TestClaudeProvider_Embed_CapabilityUnsupported(t *testing.T) {
	p := NewClaudeProvider(AdapterConfig{Name: "claude", Enabled: true}, 5*time.Second, http.DefaultClient)

	_, err := p.Embed(context.Background(), &EmbeddingRequest{})

	require.Error(t, err)
	assert.Equal(t, gwerror.CodeCapabilityUnsupported, gwerror.CodeOf(err))
}

func TestClaudeProvider_HealthCheck_ReflectsAvailability(t *testing.T) {
	p := NewClaudeProvider(AdapterConfig{Name: "claude", Enabled: true, RequireCredential: true, Credential: ""}, 5*time.Second, http.DefaultClient)
	assert.False(t, p.HealthCheck(context.Background()))
}
