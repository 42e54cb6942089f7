package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// OpenAIProvider — the passthrough adapter shape
// ---------------------------------------------------------------------------

// OpenAIProvider implements Provider for any upstream that already speaks
// the canonical chat-completions shape: snake_case fields, an identical
// message schema, a "stream" bool. The request maps almost one-to-one onto
// the wire format, so this adapter is the simplest of the four — there is
// no restructuring step, just a field-for-field translation and a bearer
// auth header.
type OpenAIProvider struct {
	base
	client  *http.Client
	timeout time.Duration
}

// NewOpenAIProvider constructs a passthrough adapter. client is injected
// (not created internally) so tests can swap in a fake transport or a
// go-vcr recorder.
func NewOpenAIProvider(cfg AdapterConfig, timeout time.Duration, client *http.Client) *OpenAIProvider {
	cfg.Capabilities = Capabilities{Chat: true, ChatStream: true, Embedding: true}
	return &OpenAIProvider{base: newBase(cfg), client: client, timeout: timeout}
}

// --- wire types -------------------------------------------------------------

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type openaiChatRequest struct {
	Model            string          `json:"model"`
	Messages         []openaiMessage `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiChatResponse struct {
	ID      string         `json:"id"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

// openaiStreamChoice is the streaming variant of openaiChoice: content
// arrives incrementally in "delta" instead of all at once in "message".
type openaiStreamChoice struct {
	Index        int           `json:"index"`
	Delta        openaiMessage `json:"delta"`
	FinishReason *string       `json:"finish_reason"`
}

type openaiStreamChunk struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []openaiStreamChoice `json:"choices"`
	Usage   *openaiUsage         `json:"usage,omitempty"`
}

func toOpenAIRequest(req *ChatRequest) *openaiChatRequest {
	or := &openaiChatRequest{
		Model:            req.Model,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             req.Stop,
		MaxTokens:        req.MaxTokens,
	}
	for _, m := range req.Messages {
		or.Messages = append(or.Messages, openaiMessage{Role: m.Role, Content: m.Content, Name: m.Name})
	}
	return or
}

func mapFinishReason(reason string) FinishReason {
	switch reason {
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	case "tool_calls":
		return FinishToolCalls
	case "":
		return FinishStop
	default:
		return FinishReason(reason)
	}
}

// ---------------------------------------------------------------------------
// Non-streaming
// ---------------------------------------------------------------------------

func (o *OpenAIProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	body, err := json.Marshal(toOpenAIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.Credential)

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(o.cfg.Name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, classifyStatus(o.cfg.Name, httpResp.StatusCode, errBody)
	}

	var wireResp openaiChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	resp := &ChatResponse{
		ID:      wireResp.ID,
		Created: wireResp.Created,
		Model:   wireResp.Model,
		Usage: Usage{
			PromptTokens:     wireResp.Usage.PromptTokens,
			CompletionTokens: wireResp.Usage.CompletionTokens,
			TotalTokens:      wireResp.Usage.TotalTokens,
		},
	}
	for _, c := range wireResp.Choices {
		resp.Choices = append(resp.Choices, Choice{
			Index:        c.Index,
			Message:      Message{Role: c.Message.Role, Content: c.Message.Content},
			FinishReason: mapFinishReason(c.FinishReason),
		})
	}

	stampChat(resp, &o.base, ctx, req.Model, time.Since(start).Milliseconds())
	return resp, nil
}

// ---------------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------------

func (o *OpenAIProvider) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	wireReq := toOpenAIRequest(req)
	wireReq.Stream = true

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.Credential)

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(o.cfg.Name, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, classifyStatus(o.cfg.Name, httpResp.StatusCode, errBody)
	}

	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}

			var wireChunk openaiStreamChunk
			if err := json.Unmarshal([]byte(payload), &wireChunk); err != nil {
				select {
				case ch <- StreamChunk{Done: true, Error: fmt.Errorf("decoding stream event: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(wireChunk.Choices) == 0 {
				continue
			}
			choice := wireChunk.Choices[0]

			chunk := StreamChunk{ID: wireChunk.ID, Model: wireChunk.Model, Delta: choice.Delta.Content}
			if choice.FinishReason != nil {
				chunk.Done = true
				if wireChunk.Usage != nil {
					chunk.Usage = &Usage{
						PromptTokens:     wireChunk.Usage.PromptTokens,
						CompletionTokens: wireChunk.Usage.CompletionTokens,
						TotalTokens:      wireChunk.Usage.TotalTokens,
					}
				}
			}

			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamChunk{Done: true, Error: fmt.Errorf("reading stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// ---------------------------------------------------------------------------
// Embeddings
// ---------------------------------------------------------------------------

type openaiEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type openaiEmbeddingResponse struct {
	Data  []openaiEmbeddingData `json:"data"`
	Model string                `json:"model"`
	Usage openaiUsage           `json:"usage"`
}

func (o *OpenAIProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	body, err := json.Marshal(openaiEmbeddingRequest{Model: req.Model, Input: req.Input.Values})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.Credential)

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(o.cfg.Name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, classifyStatus(o.cfg.Name, httpResp.StatusCode, errBody)
	}

	var wireResp openaiEmbeddingResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	resp := &EmbeddingResponse{
		Model: wireResp.Model,
		Usage: Usage{
			PromptTokens: wireResp.Usage.PromptTokens,
			TotalTokens:  wireResp.Usage.TotalTokens,
		},
	}
	for _, d := range wireResp.Data {
		resp.Data = append(resp.Data, EmbeddingVector{Index: d.Index, Embedding: d.Embedding})
	}

	stampEmbedding(resp, &o.base, ctx, req.Model, time.Since(start).Milliseconds())
	return resp, nil
}

// ---------------------------------------------------------------------------
// Health check
// ---------------------------------------------------------------------------

// HealthCheck lists models — a cheap, side-effect-free call most
// OpenAI-compatible upstreams support.
func (o *OpenAIProvider) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, o.cfg.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.Credential)

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer httpResp.Body.Close()
	return httpResp.StatusCode == http.StatusOK
}
