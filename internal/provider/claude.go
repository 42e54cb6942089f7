package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// ClaudeProvider — the restructured-system adapter shape
// ---------------------------------------------------------------------------

// claudeAPIVersion pins the upstream's date-based API version header.
const claudeAPIVersion = "2023-06-01"

// claudeDefaultMaxTokens is sent when the caller didn't specify max_tokens.
// Claude's Messages API rejects requests without it.
const claudeDefaultMaxTokens = 4096

// ClaudeProvider implements Provider for Anthropic's Messages API. Two
// structural differences from the other shapes: "system" is a top-level
// field rather than a message role, and there is no embeddings endpoint at
// all — Embed always returns CodeCapabilityUnsupported.
type ClaudeProvider struct {
	base
	client  *http.Client
	timeout time.Duration
}

// NewClaudeProvider constructs a Claude-shaped adapter.
func NewClaudeProvider(cfg AdapterConfig, timeout time.Duration, client *http.Client) *ClaudeProvider {
	cfg.Capabilities = Capabilities{Chat: true, ChatStream: true, Embedding: false}
	return &ClaudeProvider{base: newBase(cfg), client: client, timeout: timeout}
}

// --- wire types -------------------------------------------------------------

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	StopSeqs    []string        `json:"stop_sequences,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeResponse struct {
	ID         string                `json:"id"`
	Content    []claudeContentBlock  `json:"content"`
	Model      string                `json:"model"`
	StopReason string                `json:"stop_reason"`
	Usage      claudeUsage           `json:"usage"`
}

// toClaudeRequest pulls the FIRST system message into the top-level
// "system" field and drops any further system messages from the
// conversation — this mirrors the upstream's native behavior and is kept
// as documented, not "fixed" (see DESIGN.md's notes on this open question).
func toClaudeRequest(req *ChatRequest) *claudeRequest {
	cr := &claudeRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		StopSeqs:    req.Stop,
	}

	haveSystem := false
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if !haveSystem {
				cr.System = msg.Content
				haveSystem = true
			}
			continue
		}
		cr.Messages = append(cr.Messages, claudeMessage{Role: msg.Role, Content: msg.Content})
	}

	if req.MaxTokens > 0 {
		cr.MaxTokens = req.MaxTokens
	} else {
		cr.MaxTokens = claudeDefaultMaxTokens
	}

	return cr
}

func claudeFinishReason(reason string) FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "max_tokens":
		return FinishLength
	case "":
		return FinishStop
	default:
		return FinishReason(reason)
	}
}

// ---------------------------------------------------------------------------
// Non-streaming
// ---------------------------------------------------------------------------

func (c *ClaudeProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	wireReq := toClaudeRequest(req)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.Credential)
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(c.cfg.Name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, classifyStatus(c.cfg.Name, httpResp.StatusCode, errBody)
	}

	var wireResp claudeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	var text string
	for _, block := range wireResp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	resp := &ChatResponse{
		ID:    wireResp.ID,
		Model: wireResp.Model,
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: "assistant", Content: text},
			FinishReason: claudeFinishReason(wireResp.StopReason),
		}},
		Usage: Usage{
			PromptTokens:     wireResp.Usage.InputTokens,
			CompletionTokens: wireResp.Usage.OutputTokens,
			TotalTokens:      wireResp.Usage.InputTokens + wireResp.Usage.OutputTokens,
		},
	}

	stampChat(resp, &c.base, ctx, req.Model, time.Since(start).Milliseconds())
	return resp, nil
}

// ---------------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------------

// claudeStreamEvent is a lightweight wrapper decoded first just to read the
// "type" field — Claude sends named SSE events, each with a different JSON
// shape, instead of one uniform shape repeated every event like Gemini.
type claudeStreamEvent struct {
	Type  string               `json:"type"`
	Message *claudeEventMessage `json:"message,omitempty"`
	Delta   *claudeEventDelta   `json:"delta,omitempty"`
	Usage   *claudeUsage        `json:"usage,omitempty"`
}

type claudeEventMessage struct {
	ID    string      `json:"id"`
	Model string      `json:"model"`
	Usage claudeUsage `json:"usage"`
}

type claudeEventDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

func (c *ClaudeProvider) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	wireReq := toClaudeRequest(req)
	wireReq.Stream = true

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.Credential)
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(c.cfg.Name, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, classifyStatus(c.cfg.Name, httpResp.StatusCode, errBody)
	}

	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		var (
			respID       string
			model        string
			inputTokens  int
			outputTokens int
		)

		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if len(line) < 6 || line[:6] != "data: " {
				continue
			}
			jsonData := line[6:]

			var event claudeStreamEvent
			if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
				select {
				case ch <- StreamChunk{Done: true, Error: fmt.Errorf("decoding stream event: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					respID = event.Message.ID
					model = event.Message.Model
					inputTokens = event.Message.Usage.InputTokens
				}

			case "content_block_delta":
				if event.Delta == nil {
					continue
				}
				chunk := StreamChunk{ID: respID, Model: model, Delta: event.Delta.Text}
				select {
				case ch <- chunk:
				case <-ctx.Done():
					return
				}

			case "message_delta":
				if event.Usage != nil {
					outputTokens = event.Usage.OutputTokens
				}

			case "message_stop":
				chunk := StreamChunk{
					ID:    respID,
					Model: model,
					Done:  true,
					Usage: &Usage{
						PromptTokens:     inputTokens,
						CompletionTokens: outputTokens,
						TotalTokens:      inputTokens + outputTokens,
					},
				}
				select {
				case ch <- chunk:
				case <-ctx.Done():
				}
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
// Embeddings — unsupported
// ---------------------------------------------------------------------------

// Embed always fails: the Claude-shaped upstream has no embeddings
// endpoint. The router's capability filter (§4.3 step 5) should exclude
// this adapter from embedding candidate lists before it ever gets here;
// this is the defense-in-depth path for direct callers.
func (c *ClaudeProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	return nil, classifyEmbeddingUnsupported(errCapabilityUnsupported(c.cfg.Name))
}

// ---------------------------------------------------------------------------
// Health check
// ---------------------------------------------------------------------------

// HealthCheck makes no upstream call: Claude's Messages API has no cheap,
// side-effect-free probe endpoint comparable to a model list. It reports
// the adapter's availability, so it is true for an enabled adapter with a
// credential and false otherwise.
func (c *ClaudeProvider) HealthCheck(ctx context.Context) bool {
	return c.Available()
}
