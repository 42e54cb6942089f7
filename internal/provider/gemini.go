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
// GeminiProvider — the restructured-content adapter shape
// ---------------------------------------------------------------------------

// GeminiProvider implements Provider for Gemini's generateContent API.
// Unlike the passthrough shape, the wire format genuinely restructures the
// conversation: a list of "contents" (role + parts) plus a separate
// "generationConfig", with system messages folded into the first user
// turn rather than carried as their own role.
type GeminiProvider struct {
	base
	client  *http.Client
	timeout time.Duration
}

// NewGeminiProvider constructs a Gemini-shaped adapter. Embeddings are
// supported (unlike Claude), via a distinct endpoint.
func NewGeminiProvider(cfg AdapterConfig, timeout time.Duration, client *http.Client) *GeminiProvider {
	cfg.Capabilities = Capabilities{Chat: true, ChatStream: true, Embedding: true}
	return &GeminiProvider{base: newBase(cfg), client: client, timeout: timeout}
}

// --- wire types -------------------------------------------------------------

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata"`
}

// toGeminiRequest translates the canonical ChatRequest into Gemini's shape.
//
// System messages are not a native role on this upstream. Per the
// gateway's contract: concatenate each run of system messages (blank-line
// separated) and prepend that text to the content of the very next user
// message. If system text is still pending once the loop ends — either
// because the whole conversation was system-only, or a trailing run of
// system messages had no following user turn to attach to — emit a
// synthetic user message carrying it, rather than silently dropping it.
func toGeminiRequest(req *ChatRequest) *geminiRequest {
	gr := &geminiRequest{}

	var pendingSystem []string
	flushInto := func(content string) string {
		if len(pendingSystem) == 0 {
			return content
		}
		prefix := strings.Join(pendingSystem, "\n\n")
		pendingSystem = nil
		if content == "" {
			return prefix
		}
		return prefix + "\n\n" + content
	}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			pendingSystem = append(pendingSystem, msg.Content)
			continue
		}

		role := msg.Role
		if role == "assistant" {
			role = "model"
		}

		content := msg.Content
		if role == "user" {
			content = flushInto(content)
		}

		gr.Contents = append(gr.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: content}},
		})
	}

	if len(pendingSystem) > 0 {
		synthetic := flushInto("")
		gr.Contents = append(gr.Contents, geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: synthetic}},
		})
	}

	if req.Temperature != nil || req.TopP != nil || req.MaxTokens > 0 || len(req.Stop) > 0 {
		gr.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.Stop,
		}
	}

	return gr
}

func geminiFinishReason(reason string) FinishReason {
	switch reason {
	case "MAX_TOKENS":
		return FinishLength
	case "SAFETY", "RECITATION":
		return FinishContentFilter
	case "STOP", "":
		return FinishStop
	default:
		return FinishReason(strings.ToLower(reason))
	}
}

// ---------------------------------------------------------------------------
// Non-streaming
// ---------------------------------------------------------------------------

func (g *GeminiProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(toGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.cfg.BaseURL, req.Model, g.cfg.Credential)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(g.cfg.Name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, classifyStatus(g.cfg.Name, httpResp.StatusCode, errBody)
	}

	var wireResp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(wireResp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	candidate := wireResp.Candidates[0]
	var sb strings.Builder
	for _, p := range candidate.Content.Parts {
		sb.WriteString(p.Text)
	}

	resp := &ChatResponse{
		Model: req.Model,
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: "assistant", Content: sb.String()},
			FinishReason: geminiFinishReason(candidate.FinishReason),
		}},
	}
	if wireResp.UsageMetadata != nil {
		resp.Usage = Usage{
			PromptTokens:     wireResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: wireResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wireResp.UsageMetadata.TotalTokenCount,
		}
	}

	stampChat(resp, &g.base, ctx, req.Model, time.Since(start).Milliseconds())
	return resp, nil
}

// ---------------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------------

func (g *GeminiProvider) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	body, err := json.Marshal(toGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", g.cfg.BaseURL, req.Model, g.cfg.Credential)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(g.cfg.Name, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, classifyStatus(g.cfg.Name, httpResp.StatusCode, errBody)
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
			jsonData := strings.TrimPrefix(line, "data: ")

			var wireResp geminiResponse
			if err := json.Unmarshal([]byte(jsonData), &wireResp); err != nil {
				select {
				case ch <- StreamChunk{Done: true, Error: fmt.Errorf("decoding stream event: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(wireResp.Candidates) == 0 {
				continue
			}
			candidate := wireResp.Candidates[0]

			var delta string
			for _, p := range candidate.Content.Parts {
				delta += p.Text
			}

			chunk := StreamChunk{Model: req.Model, Delta: delta}
			if candidate.FinishReason != "" {
				chunk.Done = true
				if wireResp.UsageMetadata != nil {
					chunk.Usage = &Usage{
						PromptTokens:     wireResp.UsageMetadata.PromptTokenCount,
						CompletionTokens: wireResp.UsageMetadata.CandidatesTokenCount,
						TotalTokens:      wireResp.UsageMetadata.TotalTokenCount,
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

type geminiEmbedRequestItem struct {
	Content geminiContent `json:"content"`
}

type geminiBatchEmbedRequest struct {
	Requests []geminiEmbedRequestItem `json:"requests"`
}

type geminiEmbedding struct {
	Values []float64 `json:"values"`
}

type geminiBatchEmbedResponse struct {
	Embeddings []geminiEmbedding `json:"embeddings"`
}

// Embed uses Gemini's batchEmbedContents endpoint: each input string
// becomes its own content.parts entry, and — as with chat — the API key
// travels as a query parameter, never a header.
func (g *GeminiProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	wireReq := geminiBatchEmbedRequest{}
	for _, text := range req.Input.Values {
		wireReq.Requests = append(wireReq.Requests, geminiEmbedRequestItem{
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		})
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents?key=%s", g.cfg.BaseURL, req.Model, g.cfg.Credential)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(g.cfg.Name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, classifyStatus(g.cfg.Name, httpResp.StatusCode, errBody)
	}

	var wireResp geminiBatchEmbedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	resp := &EmbeddingResponse{Model: req.Model}
	for i, e := range wireResp.Embeddings {
		resp.Data = append(resp.Data, EmbeddingVector{Index: i, Embedding: e.Values})
	}

	stampEmbedding(resp, &g.base, ctx, req.Model, time.Since(start).Milliseconds())
	return resp, nil
}

// ---------------------------------------------------------------------------
// Health check
// ---------------------------------------------------------------------------

// HealthCheck hits the model-list endpoint with the same query-param
// credential chat/embed use — Gemini has no separate health route.
func (g *GeminiProvider) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/models?key=%s", g.cfg.BaseURL, g.cfg.Credential)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer httpResp.Body.Close()
	return httpResp.StatusCode == http.StatusOK
}
