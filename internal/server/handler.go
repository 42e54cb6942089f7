package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/howard-nolan/aigateway/internal/gwerror"
	"github.com/howard-nolan/aigateway/internal/provider"
	"github.com/howard-nolan/aigateway/internal/ratelimit"
	"github.com/howard-nolan/aigateway/internal/router"
	"github.com/howard-nolan/aigateway/internal/stream"
)

// errorBody is the structured error shape every failing endpoint returns:
// {error: {type, message, code}}.
type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a gateway error to its HTTP status and structured body.
// Any error that never went through gwerror.New/Wrap is treated as
// internal_error.
func writeError(w http.ResponseWriter, err error) {
	code := gwerror.CodeOf(err)
	status := gwerror.HTTPStatus(code)

	var body errorBody
	body.Error.Type = string(code)
	body.Error.Message = err.Error()
	body.Error.Code = string(code)
	writeJSON(w, status, body)
}

// stampRateLimitHeaders writes the standard rate-limit headers from a
// limiter snapshot, per §6.
func stampRateLimitHeaders(w http.ResponseWriter, snap ratelimit.Snapshot) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(snap.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(snap.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(snap.ResetSeconds))
}

// checkRateLimit consults the limiter for identity, stamps headers, and
// writes a 429 body if the caller is over budget. Returns false when the
// caller should stop handling the request.
func (s *Server) checkRateLimit(w http.ResponseWriter, identity string) bool {
	snap, ok := s.limiter.Allow(identity)
	stampRateLimitHeaders(w, snap)
	if !ok {
		writeError(w, gwerror.New(gwerror.CodeRateLimited, false, "rate limit exceeded for %q", identity))
		return false
	}
	return true
}

func validMessages(messages []provider.Message) error {
	if len(messages) == 0 {
		return gwerror.New(gwerror.CodeInvalidRequest, false, "messages must not be empty")
	}
	for _, m := range messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return gwerror.New(gwerror.CodeInvalidRequest, false, "invalid message role: %q", m.Role)
		}
	}
	return nil
}

// handleChatCompletions serves POST /v1/chat/completions: non-streaming
// chat only. §4.6 requires streaming requests to be refused here and
// redirected to the dedicated stream endpoint.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	var req provider.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerror.New(gwerror.CodeInvalidRequest, false, "invalid request body: %v", err))
		return
	}
	if err := validMessages(req.Messages); err != nil {
		writeError(w, err)
		return
	}
	if req.Stream {
		writeError(w, gwerror.New(gwerror.CodeInvalidRequest, false, "use POST /v1/chat/completions/stream for streaming requests"))
		return
	}

	identity := identify(r)
	req.CallerID = identity
	if !s.checkRateLimit(w, identity) {
		return
	}

	ctx := provider.WithRequestID(r.Context(), requestID)

	if cached, ok := s.cache.Lookup(ctx, &req); ok {
		if s.metrics != nil {
			s.metrics.CacheHits.Inc()
		}
		writeJSON(w, http.StatusOK, cached)
		return
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	candidates := s.rt.ChatCandidates(req.Model, req.Provider)
	resp, p, retries, err := router.Route(ctx, s.rt, candidates, func(ctx context.Context, cand provider.Provider) (*provider.ChatResponse, error) {
		return cand.ChatCompletion(ctx, &req)
	})

	if s.metrics != nil {
		name := "none"
		if p != nil {
			name = p.Name()
		}
		s.metrics.ObserveProviderCall(name, err, string(gwerror.CodeOf(err)))
		if retries > 0 {
			s.metrics.ObserveRetry(name)
		}
	}

	if err != nil {
		log.Printf("chat completion failed: %v", err)
		writeError(w, err)
		return
	}

	resp.Gateway.RetryCount = retries

	if shouldCache(&req, resp) {
		s.cache.Store(ctx, &req, resp)
	}

	writeJSON(w, http.StatusOK, resp)
}

// shouldCache implements §4.4's Store refusal rule: no choices, any choice
// with finish reason "error", or a streaming request never gets cached.
func shouldCache(req *provider.ChatRequest, resp *provider.ChatResponse) bool {
	if req.Stream {
		return false
	}
	if len(resp.Choices) == 0 {
		return false
	}
	for _, c := range resp.Choices {
		if c.FinishReason == provider.FinishError {
			return false
		}
	}
	return true
}

// handleChatCompletionsStream serves POST /v1/chat/completions/stream.
// Streaming bypasses retry and fallback entirely (§4.3): only the head
// candidate is ever tried.
func (s *Server) handleChatCompletionsStream(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	var req provider.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerror.New(gwerror.CodeInvalidRequest, false, "invalid request body: %v", err))
		return
	}
	if err := validMessages(req.Messages); err != nil {
		writeError(w, err)
		return
	}
	req.Stream = true

	identity := identify(r)
	req.CallerID = identity
	if !s.checkRateLimit(w, identity) {
		return
	}

	ctx := provider.WithRequestID(r.Context(), requestID)

	candidates := s.rt.ChatCandidates(req.Model, req.Provider)
	head, err := router.Head(candidates)
	if err != nil {
		writeError(w, err)
		return
	}

	chunks, err := head.ChatCompletionStream(ctx, &req)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveProviderCall(head.Name(), err, string(gwerror.CodeOf(err)))
		}
		writeError(w, err)
		return
	}

	if err := stream.Write(w, chunks); err != nil {
		log.Printf("stream write error: %v", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveProviderCall(head.Name(), nil, "")
	}
}

// handleEmbeddings serves POST /v1/embeddings. Embeddings are never
// cached (§4.4 scopes the cache to chat only).
func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	var req provider.EmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerror.New(gwerror.CodeInvalidRequest, false, "invalid request body: %v", err))
		return
	}
	if len(req.Input.Values) == 0 {
		writeError(w, gwerror.New(gwerror.CodeInvalidRequest, false, "input must not be empty"))
		return
	}

	identity := identify(r)
	req.CallerID = identity
	if !s.checkRateLimit(w, identity) {
		return
	}

	ctx := provider.WithRequestID(r.Context(), requestID)

	candidates := s.rt.EmbeddingCandidates(req.Model, req.Provider)
	resp, p, retries, err := router.Route(ctx, s.rt, candidates, func(ctx context.Context, cand provider.Provider) (*provider.EmbeddingResponse, error) {
		return cand.Embed(ctx, &req)
	})

	if s.metrics != nil {
		name := "none"
		if p != nil {
			name = p.Name()
		}
		s.metrics.ObserveProviderCall(name, err, string(gwerror.CodeOf(err)))
	}

	if err != nil {
		writeError(w, err)
		return
	}

	resp.Gateway.RetryCount = retries
	writeJSON(w, http.StatusOK, resp)
}
