// Package fingerprint computes the deterministic cache key for a chat
// request. The cache derives every key through this package, so the
// derivation lives in one place of its own.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/howard-nolan/aigateway/internal/provider"
)

// keyPrefix namespaces every cache entry in the shared Redis keyspace.
const keyPrefix = "ai:cache:"

// defaultTemperature mirrors the canonical request's documented default —
// deliberately duplicated here rather than imported, so the fingerprint
// stays correct even if a future caller changes the request type's zero
// value handling elsewhere.
const defaultTemperature = 0.7

// Compute builds the canonical fingerprint string per the gateway's
// caching contract:
//
//	<model or "default"> "|" <temperature or 0.7> "|"
//	for each message in order: <role> ":" <content> "|"
//
// Deliberately excludes top-p, penalties, max-tokens, and caller id — two
// requests differing only in those fields hash identically. That's a
// documented property of the cache, not an oversight here.
func Compute(req *provider.ChatRequest) string {
	model := req.Model
	if model == "" {
		model = "default"
	}

	temp := defaultTemperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}

	var sb strings.Builder
	sb.WriteString(model)
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatFloat(temp, 'g', -1, 64))
	sb.WriteByte('|')
	for _, msg := range req.Messages {
		sb.WriteString(msg.Role)
		sb.WriteByte(':')
		sb.WriteString(msg.Content)
		sb.WriteByte('|')
	}
	return sb.String()
}

// Key returns the Redis key for req: the keyPrefix plus the first 32 hex
// characters of SHA-256 over Compute(req).
func Key(req *provider.ChatRequest) string {
	sum := sha256.Sum256([]byte(Compute(req)))
	return keyPrefix + hex.EncodeToString(sum[:])[:32]
}
