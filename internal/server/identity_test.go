package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentify_PrefersAPIKeyHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Api-Key", "key-1")
	r.Header.Set("Authorization", "Bearer token-1")

	assert.Equal(t, "key-1", identify(r))
}

func TestIdentify_FallsBackToBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer token-1")

	assert.Equal(t, "token-1", identify(r))
}

func TestIdentify_DefaultsToAnonymous(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "anonymous", identify(r))
}

func TestIdentify_MalformedAuthHeaderIgnored(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic abc123")
	assert.Equal(t, "anonymous", identify(r))
}
