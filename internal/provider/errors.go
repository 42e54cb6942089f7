package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/howard-nolan/aigateway/internal/gwerror"
)

// classifyTransportErr turns a failed client.Do into a structural gwerror.
// A context deadline means the per-attempt timeout elapsed; anything else
// reaching this point is a transport-level failure (refused/reset
// connection, DNS failure, etc.) — both are retryable per the gateway's
// error table.
func classifyTransportErr(providerName string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return gwerror.New(gwerror.CodeUpstreamTimeout, true,
			"%s: upstream timed out: %v", providerName, err)
	}
	return gwerror.New(gwerror.CodeUpstreamTransport, true,
		"%s: upstream transport error: %v", providerName, err)
}

// classifyStatus turns a non-2xx HTTP response into a structural gwerror.
// Callers only invoke this once they've already checked status != 200; any
// status it does not recognise as 4xx/5xx becomes a CodeInternal error.
func classifyStatus(providerName string, status int, body any) error {
	switch {
	case status == http.StatusTooManyRequests:
		return gwerror.New(gwerror.CodeUpstreamThrottled, true,
			"%s: upstream throttled (status %d): %v", providerName, status, body)
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return gwerror.New(gwerror.CodeUpstreamServerError, true,
			"%s: upstream server error (status %d): %v", providerName, status, body)
	case status >= 500:
		return gwerror.New(gwerror.CodeUpstreamServerError, true,
			"%s: upstream server error (status %d): %v", providerName, status, body)
	case status >= 400:
		return gwerror.New(gwerror.CodeUpstreamClientError, false,
			"%s: upstream rejected request (status %d): %v", providerName, status, body)
	default:
		return gwerror.New(gwerror.CodeInternal, false,
			"%s: unexpected upstream status %d: %v", providerName, status, body)
	}
}

// classifyEmbeddingUnsupported converts the sentinel unsupportedError into
// the structural CodeCapabilityUnsupported error the router/ingress expect.
func classifyEmbeddingUnsupported(err error) error {
	var u *unsupportedError
	if errors.As(err, &u) {
		return gwerror.New(gwerror.CodeCapabilityUnsupported, false, "%s", err.Error())
	}
	return fmt.Errorf("%w", err)
}
