// Package gwerror defines the gateway's error taxonomy: a fixed set of
// string codes (not Go error types) that every layer — adapters, router,
// limiter, ingress — raises and classifies against. Keeping the taxonomy
// as codes rather than a type hierarchy means the HTTP layer, the retry
// logic, and any future client never need a type switch; they compare a
// string.
package gwerror

import (
	"errors"
	"fmt"
	"strings"
)

// Code is one of the fixed error classes from the gateway's error table.
type Code string

const (
	CodeInvalidRequest        Code = "invalid_request_error"
	CodeRateLimited           Code = "rate_limit_exceeded"
	CodeCapabilityUnsupported Code = "capability_unsupported"
	CodeNoProviders           Code = "no_providers_available"
	CodeUpstreamTimeout       Code = "upstream_timeout"
	CodeUpstreamTransport     Code = "upstream_transport"
	CodeUpstreamServerError   Code = "upstream_server_error"
	CodeUpstreamThrottled     Code = "upstream_throttled"
	CodeUpstreamClientError   Code = "upstream_client_error"
	CodeProviderUnavailable   Code = "provider_unavailable"
	CodeInternal              Code = "internal_error"
)

// Error is the concrete type every gateway component raises. Retryable is
// set at construction time by whichever layer has structural knowledge of
// the failure (an adapter that just got a 503 knows it's retryable; a
// validation failure in ingress knows it isn't).
type Error struct {
	Code      Code
	Message   string
	Retryable bool
}

func (e *Error) Error() string { return e.Message }

// New builds an *Error with a formatted message, the way fmt.Errorf does.
func New(code Code, retryable bool, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Retryable: retryable}
}

// Wrap attaches a code to an existing error without discarding its message.
func Wrap(code Code, retryable bool, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Retryable: retryable}
}

// substringFallback mirrors the source's error-message sniffing (spec §7,
// §9): a fallback for adapters that return a plain error instead of an
// *Error. Kept narrow and used only when structural classification fails.
var substringFallback = []string{"timeout", "connection", "502", "503", "504", "429"}

// IsRetryable reports whether err should be retried by the router. It
// prefers the structural Code on an *Error; only falls back to substring
// matching on the error text for errors that didn't go through this
// package (e.g. a raw net/http error an adapter forgot to classify).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Retryable
	}
	msg := strings.ToLower(err.Error())
	for _, s := range substringFallback {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// CodeOf extracts the Code from err, defaulting to CodeInternal for errors
// that never went through New/Wrap.
func CodeOf(err error) Code {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return CodeInternal
}

// HTTPStatus maps a Code to the status ingress should respond with, per
// the gateway's error-to-status table.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidRequest, CodeCapabilityUnsupported:
		return 400
	case CodeRateLimited:
		return 429
	case CodeNoProviders:
		return 503
	default:
		return 500
	}
}
