// Package errors defines the proxy's error taxonomy: a closed
// set of Kinds, each carrying the HTTP status it maps to when surfaced to a
// client.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP surfacing.
type Kind string

const (
	KindInvalidRequest     Kind = "invalid_request"
	KindAuthMissing        Kind = "auth_missing"
	KindRateLimitTransient Kind = "rate_limit_transient"
	KindRateLimitExhausted Kind = "rate_limit_exhausted"
	KindUpstreamError      Kind = "upstream_error"
	KindUpstreamNonJSON    Kind = "upstream_non_json"
	KindNetwork            Kind = "network"
	KindStreamEmpty        Kind = "stream_empty"
	KindInternal           Kind = "internal"
)

// defaultStatus is the HTTP status a Kind maps to absent an explicit
// UpstreamStatus override (used by upstream_error, which passes the
// upstream's own status through unchanged).
var defaultStatus = map[Kind]int{
	KindInvalidRequest:     http.StatusBadRequest,
	KindAuthMissing:        http.StatusUnauthorized,
	KindRateLimitTransient: http.StatusTooManyRequests,
	KindRateLimitExhausted: http.StatusTooManyRequests,
	KindUpstreamError:      http.StatusBadGateway,
	KindUpstreamNonJSON:    http.StatusBadGateway,
	KindNetwork:            http.StatusBadGateway,
	KindStreamEmpty:        http.StatusOK,
	KindInternal:           http.StatusInternalServerError,
}

// AppError is the proxy's error type. Kind identifies where in the taxonomy
// the error falls; Status overrides the Kind's default HTTP status when an
// upstream status must be passed through verbatim, and Code overrides the
// JSON "code" field.
type AppError struct {
	Kind    Kind
	Message string
	Status  int    // 0 = use defaultStatus[Kind]
	Code    string // JSON "code" field override; defaults to string(Kind)
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// HTTPStatus returns the HTTP status this error should be surfaced as.
func (e *AppError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	if s, ok := defaultStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// JSON returns the {"error": {...}} envelope body for this error.
func (e *AppError) JSON() map[string]interface{} {
	code := e.Code
	if code == "" {
		code = string(e.Kind)
	}
	body := map[string]interface{}{"message": e.Message}
	if code != "" {
		body["code"] = code
	}
	return map[string]interface{}{"error": body}
}

func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: cause}
}

func InvalidRequest(message string) *AppError { return New(KindInvalidRequest, message) }
func AuthMissing(provider string) *AppError {
	return New(KindAuthMissing, "no credentials configured for provider "+provider)
}
func RateLimitTransient(message string) *AppError { return New(KindRateLimitTransient, message) }

// RateLimitExhausted is the terminal 429: every candidate key for the
// mapping is cooled down.
func RateLimitExhausted() *AppError {
	return &AppError{Kind: KindRateLimitExhausted, Code: "all_providers_cooldown", Message: "all providers cooled down"}
}

func UpstreamError(status int, message string) *AppError {
	return &AppError{Kind: KindUpstreamError, Message: message, Status: status}
}
func UpstreamNonJSON(message string) *AppError { return New(KindUpstreamNonJSON, message) }
func Network(cause error) *AppError            { return Wrap(KindNetwork, "upstream request failed", cause) }
func StreamEmpty() *AppError {
	return New(KindStreamEmpty, "Upstream model returned empty response (0 tokens)")
}
func Internal(message string, cause error) *AppError {
	return Wrap(KindInternal, message, cause)
}

// Is reports whether err is an *AppError of the given Kind.
func Is(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// As is a thin re-export of errors.As for callers that already import this
// package, avoiding a second import of the stdlib errors package.
func As(err error, target interface{}) bool { return errors.As(err, target) }
