// Package antigravity implements the transformer for the "Antigravity"
// wrapper dialect: a Gemini-shaped request/response enveloped with
// project/model/routing metadata. The inner shape delegates to the gemini
// package.
package antigravity

import "encoding/json"

// RequestEnvelope wraps a Gemini-like request body under "payload", which
// is also the key format detection keys off.
type RequestEnvelope struct {
	Project   string          `json:"project,omitempty"`
	Model     string          `json:"model,omitempty"`
	UserAgent string          `json:"userAgent,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// ResponseEnvelope wraps a Gemini-like response body.
type ResponseEnvelope struct {
	Response   json.RawMessage `json:"response"`
	ResponseID string          `json:"responseId,omitempty"`
	TraceID    string          `json:"traceId,omitempty"`
}
