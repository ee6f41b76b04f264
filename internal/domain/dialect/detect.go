package dialect

import (
	"encoding/json"
	"fmt"
)

// probe is the minimal shape used for structural format detection.
type probe struct {
	Payload *struct {
		Contents []json.RawMessage `json:"contents"`
	} `json:"payload"`
	Contents []json.RawMessage `json:"contents"`
	Model    *string           `json:"model"`
	Messages []json.RawMessage `json:"messages"`
	System   json.RawMessage   `json:"system"`
}

// priorityOrder is the delegation order transformer objects are tried in
// when IsSupportedRequest-based detection is used as a fallback to the
// structural rules below.
var priorityOrder = []Name{Antigravity, Gemini, Anthropic, OpenAI}

// Detect applies the ordered format-detection rules to a raw
// request body.
//
//  1. payload.contents: [] => antigravity
//  2. contents: [] => gemini
//  3. model + messages: [] =>
//     "system" key present (incl. null/"") => anthropic
//     else => openai
//  4. otherwise => error
func Detect(raw json.RawMessage) (Name, error) {
	var p probe
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("dialect: %w", err)
	}

	if p.Payload != nil && p.Payload.Contents != nil {
		return Antigravity, nil
	}
	if p.Contents != nil {
		return Gemini, nil
	}
	if p.Model != nil && p.Messages != nil {
		if hasSystemKey(raw) {
			return Anthropic, nil
		}
		return OpenAI, nil
	}

	// Fall back to delegated IsSupportedRequest checks in priority order,
	// for callers that registered additional transformers (e.g. a custom
	// hybrid dialect) not covered by the structural rules above.
	for _, name := range priorityOrder {
		t, err := Get(name)
		if err != nil {
			continue
		}
		if t.IsSupportedRequest(raw) {
			return name, nil
		}
	}

	return "", fmt.Errorf("Unknown request format")
}

// hasSystemKey reports whether the top-level object literally has a
// "system" key, including when its value is null or "".
func hasSystemKey(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	_, ok := m["system"]
	return ok
}
