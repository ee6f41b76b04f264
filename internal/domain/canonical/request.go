package canonical

import "encoding/json"

// JSONSchema is kept as a generic JSON node rather than a modeled struct so
// that tool parameter schemas survive round-tripping losslessly.
type JSONSchema map[string]interface{}

// Tool is a callable function definition offered to the model.
type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Parameters  JSONSchema `json:"parameters"`
}

// SamplingConfig carries the sampling knobs common across dialects.
type SamplingConfig struct {
	MaxTokens     *int     `json:"maxTokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"topP,omitempty"`
	TopK          *int     `json:"topK,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`
	// Stream records whether the original client asked for a streamed
	// response, independent of whether the dispatch engine streams upstream.
	Stream bool `json:"stream,omitempty"`
}

// ThinkingConfig requests extended/thinking output from the model.
type ThinkingConfig struct {
	Enabled         bool `json:"enabled"`
	Budget          *int `json:"budget,omitempty"`
	IncludeThoughts bool `json:"includeThoughts,omitempty"`
}

// Metadata carries request-scoped identifiers that are not part of the
// conversation content itself.
type Metadata struct {
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Project   string `json:"project,omitempty"`
	Model     string `json:"model,omitempty"`
}

// Request is the dialect-neutral form every parseRequest produces and every
// emitRequest consumes.
type Request struct {
	Messages []Message       `json:"messages"`
	System   string          `json:"system,omitempty"`
	Tools    []Tool          `json:"tools,omitempty"`
	Config   *SamplingConfig `json:"config,omitempty"`
	Thinking *ThinkingConfig `json:"thinking,omitempty"`
	Metadata *Metadata       `json:"metadata,omitempty"`
}

// ToolCallIDs returns the set of tool_call ids seen across all messages; as
// a map it does not keep their order of appearance. Validate does not call
// it: it tracks the ids seen so far while walking the messages in order.
func (r *Request) ToolCallIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, m := range r.Messages {
		for _, p := range m.Parts {
			if p.Type == PartToolCall && p.ID != "" {
				ids[p.ID] = true
			}
		}
	}
	return ids
}

// Validate checks that tool_result parts appear only in user/tool messages,
// referencing a previously seen tool_call id.
func (r *Request) Validate() error {
	seen := make(map[string]bool)
	for _, m := range r.Messages {
		for _, p := range m.Parts {
			switch p.Type {
			case PartToolCall:
				if p.ID != "" {
					seen[p.ID] = true
				}
			case PartToolResult:
				if m.Role != RoleUser && m.Role != RoleTool {
					return &InvariantError{Field: "tool_result.role", Reason: "tool_result part outside user/tool message"}
				}
				if !seen[p.ToolCallID] {
					return &InvariantError{Field: "tool_result.toolCallId", Reason: "no prior tool_call with id " + p.ToolCallID}
				}
			}
		}
	}
	return nil
}

// InvariantError reports a canonical-model invariant violation.
type InvariantError struct {
	Field  string
	Reason string
}

func (e *InvariantError) Error() string {
	return "canonical: invariant violated on " + e.Field + ": " + e.Reason
}

// MarshalArguments is a helper for constructing a tool_call Part from a Go
// value rather than a raw JSON string.
func MarshalArguments(v interface{}) (json.RawMessage, error) {
	return json.Marshal(v)
}
