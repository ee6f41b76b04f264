// Package canonical holds the dialect-neutral request/response/stream types
// that every transformer in internal/infrastructure/dialect parses into and
// emits from. These are pure data: no behavior, no validation beyond what a
// zero-value struct already enforces.
package canonical

import "encoding/json"

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation, made of an ordered list of Parts.
type Message struct {
	Role Role `json:"role"`
	// Name is an optional sub-identity of the speaker (OpenAI multi-agent
	// convention). Carried losslessly; not required by any dialect.
	Name  string `json:"name,omitempty"`
	Parts []Part `json:"parts"`
}

// PartType discriminates the Part tagged union.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartThinking   PartType = "thinking"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Part is a tagged variant of the content that makes up a Message. Only the
// fields relevant to Type are meaningful; the rest are zero.
type Part struct {
	Type PartType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image — exactly one of Data/URL is set.
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"` // base64
	URL      string `json:"url,omitempty"`
	// Detail is an OpenAI/openai-web vision hint ("low"|"high"|"auto").
	// Opaque to every other dialect; dropped silently on emit for dialects
	// that don't understand it.
	Detail string `json:"detail,omitempty"`

	// thinking — Signature is opaque to the core: never interpreted or
	// mutated, only replayed verbatim.
	Signature string `json:"signature,omitempty"`
	Redacted  bool   `json:"redacted,omitempty"`

	// tool_call — Arguments may be a fully-parsed JSON value OR a
	// partial-JSON string while streaming. Consumers must accept both;
	// see PartialJSON below.
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
	PartialJSON string          `json:"partialJson,omitempty"`

	// tool_result — valid only in user/tool role messages.
	ToolCallID string `json:"toolCallId,omitempty"`
	Content    string `json:"content,omitempty"`
	IsError    bool   `json:"isError,omitempty"`
}

// Text is a convenience constructor.
func Text(s string) Part { return Part{Type: PartText, Text: s} }

// Thinking is a convenience constructor.
func Thinking(text, signature string) Part {
	return Part{Type: PartThinking, Text: text, Signature: signature}
}

// ToolCall is a convenience constructor for a fully-parsed arguments value.
func ToolCall(id, name string, args json.RawMessage) Part {
	return Part{Type: PartToolCall, ID: id, Name: name, Arguments: args}
}

// ToolResult is a convenience constructor.
func ToolResult(toolCallID, content string, isError bool) Part {
	return Part{Type: PartToolResult, ToolCallID: toolCallID, Content: content, IsError: isError}
}
