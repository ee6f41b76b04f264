// Package openaiweb implements the transformer for the "openai-web"
// dialect: the Codex backend's OpenAI Responses API shape. Always
// store:false, always internally streamed, system prompt supplied as
// "instructions" from a CodexInstructions collaborator.
package openaiweb

import "encoding/json"

// Request is the Responses API request body.
type Request struct {
	Model           string           `json:"model"`
	Input           []InputItem      `json:"input"`
	Instructions    string           `json:"instructions,omitempty"`
	Store           bool             `json:"store"`
	Stream          bool             `json:"stream"`
	Tools           []Tool           `json:"tools,omitempty"`
	MaxOutputTokens *int             `json:"max_output_tokens,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	TopP            *float64         `json:"top_p,omitempty"`
	Reasoning       *ReasoningConfig `json:"reasoning,omitempty"`
}

type ReasoningConfig struct {
	Effort string `json:"effort,omitempty"`
}

// InputItem is one Responses API input element: a message or a function
// call/output pair.
type InputItem struct {
	Type      string          `json:"type,omitempty"` // "message" (default) | "function_call" | "function_call_output"
	Role      string          `json:"role,omitempty"`
	Content   []InputContent  `json:"content,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Output    string          `json:"output,omitempty"`
}

type InputContent struct {
	Type     string `json:"type"` // "input_text" | "input_image" | "output_text"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type Tool struct {
	Type        string                 `json:"type"` // "function"
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Response is the Responses API response body.
type Response struct {
	ID     string       `json:"id"`
	Object string       `json:"object"`
	Model  string       `json:"model"`
	Status string       `json:"status"`
	Output []OutputItem `json:"output"`
	Usage  *Usage       `json:"usage,omitempty"`
}

type OutputItem struct {
	Type      string          `json:"type"` // "message" | "function_call" | "reasoning"
	Role      string          `json:"role,omitempty"`
	Content   []OutputContent `json:"content,omitempty"`
	ID        string          `json:"id,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Summary   []OutputContent `json:"summary,omitempty"`
}

type OutputContent struct {
	Type string `json:"type"` // "output_text" | "summary_text"
	Text string `json:"text"`
}

type Usage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	TotalTokens         int `json:"total_tokens"`
	OutputTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details,omitempty"`
}

// --- Streaming event types ---

// StreamEvent is the Responses API SSE payload shape (event name carried in
// the "type" field of the JSON body as well as the SSE "event:" line).
type StreamEvent struct {
	Type         string      `json:"type"`
	Response     *Response   `json:"response,omitempty"`
	Item         *OutputItem `json:"item,omitempty"`
	ItemID       string      `json:"item_id,omitempty"`
	OutputIndex  int         `json:"output_index"`
	ContentIndex int         `json:"content_index"`
	Delta        string      `json:"delta,omitempty"`
	Text         string      `json:"text,omitempty"`
}

// CodexInstructions supplies the system prompt for a given model family.
// The Codex backend rejects requests without one, so the dialect always
// asks the active source for it.
type CodexInstructions interface {
	InstructionsFor(modelFamily string) string
}

// defaultCodexInstructions is a small built-in table covering the model
// families this proxy is known to front; callers may substitute their own
// CodexInstructions via SetInstructions for an account-specific prompt.
type defaultCodexInstructions struct{}

func (defaultCodexInstructions) InstructionsFor(modelFamily string) string {
	if s, ok := builtinInstructions[modelFamily]; ok {
		return s
	}
	return builtinInstructions["default"]
}

var builtinInstructions = map[string]string{
	"default": "You are Codex, a coding agent running in a terminal. Be precise and concise.",
	"gpt-5":   "You are Codex, a coding agent running in a terminal based on GPT-5. Be precise and concise.",
}

var activeInstructions CodexInstructions = defaultCodexInstructions{}

// SetInstructions overrides the CodexInstructions collaborator used by
// EmitRequest. Intended to be called once during process wiring.
func SetInstructions(c CodexInstructions) {
	if c != nil {
		activeInstructions = c
	}
}
