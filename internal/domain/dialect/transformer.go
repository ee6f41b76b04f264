// Package dialect defines the Transformer contract that every dialect
// (openai, anthropic, gemini, antigravity, opencode-zen, openai-web)
// implements, plus the process-global registry and format-detection rules.
package dialect

import (
	"encoding/json"

	"github.com/modelrelay/relay/internal/domain/canonical"
)

// Name identifies a wire dialect.
type Name string

const (
	OpenAI      Name = "openai"
	Anthropic   Name = "anthropic"
	Gemini      Name = "gemini"
	Antigravity Name = "antigravity"
	OpenCodeZen Name = "opencode-zen"
	OpenAIWeb   Name = "openai-web"
)

// StreamConfig describes the static SSE framing facts of a dialect, used by
// the stream processor to choose a parser.
type StreamConfig struct {
	ParserType        ParserType
	RequiresMaxTokens bool
	DefaultMaxTokens  int
}

// ParserType is the SSE framing style.
type ParserType string

const (
	SSEStandard      ParserType = "sse-standard"
	SSELineDelimited ParserType = "sse-line-delimited"
)

// Transformer is the capability set every dialect implements.
type Transformer interface {
	Name() Name

	ParseRequest(raw json.RawMessage) (*canonical.Request, error)
	EmitRequest(req *canonical.Request, targetModel string) (json.RawMessage, error)

	ParseResponse(raw json.RawMessage) (*canonical.Response, error)
	EmitResponse(resp *canonical.Response) (json.RawMessage, error)

	// ParseStreamChunk translates one raw SSE event (already split from its
	// framing) into zero or one canonical chunks. A nil chunk with a nil
	// error means "no translatable content in this event" (e.g. a ping).
	ParseStreamChunk(event []byte) (*canonical.StreamChunk, error)
	// EmitStreamChunk renders a canonical chunk as zero, one, or many raw
	// SSE event bodies in this dialect's framing.
	EmitStreamChunk(chunk *canonical.StreamChunk) ([][]byte, error)

	// IsSupportedRequest is used by format detection to check whether raw
	// plausibly belongs to this dialect.
	IsSupportedRequest(raw json.RawMessage) bool

	Config() StreamConfig
}
