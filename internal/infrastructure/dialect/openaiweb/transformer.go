package openaiweb

import (
	"encoding/json"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/dialect"
)

func init() {
	dialect.Register(&Transformer{})
}

// Transformer implements dialect.Transformer for the openai-web (Codex
// backend Responses API) dialect.
type Transformer struct{}

func (Transformer) Name() dialect.Name { return dialect.OpenAIWeb }

func (Transformer) ParseRequest(raw json.RawMessage) (*canonical.Request, error) {
	return ParseRequest(raw)
}

func (Transformer) EmitRequest(req *canonical.Request, targetModel string) (json.RawMessage, error) {
	return EmitRequest(req, targetModel)
}

func (Transformer) ParseResponse(raw json.RawMessage) (*canonical.Response, error) {
	return ParseResponse(raw)
}

func (Transformer) EmitResponse(resp *canonical.Response) (json.RawMessage, error) {
	return EmitResponse(resp)
}

func (Transformer) ParseStreamChunk(event []byte) (*canonical.StreamChunk, error) {
	return ParseStreamChunk(event)
}

func (Transformer) EmitStreamChunk(chunk *canonical.StreamChunk) ([][]byte, error) {
	return EmitStreamChunk(chunk)
}

// IsSupportedRequest reports whether raw has Responses API's "input" array
// shape. Never reached by structural auto-detection in practice, but implemented for
// interface completeness and for /v1/responses client-submitted bodies.
func (Transformer) IsSupportedRequest(raw json.RawMessage) bool {
	var probe struct {
		Model *string           `json:"model"`
		Input []json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Model != nil && probe.Input != nil
}

func (Transformer) Config() dialect.StreamConfig {
	return dialect.StreamConfig{ParserType: dialect.SSEStandard, RequiresMaxTokens: false}
}

var _ dialect.Transformer = (*Transformer)(nil)
