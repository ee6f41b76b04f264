package anthropic

import (
	"encoding/json"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/dialect"
)

func init() {
	dialect.Register(&Transformer{})
}

// Transformer implements dialect.Transformer for the Anthropic Messages API
// dialect.
type Transformer struct{}

func (Transformer) Name() dialect.Name { return dialect.Anthropic }

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

// IsSupportedRequest reports whether raw carries a literal "system" key
// (the anthropic discriminator -- present even when null or
// empty string).
func (Transformer) IsSupportedRequest(raw json.RawMessage) bool {
	var probe struct {
		Model    *string           `json:"model"`
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	if probe.Model == nil || probe.Messages == nil {
		return false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	_, hasSystem := m["system"]
	return hasSystem
}

func (Transformer) Config() dialect.StreamConfig {
	return dialect.StreamConfig{ParserType: dialect.SSEStandard, RequiresMaxTokens: true, DefaultMaxTokens: DefaultMaxTokens}
}

var _ dialect.Transformer = (*Transformer)(nil)
