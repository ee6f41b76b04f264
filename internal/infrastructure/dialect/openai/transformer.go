package openai

import (
	"encoding/json"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/dialect"
)

func init() {
	dialect.Register(&Transformer{})
}

// Transformer implements dialect.Transformer for the OpenAI
// chat-completions dialect.
type Transformer struct{}

func (Transformer) Name() dialect.Name { return dialect.OpenAI }

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

// IsSupportedRequest reports whether raw has a "model"+"messages" shape and
// no "system" key (the openai/anthropic discriminator).
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
	if err := json.Unmarshal(raw, &m); err == nil {
		if _, hasSystem := m["system"]; hasSystem {
			return false
		}
	}
	return true
}

func (Transformer) Config() dialect.StreamConfig {
	return dialect.StreamConfig{ParserType: dialect.SSEStandard, RequiresMaxTokens: false}
}

var _ dialect.Transformer = (*Transformer)(nil)
