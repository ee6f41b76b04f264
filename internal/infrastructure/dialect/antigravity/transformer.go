package antigravity

import (
	"encoding/json"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/dialect"
)

func init() {
	dialect.Register(&Transformer{})
}

// Transformer implements dialect.Transformer for the Antigravity wrapper
// dialect.
type Transformer struct{}

func (Transformer) Name() dialect.Name { return dialect.Antigravity }

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

// IsSupportedRequest reports whether raw has a "payload.contents" shape
// (the antigravity discriminator, checked first in
// priority order since it is the most specific).
func (Transformer) IsSupportedRequest(raw json.RawMessage) bool {
	var probe struct {
		Payload *struct {
			Contents []json.RawMessage `json:"contents"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Payload != nil && probe.Payload.Contents != nil
}

func (Transformer) Config() dialect.StreamConfig {
	return dialect.StreamConfig{ParserType: dialect.SSELineDelimited, RequiresMaxTokens: false}
}

var _ dialect.Transformer = (*Transformer)(nil)
