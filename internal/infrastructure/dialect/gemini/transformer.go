package gemini

import (
	"encoding/json"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/dialect"
)

func init() {
	dialect.Register(&Transformer{})
}

// Transformer implements dialect.Transformer for the Google Gemini
// generateContent dialect.
type Transformer struct{}

func (Transformer) Name() dialect.Name { return dialect.Gemini }

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

// IsSupportedRequest reports whether raw has a "contents" array (the gemini
// discriminator).
func (Transformer) IsSupportedRequest(raw json.RawMessage) bool {
	var probe struct {
		Contents []json.RawMessage `json:"contents"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Contents != nil
}

func (Transformer) Config() dialect.StreamConfig {
	return dialect.StreamConfig{ParserType: dialect.SSELineDelimited, RequiresMaxTokens: false}
}

var _ dialect.Transformer = (*Transformer)(nil)
