// Package opencodezen implements the transformer for the "opencode-zen"
// hybrid dialect: a per-model-family choice between the openai and
// anthropic wire protocols, delegated to those transformers rather than
// defining its own wire types.
package opencodezen

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/dialect"
	"github.com/modelrelay/relay/internal/infrastructure/dialect/anthropic"
	"github.com/modelrelay/relay/internal/infrastructure/dialect/openai"
)

func init() {
	dialect.Register(&Transformer{})
}

// Transformer implements dialect.Transformer for opencode-zen by delegating
// every operation to either the openai or the anthropic transformer.
type Transformer struct{}

func (Transformer) Name() dialect.Name { return dialect.OpenCodeZen }

// protocolIsAnthropic implements the glossary's "Model family" substring
// rule: opencode-zen model families (glm/qwen/kimi/grok/big-pickle) speak
// the OpenAI protocol except where the model name itself signals Claude
// compatibility.
func protocolIsAnthropic(model string) bool {
	return strings.Contains(strings.ToLower(model), "claude")
}

func (Transformer) ParseRequest(raw json.RawMessage) (*canonical.Request, error) {
	var probe struct {
		Model string `json:"model"`
	}
	_ = json.Unmarshal(raw, &probe)
	if protocolIsAnthropic(probe.Model) {
		return anthropic.ParseRequest(raw)
	}
	return openai.ParseRequest(raw)
}

func (Transformer) EmitRequest(req *canonical.Request, targetModel string) (json.RawMessage, error) {
	if protocolIsAnthropic(targetModel) {
		return anthropic.EmitRequest(req, targetModel)
	}
	return openai.EmitRequest(req, targetModel)
}

func (Transformer) ParseResponse(raw json.RawMessage) (*canonical.Response, error) {
	if responseLooksAnthropic(raw) {
		return anthropic.ParseResponse(raw)
	}
	return openai.ParseResponse(raw)
}

func (Transformer) EmitResponse(resp *canonical.Response) (json.RawMessage, error) {
	if protocolIsAnthropic(resp.Model) {
		return anthropic.EmitResponse(resp)
	}
	return openai.EmitResponse(resp)
}

// ParseStreamChunk detects the effective protocol of the raw event: an
// "event:" line or a "\"type\":\"content_block\"" substring means Anthropic
// framing; anything else is treated as OpenAI.
func (Transformer) ParseStreamChunk(event []byte) (*canonical.StreamChunk, error) {
	if looksAnthropicStream(event) {
		return anthropic.ParseStreamChunk(event)
	}
	return openai.ParseStreamChunk(event)
}

func (Transformer) EmitStreamChunk(chunk *canonical.StreamChunk) ([][]byte, error) {
	return openai.EmitStreamChunk(chunk)
}

func looksAnthropicStream(event []byte) bool {
	return bytes.Contains(event, []byte("event:")) || bytes.Contains(event, []byte(`"type":"content_block"`))
}

func responseLooksAnthropic(raw json.RawMessage) bool {
	var probe struct {
		Content    json.RawMessage `json:"content"`
		StopReason json.RawMessage `json:"stop_reason"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Content != nil || probe.StopReason != nil
}

// IsSupportedRequest is not part of the structural detection priority
// list; opencode-zen is only reached by explicit targetProvider or
// modelMapping, never auto-detected from the wire shape alone.
func (Transformer) IsSupportedRequest(raw json.RawMessage) bool {
	return false
}

func (Transformer) Config() dialect.StreamConfig {
	return dialect.StreamConfig{ParserType: dialect.SSEStandard, RequiresMaxTokens: false}
}

var _ dialect.Transformer = (*Transformer)(nil)
