package opencodezen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modelrelay/relay/internal/domain/canonical"
)

func TestParseRequest_DelegatesByModelFamily(t *testing.T) {
	tr := Transformer{}

	openaiReq := []byte(`{"model":"glm-4-plus","messages":[{"role":"user","content":"hi"}]}`)
	req, err := tr.ParseRequest(openaiReq)
	require.NoError(t, err)
	require.Len(t, req.Messages, 1)

	anthropicReq := []byte(`{"model":"claude-opencode","max_tokens":100,"messages":[{"role":"user","content":[{"type":"text","text":"hi"}]}]}`)
	req, err = tr.ParseRequest(anthropicReq)
	require.NoError(t, err)
	require.Len(t, req.Messages, 1)
}

func TestEmitRequest_DelegatesByTargetModel(t *testing.T) {
	tr := Transformer{}
	req := &canonical.Request{Messages: []canonical.Message{
		{Role: canonical.RoleUser, Parts: []canonical.Part{canonical.Text("hi")}},
	}}

	raw, err := tr.EmitRequest(req, "glm-4-plus")
	require.NoError(t, err)
	require.Contains(t, string(raw), `"messages"`)
	require.NotContains(t, string(raw), `"max_tokens"`)

	raw, err = tr.EmitRequest(req, "claude-opencode")
	require.NoError(t, err)
	require.Contains(t, string(raw), `"max_tokens"`)
}

func TestParseStreamChunk_DetectsAnthropicFraming(t *testing.T) {
	require.True(t, looksAnthropicStream([]byte("event: content_block_delta\ndata: {}\n\n")))
	require.True(t, looksAnthropicStream([]byte(`data: {"type":"content_block","index":0}`+"\n\n")))
	require.False(t, looksAnthropicStream([]byte(`data: {"choices":[{"delta":{"content":"hi"}}]}`+"\n\n")))
}

func TestResponseLooksAnthropic(t *testing.T) {
	require.True(t, responseLooksAnthropic([]byte(`{"content":[],"stop_reason":"end_turn"}`)))
	require.False(t, responseLooksAnthropic([]byte(`{"choices":[]}`)))
}

func TestIsSupportedRequest_AlwaysFalse(t *testing.T) {
	tr := Transformer{}
	require.False(t, tr.IsSupportedRequest([]byte(`{"model":"glm-4-plus","messages":[]}`)))
}
