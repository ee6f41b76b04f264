package antigravity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modelrelay/relay/internal/domain/canonical"
)

func TestEmitRequest_WrapsGeminiPayloadInEnvelope(t *testing.T) {
	req := &canonical.Request{
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Parts: []canonical.Part{{Type: canonical.PartText, Text: "hi"}}},
		},
	}

	raw, err := EmitRequest(req, "gemini-pro")
	require.NoError(t, err)

	var env RequestEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, "gemini-pro", env.Model)
	require.Equal(t, "antigravity", env.UserAgent)

	var inner map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Payload, &inner))
	_, hasContents := inner["contents"]
	require.True(t, hasContents)
}

// Antigravity targeting a Claude-family model rewrites the Gemini
// thinkingConfig keys to snake_case.
func TestEmitRequest_ClaudeFamilyTargetUsesSnakeCaseThinkingConfig(t *testing.T) {
	req := &canonical.Request{
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Parts: []canonical.Part{{Type: canonical.PartText, Text: "hi"}}},
		},
		Thinking: &canonical.ThinkingConfig{Enabled: true, IncludeThoughts: true, Budget: intPtr(2048)},
	}

	raw, err := EmitRequest(req, "claude-sonnet-4-20250514")
	require.NoError(t, err)

	var env RequestEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))

	var inner map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Payload, &inner))
	gc, ok := inner["generationConfig"].(map[string]interface{})
	require.True(t, ok, "expected generationConfig, got %#v", inner["generationConfig"])
	tc, ok := gc["thinkingConfig"].(map[string]interface{})
	require.True(t, ok, "expected thinkingConfig, got %#v", gc["thinkingConfig"])

	_, hasCamel := tc["includeThoughts"]
	require.False(t, hasCamel)
	_, hasCamelBudget := tc["thinkingBudget"]
	require.False(t, hasCamelBudget)

	require.Equal(t, true, tc["include_thoughts"])
	require.Equal(t, float64(2048), tc["thinking_budget"])
}

func TestParseRequest_UnwrapsEnvelopeAndCarriesProject(t *testing.T) {
	inner := []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`)
	env := RequestEnvelope{Project: "proj-1", Model: "gemini-pro", Payload: inner}
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	req, err := ParseRequest(raw)
	require.NoError(t, err)
	require.Len(t, req.Messages, 1)
	require.NotNil(t, req.Metadata)
	require.Equal(t, "proj-1", req.Metadata.Project)
}

func TestTransformer_IsSupportedRequest(t *testing.T) {
	tr := Transformer{}
	require.True(t, tr.IsSupportedRequest([]byte(`{"payload":{"contents":[]}}`)))
	require.False(t, tr.IsSupportedRequest([]byte(`{"messages":[]}`)))
	require.False(t, tr.IsSupportedRequest([]byte(`not json`)))
}

func intPtr(v int) *int { return &v }
