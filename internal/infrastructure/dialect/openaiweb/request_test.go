package openaiweb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modelrelay/relay/internal/domain/canonical"
)

func TestEmitRequest_AlwaysStoreFalseStreamTrue(t *testing.T) {
	req := &canonical.Request{Messages: []canonical.Message{
		{Role: canonical.RoleUser, Parts: []canonical.Part{canonical.Text("hi")}},
	}}

	raw, err := EmitRequest(req, "gpt-5-codex")
	require.NoError(t, err)

	var out Request
	require.NoError(t, json.Unmarshal(raw, &out))
	require.False(t, out.Store)
	require.True(t, out.Stream)
	require.NotEmpty(t, out.Instructions)
}

func TestEmitRequest_ToolCallAndResultRoundTrip(t *testing.T) {
	req := &canonical.Request{
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Parts: []canonical.Part{canonical.Text("weather?")}},
			{Role: canonical.RoleAssistant, Parts: []canonical.Part{
				canonical.ToolCall("call_1", "get_weather", json.RawMessage(`{"location":"NYC"}`)),
			}},
			{Role: canonical.RoleTool, Parts: []canonical.Part{canonical.ToolResult("call_1", "72F", false)}},
		},
	}

	raw, err := EmitRequest(req, "gpt-5-codex")
	require.NoError(t, err)

	var out Request
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Input, 3)
	require.Equal(t, "function_call", out.Input[1].Type)
	require.Equal(t, "call_1", out.Input[1].CallID)
	require.Equal(t, "get_weather", out.Input[1].Name)
	require.Equal(t, "function_call_output", out.Input[2].Type)
	require.Equal(t, "72F", out.Input[2].Output)

	parsed, err := ParseRequest(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Messages, 3)
	require.Equal(t, canonical.PartToolCall, parsed.Messages[1].Parts[0].Type)
	require.Equal(t, "get_weather", parsed.Messages[1].Parts[0].Name)
	require.Equal(t, canonical.PartToolResult, parsed.Messages[2].Parts[0].Type)
	require.Equal(t, "call_1", parsed.Messages[2].Parts[0].ToolCallID)
}

func TestParseResponse_FunctionCallSetsToolUseStop(t *testing.T) {
	raw := []byte(`{
		"id":"resp_1",
		"model":"gpt-5-codex",
		"output":[{"type":"function_call","call_id":"call_1","name":"get_weather","arguments":{"location":"NYC"}}]
	}`)
	resp, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Equal(t, canonical.StopToolUse, resp.StopReason)
	require.Len(t, resp.Content, 1)
	require.Equal(t, canonical.PartToolCall, resp.Content[0].Type)
	require.Equal(t, "get_weather", resp.Content[0].Name)
}

func TestEmitResponse_ReasoningBlockBecomesReasoningOutputItem(t *testing.T) {
	resp := &canonical.Response{
		ID:         "resp_1",
		StopReason: canonical.StopEndTurn,
		Content:    []canonical.Part{canonical.Text("answer")},
		Thinking:   []canonical.ThinkingBlock{{Text: "because..."}},
	}
	raw, err := EmitResponse(resp)
	require.NoError(t, err)

	var out Response
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Output, 2)
	require.Equal(t, "reasoning", out.Output[0].Type)
	require.Equal(t, "message", out.Output[1].Type)
}

func TestTransformer_IsSupportedRequest(t *testing.T) {
	tr := Transformer{}
	require.True(t, tr.IsSupportedRequest([]byte(`{"model":"gpt-5","input":[]}`)))
	require.False(t, tr.IsSupportedRequest([]byte(`{"messages":[]}`)))
}
