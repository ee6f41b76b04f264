package openai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modelrelay/relay/internal/domain/canonical"
)

func TestParseRequest_SystemMessagePulledIntoRequestSystem(t *testing.T) {
	raw := []byte(`{
		"model":"gpt-4",
		"messages":[
			{"role":"system","content":"be concise"},
			{"role":"user","content":"hi"}
		]
	}`)
	req, err := ParseRequest(raw)
	require.NoError(t, err)
	require.Equal(t, "be concise", req.System)
	require.Len(t, req.Messages, 1)
	require.Equal(t, canonical.RoleUser, req.Messages[0].Role)
}

func TestEmitRequest_ToolCallRoundTrip(t *testing.T) {
	req := &canonical.Request{
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Parts: []canonical.Part{canonical.Text("weather?")}},
			{Role: canonical.RoleAssistant, Parts: []canonical.Part{
				canonical.ToolCall("call_1", "get_weather", json.RawMessage(`{"location":"NYC"}`)),
			}},
			{Role: canonical.RoleTool, Parts: []canonical.Part{canonical.ToolResult("call_1", "72F", false)}},
		},
	}

	raw, err := EmitRequest(req, "gpt-4")
	require.NoError(t, err)

	var out Request
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Messages, 3)
	require.Equal(t, "assistant", out.Messages[1].Role)
	require.Len(t, out.Messages[1].ToolCalls, 1)
	require.Equal(t, "call_1", out.Messages[1].ToolCalls[0].ID)
	require.Equal(t, "tool", out.Messages[2].Role)
	require.Equal(t, "call_1", out.Messages[2].ToolCallID)

	parsed, err := ParseRequest(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Messages, 3)
	require.Equal(t, canonical.PartToolCall, parsed.Messages[1].Parts[0].Type)
	require.Equal(t, "get_weather", parsed.Messages[1].Parts[0].Name)
	require.Equal(t, canonical.PartToolResult, parsed.Messages[2].Parts[0].Type)
}

func TestParseResponse_ToolCallSetsStopReason(t *testing.T) {
	raw := []byte(`{
		"id":"chatcmpl-1",
		"model":"gpt-4",
		"choices":[{
			"index":0,
			"message":{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"location\":\"NYC\"}"}}]},
			"finish_reason":"tool_calls"
		}]
	}`)
	resp, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Equal(t, canonical.StopToolUse, resp.StopReason)
	require.Len(t, resp.Content, 1)
	require.Equal(t, "get_weather", resp.Content[0].Name)
}

func TestTransformer_IsSupportedRequest(t *testing.T) {
	tr := Transformer{}
	require.True(t, tr.IsSupportedRequest([]byte(`{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`)))
	require.False(t, tr.IsSupportedRequest([]byte(`{"contents":[]}`)))
}
