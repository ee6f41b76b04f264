package streamproc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/dialect"
	"github.com/modelrelay/relay/internal/infrastructure/dialect/anthropic"
)

// sseEvent renders one raw Anthropic SSE frame the way a real upstream would:
// "event: <type>\ndata: <json>\n\n".
func sseEvent(eventType, data string) string {
	return "event: " + eventType + "\ndata: " + data + "\n\n"
}

// countEvents returns how many SSE frames (event: lines) appear in out.
func countEvents(out []byte) int {
	return strings.Count(string(out), "event: ")
}

func TestProcessor_TextBlock_BalancedOpenClose(t *testing.T) {
	from := anthropic.Transformer{}
	to := anthropic.Transformer{}
	p := New(from, to, nil)

	var body bytes.Buffer
	body.WriteString(sseEvent("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`))
	body.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hello"}}`))
	body.WriteString(sseEvent("content_block_stop", `{"type":"content_block_stop","index":0}`))
	body.WriteString(sseEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}`))

	var out bytes.Buffer
	n, err := p.Run(&body, &out)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	opens := strings.Count(out.String(), `"type":"content_block_start"`)
	stops := strings.Count(out.String(), `"content_block_stop"`)
	require.Equal(t, opens, stops, "every opened block must eventually close")
}

func TestProcessor_EmptyTextBlock_Dropped(t *testing.T) {
	from := anthropic.Transformer{}
	to := anthropic.Transformer{}
	p := New(from, to, nil)

	var body bytes.Buffer
	// An empty tool-argument fragment, discarded by the Reset below.
	body.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":""}}`))

	// The case under test: one empty text_delta opens a text block that
	// never accumulates any text, then the message ends.
	body.Reset()
	body.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":""}}`))
	body.WriteString(sseEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`))

	var out bytes.Buffer
	_, err := p.Run(&body, &out)
	require.NoError(t, err)

	// An empty text_delta with empty text parses to nil (per anthropic's
	// content_block_start handling) or carries Delta.Text == "" -- either
	// way no non-empty text ever accumulates, so no content_block_stop for
	// a text block should be emitted.
	require.NotContains(t, out.String(), `"content_block_stop"`)
}

func TestProcessor_ToolUse_PatchesStopReasonOnDone(t *testing.T) {
	from := anthropic.Transformer{}
	to := anthropic.Transformer{}
	p := New(from, to, nil)

	var body bytes.Buffer
	body.WriteString(sseEvent("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"call_1","name":"search"}}`))
	body.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"q\":\"x\"}"}}`))
	// Upstream reports end_turn even though a tool_use block is still open;
	// the processor must patch this to tool_use.
	body.WriteString(sseEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}`))

	var out bytes.Buffer
	_, err := p.Run(&body, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), `"stop_reason":"tool_use"`)
	require.NotContains(t, out.String(), `"stop_reason":"end_turn"`)
}

func TestProcessor_BlockIndexMonotonic(t *testing.T) {
	from := anthropic.Transformer{}
	to := anthropic.Transformer{}
	p := New(from, to, nil)

	var body bytes.Buffer
	body.WriteString(sseEvent("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":"a"}}`))
	body.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"bc"}}`))
	body.WriteString(sseEvent("content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"call_1","name":"bash"}}`))
	body.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"command\":\"ls\"}"}}`))
	body.WriteString(sseEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`))

	var out bytes.Buffer
	_, err := p.Run(&body, &out)
	require.NoError(t, err)

	require.Contains(t, out.String(), `"index":0`)
	require.Contains(t, out.String(), `"index":1`)

	// The processor's own block index must never go backwards; since our
	// from/to are both anthropic here, re-parse the emitted stream and walk
	// BlockIndex values of block-scoped chunks to confirm monotonic
	// non-decrease.
	chunks := parseEmitted(t, out.Bytes())
	last := -1
	for _, c := range chunks {
		switch c.Type {
		case canonical.ChunkDone, canonical.ChunkUsage, canonical.ChunkError:
			continue
		}
		if c.BlockIndex < last {
			t.Fatalf("block index went backwards: saw %d after %d", c.BlockIndex, last)
		}
		last = c.BlockIndex
	}
}

func TestProcessor_EmptyStream_SyntheticError(t *testing.T) {
	from := anthropic.Transformer{}
	to := anthropic.Transformer{}
	p := New(from, to, nil)

	var body bytes.Buffer
	// Only pings -- every frame parses to nil, nothing translatable.
	body.WriteString(sseEvent("ping", `{"type":"ping"}`))

	var out bytes.Buffer
	n, err := p.Run(&body, &out)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Contains(t, out.String(), EmptyStreamMessage)
}

func TestProcessor_AntigravityBashArguments_Normalized(t *testing.T) {
	from := antigravityTransformerStub{}
	to := anthropic.Transformer{}
	p := New(from, to, nil)

	var out bytes.Buffer
	chunk := &canonical.StreamChunk{
		Type:        canonical.ChunkToolCall,
		BlockType:   canonical.BlockToolUse,
		BlockIndex:  0,
		Delta:       &canonical.Part{Type: canonical.PartToolCall, Name: "bash"},
		PartialJSON: `{"cmd":"ls -la"}`,
	}
	require.NoError(t, p.handleChunk(chunk, &out))
	// partial_json is a JSON string in the emitted frame, so inner quotes
	// are escaped. The alias value is copied to command, not moved.
	require.Contains(t, out.String(), `\"command\":\"ls -la\"`)
	require.Contains(t, out.String(), `\"cmd\":\"ls -la\"`)
}

// A stream of one thinking block then one text block with explicit stops:
// the client must see exactly two start/stop pairs with indices 0 and 1 and
// the text "42" once, with no extra block_stop from the processor.
func TestProcessor_ThinkingThenText_TwoBalancedBlocks(t *testing.T) {
	from := anthropic.Transformer{}
	to := anthropic.Transformer{}
	p := New(from, to, nil)

	var body bytes.Buffer
	body.WriteString(sseEvent("message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[]}}`))
	body.WriteString(sseEvent("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`))
	body.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"Hmm"}}`))
	body.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"..."}}`))
	body.WriteString(sseEvent("content_block_stop", `{"type":"content_block_stop","index":0}`))
	body.WriteString(sseEvent("content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`))
	body.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"42"}}`))
	body.WriteString(sseEvent("content_block_stop", `{"type":"content_block_stop","index":1}`))
	body.WriteString(sseEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`))
	body.WriteString(sseEvent("message_stop", `{"type":"message_stop"}`))

	var out bytes.Buffer
	_, err := p.Run(&body, &out)
	require.NoError(t, err)

	s := out.String()
	require.Equal(t, 2, strings.Count(s, `"type":"content_block_start"`))
	require.Equal(t, 2, strings.Count(s, `"content_block_stop"`))
	require.Equal(t, 1, strings.Count(s, `"text":"42"`))
	require.Contains(t, s, `"type":"thinking"`)
	require.Contains(t, s, `"stop_reason":"end_turn"`)
}

// The message envelope opener is synthesized exactly once, before the first
// content event, even when the upstream never sent one.
func TestProcessor_SynthesizesMessageStartOnce(t *testing.T) {
	from := anthropic.Transformer{}
	to := anthropic.Transformer{}
	p := New(from, to, nil)

	var body bytes.Buffer
	body.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`))
	body.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`))
	body.WriteString(sseEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`))

	var out bytes.Buffer
	_, err := p.Run(&body, &out)
	require.NoError(t, err)

	s := out.String()
	require.Equal(t, 1, strings.Count(s, `"type":"message_start"`))
	require.Less(t, strings.Index(s, "message_start"), strings.Index(s, "text_delta"))
}

// An explicit upstream content_block_stop closes the block; the processor
// must not emit a second stop for the same index when the next block opens
// or the message ends.
func TestProcessor_ExplicitStop_NoDuplicate(t *testing.T) {
	from := anthropic.Transformer{}
	to := anthropic.Transformer{}
	p := New(from, to, nil)

	var body bytes.Buffer
	body.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"a"}}`))
	body.WriteString(sseEvent("content_block_stop", `{"type":"content_block_stop","index":0}`))
	body.WriteString(sseEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`))

	var out bytes.Buffer
	_, err := p.Run(&body, &out)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out.String(), `"content_block_stop"`))
}

// A tool call arriving with its id and name in the first chunk gets an
// explicit tool_use content_block_start carrying both; argument fragments
// follow as input_json_delta events without repeating the name.
func TestProcessor_ToolUseStart_CarriesIDAndName(t *testing.T) {
	from := anthropic.Transformer{}
	to := anthropic.Transformer{}
	p := New(from, to, nil)

	var body bytes.Buffer
	body.WriteString(sseEvent("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_123","name":"get_weather","input":{}}}`))
	body.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"location\":\"NYC\"}"}}`))
	body.WriteString(sseEvent("content_block_stop", `{"type":"content_block_stop","index":0}`))
	body.WriteString(sseEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use"}}`))

	var out bytes.Buffer
	_, err := p.Run(&body, &out)
	require.NoError(t, err)

	s := out.String()
	require.Equal(t, 1, strings.Count(s, `"type":"content_block_start"`))
	require.Contains(t, s, `"id":"toolu_123"`)
	require.Contains(t, s, `"name":"get_weather"`)
	require.Equal(t, 1, strings.Count(s, `"content_block_stop"`))
	require.Contains(t, s, `"stop_reason":"tool_use"`)
}

// antigravityTransformerStub exists only to give the processor a from.Name()
// of dialect.Antigravity so normalizeBashArguments' guard engages; its
// ParseStreamChunk/EmitStreamChunk are unused in the test above since the
// chunk is constructed directly and fed to handleChunk.
type antigravityTransformerStub struct{ anthropic.Transformer }

func (antigravityTransformerStub) Name() dialect.Name { return dialect.Antigravity }

func parseEmitted(t *testing.T, out []byte) []*canonical.StreamChunk {
	t.Helper()
	var chunks []*canonical.StreamChunk
	for _, raw := range strings.Split(string(out), "\n\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		c, err := anthropic.ParseStreamChunk([]byte(raw))
		require.NoError(t, err)
		if c != nil {
			chunks = append(chunks, c)
		}
	}
	return chunks
}
