package antigravity

import (
	"encoding/json"
	"fmt"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/infrastructure/dialect/gemini"
	"github.com/modelrelay/relay/internal/infrastructure/dialect/sseutil"
)

// ParseStreamChunk unwraps the per-event Antigravity envelope and delegates
// the inner Gemini-shaped event to the gemini transformer.
func ParseStreamChunk(event []byte) (*canonical.StreamChunk, error) {
	f := sseutil.Parse(event)
	if f.Data == "" {
		return nil, nil
	}
	var env ResponseEnvelope
	if err := json.Unmarshal([]byte(f.Data), &env); err != nil {
		return nil, fmt.Errorf("antigravity: parse stream chunk: %w", err)
	}
	if len(env.Response) == 0 {
		return nil, nil
	}
	return gemini.ParseStreamChunk(sseutil.Format("", string(env.Response)))
}

// EmitStreamChunk renders a canonical chunk via the gemini transformer,
// then wraps each resulting event body in the Antigravity envelope.
//
// Bash-argument normalization (copying a tool_call's cmd/code into command
// when the upstream is antigravity) is applied upstream of this function by
// the stream processor, not here.
func EmitStreamChunk(chunk *canonical.StreamChunk) ([][]byte, error) {
	frames, err := gemini.EmitStreamChunk(chunk)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(frames))
	for _, frame := range frames {
		f := sseutil.Parse(frame)
		if f.Data == "" {
			continue
		}
		env := ResponseEnvelope{Response: json.RawMessage(f.Data)}
		b, err := json.Marshal(env)
		if err != nil {
			return nil, err
		}
		out = append(out, sseutil.Format("", string(b)))
	}
	return out, nil
}
