package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/infrastructure/dialect/sseutil"
)

// ParseStreamChunk decodes one Anthropic SSE event
// (message_start/content_block_start/content_block_delta/content_block_stop/
// message_delta/message_stop/ping) into a canonical chunk. ping and
// message_start carry no canonical content and parse to nil, nil.
func ParseStreamChunk(event []byte) (*canonical.StreamChunk, error) {
	f := sseutil.Parse(event)
	if f.Data == "" {
		return nil, nil
	}

	var ev StreamEvent
	if err := json.Unmarshal([]byte(f.Data), &ev); err != nil {
		return nil, fmt.Errorf("anthropic: parse stream event: %w", err)
	}

	switch ev.Type {
	case "ping", "message_start":
		return nil, nil

	case "content_block_start":
		if ev.ContentBlock == nil {
			return nil, nil
		}
		switch ev.ContentBlock.Type {
		case "tool_use":
			return &canonical.StreamChunk{
				Type:       canonical.ChunkToolCall,
				BlockIndex: ev.Index,
				BlockType:  canonical.BlockToolUse,
				Delta:      &canonical.Part{Type: canonical.PartToolCall, ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name},
			}, nil
		case "thinking":
			return &canonical.StreamChunk{Type: canonical.ChunkThinking, BlockIndex: ev.Index, BlockType: canonical.BlockThinking}, nil
		case "text":
			if ev.ContentBlock.Text == "" {
				return nil, nil
			}
			return &canonical.StreamChunk{
				Type: canonical.ChunkContent, BlockIndex: ev.Index, BlockType: canonical.BlockText,
				Delta: &canonical.Part{Type: canonical.PartText, Text: ev.ContentBlock.Text},
			}, nil
		}
		return nil, nil

	case "content_block_delta":
		if ev.Delta == nil {
			return nil, nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			return &canonical.StreamChunk{
				Type: canonical.ChunkContent, BlockIndex: ev.Index, BlockType: canonical.BlockText,
				Delta: &canonical.Part{Type: canonical.PartText, Text: ev.Delta.Text},
			}, nil
		case "input_json_delta":
			return &canonical.StreamChunk{
				Type: canonical.ChunkToolCall, BlockIndex: ev.Index, BlockType: canonical.BlockToolUse,
				PartialJSON: ev.Delta.PartialJSON,
			}, nil
		case "thinking_delta":
			return &canonical.StreamChunk{
				Type: canonical.ChunkThinking, BlockIndex: ev.Index, BlockType: canonical.BlockThinking,
				Delta: &canonical.Part{Type: canonical.PartThinking, Text: ev.Delta.Thinking},
			}, nil
		case "signature_delta":
			return &canonical.StreamChunk{
				Type: canonical.ChunkThinking, BlockIndex: ev.Index, BlockType: canonical.BlockThinking,
				Delta: &canonical.Part{Type: canonical.PartThinking, Signature: ev.Delta.Signature},
			}, nil
		}
		return nil, nil

	case "content_block_stop":
		return &canonical.StreamChunk{Type: canonical.ChunkBlockStop, BlockIndex: ev.Index}, nil

	case "message_delta":
		stop := canonical.StopEndTurn
		if ev.Delta != nil {
			if s, ok := anthropicToCanonicalStop[ev.Delta.StopReason]; ok {
				stop = canonical.StopReason(s)
			}
		}
		chunk := &canonical.StreamChunk{Type: canonical.ChunkDone, StopReason: stop}
		if ev.Usage != nil {
			total := ev.Usage.InputTokens + ev.Usage.OutputTokens
			chunk.Usage = &canonical.Usage{InputTokens: ev.Usage.InputTokens, OutputTokens: ev.Usage.OutputTokens, TotalTokens: &total}
		}
		return chunk, nil

	case "message_stop":
		return nil, nil
	}
	return nil, nil
}

// EmitStreamChunk renders a canonical chunk as Anthropic SSE events.
// Implicit block framing is the stream processor's responsibility; delta
// chunks render exactly one event each.
func EmitStreamChunk(chunk *canonical.StreamChunk) ([][]byte, error) {
	switch chunk.Type {
	case canonical.ChunkMessageStart:
		ev := StreamEvent{Type: "message_start", Message: &Response{
			ID:      "msg_" + uuid.NewString(),
			Type:    "message",
			Role:    "assistant",
			Content: []ContentBlock{},
		}}
		return marshalEvent(ev)

	case canonical.ChunkBlockStart:
		block := &ContentBlock{}
		switch chunk.BlockType {
		case canonical.BlockThinking:
			block.Type = "thinking"
		case canonical.BlockToolUse:
			block.Type = "tool_use"
			if chunk.Delta != nil {
				block.ID = chunk.Delta.ID
				block.Name = chunk.Delta.Name
			}
			block.Input = json.RawMessage(`{}`)
		default:
			block.Type = "text"
			block.Text = textOf(chunk.Delta)
		}
		ev := StreamEvent{Type: "content_block_start", Index: chunk.BlockIndex, ContentBlock: block}
		return marshalEvent(ev)

	case canonical.ChunkContent:
		ev := StreamEvent{Type: "content_block_delta", Index: chunk.BlockIndex, Delta: &StreamDelta{Type: "text_delta", Text: textOf(chunk.Delta)}}
		return marshalEvent(ev)

	case canonical.ChunkToolCall:
		ev := StreamEvent{Type: "content_block_delta", Index: chunk.BlockIndex, Delta: &StreamDelta{Type: "input_json_delta", PartialJSON: chunk.PartialJSON}}
		return marshalEvent(ev)

	case canonical.ChunkThinking:
		if chunk.Delta != nil && chunk.Delta.Signature != "" {
			ev := StreamEvent{Type: "content_block_delta", Index: chunk.BlockIndex, Delta: &StreamDelta{Type: "signature_delta", Signature: chunk.Delta.Signature}}
			return marshalEvent(ev)
		}
		ev := StreamEvent{Type: "content_block_delta", Index: chunk.BlockIndex, Delta: &StreamDelta{Type: "thinking_delta", Thinking: textOf(chunk.Delta)}}
		return marshalEvent(ev)

	case canonical.ChunkBlockStop:
		ev := StreamEvent{Type: "content_block_stop", Index: chunk.BlockIndex}
		return marshalEvent(ev)

	case canonical.ChunkUsage:
		return nil, nil

	case canonical.ChunkDone:
		reason := canonicalToAnthropicStop[string(chunk.StopReason)]
		ev := StreamEvent{Type: "message_delta", Delta: &StreamDelta{StopReason: reason}}
		if chunk.Usage != nil {
			ev.Usage = &Usage{InputTokens: chunk.Usage.InputTokens, OutputTokens: chunk.Usage.OutputTokens}
		}
		frames, err := marshalEvent(ev)
		if err != nil {
			return nil, err
		}
		stop, err := marshalEvent(StreamEvent{Type: "message_stop"})
		if err != nil {
			return nil, err
		}
		return append(frames, stop...), nil

	case canonical.ChunkError:
		return [][]byte{sseutil.Format("error", fmt.Sprintf(`{"type":"error","error":{"message":%q}}`, chunk.Error))}, nil
	}
	return nil, nil
}

func marshalEvent(ev StreamEvent) ([][]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return [][]byte{sseutil.Format(ev.Type, string(b))}, nil
}

func textOf(p *canonical.Part) string {
	if p == nil {
		return ""
	}
	return p.Text
}
