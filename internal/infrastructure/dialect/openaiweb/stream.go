package openaiweb

import (
	"encoding/json"
	"fmt"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/infrastructure/dialect/sseutil"
)

// ParseStreamChunk decodes one Responses API SSE event into a canonical
// chunk. response.created carries no translatable content and parses to
// nil, nil.
func ParseStreamChunk(event []byte) (*canonical.StreamChunk, error) {
	f := sseutil.Parse(event)
	if f.Data == "" {
		return nil, nil
	}

	var ev StreamEvent
	if err := json.Unmarshal([]byte(f.Data), &ev); err != nil {
		return nil, fmt.Errorf("openaiweb: parse stream event: %w", err)
	}

	switch ev.Type {
	case "response.created", "response.in_progress":
		return nil, nil

	case "response.output_item.added":
		if ev.Item == nil {
			return nil, nil
		}
		if ev.Item.Type == "function_call" {
			return &canonical.StreamChunk{
				Type: canonical.ChunkToolCall, BlockIndex: ev.OutputIndex, BlockType: canonical.BlockToolUse,
				Delta: &canonical.Part{Type: canonical.PartToolCall, ID: ev.Item.CallID, Name: ev.Item.Name},
			}, nil
		}
		return nil, nil

	case "response.output_text.delta":
		return &canonical.StreamChunk{
			Type: canonical.ChunkContent, BlockIndex: ev.OutputIndex, BlockType: canonical.BlockText,
			Delta: &canonical.Part{Type: canonical.PartText, Text: ev.Delta},
		}, nil

	case "response.function_call_arguments.delta":
		return &canonical.StreamChunk{
			Type: canonical.ChunkToolCall, BlockIndex: ev.OutputIndex, BlockType: canonical.BlockToolUse,
			PartialJSON: ev.Delta,
		}, nil

	case "response.reasoning_summary_text.delta":
		return &canonical.StreamChunk{
			Type: canonical.ChunkThinking, BlockIndex: ev.OutputIndex, BlockType: canonical.BlockThinking,
			Delta: &canonical.Part{Type: canonical.PartThinking, Text: ev.Delta},
		}, nil

	case "response.output_item.done":
		return &canonical.StreamChunk{Type: canonical.ChunkBlockStop, BlockIndex: ev.OutputIndex}, nil

	case "response.completed":
		chunk := &canonical.StreamChunk{Type: canonical.ChunkDone, StopReason: canonical.StopEndTurn}
		if ev.Response != nil {
			for _, item := range ev.Response.Output {
				if item.Type == "function_call" {
					chunk.StopReason = canonical.StopToolUse
				}
			}
			if ev.Response.Usage != nil {
				total := ev.Response.Usage.TotalTokens
				chunk.Usage = &canonical.Usage{InputTokens: ev.Response.Usage.InputTokens, OutputTokens: ev.Response.Usage.OutputTokens, TotalTokens: &total}
			}
		}
		return chunk, nil

	case "response.failed":
		return &canonical.StreamChunk{Type: canonical.ChunkError, Error: "upstream response.failed"}, nil
	}
	return nil, nil
}

// EmitStreamChunk renders a canonical chunk as Responses API SSE events.
func EmitStreamChunk(chunk *canonical.StreamChunk) ([][]byte, error) {
	switch chunk.Type {
	case canonical.ChunkMessageStart:
		ev := StreamEvent{Type: "response.created", Response: &Response{Status: "in_progress"}}
		return marshalEvent(ev)

	case canonical.ChunkBlockStart:
		if chunk.BlockType != canonical.BlockToolUse || chunk.Delta == nil {
			return nil, nil
		}
		ev := StreamEvent{
			Type: "response.output_item.added", OutputIndex: chunk.BlockIndex,
			Item: &OutputItem{Type: "function_call", CallID: chunk.Delta.ID, Name: chunk.Delta.Name},
		}
		return marshalEvent(ev)

	case canonical.ChunkContent:
		ev := StreamEvent{Type: "response.output_text.delta", OutputIndex: chunk.BlockIndex, Delta: textOf(chunk.Delta)}
		return marshalEvent(ev)

	case canonical.ChunkToolCall:
		var frames [][]byte
		if chunk.Delta != nil && chunk.Delta.Name != "" {
			added := StreamEvent{
				Type: "response.output_item.added", OutputIndex: chunk.BlockIndex,
				Item: &OutputItem{Type: "function_call", CallID: chunk.Delta.ID, Name: chunk.Delta.Name},
			}
			f, err := marshalEvent(added)
			if err != nil {
				return nil, err
			}
			frames = append(frames, f...)
		}
		if chunk.PartialJSON != "" {
			delta := StreamEvent{Type: "response.function_call_arguments.delta", OutputIndex: chunk.BlockIndex, Delta: chunk.PartialJSON}
			f, err := marshalEvent(delta)
			if err != nil {
				return nil, err
			}
			frames = append(frames, f...)
		}
		return frames, nil

	case canonical.ChunkThinking:
		ev := StreamEvent{Type: "response.reasoning_summary_text.delta", OutputIndex: chunk.BlockIndex, Delta: textOf(chunk.Delta)}
		return marshalEvent(ev)

	case canonical.ChunkBlockStop:
		ev := StreamEvent{Type: "response.output_item.done", OutputIndex: chunk.BlockIndex}
		return marshalEvent(ev)

	case canonical.ChunkUsage:
		return nil, nil

	case canonical.ChunkDone:
		resp := &Response{Status: "completed"}
		if chunk.Usage != nil {
			resp.Usage = &Usage{InputTokens: chunk.Usage.InputTokens, OutputTokens: chunk.Usage.OutputTokens, TotalTokens: chunk.Usage.Total()}
		}
		ev := StreamEvent{Type: "response.completed", Response: resp}
		return marshalEvent(ev)

	case canonical.ChunkError:
		ev := StreamEvent{Type: "response.failed", Text: chunk.Error}
		return marshalEvent(ev)
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
