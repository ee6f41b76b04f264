package openai

import (
	"encoding/json"
	"fmt"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/infrastructure/dialect/sseutil"
)

// ParseStreamChunk decodes one "data: {...}" SSE frame (or the "[DONE]"
// terminator) into a canonical chunk.
func ParseStreamChunk(event []byte) (*canonical.StreamChunk, error) {
	f := sseutil.Parse(event)
	if f.Data == "" {
		return nil, nil
	}
	if f.Data == "[DONE]" {
		return &canonical.StreamChunk{Type: canonical.ChunkDone}, nil
	}

	var data StreamChunkData
	if err := json.Unmarshal([]byte(f.Data), &data); err != nil {
		return nil, fmt.Errorf("openai: parse stream chunk: %w", err)
	}
	if len(data.Choices) == 0 {
		if data.Usage != nil {
			total := data.Usage.TotalTokens
			return &canonical.StreamChunk{Type: canonical.ChunkUsage, Usage: &canonical.Usage{
				InputTokens: data.Usage.PromptTokens, OutputTokens: data.Usage.CompletionTokens, TotalTokens: &total,
			}}, nil
		}
		return nil, nil
	}

	choice := data.Choices[0]

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		stop := canonical.StopEndTurn
		if s, ok := finishReasonToStop[*choice.FinishReason]; ok {
			stop = canonical.StopReason(s)
		}
		return &canonical.StreamChunk{Type: canonical.ChunkDone, StopReason: stop, BlockIndex: choice.Index}, nil
	}

	if len(choice.Delta.ToolCalls) > 0 {
		tc := choice.Delta.ToolCalls[0]
		idx := choice.Index
		if tc.Index != nil {
			idx = *tc.Index
		}
		return &canonical.StreamChunk{
			Type:        canonical.ChunkToolCall,
			BlockIndex:  idx,
			BlockType:   canonical.BlockToolUse,
			PartialJSON: tc.Function.Arguments,
			Delta:       &canonical.Part{Type: canonical.PartToolCall, ID: tc.ID, Name: tc.Function.Name},
		}, nil
	}

	if choice.Delta.Content != "" {
		return &canonical.StreamChunk{
			Type:       canonical.ChunkContent,
			BlockIndex: choice.Index,
			BlockType:  canonical.BlockText,
			Delta:      &canonical.Part{Type: canonical.PartText, Text: choice.Delta.Content},
		}, nil
	}

	return nil, nil
}

// EmitStreamChunk renders a canonical chunk as OpenAI "data: {...}" SSE
// frames. Done chunks are followed by the "[DONE]" terminator frame.
func EmitStreamChunk(chunk *canonical.StreamChunk) ([][]byte, error) {
	switch chunk.Type {
	case canonical.ChunkMessageStart:
		// Chat-completions streams have no message envelope event.
		return nil, nil

	case canonical.ChunkBlockStart:
		// Only tool_use blocks have a start representation here: the first
		// tool_calls delta carries the call id and function name.
		if chunk.BlockType != canonical.BlockToolUse || chunk.Delta == nil {
			return nil, nil
		}
		idx := chunk.BlockIndex
		data := StreamChunkData{Choices: []StreamChoice{{
			Index: chunk.BlockIndex,
			Delta: StreamDelta{ToolCalls: []ToolCall{{
				Index:    &idx,
				ID:       chunk.Delta.ID,
				Type:     "function",
				Function: ToolCallFunc{Name: chunk.Delta.Name},
			}}},
		}}}
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		return [][]byte{sseutil.Format("", string(b))}, nil

	case canonical.ChunkContent:
		data := StreamChunkData{Choices: []StreamChoice{{
			Index: chunk.BlockIndex,
			Delta: StreamDelta{Content: textOf(chunk.Delta)},
		}}}
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		return [][]byte{sseutil.Format("", string(b))}, nil

	case canonical.ChunkToolCall:
		idx := chunk.BlockIndex
		tc := ToolCall{
			Index: &idx,
			ID:    "",
			Type:  "function",
			Function: ToolCallFunc{
				Arguments: chunk.PartialJSON,
			},
		}
		if chunk.Delta != nil {
			tc.ID = chunk.Delta.ID
			tc.Function.Name = chunk.Delta.Name
		}
		data := StreamChunkData{Choices: []StreamChoice{{
			Index: chunk.BlockIndex,
			Delta: StreamDelta{ToolCalls: []ToolCall{tc}},
		}}}
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		return [][]byte{sseutil.Format("", string(b))}, nil

	case canonical.ChunkThinking:
		// OpenAI chat-completions streaming has no thinking delta;
		// documented lossy field.
		return nil, nil

	case canonical.ChunkUsage:
		data := StreamChunkData{Choices: []StreamChoice{}}
		if chunk.Usage != nil {
			data.Usage = &Usage{
				PromptTokens:     chunk.Usage.InputTokens,
				CompletionTokens: chunk.Usage.OutputTokens,
				TotalTokens:      chunk.Usage.Total(),
			}
		}
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		return [][]byte{sseutil.Format("", string(b))}, nil

	case canonical.ChunkDone:
		finish := stopToFinishReason[string(chunk.StopReason)]
		data := StreamChunkData{Choices: []StreamChoice{{
			Index:        chunk.BlockIndex,
			Delta:        StreamDelta{},
			FinishReason: &finish,
		}}}
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		return [][]byte{sseutil.Format("", string(b)), sseutil.Format("", "[DONE]")}, nil

	case canonical.ChunkError:
		return [][]byte{sseutil.Format("error", fmt.Sprintf(`{"error":%q}`, chunk.Error))}, nil

	case canonical.ChunkBlockStop:
		return nil, nil
	}
	return nil, nil
}

func textOf(p *canonical.Part) string {
	if p == nil {
		return ""
	}
	return p.Text
}
