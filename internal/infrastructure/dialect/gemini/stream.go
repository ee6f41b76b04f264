package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/infrastructure/dialect/sseutil"
)

// streamResponse mirrors Response but models functionCall.args as a string
// rather than json.RawMessage so that partial-JSON fragments can be decoded
// without requiring each fragment to be valid JSON on its own.
type streamResponse struct {
	Candidates    []streamCandidate `json:"candidates"`
	UsageMetadata *UsageMetadata    `json:"usageMetadata,omitempty"`
}

type streamCandidate struct {
	Content      streamContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type streamContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []streamPart `json:"parts"`
}

type streamPart struct {
	Text             string              `json:"text,omitempty"`
	InlineData       *Blob               `json:"inlineData,omitempty"`
	FunctionCall     *streamFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse   `json:"functionResponse,omitempty"`
	Thought          bool                `json:"thought,omitempty"`
	ThoughtSignature string              `json:"thoughtSignature,omitempty"`
}

type streamFunctionCall struct {
	Name string `json:"name"`
	Args string `json:"args"`
}

// ParseStreamChunk decodes one line-delimited Gemini "data: {...}" event
// (no blank-line framing, no [DONE]) into a canonical chunk.
func ParseStreamChunk(event []byte) (*canonical.StreamChunk, error) {
	f := sseutil.Parse(event)
	if f.Data == "" {
		return nil, nil
	}

	var in streamResponse
	if err := json.Unmarshal([]byte(f.Data), &in); err != nil {
		return nil, fmt.Errorf("gemini: parse stream chunk: %w", err)
	}
	if len(in.Candidates) == 0 {
		return nil, nil
	}
	cand := in.Candidates[0]

	if cand.FinishReason != "" {
		stop := canonical.StopEndTurn
		if s, ok := finishReasonToStop[cand.FinishReason]; ok {
			stop = canonical.StopReason(s)
		}
		chunk := &canonical.StreamChunk{Type: canonical.ChunkDone, StopReason: stop, BlockIndex: cand.Index}
		if in.UsageMetadata != nil {
			u := in.UsageMetadata
			total := u.TotalTokenCount
			chunk.Usage = &canonical.Usage{InputTokens: u.PromptTokenCount, OutputTokens: u.CandidatesTokenCount, TotalTokens: &total}
		}
		return chunk, nil
	}

	if len(cand.Content.Parts) == 0 {
		return nil, nil
	}
	p := cand.Content.Parts[0]

	switch {
	case p.FunctionCall != nil:
		return &canonical.StreamChunk{
			Type:        canonical.ChunkToolCall,
			BlockIndex:  cand.Index,
			BlockType:   canonical.BlockToolUse,
			PartialJSON: p.FunctionCall.Args,
			Delta:       &canonical.Part{Type: canonical.PartToolCall, Name: p.FunctionCall.Name, Signature: p.ThoughtSignature},
		}, nil
	case p.Thought:
		return &canonical.StreamChunk{
			Type: canonical.ChunkThinking, BlockIndex: cand.Index, BlockType: canonical.BlockThinking,
			Delta: &canonical.Part{Type: canonical.PartThinking, Text: p.Text, Signature: p.ThoughtSignature},
		}, nil
	case p.Text != "":
		return &canonical.StreamChunk{
			Type: canonical.ChunkContent, BlockIndex: cand.Index, BlockType: canonical.BlockText,
			Delta: &canonical.Part{Type: canonical.PartText, Text: p.Text},
		}, nil
	}
	return nil, nil
}

// EmitStreamChunk renders a canonical chunk as a Gemini line-delimited
// "data: {...}" event. There is no [DONE] terminator; the terminal event is
// a candidate carrying finishReason.
func EmitStreamChunk(chunk *canonical.StreamChunk) ([][]byte, error) {
	switch chunk.Type {
	case canonical.ChunkMessageStart:
		// No message envelope event in Gemini streaming.
		return nil, nil

	case canonical.ChunkBlockStart:
		// Text and thinking blocks have no framing here; a tool_use start
		// becomes the first functionCall frame, carrying the name so that
		// continuation frames can carry args fragments alone.
		if chunk.BlockType != canonical.BlockToolUse || chunk.Delta == nil {
			return nil, nil
		}
		out := streamResponse{Candidates: []streamCandidate{{
			Index: chunk.BlockIndex,
			Content: streamContent{Role: "model", Parts: []streamPart{{
				FunctionCall:     &streamFunctionCall{Name: chunk.Delta.Name},
				ThoughtSignature: chunk.Delta.Signature,
			}}},
		}}}
		return marshalLine(out)

	case canonical.ChunkContent:
		out := streamResponse{Candidates: []streamCandidate{{
			Index:   chunk.BlockIndex,
			Content: streamContent{Role: "model", Parts: []streamPart{{Text: textOf(chunk.Delta)}}},
		}}}
		return marshalLine(out)

	case canonical.ChunkThinking:
		out := streamResponse{Candidates: []streamCandidate{{
			Index:   chunk.BlockIndex,
			Content: streamContent{Role: "model", Parts: []streamPart{{Text: textOf(chunk.Delta), Thought: true, ThoughtSignature: signatureOf(chunk.Delta)}}},
		}}}
		return marshalLine(out)

	case canonical.ChunkToolCall:
		name := ""
		sig := ""
		if chunk.Delta != nil {
			name = chunk.Delta.Name
			sig = chunk.Delta.Signature
		}
		out := streamResponse{Candidates: []streamCandidate{{
			Index: chunk.BlockIndex,
			Content: streamContent{Role: "model", Parts: []streamPart{{
				FunctionCall:     &streamFunctionCall{Name: name, Args: chunk.PartialJSON},
				ThoughtSignature: sig,
			}}},
		}}}
		return marshalLine(out)

	case canonical.ChunkUsage:
		return nil, nil

	case canonical.ChunkDone:
		out := streamResponse{Candidates: []streamCandidate{{
			Index:        chunk.BlockIndex,
			FinishReason: stopToFinishReason[string(chunk.StopReason)],
		}}}
		if chunk.Usage != nil {
			total := chunk.Usage.Total()
			out.UsageMetadata = &UsageMetadata{PromptTokenCount: chunk.Usage.InputTokens, CandidatesTokenCount: chunk.Usage.OutputTokens, TotalTokenCount: total}
		}
		return marshalLine(out)

	case canonical.ChunkBlockStop:
		return nil, nil

	case canonical.ChunkError:
		return [][]byte{sseutil.Format("", fmt.Sprintf(`{"error":{"message":%q}}`, chunk.Error))}, nil
	}
	return nil, nil
}

func marshalLine(out streamResponse) ([][]byte, error) {
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return [][]byte{sseutil.Format("", string(b))}, nil
}

func textOf(p *canonical.Part) string {
	if p == nil {
		return ""
	}
	return p.Text
}

func signatureOf(p *canonical.Part) string {
	if p == nil {
		return ""
	}
	return p.Signature
}
