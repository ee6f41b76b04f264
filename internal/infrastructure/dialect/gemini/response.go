package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/modelrelay/relay/internal/domain/canonical"
)

// ParseResponse converts a Gemini generateContent response into canonical
// form.
func ParseResponse(raw json.RawMessage) (*canonical.Response, error) {
	var in Response
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("gemini: parse response: %w", err)
	}

	resp := &canonical.Response{Model: in.ModelVersion}

	if len(in.Candidates) > 0 {
		cand := in.Candidates[0]
		for _, p := range cand.Parts() {
			switch p.Type {
			case canonical.PartThinking:
				resp.Thinking = append(resp.Thinking, canonical.ThinkingBlock{Text: p.Text, Signature: p.Signature})
			default:
				resp.Content = append(resp.Content, p)
			}
		}
		// Gemini reports STOP even when the turn ends in a functionCall, so a
		// tool call turns an end_turn (or unknown) finish into tool_use.
		stop, ok := finishReasonToStop[cand.FinishReason]
		switch {
		case hasToolCall(cand) && (!ok || canonical.StopReason(stop) == canonical.StopEndTurn):
			resp.StopReason = canonical.StopToolUse
		case ok:
			resp.StopReason = canonical.StopReason(stop)
		default:
			resp.StopReason = canonical.StopEndTurn
		}
	}

	if in.UsageMetadata != nil {
		u := in.UsageMetadata
		total := u.TotalTokenCount
		resp.Usage = &canonical.Usage{InputTokens: u.PromptTokenCount, OutputTokens: u.CandidatesTokenCount, TotalTokens: &total}
		if u.ThoughtsTokenCount > 0 {
			tt := u.ThoughtsTokenCount
			resp.Usage.ThinkingTokens = &tt
		}
		if u.CachedContentTokenCount > 0 {
			ct := u.CachedContentTokenCount
			resp.Usage.CachedTokens = &ct
		}
	}

	return resp, nil
}

// Parts decodes a Candidate's content parts into canonical parts, used by
// both ParseResponse and the stream processor's final-accumulation path.
func (c Candidate) Parts() []canonical.Part {
	var out []canonical.Part
	for _, p := range c.Content.Parts {
		parts, _ := parsePart(p)
		out = append(out, parts...)
	}
	return out
}

func hasToolCall(c Candidate) bool {
	for _, p := range c.Content.Parts {
		if p.FunctionCall != nil {
			return true
		}
	}
	return false
}

// EmitResponse converts a canonical response into a Gemini generateContent
// response body.
func EmitResponse(resp *canonical.Response) (json.RawMessage, error) {
	content := Content{Role: "model"}
	for _, t := range resp.Thinking {
		if t.Redacted {
			continue
		}
		content.Parts = append(content.Parts, Part{Text: t.Text, Thought: true, ThoughtSignature: t.Signature})
	}
	for _, p := range resp.Content {
		content.Parts = append(content.Parts, emitPart(p)...)
	}

	cand := Candidate{Content: content, FinishReason: stopToFinishReason[string(resp.StopReason)]}

	out := Response{Candidates: []Candidate{cand}, ModelVersion: resp.Model}
	if resp.Usage != nil {
		out.UsageMetadata = &UsageMetadata{
			PromptTokenCount:     resp.Usage.InputTokens,
			CandidatesTokenCount: resp.Usage.OutputTokens,
			TotalTokenCount:      resp.Usage.Total(),
		}
		if resp.Usage.ThinkingTokens != nil {
			out.UsageMetadata.ThoughtsTokenCount = *resp.Usage.ThinkingTokens
		}
	}

	return json.Marshal(out)
}
