package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelrelay/relay/internal/domain/canonical"
)

// ParseResponse converts an Anthropic Messages API response into canonical
// form.
func ParseResponse(raw json.RawMessage) (*canonical.Response, error) {
	var in Response
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("anthropic: parse response: %w", err)
	}

	resp := &canonical.Response{ID: in.ID, Model: in.Model}

	for _, b := range in.Content {
		switch b.Type {
		case "text":
			resp.Content = append(resp.Content, canonical.Text(b.Text))
		case "tool_use":
			args := json.RawMessage(b.Input)
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			resp.Content = append(resp.Content, canonical.ToolCall(b.ID, b.Name, args))
		case "thinking":
			resp.Thinking = append(resp.Thinking, canonical.ThinkingBlock{Text: b.Thinking, Signature: b.Signature})
		case "redacted_thinking":
			resp.Thinking = append(resp.Thinking, canonical.ThinkingBlock{Redacted: true, Text: ""})
		}
	}

	if stop, ok := anthropicToCanonicalStop[in.StopReason]; ok {
		resp.StopReason = canonical.StopReason(stop)
	} else {
		resp.StopReason = canonical.StopEndTurn
	}

	total := in.Usage.InputTokens + in.Usage.OutputTokens
	resp.Usage = &canonical.Usage{
		InputTokens:  in.Usage.InputTokens,
		OutputTokens: in.Usage.OutputTokens,
		TotalTokens:  &total,
		CachedTokens: in.Usage.CacheReadInputTokens,
	}

	return resp, nil
}

// EmitResponse converts a canonical response into an Anthropic Messages API
// response body.
func EmitResponse(resp *canonical.Response) (json.RawMessage, error) {
	id := resp.ID
	if id == "" {
		id = "msg_" + uuid.NewString()
	}

	out := Response{
		ID:    id,
		Type:  "message",
		Role:  "assistant",
		Model: resp.Model,
	}

	for _, p := range resp.Content {
		switch p.Type {
		case canonical.PartText:
			out.Content = append(out.Content, ContentBlock{Type: "text", Text: p.Text})
		case canonical.PartToolCall:
			args := p.Arguments
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			out.Content = append(out.Content, ContentBlock{Type: "tool_use", ID: p.ID, Name: p.Name, Input: args})
		}
	}
	for _, t := range resp.Thinking {
		if t.Redacted {
			out.Content = append([]ContentBlock{{Type: "redacted_thinking", Data: t.Signature}}, out.Content...)
			continue
		}
		out.Content = append([]ContentBlock{{Type: "thinking", Thinking: t.Text, Signature: t.Signature}}, out.Content...)
	}

	out.StopReason = canonicalToAnthropicStop[string(resp.StopReason)]

	if resp.Usage != nil {
		out.Usage = Usage{
			InputTokens:          resp.Usage.InputTokens,
			OutputTokens:         resp.Usage.OutputTokens,
			CacheReadInputTokens: resp.Usage.CachedTokens,
		}
	}

	return json.Marshal(out)
}
