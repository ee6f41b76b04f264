package openaiweb

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelrelay/relay/internal/domain/canonical"
)

// ParseResponse converts a Responses API response into canonical form.
func ParseResponse(raw json.RawMessage) (*canonical.Response, error) {
	var in Response
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("openaiweb: parse response: %w", err)
	}

	resp := &canonical.Response{ID: in.ID, Model: in.Model, StopReason: canonical.StopEndTurn}

	for _, item := range in.Output {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				resp.Content = append(resp.Content, canonical.Text(c.Text))
			}
		case "function_call":
			args := item.Arguments
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			resp.Content = append(resp.Content, canonical.ToolCall(item.CallID, item.Name, args))
			resp.StopReason = canonical.StopToolUse
		case "reasoning":
			for _, s := range item.Summary {
				resp.Thinking = append(resp.Thinking, canonical.ThinkingBlock{Text: s.Text})
			}
		}
	}

	if in.Usage != nil {
		total := in.Usage.TotalTokens
		resp.Usage = &canonical.Usage{InputTokens: in.Usage.InputTokens, OutputTokens: in.Usage.OutputTokens, TotalTokens: &total}
		if in.Usage.OutputTokensDetails != nil && in.Usage.OutputTokensDetails.ReasoningTokens > 0 {
			rt := in.Usage.OutputTokensDetails.ReasoningTokens
			resp.Usage.ThinkingTokens = &rt
		}
	}

	return resp, nil
}

// EmitResponse converts a canonical response into a Responses API response
// body.
func EmitResponse(resp *canonical.Response) (json.RawMessage, error) {
	id := resp.ID
	if id == "" {
		id = "resp_" + uuid.NewString()
	}
	out := Response{ID: id, Object: "response", Model: resp.Model, Status: "completed"}

	var msgContent []OutputContent
	for _, p := range resp.Content {
		switch p.Type {
		case canonical.PartText:
			msgContent = append(msgContent, OutputContent{Type: "output_text", Text: p.Text})
		case canonical.PartToolCall:
			args := p.Arguments
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			out.Output = append(out.Output, OutputItem{Type: "function_call", CallID: p.ID, Name: p.Name, Arguments: args})
		}
	}
	if len(msgContent) > 0 {
		out.Output = append([]OutputItem{{Type: "message", Role: "assistant", Content: msgContent}}, out.Output...)
	}
	for _, t := range resp.Thinking {
		out.Output = append([]OutputItem{{Type: "reasoning", Summary: []OutputContent{{Type: "summary_text", Text: t.Text}}}}, out.Output...)
	}

	if resp.Usage != nil {
		out.Usage = &Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens, TotalTokens: resp.Usage.Total()}
		if resp.Usage.ThinkingTokens != nil {
			out.Usage.OutputTokensDetails = &struct {
				ReasoningTokens int `json:"reasoning_tokens"`
			}{ReasoningTokens: *resp.Usage.ThinkingTokens}
		}
	}

	return json.Marshal(out)
}
