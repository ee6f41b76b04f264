package openai

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelrelay/relay/internal/domain/canonical"
)

// ParseResponse converts an OpenAI chat-completions response body into the
// canonical form.
func ParseResponse(raw json.RawMessage) (*canonical.Response, error) {
	var in Response
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("openai: parse response: %w", err)
	}
	if len(in.Choices) == 0 {
		return nil, fmt.Errorf("openai: response has no choices")
	}
	choice := in.Choices[0]

	resp := &canonical.Response{ID: in.ID, Model: in.Model}

	if text := decodeContentText(choice.Message.Content); text != "" {
		resp.Content = append(resp.Content, canonical.Text(text))
	}
	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		resp.Content = append(resp.Content, canonical.ToolCall(tc.ID, tc.Function.Name, args))
	}

	finish := ""
	if choice.FinishReason != nil {
		finish = *choice.FinishReason
	}
	if stop, ok := finishReasonToStop[finish]; ok {
		resp.StopReason = canonical.StopReason(stop)
	} else {
		resp.StopReason = canonical.StopEndTurn
	}

	if in.Usage != nil {
		total := in.Usage.TotalTokens
		resp.Usage = &canonical.Usage{
			InputTokens:  in.Usage.PromptTokens,
			OutputTokens: in.Usage.CompletionTokens,
			TotalTokens:  &total,
		}
	}

	return resp, nil
}

// EmitResponse converts a canonical response into an OpenAI
// chat-completions response body.
func EmitResponse(resp *canonical.Response) (json.RawMessage, error) {
	id := resp.ID
	if id == "" {
		id = "chatcmpl-" + uuid.NewString()
	}

	msg := Message{Role: "assistant"}
	var textBuf string
	for _, p := range resp.Content {
		switch p.Type {
		case canonical.PartText:
			textBuf += p.Text
		case canonical.PartToolCall:
			args := p.Arguments
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   p.ID,
				Type: "function",
				Function: ToolCallFunc{
					Name:      p.Name,
					Arguments: string(args),
				},
			})
		}
	}
	if textBuf != "" {
		msg.Content = quoteJSON(textBuf)
	}

	finish := stopToFinishReason[string(resp.StopReason)]
	out := Response{
		ID:     id,
		Object: "chat.completion",
		Model:  resp.Model,
		Choices: []Choice{
			{Index: 0, Message: msg, FinishReason: &finish},
		},
	}
	if resp.Usage != nil {
		out.Usage = &Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.Total(),
		}
	}

	return json.Marshal(out)
}
