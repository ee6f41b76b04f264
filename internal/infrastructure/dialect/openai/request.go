package openai

import (
	"encoding/json"
	"fmt"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/schema"
)

// ParseRequest converts an OpenAI chat-completions request body into the
// canonical form. System is modeled as leading role:"system" messages;
// they are pulled into Request.System rather than kept as canonical
// Messages so every dialect exposes system text the same way.
func ParseRequest(raw json.RawMessage) (*canonical.Request, error) {
	var in Request
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("openai: parse request: %w", err)
	}

	req := &canonical.Request{
		Metadata: &canonical.Metadata{Model: in.Model},
	}

	var systemParts []string
	for _, m := range in.Messages {
		if m.Role == "system" {
			systemParts = append(systemParts, decodeContentText(m.Content))
			continue
		}
		msg, err := parseMessage(m)
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, msg)
	}
	for _, s := range systemParts {
		if req.System != "" {
			req.System += "\n"
		}
		req.System += s
	}

	for _, t := range in.Tools {
		req.Tools = append(req.Tools, canonical.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  canonical.JSONSchema(t.Function.Parameters),
		})
	}

	cfg := &canonical.SamplingConfig{Stream: in.Stream}
	if in.MaxTokens != nil {
		cfg.MaxTokens = in.MaxTokens
	}
	if in.Temperature != nil {
		cfg.Temperature = in.Temperature
	}
	if in.TopP != nil {
		cfg.TopP = in.TopP
	}
	if len(in.Stop) > 0 {
		cfg.StopSequences = in.Stop
	}
	req.Config = cfg

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func parseMessage(m Message) (canonical.Message, error) {
	role := canonical.Role(m.Role)
	out := canonical.Message{Role: role, Name: m.Name}

	if m.Role == "tool" {
		out.Role = canonical.RoleTool
		out.Parts = []canonical.Part{canonical.ToolResult(m.ToolCallID, decodeContentText(m.Content), false)}
		return out, nil
	}

	if text := decodeContentText(m.Content); text != "" {
		out.Parts = append(out.Parts, canonical.Text(text))
	} else if len(m.Content) > 0 {
		parts, err := decodeContentParts(m.Content)
		if err != nil {
			return out, err
		}
		out.Parts = append(out.Parts, parts...)
	}

	for _, tc := range m.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		out.Parts = append(out.Parts, canonical.ToolCall(tc.ID, tc.Function.Name, args))
	}

	return out, nil
}

// decodeContentText returns the plain-string form of content, or "" if
// content is an array (multi-part) or absent.
func decodeContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeContentParts(raw json.RawMessage) ([]canonical.Part, error) {
	var parts []ContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("openai: parse content parts: %w", err)
	}
	var out []canonical.Part
	for _, p := range parts {
		switch p.Type {
		case "text":
			out = append(out, canonical.Text(p.Text))
		case "image_url":
			if p.ImageURL == nil {
				continue
			}
			out = append(out, canonical.Part{Type: canonical.PartImage, URL: p.ImageURL.URL, Detail: p.ImageURL.Detail})
		}
	}
	return out, nil
}

// EmitRequest converts a canonical request into an OpenAI chat-completions
// request body targeting targetModel.
func EmitRequest(req *canonical.Request, targetModel string) (json.RawMessage, error) {
	out := Request{Model: targetModel}

	if req.System != "" {
		out.Messages = append(out.Messages, Message{Role: "system", Content: quoteJSON(req.System)})
	}

	for _, m := range req.Messages {
		msgs, err := emitMessage(m)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msgs...)
	}

	for _, t := range req.Tools {
		sanitized := schema.Sanitize(t.Parameters)
		out.Tools = append(out.Tools, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        schema.SanitizeToolName(t.Name),
				Description: t.Description,
				Parameters:  sanitized,
			},
		})
	}

	if req.Config != nil {
		out.MaxTokens = req.Config.MaxTokens
		out.Temperature = req.Config.Temperature
		out.TopP = req.Config.TopP
		out.Stop = req.Config.StopSequences
		out.Stream = req.Config.Stream
	}

	return json.Marshal(out)
}

// emitMessage may return more than one OpenAI message: a canonical message
// mixing tool_result parts with other content splits into one "tool" role
// message per tool_result plus one message for the rest (OpenAI requires
// tool results as standalone messages).
func emitMessage(m canonical.Message) ([]Message, error) {
	var out []Message
	var textBuf string
	var images []ContentPart
	var toolCalls []ToolCall
	role := string(m.Role)

	for _, p := range m.Parts {
		switch p.Type {
		case canonical.PartText:
			textBuf += p.Text
		case canonical.PartToolCall:
			args := p.Arguments
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:   p.ID,
				Type: "function",
				Function: ToolCallFunc{
					Name:      schema.SanitizeToolName(p.Name),
					Arguments: string(args),
				},
			})
		case canonical.PartToolResult:
			out = append(out, Message{Role: "tool", Content: quoteJSON(p.Content), ToolCallID: p.ToolCallID})
		case canonical.PartThinking:
			// OpenAI chat-completions has no assistant thinking block;
			// documented lossy field.
		case canonical.PartImage:
			url := p.URL
			if url == "" && p.Data != "" {
				url = "data:" + p.MimeType + ";base64," + p.Data
			}
			images = append(images, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url, Detail: p.Detail}})
		}
	}

	if textBuf != "" || len(images) > 0 || len(toolCalls) > 0 || role == "assistant" {
		msg := Message{Role: role, Name: m.Name, ToolCalls: toolCalls}
		switch {
		case len(images) > 0:
			parts := make([]ContentPart, 0, len(images)+1)
			if textBuf != "" {
				parts = append(parts, ContentPart{Type: "text", Text: textBuf})
			}
			parts = append(parts, images...)
			b, err := json.Marshal(parts)
			if err != nil {
				return nil, err
			}
			msg.Content = b
		case textBuf != "":
			msg.Content = quoteJSON(textBuf)
		}
		out = append([]Message{msg}, out...)
	}

	return out, nil
}

func quoteJSON(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
