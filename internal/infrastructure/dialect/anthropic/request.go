package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/schema"
)

// ParseRequest converts an Anthropic Messages API request into canonical
// form. System may be a plain string or [{type:text,text}].
func ParseRequest(raw json.RawMessage) (*canonical.Request, error) {
	var in Request
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("anthropic: parse request: %w", err)
	}

	req := &canonical.Request{
		System:   decodeSystem(in.System),
		Metadata: &canonical.Metadata{Model: in.Model},
	}

	for _, m := range in.Messages {
		msg := canonical.Message{Role: canonical.Role(m.Role)}
		for _, b := range m.Content {
			part, err := parseContentBlock(b)
			if err != nil {
				return nil, err
			}
			if part != nil {
				msg.Parts = append(msg.Parts, *part)
			}
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range in.Tools {
		req.Tools = append(req.Tools, canonical.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  canonical.JSONSchema(t.InputSchema),
		})
	}

	cfg := &canonical.SamplingConfig{Stream: in.Stream, StopSequences: in.StopSeqs}
	maxTok := in.MaxTokens
	cfg.MaxTokens = &maxTok
	cfg.Temperature = in.Temperature
	cfg.TopP = in.TopP
	cfg.TopK = in.TopK
	req.Config = cfg

	if in.Thinking != nil {
		req.Thinking = &canonical.ThinkingConfig{
			Enabled:         in.Thinking.Type == "enabled",
			IncludeThoughts: in.Thinking.Type == "enabled",
		}
		if in.Thinking.BudgetTokens > 0 {
			b := in.Thinking.BudgetTokens
			req.Thinking.Budget = &b
		}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeSystem(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var out string
		for _, b := range blocks {
			out += b.Text
		}
		return out
	}
	return ""
}

func parseContentBlock(b ContentBlock) (*canonical.Part, error) {
	switch b.Type {
	case "text":
		return &canonical.Part{Type: canonical.PartText, Text: b.Text}, nil
	case "image":
		if b.Source == nil {
			return nil, nil
		}
		p := &canonical.Part{Type: canonical.PartImage, MimeType: b.Source.MediaType}
		if b.Source.Type == "url" {
			p.URL = b.Source.URL
		} else {
			p.Data = b.Source.Data
		}
		return p, nil
	case "thinking":
		return &canonical.Part{Type: canonical.PartThinking, Text: b.Thinking, Signature: b.Signature}, nil
	case "redacted_thinking":
		// Dropped from content, recorded as a redacted thinking part.
		return &canonical.Part{Type: canonical.PartThinking, Redacted: true, Text: ""}, nil
	case "tool_use":
		args := json.RawMessage(b.Input)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		return &canonical.Part{Type: canonical.PartToolCall, ID: b.ID, Name: b.Name, Arguments: args}, nil
	case "tool_result":
		return &canonical.Part{
			Type:       canonical.PartToolResult,
			ToolCallID: b.ToolUseID,
			Content:    decodeToolResultContent(b.Content),
			IsError:    b.IsError,
		}, nil
	}
	return nil, nil
}

func decodeToolResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var out string
		for _, b := range blocks {
			out += b.Text
		}
		return out
	}
	return string(raw)
}

// EmitRequest converts a canonical request into an Anthropic Messages API
// request body. max_tokens is required by Anthropic; defaults to 4096 if
// the canonical config didn't specify one.
func EmitRequest(req *canonical.Request, targetModel string) (json.RawMessage, error) {
	out := Request{Model: targetModel, MaxTokens: DefaultMaxTokens}

	if req.System != "" {
		b, _ := json.Marshal(req.System)
		out.System = b
	}

	for _, m := range req.Messages {
		blocks := make([]ContentBlock, 0, len(m.Parts))
		for _, p := range m.Parts {
			blocks = append(blocks, emitContentBlock(p)...)
		}
		role := string(m.Role)
		if role != "user" && role != "assistant" {
			role = "user"
		}
		out.Messages = append(out.Messages, Message{Role: role, Content: blocks})
	}

	for _, t := range req.Tools {
		sanitized := schema.Sanitize(t.Parameters)
		out.Tools = append(out.Tools, Tool{
			Name:        schema.SanitizeToolName(t.Name),
			Description: t.Description,
			InputSchema: sanitized,
		})
	}

	if req.Config != nil {
		if req.Config.MaxTokens != nil && *req.Config.MaxTokens > 0 {
			out.MaxTokens = *req.Config.MaxTokens
		}
		out.Temperature = req.Config.Temperature
		out.TopP = req.Config.TopP
		out.TopK = req.Config.TopK
		out.StopSeqs = req.Config.StopSequences
		out.Stream = req.Config.Stream
	}

	if req.Thinking != nil && req.Thinking.Enabled {
		tc := &ThinkingConfig{Type: "enabled"}
		if req.Thinking.Budget != nil {
			tc.BudgetTokens = *req.Thinking.Budget
		}
		out.Thinking = tc
	}

	return json.Marshal(out)
}

func emitContentBlock(p canonical.Part) []ContentBlock {
	switch p.Type {
	case canonical.PartText:
		return []ContentBlock{{Type: "text", Text: p.Text}}
	case canonical.PartImage:
		src := &ImageSource{MediaType: p.MimeType}
		if p.URL != "" {
			src.Type = "url"
			src.URL = p.URL
		} else {
			src.Type = "base64"
			src.Data = p.Data
		}
		return []ContentBlock{{Type: "image", Source: src}}
	case canonical.PartThinking:
		if p.Redacted {
			return []ContentBlock{{Type: "redacted_thinking", Data: p.Signature}}
		}
		return []ContentBlock{{Type: "thinking", Thinking: p.Text, Signature: p.Signature}}
	case canonical.PartToolCall:
		args := p.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		return []ContentBlock{{Type: "tool_use", ID: p.ID, Name: schema.SanitizeToolName(p.Name), Input: args}}
	case canonical.PartToolResult:
		content, _ := json.Marshal(p.Content)
		return []ContentBlock{{Type: "tool_result", ToolUseID: p.ToolCallID, Content: content, IsError: p.IsError}}
	}
	return nil
}
