package openaiweb

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/schema"
)

// ParseRequest converts a Responses API request into canonical form.
func ParseRequest(raw json.RawMessage) (*canonical.Request, error) {
	var in Request
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("openaiweb: parse request: %w", err)
	}

	req := &canonical.Request{System: in.Instructions, Metadata: &canonical.Metadata{Model: in.Model}}

	for _, item := range in.Input {
		switch item.Type {
		case "function_call":
			args := item.Arguments
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			req.Messages = append(req.Messages, canonical.Message{
				Role:  canonical.RoleAssistant,
				Parts: []canonical.Part{{Type: canonical.PartToolCall, ID: item.CallID, Name: item.Name, Arguments: args}},
			})
		case "function_call_output":
			req.Messages = append(req.Messages, canonical.Message{
				Role:  canonical.RoleTool,
				Parts: []canonical.Part{canonical.ToolResult(item.CallID, item.Output, false)},
			})
		default:
			role := canonical.RoleUser
			if item.Role == "assistant" {
				role = canonical.RoleAssistant
			}
			msg := canonical.Message{Role: role}
			for _, c := range item.Content {
				switch c.Type {
				case "input_image":
					msg.Parts = append(msg.Parts, canonical.Part{Type: canonical.PartImage, URL: c.ImageURL})
				default:
					msg.Parts = append(msg.Parts, canonical.Text(c.Text))
				}
			}
			req.Messages = append(req.Messages, msg)
		}
	}

	for _, t := range in.Tools {
		req.Tools = append(req.Tools, canonical.Tool{Name: t.Name, Description: t.Description, Parameters: canonical.JSONSchema(t.Parameters)})
	}

	cfg := &canonical.SamplingConfig{Stream: in.Stream, MaxTokens: in.MaxOutputTokens, Temperature: in.Temperature, TopP: in.TopP}
	req.Config = cfg

	if in.Reasoning != nil {
		req.Thinking = &canonical.ThinkingConfig{Enabled: true, IncludeThoughts: true}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// EmitRequest converts a canonical request into a Responses API request
// body targeting the Codex backend. store is always false and stream is
// always true for this backend; instructions come from the active
// CodexInstructions collaborator keyed by model family, unless the request
// carries a system prompt, which is sent as the instructions instead.
func EmitRequest(req *canonical.Request, targetModel string) (json.RawMessage, error) {
	out := Request{
		Model:        targetModel,
		Store:        false,
		Stream:       true,
		Instructions: activeInstructions.InstructionsFor(modelFamily(targetModel)),
	}
	if req.System != "" {
		out.Instructions = req.System
	}

	for _, m := range req.Messages {
		for _, p := range m.Parts {
			switch p.Type {
			case canonical.PartToolCall:
				args := p.Arguments
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				out.Input = append(out.Input, InputItem{Type: "function_call", CallID: p.ID, Name: p.Name, Arguments: args})
			case canonical.PartToolResult:
				out.Input = append(out.Input, InputItem{Type: "function_call_output", CallID: p.ToolCallID, Output: p.Content})
			default:
				role := string(m.Role)
				if role != "assistant" {
					role = "user"
				}
				out.Input = append(out.Input, InputItem{Type: "message", Role: role, Content: emitContent(p)})
			}
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{
			Type:        "function",
			Name:        schema.SanitizeToolName(t.Name),
			Description: t.Description,
			Parameters:  schema.Sanitize(t.Parameters),
		})
	}

	if req.Config != nil {
		out.MaxOutputTokens = req.Config.MaxTokens
		out.Temperature = req.Config.Temperature
		out.TopP = req.Config.TopP
	}

	if req.Thinking != nil && req.Thinking.Enabled {
		out.Reasoning = &ReasoningConfig{Effort: "medium"}
	}

	return json.Marshal(out)
}

func emitContent(p canonical.Part) []InputContent {
	switch p.Type {
	case canonical.PartImage:
		return []InputContent{{Type: "input_image", ImageURL: p.URL}}
	default:
		return []InputContent{{Type: "input_text", Text: p.Text}}
	}
}

// modelFamily extracts the coarse family name used to key
// CodexInstructions, defaulting to "default" for anything unrecognized.
func modelFamily(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "gpt-5"):
		return "gpt-5"
	default:
		return "default"
	}
}
