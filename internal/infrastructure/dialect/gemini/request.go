package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/schema"
)

// ParseRequest converts a Gemini generateContent request into canonical
// form.
func ParseRequest(raw json.RawMessage) (*canonical.Request, error) {
	var in Request
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("gemini: parse request: %w", err)
	}

	req := &canonical.Request{}

	if in.SystemInstruction != nil {
		for _, p := range in.SystemInstruction.Parts {
			req.System += p.Text
		}
	}

	for _, c := range in.Contents {
		role := canonical.RoleUser
		if c.Role == "model" {
			role = canonical.RoleAssistant
		}
		msg := canonical.Message{Role: role}
		for _, p := range c.Parts {
			parts, err := parsePart(p)
			if err != nil {
				return nil, err
			}
			msg.Parts = append(msg.Parts, parts...)
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range in.Tools {
		for _, fd := range t.FunctionDeclarations {
			req.Tools = append(req.Tools, canonical.Tool{
				Name:        fd.Name,
				Description: fd.Description,
				Parameters:  lowerSchemaTypes(fd.Parameters),
			})
		}
	}

	if in.GenerationConfig != nil {
		gc := in.GenerationConfig
		req.Config = &canonical.SamplingConfig{
			Temperature:   gc.Temperature,
			TopP:          gc.TopP,
			TopK:          gc.TopK,
			MaxTokens:     gc.MaxOutputTokens,
			StopSequences: gc.StopSequences,
		}
		if gc.ThinkingConfig != nil {
			req.Thinking = &canonical.ThinkingConfig{
				Enabled:         gc.ThinkingConfig.ThinkingBudget != 0 || gc.ThinkingConfig.IncludeThoughts,
				IncludeThoughts: gc.ThinkingConfig.IncludeThoughts,
			}
			if gc.ThinkingConfig.ThinkingBudget != 0 {
				b := gc.ThinkingConfig.ThinkingBudget
				req.Thinking.Budget = &b
			}
		}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func parsePart(p Part) ([]canonical.Part, error) {
	switch {
	case p.FunctionCall != nil:
		args := p.FunctionCall.Args
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		return []canonical.Part{{
			Type: canonical.PartToolCall, Name: p.FunctionCall.Name, Arguments: args, Signature: p.ThoughtSignature,
		}}, nil
	case p.FunctionResponse != nil:
		content, _ := json.Marshal(p.FunctionResponse.Response)
		return []canonical.Part{{
			Type: canonical.PartToolResult, ToolCallID: p.FunctionResponse.Name, Content: string(content),
		}}, nil
	case p.InlineData != nil:
		return []canonical.Part{{Type: canonical.PartImage, MimeType: p.InlineData.MimeType, Data: p.InlineData.Data}}, nil
	case p.Thought:
		return []canonical.Part{{Type: canonical.PartThinking, Text: p.Text, Signature: p.ThoughtSignature}}, nil
	default:
		if p.Text == "" {
			return nil, nil
		}
		return []canonical.Part{canonical.Text(p.Text)}, nil
	}
}

// EmitRequest converts a canonical request into a Gemini generateContent
// request body.
func EmitRequest(req *canonical.Request, targetModel string) (json.RawMessage, error) {
	out := Request{}

	if req.System != "" {
		out.SystemInstruction = &Content{Parts: []Part{{Text: req.System}}}
	}

	for _, m := range req.Messages {
		role := "user"
		if m.Role == canonical.RoleAssistant {
			role = "model"
		}
		parts := make([]Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			parts = append(parts, emitPart(p)...)
		}
		out.Contents = append(out.Contents, Content{Role: role, Parts: parts})
	}

	for _, t := range req.Tools {
		sanitized := schema.Sanitize(t.Parameters)
		out.Tools = append(out.Tools, Tool{FunctionDeclarations: []FunctionDeclaration{{
			Name:        schema.SanitizeToolName(t.Name),
			Description: t.Description,
			Parameters:  upperSchemaTypes(map[string]interface{}(sanitized)),
		}}})
	}

	if req.Config != nil {
		out.GenerationConfig = &GenerationConfig{
			Temperature:     req.Config.Temperature,
			TopP:            req.Config.TopP,
			TopK:            req.Config.TopK,
			MaxOutputTokens: req.Config.MaxTokens,
			StopSequences:   req.Config.StopSequences,
		}
	}

	if req.Thinking != nil && req.Thinking.Enabled {
		if out.GenerationConfig == nil {
			out.GenerationConfig = &GenerationConfig{}
		}
		tc := &ThinkingConfig{IncludeThoughts: req.Thinking.IncludeThoughts}
		if req.Thinking.Budget != nil {
			tc.ThinkingBudget = *req.Thinking.Budget
		}
		out.GenerationConfig.ThinkingConfig = tc
	}

	return json.Marshal(out)
}

func emitPart(p canonical.Part) []Part {
	switch p.Type {
	case canonical.PartText:
		return []Part{{Text: p.Text}}
	case canonical.PartImage:
		return []Part{{InlineData: &Blob{MimeType: p.MimeType, Data: p.Data}}}
	case canonical.PartThinking:
		if p.Redacted {
			return nil
		}
		return []Part{{Text: p.Text, Thought: true, ThoughtSignature: p.Signature}}
	case canonical.PartToolCall:
		args := p.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		return []Part{{FunctionCall: &FunctionCall{Name: schema.SanitizeToolName(p.Name), Args: args}, ThoughtSignature: p.Signature}}
	case canonical.PartToolResult:
		var response json.RawMessage
		if json.Valid([]byte(p.Content)) {
			response = json.RawMessage(p.Content)
		} else {
			b, _ := json.Marshal(p.Content)
			response = b
		}
		return []Part{{FunctionResponse: &FunctionResponse{Name: p.ToolCallID, Response: response}}}
	}
	return nil
}

// upperSchemaTypes recursively uppercases JSONSchema "type" string values;
// the wire format wants "OBJECT"/"STRING" where canonical keeps lowercase.
func upperSchemaTypes(node map[string]interface{}) map[string]interface{} {
	return mapSchemaTypes(node, strings.ToUpper)
}

func lowerSchemaTypes(node map[string]interface{}) map[string]interface{} {
	return mapSchemaTypes(node, strings.ToLower)
}

func mapSchemaTypes(node map[string]interface{}, f func(string) string) map[string]interface{} {
	if node == nil {
		return nil
	}
	out := make(map[string]interface{}, len(node))
	for k, v := range node {
		out[k] = mapSchemaValue(k, v, f)
	}
	return out
}

func mapSchemaValue(key string, v interface{}, f func(string) string) interface{} {
	switch val := v.(type) {
	case string:
		if key == "type" {
			return f(val)
		}
		return val
	case map[string]interface{}:
		return mapSchemaTypes(val, f)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = mapSchemaValue(key, e, f)
		}
		return out
	default:
		return v
	}
}
