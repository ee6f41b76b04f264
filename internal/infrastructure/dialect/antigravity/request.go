package antigravity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/infrastructure/dialect/gemini"
)

// ParseRequest unwraps the Antigravity envelope and delegates the inner
// Gemini-shaped payload to the gemini transformer.
func ParseRequest(raw json.RawMessage) (*canonical.Request, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("antigravity: parse request: %w", err)
	}
	req, err := gemini.ParseRequest(env.Payload)
	if err != nil {
		return nil, err
	}
	if req.Metadata == nil {
		req.Metadata = &canonical.Metadata{}
	}
	if req.Metadata.Project == "" {
		req.Metadata.Project = env.Project
	}
	if req.Metadata.Model == "" {
		req.Metadata.Model = env.Model
	}
	return req, nil
}

// EmitRequest builds the inner Gemini-shaped body via the gemini
// transformer, then wraps it in the Antigravity envelope. When targetModel
// is a Claude-family model, the generationConfig.thinkingConfig keys are
// rewritten to snake_case since Antigravity forwards the
// request to a Claude-compatible upstream in that case.
func EmitRequest(req *canonical.Request, targetModel string) (json.RawMessage, error) {
	inner, err := gemini.EmitRequest(req, targetModel)
	if err != nil {
		return nil, err
	}

	if isClaudeFamily(targetModel) {
		inner, err = rewriteThinkingConfigSnakeCase(inner)
		if err != nil {
			return nil, err
		}
	}

	project := ""
	if req.Metadata != nil {
		project = req.Metadata.Project
	}

	env := RequestEnvelope{
		Project:   project,
		Model:     targetModel,
		UserAgent: "antigravity",
		RequestID: uuid.NewString(),
		Payload:   inner,
	}
	return json.Marshal(env)
}

// isClaudeFamily implements the glossary's "Model family" substring rule
// for the claude family.
func isClaudeFamily(model string) bool {
	return strings.Contains(strings.ToLower(model), "claude")
}

func rewriteThinkingConfigSnakeCase(raw json.RawMessage) (json.RawMessage, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return raw, err
	}
	gc, ok := body["generationConfig"].(map[string]interface{})
	if !ok {
		return raw, nil
	}
	tc, ok := gc["thinkingConfig"].(map[string]interface{})
	if !ok {
		return raw, nil
	}
	snake := map[string]interface{}{}
	if v, ok := tc["includeThoughts"]; ok {
		snake["include_thoughts"] = v
	}
	if v, ok := tc["thinkingBudget"]; ok {
		snake["thinking_budget"] = v
	}
	gc["thinkingConfig"] = snake
	return json.Marshal(body)
}
