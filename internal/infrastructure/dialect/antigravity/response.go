package antigravity

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/infrastructure/dialect/gemini"
)

// ParseResponse unwraps the Antigravity response envelope and delegates the
// inner Gemini-shaped body to the gemini transformer.
func ParseResponse(raw json.RawMessage) (*canonical.Response, error) {
	var env ResponseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("antigravity: parse response: %w", err)
	}
	resp, err := gemini.ParseResponse(env.Response)
	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = env.ResponseID
	}
	return resp, nil
}

// EmitResponse builds the inner Gemini-shaped body via the gemini
// transformer, then wraps it in the Antigravity response envelope.
func EmitResponse(resp *canonical.Response) (json.RawMessage, error) {
	inner, err := gemini.EmitResponse(resp)
	if err != nil {
		return nil, err
	}
	id := resp.ID
	if id == "" {
		id = uuid.NewString()
	}
	env := ResponseEnvelope{Response: inner, ResponseID: id}
	return json.Marshal(env)
}
