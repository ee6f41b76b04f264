package dispatch

import "encoding/json"

// stripSignatureFields recursively removes any "signature", "thoughtSignature",
// or "thought_signature" key from a JSON object tree. Used by the dispatch
// loop when the effective model family changes between retry attempts
// (e.g. Claude -> Gemini):
// a validator on the new upstream must never see a replayed signature it
// didn't itself issue.
func stripSignatureFields(raw json.RawMessage) json.RawMessage {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	stripped := stripValue(v)
	out, err := json.Marshal(stripped)
	if err != nil {
		return raw
	}
	return out
}

var signatureKeys = map[string]bool{
	"signature":         true,
	"thoughtSignature":  true,
	"thought_signature": true,
}

func stripValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if signatureKeys[k] {
				continue
			}
			out[k] = stripValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = stripValue(e)
		}
		return out
	default:
		return v
	}
}
