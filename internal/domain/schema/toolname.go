// Package schema implements JSON-Schema normalization and tool-name
// sanitization, shared by every dialect transformer's emitRequest path.
package schema

import "strings"

const maxToolNameLen = 64

// SanitizeToolName normalizes a tool name to match
// ^[A-Za-z_][A-Za-z0-9_.:\-]{0,63}$.
//
// Space and '/' collapse into a single '_' (no leading/trailing '_').
// Every other disallowed character is dropped. If the result doesn't start
// with a letter or '_', one is prepended. The result is truncated to 64
// bytes. An empty result becomes "_tool".
func SanitizeToolName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r == ' ' || r == '/':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case isAllowedToolNameChar(r):
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			// dropped
		}
	}
	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		return "_tool"
	}
	if !isLeadingChar(rune(out[0])) {
		out = "_" + out
	}
	if len(out) > maxToolNameLen {
		out = out[:maxToolNameLen]
	}
	out = strings.TrimRight(out, "_")
	if out == "" {
		return "_tool"
	}
	return out
}

func isAllowedToolNameChar(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.' || r == '-' || r == ':':
		return true
	}
	return false
}

func isLeadingChar(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || r == '_'
}

// EncodeReversibleToolName is the reversible variant used by dialects that
// require strict round-tripping of tool names: '/' becomes
// "__slash__" and ' ' becomes "__space__", the result is truncated to 64,
// and a leading '_' is prepended if the first character isn't letter/'_'.
func EncodeReversibleToolName(name string) string {
	replaced := strings.NewReplacer("/", "__slash__", " ", "__space__").Replace(name)
	if len(replaced) > maxToolNameLen {
		replaced = replaced[:maxToolNameLen]
	}
	if replaced == "" {
		return "_tool"
	}
	if !isLeadingChar(rune(replaced[0])) {
		replaced = "_" + replaced
	}
	return replaced
}

// DecodeReversibleToolName inverts EncodeReversibleToolName on the set of
// inputs the encoder is bijective over: names from [A-Za-z0-9_.\-: /]
// starting with a letter or '_', not already containing "__slash__" or
// "__space__", whose encoded form (each '/' or ' ' grows by 8 chars) fits in
// 64 chars. A name whose encoded form was cut at 64 does not decode back to
// the original. Every such input already starts with letter/'_', so the
// encoder never needs to prepend one and decoding is the plain inverse
// substitution.
func DecodeReversibleToolName(encoded string) string {
	return strings.NewReplacer("__slash__", "/", "__space__", " ").Replace(encoded)
}
