package schema

import "github.com/modelrelay/relay/internal/domain/canonical"

// droppedKeys are stripped from every schema node.
var droppedKeys = map[string]bool{
	"$schema":  true,
	"$id":      true,
	"default":  true,
	"examples": true,
	"title":    true,
}

// maxRefDepth bounds $ref inlining recursion so schema cycles terminate
// without explicit cycle detection.
const maxRefDepth = 32

// Sanitize normalizes a JSON-Schema tool definition:
//  1. drop forbidden keys
//  2. const -> enum
//  3. inline $ref (#/$defs/... or #/definitions/...) and delete def sections
//  4. insert type:"object" on typeless nodes
//  5. (antigravity only, via RenameAnyOfForAntigravity) anyOf -> any_of
func Sanitize(root canonical.JSONSchema) canonical.JSONSchema {
	defs := extractDefs(root)
	return sanitizeNode(root, defs, 0)
}

func extractDefs(root canonical.JSONSchema) map[string]canonical.JSONSchema {
	defs := make(map[string]canonical.JSONSchema)
	for _, key := range []string{"$defs", "definitions"} {
		raw, ok := root[key]
		if !ok {
			continue
		}
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		for name, v := range m {
			if node, ok := v.(map[string]interface{}); ok {
				defs[name] = canonical.JSONSchema(node)
			}
		}
	}
	return defs
}

func sanitizeNode(node canonical.JSONSchema, defs map[string]canonical.JSONSchema, depth int) canonical.JSONSchema {
	if node == nil {
		return canonical.JSONSchema{"type": "object"}
	}

	if ref, ok := node["$ref"].(string); ok && depth < maxRefDepth {
		if target, ok := resolveRef(ref, defs); ok {
			merged := canonical.JSONSchema{}
			for k, v := range target {
				merged[k] = v
			}
			for k, v := range node {
				if k != "$ref" {
					merged[k] = v
				}
			}
			return sanitizeNode(merged, defs, depth+1)
		}
	}

	out := canonical.JSONSchema{}
	for k, v := range node {
		if droppedKeys[k] || k == "$ref" || k == "$defs" || k == "definitions" {
			continue
		}
		if k == "const" {
			out["enum"] = []interface{}{v}
			continue
		}
		out[k] = sanitizeValue(v, defs, depth)
	}

	_, hasType := out["type"]
	_, hasAnyOf := out["anyOf"]
	_, hasOneOf := out["oneOf"]
	_, hasAllOf := out["allOf"]
	if !hasType && !hasAnyOf && !hasOneOf && !hasAllOf {
		out["type"] = "object"
	}

	return out
}

// sanitizeValue recurses into schema-shaped values nested under arbitrary
// keys (properties, items, anyOf entries, ...).
func sanitizeValue(v interface{}, defs map[string]canonical.JSONSchema, depth int) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return sanitizeNode(canonical.JSONSchema(val), defs, depth)
	case canonical.JSONSchema:
		return sanitizeNode(val, defs, depth)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item, defs, depth)
		}
		return out
	default:
		return v
	}
}

func resolveRef(ref string, defs map[string]canonical.JSONSchema) (canonical.JSONSchema, bool) {
	const defsPrefix = "#/$defs/"
	const definitionsPrefix = "#/definitions/"
	var name string
	switch {
	case len(ref) > len(defsPrefix) && ref[:len(defsPrefix)] == defsPrefix:
		name = ref[len(defsPrefix):]
	case len(ref) > len(definitionsPrefix) && ref[:len(definitionsPrefix)] == definitionsPrefix:
		name = ref[len(definitionsPrefix):]
	default:
		return nil, false
	}
	target, ok := defs[name]
	return target, ok
}

// RenameAnyOfForAntigravity renames "anyOf" to "any_of" at every level,
// applied after all other sanitization passes.
func RenameAnyOfForAntigravity(node canonical.JSONSchema) canonical.JSONSchema {
	out := canonical.JSONSchema{}
	for k, v := range node {
		key := k
		if k == "anyOf" {
			key = "any_of"
		}
		out[key] = renameAnyOfValue(v)
	}
	return out
}

func renameAnyOfValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return RenameAnyOfForAntigravity(canonical.JSONSchema(val))
	case canonical.JSONSchema:
		return RenameAnyOfForAntigravity(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = renameAnyOfValue(item)
		}
		return out
	default:
		return v
	}
}
