package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modelrelay/relay/internal/domain/canonical"
)

func TestSanitize_DropsForbiddenKeys(t *testing.T) {
	in := canonical.JSONSchema{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"$id":      "https://example.com/foo",
		"default":  "x",
		"examples": []interface{}{"a"},
		"title":    "Foo",
		"type":     "string",
	}
	out := Sanitize(in)
	for _, k := range []string{"$schema", "$id", "default", "examples", "title"} {
		_, ok := out[k]
		require.False(t, ok, "key %q should have been dropped", k)
	}
	require.Equal(t, "string", out["type"])
}

func TestSanitize_ConstBecomesEnum(t *testing.T) {
	in := canonical.JSONSchema{"const": "fixed-value"}
	out := Sanitize(in)
	require.Equal(t, []interface{}{"fixed-value"}, out["enum"])
	_, hasConst := out["const"]
	require.False(t, hasConst)
}

func TestSanitize_InlinesRefs(t *testing.T) {
	in := canonical.JSONSchema{
		"type": "object",
		"properties": map[string]interface{}{
			"pet": map[string]interface{}{"$ref": "#/$defs/Pet"},
		},
		"$defs": map[string]interface{}{
			"Pet": map[string]interface{}{"type": "string", "enum": []interface{}{"cat", "dog"}},
		},
	}
	out := Sanitize(in)
	_, hasDefs := out["$defs"]
	require.False(t, hasDefs)

	props, ok := out["properties"].(canonical.JSONSchema)
	require.True(t, ok, "properties should be a sanitized node, got %T", out["properties"])
	pet, ok := props["pet"].(canonical.JSONSchema)
	require.True(t, ok, "pet should be a sanitized node, got %T", props["pet"])
	require.Equal(t, "string", pet["type"])
	require.Equal(t, []interface{}{"cat", "dog"}, pet["enum"])
}

func TestSanitize_InsertsTypeObjectWhenMissing(t *testing.T) {
	in := canonical.JSONSchema{"properties": map[string]interface{}{}}
	out := Sanitize(in)
	require.Equal(t, "object", out["type"])
}

func TestSanitize_LeavesAnyOfAloneWithoutType(t *testing.T) {
	in := canonical.JSONSchema{"anyOf": []interface{}{
		map[string]interface{}{"type": "string"},
		map[string]interface{}{"type": "number"},
	}}
	out := Sanitize(in)
	_, hasType := out["type"]
	require.False(t, hasType)
}

func TestRenameAnyOfForAntigravity(t *testing.T) {
	in := canonical.JSONSchema{
		"anyOf": []interface{}{
			map[string]interface{}{"type": "string"},
		},
	}
	out := RenameAnyOfForAntigravity(in)
	_, hasOld := out["anyOf"]
	require.False(t, hasOld)
	_, hasNew := out["any_of"]
	require.True(t, hasNew)
}

func TestSanitize_Idempotent(t *testing.T) {
	in := canonical.JSONSchema{
		"const": 1,
		"title": "drop me",
	}
	once := Sanitize(in)
	twice := Sanitize(once)
	require.Equal(t, once, twice)
}
