package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modelrelay/relay/internal/infrastructure/cooldown"
)

func TestInferProvider(t *testing.T) {
	cases := map[string]string{
		"claude-sonnet-4-20250514": "anthropic",
		"gemini-claude-x":          "antigravity",
		"something-antigravity-1":  "antigravity",
		"gpt-5-preview":            "openai-web",
		"my-codex-model":           "openai-web",
		"gpt-4":                    "openai",
		"o1-mini":                  "openai",
		"gemini-pro":               "gemini",
		"glm-4-plus":               "opencode-zen",
		"qwen-turbo":               "opencode-zen",
		"big-pickle":               "opencode-zen",
		"glm-4.7-free":             "opencode-zen",
		"unknown-model":            "openai",
	}
	for model, want := range cases {
		require.Equal(t, want, InferProvider(model), "model %q", model)
	}
}

func TestResolveModel_PrimaryAvailable(t *testing.T) {
	cd := cooldown.New(nil)
	r := New(Config{ModelMapping: map[string]MappingEntry{
		"my-model": {Provider: "provider1", Model: "modelP"},
	}}, cd)

	target := r.ResolveModel("my-model")
	require.Equal(t, Target{Provider: "provider1", Model: "modelP"}, target)
}

// Fallback list resolution recurses one level of mapping.
func TestResolveModel_FallsBackWhenPrimaryCooledDown(t *testing.T) {
	cd := cooldown.New(nil)
	r := New(Config{ModelMapping: map[string]MappingEntry{
		"A": {Provider: "provider1", Model: "modelP", Fallbacks: []string{"B"}},
		"B": {Provider: "provider2", Model: "modelF"},
	}}, cd)

	cd.MarkRateLimited(cooldown.Key("provider1", "modelP"), time.Minute)

	target := r.ResolveModel("A")
	require.Equal(t, Target{Provider: "provider2", Model: "modelF"}, target)
}

func TestResolveModel_AllCooledDownReturnsPrimaryAnyway(t *testing.T) {
	cd := cooldown.New(nil)
	r := New(Config{ModelMapping: map[string]MappingEntry{
		"A": {Provider: "provider1", Model: "modelP", Fallbacks: []string{"B"}},
		"B": {Provider: "provider2", Model: "modelF"},
	}}, cd)
	cd.MarkRateLimited(cooldown.Key("provider1", "modelP"), time.Minute)
	cd.MarkRateLimited(cooldown.Key("provider2", "modelF"), time.Minute)

	target := r.ResolveModel("A")
	require.Equal(t, Target{Provider: "provider1", Model: "modelP"}, target)
}

func TestResolveModel_UnmappedUsesDefaultProviderOrInfer(t *testing.T) {
	cd := cooldown.New(nil)
	r := New(Config{DefaultProvider: "openai"}, cd)
	require.Equal(t, Target{Provider: "openai", Model: "some-model"}, r.ResolveModel("some-model"))

	r2 := New(Config{}, cd)
	require.Equal(t, Target{Provider: "anthropic", Model: "claude-3"}, r2.ResolveModel("claude-3"))
}

func TestResolveModel_UnmappedFallbackInfersProvider(t *testing.T) {
	cd := cooldown.New(nil)
	r := New(Config{ModelMapping: map[string]MappingEntry{
		"A": {Provider: "provider1", Model: "modelP", Fallbacks: []string{"claude-3-haiku"}},
	}}, cd)
	cd.MarkRateLimited(cooldown.Key("provider1", "modelP"), time.Minute)

	target := r.ResolveModel("A")
	require.Equal(t, Target{Provider: "anthropic", Model: "claude-3-haiku"}, target)
}

func TestHandleRateLimit_MarksMappedKey(t *testing.T) {
	cd := cooldown.New(nil)
	r := New(Config{ModelMapping: map[string]MappingEntry{
		"A": {Provider: "provider1", Model: "modelP"},
	}}, cd)

	r.HandleRateLimit("A", time.Minute)
	require.False(t, cd.IsAvailable(cooldown.Key("provider1", "modelP")))
}
