package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modelrelay/relay/internal/domain/dialect"
	"github.com/modelrelay/relay/internal/infrastructure/cooldown"
	"github.com/modelrelay/relay/internal/infrastructure/credential"
	_ "github.com/modelrelay/relay/internal/infrastructure/dialect/anthropic"
	_ "github.com/modelrelay/relay/internal/infrastructure/dialect/antigravity"
	_ "github.com/modelrelay/relay/internal/infrastructure/dialect/gemini"
	_ "github.com/modelrelay/relay/internal/infrastructure/dialect/openai"
	_ "github.com/modelrelay/relay/internal/infrastructure/dialect/openaiweb"
	_ "github.com/modelrelay/relay/internal/infrastructure/dialect/opencodezen"
	"github.com/modelrelay/relay/internal/infrastructure/router"
	"github.com/modelrelay/relay/internal/infrastructure/signature"
	apperrors "github.com/modelrelay/relay/pkg/errors"
)

func newTestEngine(t *testing.T, mapping map[string]router.MappingEntry) (*Engine, *router.Router, *cooldown.Manager) {
	t.Helper()
	cd := cooldown.New(nil)
	r := router.New(router.Config{ModelMapping: mapping, DefaultProvider: "openai"}, cd)
	pool := credential.NewPool(nil)
	pool.SetCredentials("anthropic", []credential.Credential{{ID: "a1", Key: "sk-ant-test"}})
	pool.SetCredentials("openai", []credential.Credential{{ID: "o1", Key: "sk-test"}})
	pool.SetCredentials("provider1", []credential.Credential{{ID: "p1", Key: "sk-p1"}})
	pool.SetCredentials("provider2", []credential.Credential{{ID: "p2", Key: "sk-p2"}})
	sigs := signature.NewMemoryStore(0, 0)
	e := NewEngine(r, pool, cd, sigs, nil)
	e.Endpoints = map[string]string{}
	for k, v := range DefaultEndpoints {
		e.Endpoints[k] = v
	}
	return e, r, cd
}

// An OpenAI client against an Anthropic upstream, buffered text reply.
func TestDispatch_OpenAIToAnthropicText(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_123","type":"message","role":"assistant","model":"claude-sonnet-4-20250514","content":[{"type":"text","text":"Hello from mock"}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer upstream.Close()

	e, _, _ := newTestEngine(t, nil)
	e.Endpoints["anthropic"] = upstream.URL

	body := []byte(`{"model":"gpt-4","messages":[{"role":"user","content":"Hello"}]}`)
	rec := httptest.NewRecorder()
	err := e.Dispatch(context.Background(), body, ProxyOptions{TargetProvider: "anthropic", TargetModel: "claude-sonnet-4-20250514"}, rec)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Choices, 1)
	require.Equal(t, "Hello from mock", out.Choices[0].Message.Content)
	require.Equal(t, "stop", out.Choices[0].FinishReason)
}

// A 429 from the primary mapping falls back to the second target
// within the same request.
func TestDispatch_RateLimitFallback(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer primary.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl_1","object":"chat.completion","model":"modelF","choices":[{"index":0,"message":{"role":"assistant","content":"ok from fallback"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	defer fallback.Close()

	mapping := map[string]router.MappingEntry{
		"modelA": {Provider: "provider1", Model: "modelP", Fallbacks: []string{"modelF"}},
		"modelF": {Provider: "provider2", Model: "modelF"},
	}
	e, _, _ := newTestEngine(t, mapping)
	e.Endpoints["provider1"] = primary.URL
	e.Endpoints["provider2"] = fallback.URL

	body := []byte(`{"model":"modelA","messages":[{"role":"user","content":"hi"}]}`)
	rec := httptest.NewRecorder()
	err := e.Dispatch(context.Background(), body, ProxyOptions{SourceFormat: dialect.OpenAI}, rec)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "ok from fallback", out.Choices[0].Message.Content)
}

func TestDispatch_AllCooledDown_ReturnsRateLimitExhausted(t *testing.T) {
	alwaysLimited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{}`))
	}))
	defer alwaysLimited.Close()

	mapping := map[string]router.MappingEntry{
		"modelA": {Provider: "provider1", Model: "modelP"},
	}
	e, _, cd := newTestEngine(t, mapping)
	e.Endpoints["provider1"] = alwaysLimited.URL
	e.MaxAttempts = 2
	// Pre-cool the only candidate so the fallback search finds nothing
	// available and the loop must terminate with rate_limit_exhausted.
	cd.MarkRateLimited(cooldown.Key("provider1", "modelP"), 30*time.Second)

	body := []byte(`{"model":"modelA","messages":[{"role":"user","content":"hi"}]}`)
	rec := httptest.NewRecorder()
	err := e.Dispatch(context.Background(), body, ProxyOptions{SourceFormat: dialect.OpenAI}, rec)
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	require.Equal(t, apperrors.KindRateLimitExhausted, appErr.Kind)
}

func TestSplitModelMapping(t *testing.T) {
	provider, model := splitModelMapping("claude-3:anthropic")
	require.Equal(t, "anthropic", provider)
	require.Equal(t, "claude-3", model)

	provider, model = splitModelMapping("weird:model:name:openai")
	require.Equal(t, "openai", provider)
	require.Equal(t, "weird:model:name", model)

	provider, model = splitModelMapping("bare-model")
	require.Equal(t, "", provider)
	require.Equal(t, "bare-model", model)
}
