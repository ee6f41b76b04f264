package credential

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildHeaders_PerProvider(t *testing.T) {
	cases := []struct {
		provider string
		cred     Credential
		wantKey  string
		wantVal  string
	}{
		{"anthropic", Credential{Key: "sk-ant"}, "x-api-key", "sk-ant"},
		{"openai", Credential{Key: "sk-oai"}, "Authorization", "Bearer sk-oai"},
		{"gemini", Credential{Key: "gk"}, "x-goog-api-key", "gk"},
	}
	for _, c := range cases {
		h := BuildHeaders(c.provider, c.cred)
		require.Equal(t, c.wantVal, h.Get(c.wantKey), "provider %s", c.provider)
	}

	h := BuildHeaders("anthropic", Credential{Key: "sk-ant"})
	require.Equal(t, "2023-06-01", h.Get("anthropic-version"))

	h = BuildHeaders("openai-web", Credential{Key: "sk", AccountID: "acct_1"})
	require.Equal(t, "Bearer sk", h.Get("Authorization"))
	require.Equal(t, "acct_1", h.Get("chatgpt-account-id"))
	require.Equal(t, "responses=experimental", h.Get("OpenAI-Beta"))
	require.Equal(t, "codex_cli_rs", h.Get("originator"))
}

func TestGetNextAvailable_RoundRobinsAndSkipsUnavailable(t *testing.T) {
	p := NewPool(nil)
	creds := []Credential{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	idx := p.GetNextAvailable("p", creds, nil)
	require.Equal(t, 0, idx)
	idx = p.GetNextAvailable("p", creds, nil)
	require.Equal(t, 1, idx)

	idx = p.GetNextAvailable("p", creds, map[string]bool{"c": true})
	require.Equal(t, 0, idx)
}

func TestGetNextAvailable_AllUnavailableReturnsNegativeOne(t *testing.T) {
	p := NewPool(nil)
	creds := []Credential{{ID: "a"}, {ID: "b"}}
	idx := p.GetNextAvailable("p", creds, map[string]bool{"a": true, "b": true})
	require.Equal(t, -1, idx)
}

func TestGetNextAvailable_EmptyList(t *testing.T) {
	p := NewPool(nil)
	require.Equal(t, -1, p.GetNextAvailable("p", nil, nil))
}

func TestEnsureFresh_RefreshesExpiringCredential(t *testing.T) {
	calls := 0
	refresh := func(ctx context.Context, c Credential) (Credential, error) {
		calls++
		c.Key = "refreshed-" + c.Key
		c.ExpiresAt = time.Now().Add(time.Hour)
		return c, nil
	}
	p := NewPool(refresh)
	p.SetCredentials("openai", []Credential{
		{ID: "a", Key: "stale", ExpiresAt: time.Now().Add(time.Second)},
		{ID: "b", Key: "fresh", ExpiresAt: time.Now().Add(time.Hour)},
	})

	creds, err := p.EnsureFresh(context.Background(), "openai")
	require.NoError(t, err)
	require.Equal(t, "refreshed-stale", creds[0].Key)
	require.Equal(t, "fresh", creds[1].Key)
	require.Equal(t, 1, calls)
}

func TestEnsureFresh_NoRefreshFuncReturnsAsIs(t *testing.T) {
	p := NewPool(nil)
	p.SetCredentials("openai", []Credential{{ID: "a", Key: "k", ExpiresAt: time.Now().Add(-time.Hour)}})
	creds, err := p.EnsureFresh(context.Background(), "openai")
	require.NoError(t, err)
	require.Equal(t, "k", creds[0].Key)
}
