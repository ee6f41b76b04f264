// Package credential implements the credential pool: per-provider ordered
// credential lists with refresh-on-expiry and round-robin selection that
// skips credentials marked unavailable within the current request.
// Refreshes are funneled through a singleflight group so concurrent
// requests needing the same token share one refresh round-trip.
package credential

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Credential is one usable secret for a provider.
type Credential struct {
	ID        string
	Key       string
	ExpiresAt time.Time // zero means never expires
	// Provider-specific companion fields, used when building headers for
	// antigravity/openai-web.
	AccountID string
}

// RefreshFunc exchanges a possibly-expiring credential for a fresh one.
type RefreshFunc func(ctx context.Context, c Credential) (Credential, error)

// GraceWindow is how far ahead of ExpiresAt a credential is considered due
// for refresh.
const GraceWindow = 2 * time.Minute

// Pool holds the ordered credential list per provider plus the per-request
// "unavailable" set used after an auth failure.
type Pool struct {
	mu          sync.Mutex
	creds       map[string][]Credential
	nextIndex   map[string]int
	refresh     RefreshFunc
	refreshOnce singleflight.Group
}

// NewPool builds a Pool. refresh may be nil if no provider in this pool
// issues expiring credentials.
func NewPool(refresh RefreshFunc) *Pool {
	return &Pool{creds: make(map[string][]Credential), nextIndex: make(map[string]int), refresh: refresh}
}

// SetCredentials replaces the ordered credential list for provider.
func (p *Pool) SetCredentials(provider string, creds []Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds[provider] = creds
}

// EnsureFresh returns provider's credential list with each entry refreshed
// if it expires within GraceWindow. Concurrent callers refreshing the same
// credential share one in-flight call via singleflight.
func (p *Pool) EnsureFresh(ctx context.Context, provider string) ([]Credential, error) {
	p.mu.Lock()
	creds := append([]Credential(nil), p.creds[provider]...)
	p.mu.Unlock()

	if p.refresh == nil {
		return creds, nil
	}

	now := time.Now()
	out := make([]Credential, len(creds))
	for i, c := range creds {
		if c.ExpiresAt.IsZero() || c.ExpiresAt.After(now.Add(GraceWindow)) {
			out[i] = c
			continue
		}
		key := provider + ":" + c.ID
		v, err, _ := p.refreshOnce.Do(key, func() (interface{}, error) {
			return p.refresh(ctx, c)
		})
		if err != nil {
			return nil, fmt.Errorf("credential: refresh %s: %w", key, err)
		}
		out[i] = v.(Credential)
	}

	p.mu.Lock()
	p.creds[provider] = out
	p.mu.Unlock()
	return out, nil
}

// GetNextAvailable returns the index of the next credential in creds not
// present in unavailable, starting from provider's round-robin cursor and
// wrapping once. Returns -1 if every credential is unavailable.
func (p *Pool) GetNextAvailable(provider string, creds []Credential, unavailable map[string]bool) int {
	if len(creds) == 0 {
		return -1
	}
	p.mu.Lock()
	start := p.nextIndex[provider] % len(creds)
	p.mu.Unlock()

	for i := 0; i < len(creds); i++ {
		idx := (start + i) % len(creds)
		if !unavailable[creds[idx].ID] {
			p.mu.Lock()
			p.nextIndex[provider] = (idx + 1) % len(creds)
			p.mu.Unlock()
			return idx
		}
	}
	return -1
}

// BuildHeaders constructs the auth headers for provider using cred, per
// the provider's auth scheme.
func BuildHeaders(provider string, cred Credential) http.Header {
	h := http.Header{}
	switch provider {
	case "anthropic":
		h.Set("x-api-key", cred.Key)
		h.Set("anthropic-version", "2023-06-01")
	case "openai":
		h.Set("Authorization", "Bearer "+cred.Key)
	case "gemini":
		h.Set("x-goog-api-key", cred.Key)
	case "antigravity":
		h.Set("Authorization", "Bearer "+cred.Key)
		if cred.AccountID != "" {
			h.Set("chatgpt-account-id", cred.AccountID)
		}
	case "openai-web":
		h.Set("Authorization", "Bearer "+cred.Key)
		if cred.AccountID != "" {
			h.Set("chatgpt-account-id", cred.AccountID)
		}
		h.Set("OpenAI-Beta", "responses=experimental")
		h.Set("originator", "codex_cli_rs")
	}
	return h
}
