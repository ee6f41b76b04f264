// Package cooldown tracks per-(provider,model) rate-limit state: a
// mutex-guarded map of expiry timestamps rather than a full circuit
// breaker, since callers only need a binary available/cooling-down signal
// per key.
package cooldown

import (
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// MinCooldown is the floor applied to every markRateLimited call.
	MinCooldown = 30 * time.Second
	// MaxCooldown is the ceiling applied to every markRateLimited call.
	MaxCooldown = 15 * time.Minute
	// DefaultRetryAfter is used when no Retry-After hint can be extracted.
	DefaultRetryAfter = 30 * time.Second
)

// Manager tracks cooldown expiry per "provider:model" key.
type Manager struct {
	mu      sync.RWMutex
	expires map[string]time.Time
	now     func() time.Time
}

// New builds a cooldown Manager. nowFn defaults to time.Now; tests may
// inject a deterministic clock.
func New(nowFn func() time.Time) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Manager{expires: make(map[string]time.Time), now: nowFn}
}

// Key builds the canonical "provider:model" cooldown key.
func Key(provider, model string) string {
	return provider + ":" + model
}

// MarkRateLimited sets key's cooldown expiry to now + clamp(retryAfter,
// MinCooldown, MaxCooldown).
func (m *Manager) MarkRateLimited(key string, retryAfter time.Duration) {
	if retryAfter < MinCooldown {
		retryAfter = MinCooldown
	}
	if retryAfter > MaxCooldown {
		retryAfter = MaxCooldown
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = m.now().Add(retryAfter)
}

// IsAvailable reports whether key's cooldown has elapsed. A key with no
// recorded cooldown is available.
func (m *Manager) IsAvailable(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expiresAt, ok := m.expires[key]
	if !ok {
		return true
	}
	return !m.now().Before(expiresAt)
}

// ActiveKeys returns the keys whose cooldown has not yet elapsed, sorted
// for stable output. Used by the management endpoints.
func (m *Manager) ActiveKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	var keys []string
	for k, expiresAt := range m.expires {
		if now.Before(expiresAt) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// AllCooledDown reports whether every key in keys is currently unavailable.
func (m *Manager) AllCooledDown(keys []string) bool {
	for _, k := range keys {
		if m.IsAvailable(k) {
			return false
		}
	}
	return true
}

var retryAfterBodyPattern = regexp.MustCompile(`(?i)retry.{0,20}?(\d+)\s*(?:s|sec|second)`)

// ExtractRetryAfter resolves the retry delay in order of preference: the
// Retry-After header (seconds or HTTP-date), then an integer-seconds value
// near rate-limit wording in the body, else DefaultRetryAfter.
func ExtractRetryAfter(header http.Header, body []byte, now time.Time) time.Duration {
	if h := header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(h); err == nil {
			if d := t.Sub(now); d > 0 {
				return d
			}
		}
	}
	if m := retryAfterBodyPattern.FindSubmatch(body); m != nil {
		if secs, err := strconv.Atoi(string(m[1])); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return DefaultRetryAfter
}
