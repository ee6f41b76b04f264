// Package signature implements the signature cache: a key-value store
// keyed by (sessionId, model, textHash) that lets the proxy replay an
// upstream's opaque thinking-block signature on a later turn of the same
// conversation.
package signature

import (
	"context"
	"strconv"
	"strings"
)

// Entry is one cached signature record.
type Entry struct {
	Signature string
	Family    string
	Timestamp int64 // unix millis
	SessionID string
}

// Key identifies a cache entry.
type Key struct {
	SessionID string
	Model     string
	TextHash  string
}

// Store is the signature cache contract. Implementations must be safe for concurrent
// use across sessions; callers only rely on single-writer semantics
// within one session.
type Store interface {
	// Save overwrites any existing entry at the same key, then enforces the
	// per-session cap by evicting the lowest-timestamp entries.
	Save(ctx context.Context, key Key, signature, family string, nowMillis int64) error
	// Restore lazily sweeps expired entries in the session, then returns the
	// remaining entry at key, if any.
	Restore(ctx context.Context, key Key, nowMillis int64) (*Entry, bool, error)
	// ClearSession deletes every entry for a session.
	ClearSession(ctx context.Context, sessionID string) error
}

// Validate reports whether sig is long enough to be a real signature.
func Validate(sig string) bool {
	return len(sig) >= 50
}

// TextHash implements the glossary's deterministic 32-bit hash:
// h = 0; for c: h = ((h<<5) - h) + code(c); h = h & 0xffffffff; then
// base-36 of |h|.
func TextHash(text string) string {
	var h int64
	for _, r := range text {
		h = ((h << 5) - h) + int64(r)
		h &= 0xffffffff
	}
	if h < 0 {
		h = -h
	}
	return strconv.FormatInt(h, 36)
}

// ModelFamily implements the glossary's "Model family" rule: case
// insensitive substring match on the model name, checked in a fixed order
// so overlapping substrings (e.g. a model containing both "gemini" and
// "claude") resolve deterministically.
func ModelFamily(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "claude"):
		return "claude"
	case strings.Contains(lower, "gemini"):
		return "gemini"
	default:
		return "openai"
	}
}
