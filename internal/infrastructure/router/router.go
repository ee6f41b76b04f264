// Package router resolves a requested model name to a (provider, model)
// pair via a configured mapping table, cooldown-aware fallback, and a
// final inferProvider heuristic.
package router

import (
	"strings"
	"sync"
	"time"

	"github.com/modelrelay/relay/internal/infrastructure/cooldown"
)

// Target is a resolved (provider, model) pair.
type Target struct {
	Provider string
	Model    string
}

// MappingEntry is one modelMapping value: the primary provider/model plus
// an optional list of fallback model names (each of which must itself be
// mapped in the table).
type MappingEntry struct {
	Provider  string
	Model     string
	Fallbacks []string
}

// Config is the router's static configuration.
type Config struct {
	ModelMapping    map[string]MappingEntry
	DefaultProvider string
	FallbackOrder   []string
	RotateOn429     bool
}

// Router resolves requested model names to upstream targets, consulting a
// Manager for availability.
type Router struct {
	mu       sync.RWMutex
	cfg      Config
	cooldown *cooldown.Manager

	calls int64
	stats map[string]*stat
}

type stat struct {
	Calls     int64
	Failures  int64
	LastError string
}

// New builds a Router over cfg, consulting cd for availability decisions.
func New(cfg Config, cd *cooldown.Manager) *Router {
	return &Router{cfg: cfg, cooldown: cd, stats: make(map[string]*stat)}
}

// ResolveModel resolves a requested model to its upstream target:
// mapped primary if available, else the first available mapped fallback
// (each resolved at most one level deep before falling back to
// inferProvider, per the Open Question decision recorded in DESIGN.md),
// else the primary anyway, else defaultProvider/requested unmapped.
func (r *Router) ResolveModel(requested string) Target {
	r.mu.RLock()
	entry, ok := r.cfg.ModelMapping[requested]
	r.mu.RUnlock()

	if !ok {
		provider := r.cfg.DefaultProvider
		if provider == "" {
			provider = InferProvider(requested)
		}
		return Target{Provider: provider, Model: requested}
	}

	primaryKey := cooldown.Key(entry.Provider, entry.Model)
	if r.cooldown == nil || r.cooldown.IsAvailable(primaryKey) {
		return Target{Provider: entry.Provider, Model: entry.Model}
	}

	for _, fb := range entry.Fallbacks {
		r.mu.RLock()
		fbEntry, mapped := r.cfg.ModelMapping[fb]
		r.mu.RUnlock()

		var target Target
		if mapped {
			target = Target{Provider: fbEntry.Provider, Model: fbEntry.Model}
		} else {
			target = Target{Provider: InferProvider(fb), Model: fb}
		}
		if r.cooldown == nil || r.cooldown.IsAvailable(cooldown.Key(target.Provider, target.Model)) {
			return target
		}
	}

	return Target{Provider: entry.Provider, Model: entry.Model}
}

// HandleRateLimit resolves model to its cooldown key via modelMapping (or
// InferProvider if unmapped) and marks it rate-limited.
func (r *Router) HandleRateLimit(model string, retryAfter time.Duration) {
	r.mu.RLock()
	entry, ok := r.cfg.ModelMapping[model]
	r.mu.RUnlock()

	provider := r.cfg.DefaultProvider
	resolvedModel := model
	if ok {
		provider, resolvedModel = entry.Provider, entry.Model
	} else if provider == "" {
		provider = InferProvider(model)
	}

	if r.cooldown != nil {
		r.cooldown.MarkRateLimited(cooldown.Key(provider, resolvedModel), retryAfter)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

// UpdateMapping swaps the live model mapping table, leaving the rest of the
// configuration untouched. Used by the config hot-reload path.
func (r *Router) UpdateMapping(mapping map[string]MappingEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.ModelMapping = mapping
}

// RecordResult updates per-provider call/failure stats surfaced by Stats.
func (r *Router) RecordResult(provider string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[provider]
	if !ok {
		s = &stat{}
		r.stats[provider] = s
	}
	s.Calls++
	if err != nil {
		s.Failures++
		s.LastError = err.Error()
	}
}

// ProviderStat is the JSON-facing shape returned by Stats, used by the
// GET /providers handler.
type ProviderStat struct {
	Provider  string `json:"provider"`
	Calls     int64  `json:"calls"`
	Failures  int64  `json:"failures"`
	LastError string `json:"lastError,omitempty"`
}

// Stats returns a snapshot of per-provider call statistics.
func (r *Router) Stats() []ProviderStat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderStat, 0, len(r.stats))
	for p, s := range r.stats {
		out = append(out, ProviderStat{Provider: p, Calls: s.Calls, Failures: s.Failures, LastError: s.LastError})
	}
	return out
}

// InferProvider guesses a provider from model-name prefix heuristics,
// used as the fallback when no explicit mapping or provider is given.
func InferProvider(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "claude"):
		return "anthropic"
	case strings.HasPrefix(lower, "gemini-claude-") || strings.Contains(lower, "antigravity"):
		return "antigravity"
	case strings.HasPrefix(lower, "gpt-5") || strings.Contains(lower, "codex"):
		return "openai-web"
	case strings.HasPrefix(lower, "gpt-") || strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3") || strings.HasPrefix(lower, "o4"):
		return "openai"
	case strings.HasPrefix(lower, "gemini"):
		return "gemini"
	case strings.HasPrefix(lower, "glm-"), strings.HasPrefix(lower, "qwen-"), strings.HasPrefix(lower, "kimi-"),
		strings.HasPrefix(lower, "grok-"), lower == "big-pickle", lower == "glm-4.7-free":
		return "opencode-zen"
	default:
		return "openai"
	}
}
