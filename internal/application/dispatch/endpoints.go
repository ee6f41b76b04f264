// Package dispatch implements the request dispatch engine: it takes one
// already-read client request body plus a ProxyOptions, resolves a target
// provider/model via the router and credential pool, builds and sends the provider-shaped upstream
// request, retries with backoff and falls back across mapped models, and
// writes either a buffered or a streamed response back to the caller in
// the client's dialect.
package dispatch

// DefaultEndpoints holds the default upstream URL
// for each provider absent an explicit override in Engine.Endpoints.
var DefaultEndpoints = map[string]string{
	"openai":       "https://api.openai.com/v1/chat/completions",
	"anthropic":    "https://api.anthropic.com/v1/messages",
	"gemini":       "https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent",
	"antigravity":  "https://antigravity.googleapis.com/v1/chat:stream",
	"openai-web":   "https://chatgpt.com/backend-api/codex/responses",
	"opencode-zen": "https://opencode-zen.internal/v1/chat/completions",
}

// DefaultAntigravityFallbacks is the rotation list of streaming endpoint
// bases tried, in order, after the current Antigravity endpoint returns a
// 5xx or network error. Rotation happens between retry attempts: each base
// tried uses up one attempt, and a failed attempt is not re-sent to another
// base before the engine backs off.
var DefaultAntigravityFallbacks = []string{
	"https://antigravity.googleapis.com/v1/chat:stream",
	"https://antigravity-us.googleapis.com/v1/chat:stream",
	"https://antigravity-eu.googleapis.com/v1/chat:stream",
}
