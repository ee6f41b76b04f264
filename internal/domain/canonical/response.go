package canonical

// StopReason is the dialect-neutral reason generation stopped.
type StopReason string

const (
	StopEndTurn       StopReason = "end_turn"
	StopMaxTokens     StopReason = "max_tokens"
	StopToolUse       StopReason = "tool_use"
	StopStopSequence  StopReason = "stop_sequence"
	StopContentFilter StopReason = "content_filter"
	StopError         StopReason = "error"
	StopNull          StopReason = ""
)

// Usage reports token consumption for one response.
type Usage struct {
	InputTokens    int  `json:"inputTokens"`
	OutputTokens   int  `json:"outputTokens"`
	TotalTokens    *int `json:"totalTokens,omitempty"`
	CachedTokens   *int `json:"cachedTokens,omitempty"`
	ThinkingTokens *int `json:"thinkingTokens,omitempty"`
	// ReasoningTokens is the OpenAI Responses API's name for the same
	// concept as ThinkingTokens; the Responses adapter maps it 1:1 onto
	// ThinkingTokens rather than introducing a second canonical concept.
	ReasoningTokens *int `json:"-"`
}

// Total returns TotalTokens if set, else InputTokens+OutputTokens.
func (u Usage) Total() int {
	if u.TotalTokens != nil {
		return *u.TotalTokens
	}
	return u.InputTokens + u.OutputTokens
}

// ThinkingBlock is a response-side thinking/reasoning block.
type ThinkingBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
	Redacted  bool   `json:"redacted,omitempty"`
}

// Response is the dialect-neutral form every parseResponse produces and
// every emitResponse consumes.
type Response struct {
	ID         string          `json:"id"`
	Content    []Part          `json:"content"`
	StopReason StopReason      `json:"stopReason"`
	Usage      *Usage          `json:"usage,omitempty"`
	Model      string          `json:"model,omitempty"`
	Thinking   []ThinkingBlock `json:"thinking,omitempty"`
}
