package canonical

// ChunkType discriminates the StreamChunk tagged union.
type ChunkType string

const (
	ChunkContent   ChunkType = "content"
	ChunkToolCall  ChunkType = "tool_call"
	ChunkThinking  ChunkType = "thinking"
	ChunkUsage     ChunkType = "usage"
	ChunkDone      ChunkType = "done"
	ChunkBlockStop ChunkType = "block_stop"
	ChunkError     ChunkType = "error"

	// ChunkMessageStart and ChunkBlockStart are framing chunks produced by
	// the stream processor when it opens the message envelope or a new
	// content block. anthropic renders message_start / content_block_start;
	// openai-web renders response.created and, for tool_use blocks,
	// response.output_item.added; openai renders a tool_use start as a
	// tool_calls delta carrying the call id and name; gemini (and
	// antigravity, which wraps it) renders a tool_use start as a
	// functionCall frame carrying the name. Outside anthropic, the other
	// framing chunks render as nothing.
	ChunkMessageStart ChunkType = "message_start"
	ChunkBlockStart   ChunkType = "block_start"
)

// BlockType identifies the kind of content block a chunk belongs to.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockThinking BlockType = "thinking"
	BlockToolUse  BlockType = "tool_use"
)

// StreamChunk is the dialect-neutral unit exchanged between the stream
// processor and the dialect transformers.
type StreamChunk struct {
	Type        ChunkType  `json:"type"`
	Delta       *Part      `json:"delta,omitempty"`
	BlockIndex  int        `json:"blockIndex"`
	BlockType   BlockType  `json:"blockType,omitempty"`
	StopReason  StopReason `json:"stopReason,omitempty"`
	Usage       *Usage     `json:"usage,omitempty"`
	PartialJSON string     `json:"partialJson,omitempty"`
	Error       string     `json:"error,omitempty"`
}
