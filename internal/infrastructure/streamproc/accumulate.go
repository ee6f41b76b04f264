package streamproc

import (
	"bufio"
	"bytes"
	"encoding/json"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/dialect"
)

// blockAcc accumulates one content block's worth of chunks while replaying
// an upstream SSE body into a single buffered canonical.Response.
type blockAcc struct {
	blockType canonical.BlockType
	text      string
	signature string
	redacted  bool
	toolID    string
	toolName  string
	toolArgs  string
}

// Accumulate replays an entire upstream SSE body (framed per from's
// ParserType) through from.ParseStreamChunk and folds the resulting chunks
// into a single buffered canonical.Response, in block-index order. Used by
// the dispatch engine's "buffered non-streaming client, SSE upstream body"
// path: the client asked for stream:false but the
// upstream only speaks SSE for this model.
func Accumulate(body []byte, from dialect.Transformer) (*canonical.Response, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	scanner.Split(splitFunc(from.Config().ParserType))

	order := []int{}
	blocks := map[int]*blockAcc{}
	resp := &canonical.Response{StopReason: canonical.StopEndTurn}

	getBlock := func(idx int, bt canonical.BlockType) *blockAcc {
		b, ok := blocks[idx]
		if !ok {
			b = &blockAcc{blockType: bt}
			blocks[idx] = b
			order = append(order, idx)
		}
		return b
	}

	for scanner.Scan() {
		frame := scanner.Bytes()
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}
		chunk, err := from.ParseStreamChunk(append([]byte(nil), frame...))
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}

		switch chunk.Type {
		case canonical.ChunkContent:
			b := getBlock(chunk.BlockIndex, canonical.BlockText)
			if chunk.Delta != nil {
				b.text += chunk.Delta.Text
			}
		case canonical.ChunkThinking:
			b := getBlock(chunk.BlockIndex, canonical.BlockThinking)
			if chunk.Delta != nil {
				b.text += chunk.Delta.Text
				if chunk.Delta.Signature != "" {
					b.signature = chunk.Delta.Signature
				}
				b.redacted = chunk.Delta.Redacted
			}
		case canonical.ChunkToolCall:
			b := getBlock(chunk.BlockIndex, canonical.BlockToolUse)
			if chunk.Delta != nil {
				if chunk.Delta.ID != "" {
					b.toolID = chunk.Delta.ID
				}
				if chunk.Delta.Name != "" {
					b.toolName = chunk.Delta.Name
				}
			}
			b.toolArgs += chunk.PartialJSON
		case canonical.ChunkUsage:
			if chunk.Usage != nil {
				resp.Usage = chunk.Usage
			}
		case canonical.ChunkDone:
			resp.StopReason = chunk.StopReason
			if chunk.Usage != nil {
				resp.Usage = chunk.Usage
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for _, idx := range order {
		b := blocks[idx]
		switch b.blockType {
		case canonical.BlockText:
			resp.Content = append(resp.Content, canonical.Text(b.text))
		case canonical.BlockThinking:
			resp.Thinking = append(resp.Thinking, canonical.ThinkingBlock{Text: b.text, Signature: b.signature, Redacted: b.redacted})
		case canonical.BlockToolUse:
			var args json.RawMessage
			if b.toolArgs != "" {
				var v interface{}
				if json.Unmarshal([]byte(b.toolArgs), &v) == nil {
					args = json.RawMessage(b.toolArgs)
				}
			}
			resp.Content = append(resp.Content, canonical.ToolCall(b.toolID, b.toolName, args))
		}
	}
	return resp, nil
}
