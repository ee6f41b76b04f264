// Package streamproc implements the stream processor: it reads an
// upstream SSE body in one dialect's framing, translates each event through
// the canonical model, and re-renders it in the client-facing dialect's
// framing, while maintaining a per-stream block-state machine: implicit
// block_start/stop synthesis, tool_use stop_reason patching, index
// rewriting, signature capture, and empty-stream detection.
package streamproc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/dialect"
	"github.com/modelrelay/relay/internal/infrastructure/signature"
)

// EmptyStreamMessage is the synthetic error text injected when an upstream
// stream closes having emitted zero translatable chunks.
const EmptyStreamMessage = "Upstream model returned empty response (0 tokens)"

// SignatureSink receives every (family, text, signature) triple observed on
// thinking blocks while streaming, keyed for later replay via the signature cache. Matches
// signature.Store's Save signature narrowed to the fields the processor
// can compute without session/request context, which the caller supplies.
type SignatureSink interface {
	Observe(textHash, sig string)
}

// storeSink adapts a signature.Store plus a fixed (sessionID, model, now)
// triple into a SignatureSink.
type storeSink struct {
	ctx       context.Context
	store     signature.Store
	sessionID string
	model     string
	now       int64
}

func (s storeSink) Observe(textHash, sig string) {
	if s.store == nil || s.sessionID == "" {
		return
	}
	_ = s.store.Save(s.ctx, signature.Key{SessionID: s.sessionID, Model: s.model, TextHash: textHash}, sig, signature.ModelFamily(s.model), s.now)
}

// NewSignatureSink builds the standard SignatureSink backing a processor
// run against a live signature.Store.
func NewSignatureSink(ctx context.Context, store signature.Store, sessionID, model string, nowMillis int64) SignatureSink {
	return storeSink{ctx: ctx, store: store, sessionID: sessionID, model: model, now: nowMillis}
}

// Processor holds the block-state machine for one upstream stream: the
// currently open block's type/index, whether the message envelope opener
// has already been synthesized, and running accumulators used for
// signature capture and empty-stream detection.
type Processor struct {
	from dialect.Transformer // parses upstream bytes (parsingProvider)
	to   dialect.Transformer // renders client-facing bytes (sourceFormat)

	currentBlockType  canonical.BlockType
	currentBlockIndex int
	blockOpen         bool
	startEmitted      bool
	messageStartSent  bool

	accumulatedText     strings.Builder
	accumulatedThinking strings.Builder
	accumulatedToolArgs strings.Builder

	chunkCount int
	totalBytes int64

	sink SignatureSink
}

// New builds a Processor translating from the upstream dialect to the
// client-facing dialect. sink may be nil if signature capture isn't wired
// for this request.
func New(from, to dialect.Transformer, sink SignatureSink) *Processor {
	return &Processor{from: from, to: to, currentBlockIndex: -1, sink: sink}
}

// Run reads framed events from src per the upstream dialect's ParserType,
// translates and writes each to dst as soon as it is produced, and flushes
// the trailing synthetic events (block/message close, empty-stream error)
// once src is exhausted. It returns the number of canonical chunks
// translated.
func (p *Processor) Run(src io.Reader, dst io.Writer) (int, error) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	scanner.Split(splitFunc(p.from.Config().ParserType))

	for scanner.Scan() {
		frame := scanner.Bytes()
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}
		if err := p.handleFrame(frame, dst); err != nil {
			return p.chunkCount, err
		}
	}
	if err := scanner.Err(); err != nil {
		return p.chunkCount, fmt.Errorf("streamproc: read upstream: %w", err)
	}

	if err := p.flush(dst); err != nil {
		return p.chunkCount, err
	}
	if p.chunkCount == 0 {
		if err := p.emit(dst, &canonical.StreamChunk{Type: canonical.ChunkError, Error: EmptyStreamMessage}); err != nil {
			return p.chunkCount, err
		}
	}
	return p.chunkCount, nil
}

func (p *Processor) handleFrame(frame []byte, dst io.Writer) error {
	chunk, err := p.from.ParseStreamChunk(append([]byte(nil), frame...))
	if err != nil {
		return fmt.Errorf("streamproc: parse upstream event: %w", err)
	}
	if chunk == nil {
		return nil
	}
	return p.handleChunk(chunk, dst)
}

// handleChunk runs one canonical chunk through the block-state machine and
// writes its translated form(s) to dst.
func (p *Processor) handleChunk(chunk *canonical.StreamChunk, dst io.Writer) error {
	p.chunkCount++

	switch chunk.Type {
	case canonical.ChunkContent, canonical.ChunkThinking, canonical.ChunkToolCall:
		if err := p.ensureMessageStart(dst); err != nil {
			return err
		}
		if err := p.transitionTo(chunk.BlockType, chunk, dst); err != nil {
			return err
		}
		chunk.BlockIndex = p.currentBlockIndex
		p.accumulate(chunk)
		return p.emitDelta(chunk, dst)

	case canonical.ChunkBlockStop:
		// Explicit upstream stop: close the open block. An unmatched stop
		// (no open block -- e.g. duplicated by the upstream) is dropped, as
		// is the stop of a text block that never accumulated any text.
		if !p.blockOpen {
			return nil
		}
		chunk.BlockIndex = p.currentBlockIndex
		chunk.BlockType = p.currentBlockType
		p.blockOpen = false
		if !p.startEmitted {
			return nil
		}
		return p.emit(dst, chunk)

	case canonical.ChunkDone:
		if err := p.ensureMessageStart(dst); err != nil {
			return err
		}
		if p.blockOpen && p.currentBlockType == canonical.BlockToolUse &&
			(chunk.StopReason == canonical.StopEndTurn || chunk.StopReason == "") {
			chunk.StopReason = canonical.StopToolUse
		}
		if err := p.closeOpenBlock(dst); err != nil {
			return err
		}
		return p.emit(dst, chunk)

	case canonical.ChunkUsage, canonical.ChunkError:
		// no block-state effect
		return p.emit(dst, chunk)
	}
	return p.emit(dst, chunk)
}

// ensureMessageStart synthesizes the message envelope opener before the
// first content-carrying event. Dialects without an
// envelope event render it as nothing.
func (p *Processor) ensureMessageStart(dst io.Writer) error {
	if p.messageStartSent {
		return nil
	}
	p.messageStartSent = true
	return p.emit(dst, &canonical.StreamChunk{Type: canonical.ChunkMessageStart})
}

// transitionTo closes the previously open block (if its type differs from
// blockType) and opens blockType, emitting the synthetic content_block_stop
// and content_block_start transition events along the way. The start of a
// text block is deferred until the block has accumulated non-empty text, so
// an empty text block is dropped entirely. Implicit
// tool_use starts without a call id/name are never synthesized; the start
// is emitted as soon as a chunk supplies the id or name.
func (p *Processor) transitionTo(blockType canonical.BlockType, chunk *canonical.StreamChunk, dst io.Writer) error {
	if p.blockOpen && p.currentBlockType == blockType {
		return nil
	}
	if p.blockOpen {
		if err := p.closeOpenBlock(dst); err != nil {
			return err
		}
	}
	p.currentBlockIndex++
	p.currentBlockType = blockType
	p.blockOpen = true
	p.startEmitted = false
	p.accumulatedText.Reset()
	p.accumulatedThinking.Reset()
	p.accumulatedToolArgs.Reset()

	if blockType == canonical.BlockThinking {
		p.startEmitted = true
		return p.emit(dst, &canonical.StreamChunk{Type: canonical.ChunkBlockStart, BlockIndex: p.currentBlockIndex, BlockType: blockType})
	}
	return nil
}

// openToolUseBlock emits the tool_use content_block_start once a chunk has
// supplied the call id/name, moving them off the delta chunk so dialects
// with explicit starts don't repeat the name on every argument fragment.
func (p *Processor) openToolUseBlock(chunk *canonical.StreamChunk, dst io.Writer) error {
	start := &canonical.StreamChunk{
		Type: canonical.ChunkBlockStart, BlockIndex: p.currentBlockIndex, BlockType: canonical.BlockToolUse,
		Delta: &canonical.Part{Type: canonical.PartToolCall, ID: chunk.Delta.ID, Name: chunk.Delta.Name, Signature: chunk.Delta.Signature},
	}
	chunk.Delta = &canonical.Part{Type: canonical.PartToolCall, Signature: chunk.Delta.Signature}
	p.startEmitted = true
	return p.emit(dst, start)
}

// emitDelta writes a content/thinking/tool_call chunk, first emitting any
// deferred block start it unlocks and skipping chunks that carried nothing
// but start metadata (an explicit content_block_start, a bare functionCall
// name) or an empty text delta.
func (p *Processor) emitDelta(chunk *canonical.StreamChunk, dst io.Writer) error {
	switch chunk.Type {
	case canonical.ChunkContent:
		if !p.startEmitted {
			if p.accumulatedText.Len() == 0 {
				return nil
			}
			p.startEmitted = true
			if err := p.emit(dst, &canonical.StreamChunk{Type: canonical.ChunkBlockStart, BlockIndex: p.currentBlockIndex, BlockType: canonical.BlockText}); err != nil {
				return err
			}
		}
		if chunk.Delta == nil || chunk.Delta.Text == "" {
			return nil
		}

	case canonical.ChunkThinking:
		if chunk.Delta == nil || (chunk.Delta.Text == "" && chunk.Delta.Signature == "") {
			return nil
		}

	case canonical.ChunkToolCall:
		if p.from.Name() == dialect.Antigravity {
			normalizeBashArguments(chunk)
		}
		if !p.startEmitted && chunk.Delta != nil && (chunk.Delta.ID != "" || chunk.Delta.Name != "") {
			if err := p.openToolUseBlock(chunk, dst); err != nil {
				return err
			}
		}
		if chunk.PartialJSON == "" {
			return nil
		}
	}
	return p.emit(dst, chunk)
}

func (p *Processor) accumulate(chunk *canonical.StreamChunk) {
	switch chunk.Type {
	case canonical.ChunkContent:
		if chunk.Delta != nil {
			p.accumulatedText.WriteString(chunk.Delta.Text)
		}
	case canonical.ChunkThinking:
		if chunk.Delta == nil {
			return
		}
		p.accumulatedThinking.WriteString(chunk.Delta.Text)
		if chunk.Delta.Signature != "" && p.sink != nil {
			p.sink.Observe(signature.TextHash(p.accumulatedThinking.String()), chunk.Delta.Signature)
		}
	case canonical.ChunkToolCall:
		p.accumulatedToolArgs.WriteString(chunk.PartialJSON)
	}
}

// closeOpenBlock emits a synthetic block_stop for the currently open block.
// A block whose start was never emitted (an empty text block, a tool_use
// block that never produced a call id) closes silently so starts and stops
// stay balanced.
func (p *Processor) closeOpenBlock(dst io.Writer) error {
	if !p.blockOpen {
		return nil
	}
	p.blockOpen = false
	if !p.startEmitted {
		return nil
	}
	return p.emit(dst, &canonical.StreamChunk{Type: canonical.ChunkBlockStop, BlockIndex: p.currentBlockIndex, BlockType: p.currentBlockType})
}

// flush closes any block still open at end-of-body (an upstream that died
// mid-block without a message_stop/message_delta).
func (p *Processor) flush(dst io.Writer) error {
	return p.closeOpenBlock(dst)
}

// emit renders chunk via the client-facing transformer, then writes every
// rendered frame and tallies bytes for empty-stream detection.
func (p *Processor) emit(dst io.Writer, chunk *canonical.StreamChunk) error {
	frames, err := p.to.EmitStreamChunk(chunk)
	if err != nil {
		return fmt.Errorf("streamproc: emit client event: %w", err)
	}
	for _, f := range frames {
		n, err := dst.Write(f)
		if err != nil {
			return fmt.Errorf("streamproc: write client event: %w", err)
		}
		p.totalBytes += int64(n)
	}
	return nil
}

// normalizeBashArguments copies cmd/code into command for a bash tool call
// whose arguments are missing it, without touching any other field.
func normalizeBashArguments(chunk *canonical.StreamChunk) {
	if chunk.Delta == nil || !strings.EqualFold(chunk.Delta.Name, "bash") {
		return
	}
	raw := chunk.PartialJSON
	if raw == "" {
		return
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return // not yet a complete JSON object; nothing to normalize
	}
	if _, hasCommand := args["command"]; hasCommand {
		return
	}
	for _, alias := range []string{"cmd", "code"} {
		if v, ok := args[alias]; ok {
			args["command"] = v
			break
		}
	}
	rewritten, err := json.Marshal(args)
	if err != nil {
		return
	}
	chunk.PartialJSON = string(rewritten)
}
