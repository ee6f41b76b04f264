// Package sseutil provides the small line-parsing helpers shared by every
// dialect's stream transformer: pulling the "event:"/"data:" lines out of
// one raw SSE frame. Actual multi-frame buffering/splitting is the stream
// processor's job (internal/infrastructure/streamproc); by the time a
// Transformer.ParseStreamChunk sees a frame it is already one complete
// logical event.
package sseutil

import "strings"

// Frame is one parsed SSE record: an optional event name plus its data
// lines joined with "\n" (per the SSE spec, multiple "data:" lines in one
// frame concatenate).
type Frame struct {
	Event string
	Data  string
}

// Parse splits a raw frame (one or more "\n"-joined lines, as produced by
// splitting on the blank-line or line-delimited framing rule) into its
// event name and data payload.
func Parse(raw []byte) Frame {
	var f Frame
	var dataLines []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "event:"):
			f.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	f.Data = strings.Join(dataLines, "\n")
	return f
}

// Format renders a Frame back into wire bytes ("event: x\ndata: y\n\n").
func Format(event, data string) []byte {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	b.WriteString("data: ")
	b.WriteString(data)
	b.WriteString("\n\n")
	return []byte(b.String())
}
