package streamproc

import (
	"bufio"
	"bytes"

	"github.com/modelrelay/relay/internal/domain/dialect"
)

// splitFunc returns a bufio.SplitFunc matching the framing rules of
// parserType.
func splitFunc(parserType dialect.ParserType) bufio.SplitFunc {
	switch parserType {
	case dialect.SSELineDelimited:
		return scanLines
	default:
		return scanDoubleNewline
	}
}

// scanDoubleNewline splits on "\n\n" (sse-standard framing: events
// separated by a blank line).
func scanDoubleNewline(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2, data[0:i], nil
	}
	if atEOF {
		return len(data), bytes.TrimRight(data, "\n"), nil
	}
	return 0, nil, nil
}

// scanLines splits on "\n" and discards blank lines (sse-line-delimited
// framing: one non-empty "data:" line is one event, no blank-line
// separator).
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			if atEOF && len(data) > 0 {
				return advance + len(data), bytes.TrimSpace(data), nil
			}
			return 0, nil, nil
		}
		line := bytes.TrimRight(data[0:i], "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			data = data[i+1:]
			advance += i + 1
			if len(data) == 0 {
				return advance, nil, nil
			}
			continue
		}
		return advance + i + 1, line, nil
	}
}
