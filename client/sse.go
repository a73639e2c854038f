package client

import (
	"bufio"
	"bytes"
	"io"
)

// scanSSE reads data: frames from r, one event per blank-line-terminated
// block, calling onFrame with each frame's payload bytes (spec.md §6:
// "each frame `data: <json>\n\n`"). It returns when r is exhausted or
// onFrame returns an error.
func scanSSE(r io.Reader, onFrame func([]byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var buf bytes.Buffer
	for scanner.Scan() {
		line := scanner.Bytes()
		switch {
		case len(line) == 0:
			if buf.Len() > 0 {
				if err := onFrame(bytes.TrimRight(buf.Bytes(), "\n")); err != nil {
					return err
				}
				buf.Reset()
			}
		case bytes.HasPrefix(line, []byte("data:")):
			payload := bytes.TrimPrefix(line, []byte("data:"))
			payload = bytes.TrimPrefix(payload, []byte(" "))
			buf.Write(payload)
			buf.WriteByte('\n')
		default:
			// Ignore other SSE fields (event:, id:, retry:, comments).
		}
	}
	if buf.Len() > 0 {
		return onFrame(bytes.TrimRight(buf.Bytes(), "\n"))
	}
	return scanner.Err()
}
