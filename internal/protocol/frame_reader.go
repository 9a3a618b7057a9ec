// internal/protocol/frame_reader.go
package protocol

import (
	"bytes"
	"strings"
)

// FrameReader reassembles newline-delimited text frames from raw chunks.
// Incomplete content stays buffered until a line feed arrives; the buffer has
// no size limit.
type FrameReader struct {
	buffer []byte
}

// NewFrameReader creates an empty reader
func NewFrameReader() *FrameReader {
	return &FrameReader{}
}

// Feed appends a chunk to the buffer
func (r *FrameReader) Feed(chunk []byte) {
	r.buffer = append(r.buffer, chunk...)
}

// Next returns the next complete frame, trimmed, in arrival order
func (r *FrameReader) Next() (string, bool) {
	idx := bytes.IndexByte(r.buffer, '\n')
	if idx < 0 {
		return "", false
	}

	frame := strings.TrimSpace(string(r.buffer[:idx]))
	r.buffer = r.buffer[idx+1:]
	if len(r.buffer) == 0 {
		r.buffer = nil
	}
	return frame, true
}

// Pending returns the buffered partial frame
func (r *FrameReader) Pending() string {
	return string(r.buffer)
}
