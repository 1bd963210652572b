// Package capture provides the in-memory output buffer shared by process
// and channel tasks. Captured output is modeled as an append-only byte
// stream with an independent read cursor: writers always append at the end,
// readers continue sequentially from wherever they left off. This is what
// lets extraction tasks consume socket traffic and process output through
// the same interface.
package capture

import (
	"bytes"
	"fmt"
	"io"
)

// Buffer is a seekable, append-only capture of an output stream.
//
// Appending never moves the read cursor, so a receive task can add lines at
// the end while a downstream parse task keeps reading from its previous
// position. Buffer is not safe for concurrent use; the pipeline runs one
// task at a time.
type Buffer struct {
	data []byte
	pos  int
}

// New returns an empty capture buffer.
func New() *Buffer {
	return &Buffer{}
}

// Read reads from the current cursor position, advancing it. It returns
// io.EOF once the cursor reaches the end of the captured data; appending
// more data clears the end-of-stream condition for subsequent reads.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}

// ReadString reads up to and including the first occurrence of delim,
// advancing the cursor. If the delimiter is not present it returns the
// remaining data together with io.EOF, mirroring bufio.Reader.ReadString.
func (b *Buffer) ReadString(delim byte) (string, error) {
	if b.pos >= len(b.data) {
		return "", io.EOF
	}
	i := bytes.IndexByte(b.data[b.pos:], delim)
	if i < 0 {
		s := string(b.data[b.pos:])
		b.pos = len(b.data)
		return s, io.EOF
	}
	s := string(b.data[b.pos : b.pos+i+1])
	b.pos += i + 1
	return s, nil
}

// Write appends p at the end of the buffer. The read cursor is unaffected.
func (b *Buffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// WriteString appends s at the end of the buffer. The read cursor is
// unaffected.
func (b *Buffer) WriteString(s string) (int, error) {
	b.data = append(b.data, s...)
	return len(s), nil
}

// Seek repositions the read cursor. It implements io.Seeker.
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("capture: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("capture: negative position %d", abs)
	}
	b.pos = int(abs)
	return abs, nil
}

// Pos returns the current read cursor position.
func (b *Buffer) Pos() int {
	return b.pos
}

// Len returns the total number of captured bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// String returns the full captured contents regardless of cursor position.
func (b *Buffer) String() string {
	return string(b.data)
}
