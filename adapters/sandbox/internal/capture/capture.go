// Package capture collects child process and module output up to a byte limit.
package capture

import "bytes"

// Buffer keeps the first max bytes written to it and drops the rest. It must not
// implement io.ReaderFrom: io.Copy would bypass Write and the limit.
type Buffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

// New returns a Buffer holding at most max bytes.
func New(max int) *Buffer {
	return &Buffer{max: max}
}

// Write always reports len(p) so the writer keeps draining its pipe.
func (b *Buffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); len(p) > room {
		b.truncated = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

// Bytes returns the retained output.
func (b *Buffer) Bytes() []byte { return b.buf.Bytes() }

func (b *Buffer) String() string { return b.buf.String() }

// Len is the number of retained bytes.
func (b *Buffer) Len() int { return b.buf.Len() }

// Truncated reports whether any write was cut.
func (b *Buffer) Truncated() bool { return b.truncated }
