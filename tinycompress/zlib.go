// Package tinycompress writes zlib streams without a DEFLATE encoder.
//
// Every block is stored, so the output is a little larger than the input,
// but any zlib reader accepts it and encoding needs no tables or window.
// That suits firmware that must hand the host a zlib payload.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

const (
	zlibHeader0 = 0x78 // CM=8 (deflate), CINFO=7 (32K window)
	zlibHeader1 = 0x01 // FCHECK for 0x78, FLEVEL=0

	maxStoredBlock = 0xFFFF
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("tinycompress: write after close")

// StoredSize is the exact length Store produces for n input bytes.
func StoredSize(n int) int {
	blocks := (n + maxStoredBlock - 1) / maxStoredBlock
	if blocks == 0 {
		blocks = 1 // an empty stream still needs one final block
	}
	return 2 + blocks*5 + n + 4
}

// Store appends the zlib encoding of src to dst.
func Store(dst, src []byte) []byte {
	if cap(dst)-len(dst) < StoredSize(len(src)) {
		grown := make([]byte, len(dst), len(dst)+StoredSize(len(src)))
		copy(grown, dst)
		dst = grown
	}
	dst = append(dst, zlibHeader0, zlibHeader1)
	rest := src
	for {
		n := len(rest)
		final := byte(1)
		if n > maxStoredBlock {
			n = maxStoredBlock
			final = 0
		}
		length := uint16(n)
		dst = append(dst, final, byte(length), byte(length>>8), byte(^length), byte(^length>>8))
		dst = append(dst, rest[:n]...)
		rest = rest[n:]
		if final == 1 {
			break
		}
	}
	sum := adler32.Checksum(src)
	return append(dst, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
}

// Writer buffers everything written to it and emits the zlib stream on
// Close. Size the capacity hint to avoid growing during Write.
type Writer struct {
	out    io.Writer
	buf    []byte
	closed bool
}

// NewWriter returns a Writer with room for sizeHint bytes of input.
func NewWriter(w io.Writer, sizeHint int) *Writer {
	return &Writer{out: w, buf: make([]byte, 0, sizeHint)}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close writes the stream. Closing twice is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.out.Write(Store(nil, w.buf))
	return err
}
