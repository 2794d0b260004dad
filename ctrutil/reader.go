package ctrutil

import (
	"errors"
	"fmt"
	"io"
)

// Reader reads a file made of consecutive sections, tracking the offset of the next byte so
// that failures can tell where a file is truncated.
type Reader struct {
	inner  io.Reader
	offset int64
}

var _ io.Reader = &Reader{}

// NewReader wraps inner. A Reader that has not been read yet is returned as is.
func NewReader(inner io.Reader) *Reader {
	if r, ok := inner.(*Reader); ok && r.offset == 0 {
		return r
	}
	return &Reader{inner: inner}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	r.offset += int64(n)
	return n, err
}

// Offset of the next byte to be read.
func (r *Reader) Offset() int64 {
	return r.offset
}

// ReadSection fills p entirely. A short read is reported with what and the section offset.
func (r *Reader) ReadSection(p []byte, what string) error {
	offset := r.offset
	if _, err := io.ReadFull(r, p); err != nil {
		return fmt.Errorf("failed to read %s (0x%x bytes at 0x%x): %w", what, len(p), offset, err)
	}
	return nil
}

// SkipTo discards everything up to the given offset, which must not be behind the current one.
func (r *Reader) SkipTo(offset int64, what string) error {
	if offset < r.offset {
		return fmt.Errorf("cannot seek back to %s at 0x%x from 0x%x", what, offset, r.offset)
	}
	start := r.offset
	if _, err := io.CopyN(io.Discard, r, offset-start); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("failed to reach %s at 0x%x from 0x%x: %w", what, offset, start, err)
	}
	return nil
}
