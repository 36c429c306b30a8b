// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tosmole

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
)

// readSeekCloser is the capability set a BinaryReader needs from its
// underlying byte source: random access plus an explicit release point.
type readSeekCloser interface {
	io.ReadSeeker
	io.Closer
}

// BinaryReader is a cursor over a byte source with little-endian primitive
// reads, seek/tell, and a checked read-exact-N-bytes. It owns or borrows its
// source for the duration of a single parse; Close releases it.
//
// Not safe for concurrent use.
type BinaryReader struct {
	src    readSeekCloser
	length int64
	buf    [8]byte
}

// NewFileReader opens path for random access and returns a BinaryReader that
// owns the resulting file handle; Close closes it.
func NewFileReader(path string) (*BinaryReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newFormatError(KindIO, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, newFormatError(KindIO, err)
	}
	return &BinaryReader{src: f, length: info.Size()}, nil
}

// memoryReadSeekCloser adapts a *bytes.Reader into a readSeekCloser with a
// no-op Close, for use over an in-memory byte slice.
type memoryReadSeekCloser struct {
	*bytes.Reader
}

func (memoryReadSeekCloser) Close() error { return nil }

// NewMemoryReader wraps an in-memory byte slice for random access. The slice
// is retained (not copied); callers must not mutate it while the reader or
// anything derived from it (e.g. an IpfArchive opened with retention) is
// still in use.
func NewMemoryReader(b []byte) *BinaryReader {
	return &BinaryReader{src: memoryReadSeekCloser{bytes.NewReader(b)}, length: int64(len(b))}
}

// Close releases the underlying source.
func (r *BinaryReader) Close() error {
	return r.src.Close()
}

// Len returns the total length of the underlying source in bytes.
func (r *BinaryReader) Len() int64 {
	return r.length
}

// Position returns the current absolute offset of the cursor.
func (r *BinaryReader) Position() (int64, error) {
	pos, err := r.src.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, newFormatError(KindIO, err)
	}
	return pos, nil
}

// SeekFromStart positions the cursor pos bytes from the start of the source.
func (r *BinaryReader) SeekFromStart(pos int64) error {
	if pos < 0 || pos > r.length {
		return newFormatErrorf(KindIO, "seek %d out of range [0, %d]", pos, r.length)
	}
	if _, err := r.src.Seek(pos, io.SeekStart); err != nil {
		return newFormatError(KindIO, err)
	}
	return nil
}

// SeekFromEnd positions the cursor |offset| bytes before EOF. offset must be
// zero or negative, matching the contract of seeking relative to the end.
func (r *BinaryReader) SeekFromEnd(offset int64) error {
	if offset > 0 {
		return newFormatErrorf(KindIO, "seek-from-end offset %d must be <= 0", offset)
	}
	target := r.length + offset
	if target < 0 {
		return newFormatErrorf(KindIO, "seek-from-end offset %d underruns source of length %d", offset, r.length)
	}
	if _, err := r.src.Seek(offset, io.SeekEnd); err != nil {
		return newFormatError(KindIO, err)
	}
	return nil
}

// SeekRelative advances (or rewinds, if delta is negative) the cursor by
// delta bytes from its current position.
func (r *BinaryReader) SeekRelative(delta int64) error {
	if _, err := r.src.Seek(delta, io.SeekCurrent); err != nil {
		return newFormatError(KindIO, err)
	}
	return nil
}

// ReadExact reads exactly n bytes, returning a short-read error (wrapped as
// KindTruncatedPayload) if fewer are available.
func (r *BinaryReader) ReadExact(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if n < 0 {
		return nil, newFormatErrorf(KindTruncatedPayload, "negative read length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.src, b); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, newFormatErrorf(KindTruncatedPayload, "requested %d bytes: %w", n, err)
		}
		return nil, newFormatError(KindIO, err)
	}
	return b, nil
}

func (r *BinaryReader) readN(n int) ([]byte, error) {
	if _, err := io.ReadFull(r.src, r.buf[:n]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, newFormatErrorf(KindTruncatedPayload, "requested %d bytes: %w", n, err)
		}
		return nil, newFormatError(KindIO, err)
	}
	return r.buf[:n], nil
}

// ReadU8 reads a single unsigned byte.
func (r *BinaryReader) ReadU8() (uint8, error) {
	b, err := r.readN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadI8 reads a single signed byte.
func (r *BinaryReader) ReadI8() (int8, error) {
	b, err := r.ReadU8()
	return int8(b), err
}

// ReadU16 reads a little-endian uint16.
func (r *BinaryReader) ReadU16() (uint16, error) {
	b, err := r.readN(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (r *BinaryReader) ReadU32() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadI32 reads a little-endian int32.
func (r *BinaryReader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadF32 reads a little-endian IEEE-754 float32.
func (r *BinaryReader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}
