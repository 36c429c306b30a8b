// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tosmole

import (
	"errors"
	"fmt"
)

// Kind classifies a FormatError.
type Kind int

const (
	// KindIO wraps a failure from the underlying byte source.
	KindIO Kind = iota
	// KindInvalidMagic is returned when a header magic value does not match.
	KindInvalidMagic
	// KindUnsupportedVersion is returned when an IPF version implies an
	// encryption scheme the decoder cannot honor. XAC/XSM version mismatches
	// are recorded as warnings instead of this kind.
	KindUnsupportedVersion
	// KindTruncatedPayload is returned when a declared length overruns the
	// remaining bytes of the source.
	KindTruncatedPayload
	// KindDecompression is returned on DEFLATE failure or a size mismatch
	// between the inflated output and the entry's declared uncompressed size.
	KindDecompression
	// KindEntryOutOfRange is returned when an IPF entry index is out of range.
	KindEntryOutOfRange
	// KindNoReader is returned when extraction is attempted on an archive
	// that was not opened with a retained source.
	KindNoReader
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindInvalidMagic:
		return "invalid magic"
	case KindUnsupportedVersion:
		return "unsupported version"
	case KindTruncatedPayload:
		return "truncated payload"
	case KindDecompression:
		return "decompression error"
	case KindEntryOutOfRange:
		return "entry out of range"
	case KindNoReader:
		return "no reader"
	default:
		return "unknown"
	}
}

// FormatError reports a failure decoding one of the four asset formats.
type FormatError struct {
	Kind Kind
	Err  error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tosmole: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("tosmole: %s", e.Kind)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *FormatError of the same Kind, so callers
// can write errors.Is(err, tosmole.ErrInvalidMagic) against the sentinels
// below without caring about the wrapped detail.
func (e *FormatError) Is(target error) bool {
	var fe *FormatError
	if errors.As(target, &fe) {
		return fe.Kind == e.Kind && fe.Err == nil
	}
	return false
}

func newFormatError(kind Kind, err error) error {
	return &FormatError{Kind: kind, Err: err}
}

func newFormatErrorf(kind Kind, format string, args ...any) error {
	return &FormatError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Sentinel errors usable with errors.Is. Each carries only a Kind so that
// errors.Is(err, ErrInvalidMagic) matches any FormatError of that Kind
// regardless of the wrapped detail.
var (
	ErrInvalidMagic        = &FormatError{Kind: KindInvalidMagic}
	ErrUnsupportedVersion  = &FormatError{Kind: KindUnsupportedVersion}
	ErrTruncatedPayload    = &FormatError{Kind: KindTruncatedPayload}
	ErrDecompressionFailed = &FormatError{Kind: KindDecompression}
	ErrEntryOutOfRange     = &FormatError{Kind: KindEntryOutOfRange}
	ErrNoReader            = &FormatError{Kind: KindNoReader}
)
