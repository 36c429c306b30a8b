// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tosmole

import (
	"golang.org/x/text/encoding/charmap"
)

// Vec3 is a plain 3-component float32 vector. No unit-length or range
// validation is performed on decoded values.
type Vec3 struct {
	X, Y, Z float32
}

// Quat is a plain 4-component float32 quaternion. No unit-length validation
// is performed on decoded values.
type Quat struct {
	X, Y, Z, W float32
}

// RawString keeps the raw on-disk bytes of a string field alongside a
// best-effort decoded view. Game assets frequently contain bytes that are
// not valid UTF-8; Bytes is always authoritative, String() is a convenience
// that decodes on each call.
type RawString struct {
	Bytes []byte
}

// String returns a best-effort Windows-1252 decoding of Bytes. Windows-1252
// is a superset of Latin-1 and the common code page for legacy game text;
// bytes with no mapping are replaced per charmap's standard behavior.
func (s RawString) String() string {
	if len(s.Bytes) == 0 {
		return ""
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(s.Bytes)
	if err != nil {
		return string(s.Bytes)
	}
	return string(out)
}

func newRawString(b []byte) RawString {
	cp := make([]byte, len(b))
	copy(cp, b)
	return RawString{Bytes: cp}
}

// readLengthPrefixedString reads the XAC/XSM string encoding: a little
// endian u32 byte count followed by that many raw bytes (not
// null-terminated).
func readLengthPrefixedString(r *BinaryReader) (RawString, error) {
	n, err := r.ReadU32()
	if err != nil {
		return RawString{}, err
	}
	if n == 0 {
		return RawString{}, nil
	}
	b, err := r.ReadExact(int(n))
	if err != nil {
		return RawString{}, err
	}
	return newRawString(b), nil
}

// trimNonPrintableTail drops trailing bytes that are neither ASCII-graphic
// (0x21-0x7E) nor whitespace (tab, LF, CR, space), per the IES string
// obfuscation contract in spec.md section 4.4.
func trimNonPrintableTail(b []byte) []byte {
	hi := len(b)
	for hi > 0 {
		c := b[hi-1]
		if isPrintableOrSpace(c) {
			break
		}
		hi--
	}
	return b[:hi]
}

func isPrintableOrSpace(c byte) bool {
	if c >= 0x21 && c <= 0x7E {
		return true
	}
	switch c {
	case 0x09, 0x0A, 0x0D, 0x20:
		return true
	}
	return false
}
