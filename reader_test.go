// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tosmole_test

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/R-Hidayatullah/tosmole"
)

func TestBinaryReaderMemoryPrimitives(t *testing.T) {
	c := qt.New(t)

	data := []byte{0x2A, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x7F}
	r := tosmole.NewMemoryReader(data)
	defer r.Close()

	u8, err := r.ReadU8()
	c.Assert(err, qt.IsNil)
	c.Assert(u8, qt.Equals, uint8(0x2A))

	u16, err := r.ReadU16()
	c.Assert(err, qt.IsNil)
	c.Assert(u16, qt.Equals, uint16(0x0001))

	u32, err := r.ReadU32()
	c.Assert(err, qt.IsNil)
	c.Assert(u32, qt.Equals, uint32(0x00000080))

	i32, err := r.ReadI32()
	c.Assert(err, qt.IsNil)
	c.Assert(i32, qt.Equals, int32(0x7FFF0000))
}

func TestBinaryReaderSeeks(t *testing.T) {
	c := qt.New(t)

	data := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	r := tosmole.NewMemoryReader(data)
	defer r.Close()

	c.Assert(r.SeekFromEnd(-2), qt.IsNil)
	b, err := r.ReadExact(2)
	c.Assert(err, qt.IsNil)
	c.Assert(b, qt.DeepEquals, []byte{8, 9})

	c.Assert(r.SeekFromStart(3), qt.IsNil)
	pos, err := r.Position()
	c.Assert(err, qt.IsNil)
	c.Assert(pos, qt.Equals, int64(3))

	c.Assert(r.SeekRelative(2), qt.IsNil)
	pos, err = r.Position()
	c.Assert(err, qt.IsNil)
	c.Assert(pos, qt.Equals, int64(5))

	c.Assert(r.SeekFromStart(100), qt.IsNotNil)
	c.Assert(r.SeekFromEnd(-100), qt.IsNotNil)
}

func TestBinaryReaderReadExactShort(t *testing.T) {
	c := qt.New(t)

	r := tosmole.NewMemoryReader([]byte{1, 2, 3})
	defer r.Close()

	_, err := r.ReadExact(10)
	c.Assert(err, qt.IsNotNil)
}

func TestBinaryReaderFile(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.bin")
	c.Assert(os.WriteFile(path, []byte{0xDE, 0xAD, 0xBE, 0xEF}, 0o644), qt.IsNil)

	r, err := tosmole.NewFileReader(path)
	c.Assert(err, qt.IsNil)
	defer r.Close()

	c.Assert(r.Len(), qt.Equals, int64(4))
	u32, err := r.ReadU32()
	c.Assert(err, qt.IsNil)
	c.Assert(u32, qt.Equals, uint32(0xEFBEADDE))
}
