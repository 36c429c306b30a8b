// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tosmole_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"

	qt "github.com/frankban/quicktest"

	"github.com/R-Hidayatullah/tosmole"
)

func buildXAC(t *testing.T, chunks func(*bytes.Buffer)) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("XAC ")
	buf.Write([]byte{1, 0, 0, 0}) // major, minor, big_endian, multiply_order
	if chunks != nil {
		chunks(&buf)
	}
	return buf.Bytes()
}

func writeXACString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func TestParseXACRejectsBadMagic(t *testing.T) {
	c := qt.New(t)

	raw := []byte("XAC\x00\x01\x00\x00\x00")
	_, err := tosmole.ParseXAC(raw)
	c.Assert(err, qt.ErrorIs, tosmole.ErrInvalidMagic)
}

func TestParseXACUnknownChunkResyncsExactly(t *testing.T) {
	c := qt.New(t)

	payload := []byte{1, 2, 3, 4, 5}
	raw := buildXAC(t, func(buf *bytes.Buffer) {
		binary.Write(buf, binary.LittleEndian, uint32(4242)) // unrecognized type id
		binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
		binary.Write(buf, binary.LittleEndian, uint32(1))
		buf.Write(payload)

		// A known chunk follows; if resync were off by even one byte this
		// would fail to parse as material totals.
		binary.Write(buf, binary.LittleEndian, uint32(3)) // material totals
		binary.Write(buf, binary.LittleEndian, uint32(8))
		binary.Write(buf, binary.LittleEndian, uint32(1))
		binary.Write(buf, binary.LittleEndian, uint32(2)) // num standard
		binary.Write(buf, binary.LittleEndian, uint32(1)) // num fx
	})

	file, err := tosmole.ParseXAC(raw)
	c.Assert(err, qt.IsNil)
	c.Assert(file.Chunks, qt.HasLen, 2)

	unknown, ok := file.Chunks[0].(*tosmole.XacUnknownChunk)
	c.Assert(ok, qt.IsTrue)
	c.Assert(unknown.Data, qt.DeepEquals, payload)

	totals, ok := file.Chunks[1].(*tosmole.XacMaterialTotals)
	c.Assert(ok, qt.IsTrue)
	want := &tosmole.XacMaterialTotals{NumStandardMaterials: 2, NumFXMaterials: 1}
	if diff := cmp.Diff(want, totals); diff != "" {
		t.Errorf("material totals mismatch (-want +got):\n%s", diff)
	}
}

func TestParseXACNodeHierarchy(t *testing.T) {
	c := qt.New(t)

	var payload bytes.Buffer
	binary.Write(&payload, binary.LittleEndian, uint32(1)) // one node

	writeF32s := func(vs ...float32) {
		for _, v := range vs {
			binary.Write(&payload, binary.LittleEndian, v)
		}
	}
	writeF32s(0, 0, 0, 1) // rotation quat
	writeF32s(0, 0, 0, 1) // scale rotation quat
	writeF32s(1, 2, 3)    // position
	writeF32s(1, 1, 1)    // scale
	writeF32s(0, 0, 0)    // pad
	binary.Write(&payload, binary.LittleEndian, int32(-1)) // parent index
	binary.Write(&payload, binary.LittleEndian, int32(0))  // child count
	binary.Write(&payload, binary.LittleEndian, int32(1))  // include in bounds
	for i := 0; i < 16; i++ {
		binary.Write(&payload, binary.LittleEndian, float32(0))
	}
	binary.Write(&payload, binary.LittleEndian, float32(1)) // importance factor
	writeXACString(&payload, "root")

	raw := buildXAC(t, func(buf *bytes.Buffer) {
		binary.Write(buf, binary.LittleEndian, uint32(2)) // node hierarchy
		binary.Write(buf, binary.LittleEndian, uint32(payload.Len()))
		binary.Write(buf, binary.LittleEndian, uint32(1))
		buf.Write(payload.Bytes())
	})

	file, err := tosmole.ParseXAC(raw)
	c.Assert(err, qt.IsNil)
	c.Assert(file.Chunks, qt.HasLen, 1)

	hierarchy, ok := file.Chunks[0].(*tosmole.XacNodeHierarchy)
	c.Assert(ok, qt.IsTrue)
	c.Assert(hierarchy.Nodes, qt.HasLen, 1)
	c.Assert(hierarchy.Nodes[0].Name.String(), qt.Equals, "root")
	c.Assert(hierarchy.Nodes[0].ParentIndex, qt.Equals, int32(-1))
	c.Assert(hierarchy.Nodes[0].Position, qt.Equals, tosmole.Vec3{X: 1, Y: 2, Z: 3})
}

func TestParseXACWarnsOnUnsupportedVersion(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	buf.WriteString("XAC ")
	buf.Write([]byte{2, 5, 0, 0}) // major 2, minor 5: not the expected 1.0

	file, err := tosmole.ParseXAC(buf.Bytes())
	c.Assert(err, qt.IsNil)
	c.Assert(file.Warnings, qt.HasLen, 1)
}
