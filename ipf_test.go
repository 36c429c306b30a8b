// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tosmole

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"hash/crc32"
	"testing"

	qt "github.com/frankban/quicktest"
)

type ipfFixtureEntry struct {
	containerName string
	directoryName string
	plaintext     []byte
	encrypt       bool
}

// buildIPFArchive assembles a complete IPF archive byte-for-byte per
// spec.md section 6: entry payload blocks, then the file table, then the
// 24-byte footer.
func buildIPFArchive(t *testing.T, entries []ipfFixtureEntry, newVersion uint32) []byte {
	t.Helper()

	var data bytes.Buffer
	type placed struct {
		ipfFixtureEntry
		offset     uint32
		compressed []byte
		crc        uint32
	}
	var placedEntries []placed

	for _, e := range entries {
		var compressedBuf bytes.Buffer
		fw, err := flate.NewWriter(&compressedBuf, flate.DefaultCompression)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(e.plaintext); err != nil {
			t.Fatal(err)
		}
		if err := fw.Close(); err != nil {
			t.Fatal(err)
		}
		compressed := compressedBuf.Bytes()
		if e.encrypt {
			decryptIPFBuffer(compressed) // symmetric: same op encrypts and decrypts
		}

		offset := uint32(data.Len())
		data.Write(compressed)
		placedEntries = append(placedEntries, placed{
			ipfFixtureEntry: e,
			offset:          offset,
			compressed:      compressed,
			crc:             crc32.ChecksumIEEE(e.plaintext),
		})
	}

	fileTableOffset := uint32(data.Len())
	for _, p := range placedEntries {
		binary.Write(&data, binary.LittleEndian, uint16(len(p.directoryName)))
		binary.Write(&data, binary.LittleEndian, p.crc)
		binary.Write(&data, binary.LittleEndian, uint32(len(p.compressed)))
		binary.Write(&data, binary.LittleEndian, uint32(len(p.plaintext)))
		binary.Write(&data, binary.LittleEndian, p.offset)
		binary.Write(&data, binary.LittleEndian, uint16(len(p.containerName)))
		data.WriteString(p.containerName)
		data.WriteString(p.directoryName)
	}

	footerOffset := uint32(data.Len())
	binary.Write(&data, binary.LittleEndian, uint16(len(entries)))
	binary.Write(&data, binary.LittleEndian, fileTableOffset)
	binary.Write(&data, binary.LittleEndian, uint16(0))
	binary.Write(&data, binary.LittleEndian, footerOffset)
	binary.Write(&data, binary.LittleEndian, ipfMagic)
	binary.Write(&data, binary.LittleEndian, uint32(0))
	binary.Write(&data, binary.LittleEndian, newVersion)

	return data.Bytes()
}

func TestOpenIPFEmptyArchive(t *testing.T) {
	c := qt.New(t)

	raw := buildIPFArchive(t, nil, 10000)
	archive, err := OpenIPFMemory(raw)
	c.Assert(err, qt.IsNil)
	c.Assert(archive.Entries(), qt.HasLen, 0)

	_, err = archive.Extract(0)
	c.Assert(err, qt.ErrorIs, ErrEntryOutOfRange)
}

func TestOpenIPFSingleFileUnencrypted(t *testing.T) {
	c := qt.New(t)

	raw := buildIPFArchive(t, []ipfFixtureEntry{
		{containerName: "hello.txt", directoryName: "data/hello.txt", plaintext: []byte("hello\n")},
	}, 10000)

	archive, err := OpenIPFMemory(raw)
	c.Assert(err, qt.IsNil)
	c.Assert(archive.Entries(), qt.HasLen, 1)

	out, err := archive.Extract(0)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.DeepEquals, []byte("hello\n"))
}

func TestOpenIPFSingleFileEncrypted(t *testing.T) {
	c := qt.New(t)

	raw := buildIPFArchive(t, []ipfFixtureEntry{
		{containerName: "hello.txt", directoryName: "data/hello.txt", plaintext: []byte("hello\n"), encrypt: true},
	}, 11001)

	archive, err := OpenIPFMemory(raw)
	c.Assert(err, qt.IsNil)

	out, err := archive.Extract(0)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.DeepEquals, []byte("hello\n"))
}

func TestOpenIPFAllowlistedExtensionSkipsEncryption(t *testing.T) {
	c := qt.New(t)

	// Built without the encrypt flag (i.e. plain compressed bytes) even
	// though new_version calls for encryption: the .mp3 suffix must be
	// passed through undecrypted.
	raw := buildIPFArchive(t, []ipfFixtureEntry{
		{containerName: "theme.mp3", directoryName: "sound/theme.mp3", plaintext: []byte("audio-bytes")},
	}, 11001)

	archive, err := OpenIPFMemory(raw)
	c.Assert(err, qt.IsNil)

	out, err := archive.Extract(0)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.DeepEquals, []byte("audio-bytes"))
}

func TestOpenIPFInvalidMagic(t *testing.T) {
	c := qt.New(t)

	raw := buildIPFArchive(t, nil, 10000)
	// Corrupt the magic field inside the 24-byte footer.
	raw[len(raw)-12] ^= 0xFF

	_, err := OpenIPFMemory(raw)
	c.Assert(err, qt.ErrorIs, ErrInvalidMagic)
}

func TestOpenIPFReaderNoRetainFailsExtract(t *testing.T) {
	c := qt.New(t)

	raw := buildIPFArchive(t, []ipfFixtureEntry{
		{containerName: "a", directoryName: "a", plaintext: []byte("x")},
	}, 10000)

	archive, err := OpenIPFReader(NewMemoryReader(raw), false)
	c.Assert(err, qt.IsNil)

	_, err = archive.Extract(0)
	c.Assert(err, qt.ErrorIs, ErrNoReader)
}

func TestVerifyEntryCRC32(t *testing.T) {
	c := qt.New(t)

	raw := buildIPFArchive(t, []ipfFixtureEntry{
		{containerName: "a.txt", directoryName: "a.txt", plaintext: []byte("payload")},
	}, 10000)

	archive, err := OpenIPFMemory(raw)
	c.Assert(err, qt.IsNil)
	out, err := archive.Extract(0)
	c.Assert(err, qt.IsNil)

	c.Assert(VerifyEntryCRC32(archive.Entries()[0], out), qt.IsTrue)
	c.Assert(VerifyEntryCRC32(archive.Entries()[0], []byte("wrong")), qt.IsFalse)
}
