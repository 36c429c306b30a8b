// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tosmole

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
)

const ipfFooterSize = 24

// ipfMagic is the fixed trailer magic, bit-exact little-endian per spec.md
// section 6: 0x06054B50.
const ipfMagic uint32 = 0x06054B50

// ipfEncryptionVersionThreshold gates whether an entry's payload is
// decrypted before inflation; see SPEC_FULL.md section 4 for the
// resolution of this Open Question.
const ipfEncryptionVersionThreshold = 11000

// unencryptedSuffixes lists container extensions that are never encrypted
// even when the archive's version otherwise calls for it.
var unencryptedSuffixes = []string{".mp3", ".fdp", ".jpg"}

// IpfHeader is the 24-byte trailer located at EOF-24 in every IPF archive.
type IpfHeader struct {
	FileCount       uint16
	FileTableOffset uint32
	Pad             uint16
	FooterOffset    uint32
	Magic           uint32
	VersionToPatch  uint32
	NewVersion      uint32
}

// IpfEntry describes one file-table record inside an IPF archive. Names are
// retained as raw bytes; RawString.String() offers a best-effort decode.
type IpfEntry struct {
	DirectoryNameLength uint16
	CRC32               uint32
	CompressedSize      uint32
	UncompressedSize    uint32
	DataOffset          uint32
	ContainerNameLength uint16
	ContainerName       RawString
	DirectoryName       RawString
}

// IpfArchive is a parsed IPF file table, optionally bound to a seekable
// source that Extract reads from.
type IpfArchive struct {
	Header  IpfHeader
	entries []IpfEntry
	source  *BinaryReader
	retain  bool
}

// Entries returns the archive's file-table entries in on-disk order.
func (a *IpfArchive) Entries() []IpfEntry {
	return a.entries
}

// Close releases the archive's retained source, if any. Safe to call on an
// archive that retained nothing.
func (a *IpfArchive) Close() error {
	if a.source != nil {
		return a.source.Close()
	}
	return nil
}

// OpenIPFFile opens path and parses its IPF footer and file table, retaining
// the underlying file so Extract can later be used.
func OpenIPFFile(path string) (*IpfArchive, error) {
	r, err := NewFileReader(path)
	if err != nil {
		return nil, err
	}
	return OpenIPFReader(r, true)
}

// OpenIPFMemory parses an in-memory IPF archive, retaining the given bytes
// so Extract can later be used.
func OpenIPFMemory(data []byte) (*IpfArchive, error) {
	return OpenIPFReader(NewMemoryReader(data), true)
}

// OpenIPFReader parses an IPF archive's footer and file table from r. When
// retain is false r is closed once parsing succeeds and Extract will always
// fail with ErrNoReader.
func OpenIPFReader(r *BinaryReader, retain bool) (*IpfArchive, error) {
	if err := r.SeekFromEnd(-ipfFooterSize); err != nil {
		return nil, newFormatErrorf(KindTruncatedPayload, "archive shorter than footer: %w", err)
	}

	header, err := readIPFHeader(r)
	if err != nil {
		return nil, err
	}
	if header.Magic != ipfMagic {
		return nil, newFormatErrorf(KindInvalidMagic, "got 0x%08X, want 0x%08X", header.Magic, ipfMagic)
	}

	if err := r.SeekFromStart(int64(header.FileTableOffset)); err != nil {
		return nil, newFormatErrorf(KindTruncatedPayload, "file table offset %d: %w", header.FileTableOffset, err)
	}

	entries := make([]IpfEntry, 0, header.FileCount)
	for i := uint16(0); i < header.FileCount; i++ {
		entry, err := readIPFEntry(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	archive := &IpfArchive{Header: header, entries: entries, retain: retain}
	if retain {
		archive.source = r
	} else {
		r.Close()
	}
	return archive, nil
}

func readIPFHeader(r *BinaryReader) (IpfHeader, error) {
	var h IpfHeader
	var err error
	if h.FileCount, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.FileTableOffset, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.Pad, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.FooterOffset, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.Magic, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.VersionToPatch, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.NewVersion, err = r.ReadU32(); err != nil {
		return h, err
	}
	return h, nil
}

func readIPFEntry(r *BinaryReader) (IpfEntry, error) {
	var e IpfEntry
	var err error
	if e.DirectoryNameLength, err = r.ReadU16(); err != nil {
		return e, err
	}
	if e.CRC32, err = r.ReadU32(); err != nil {
		return e, err
	}
	if e.CompressedSize, err = r.ReadU32(); err != nil {
		return e, err
	}
	if e.UncompressedSize, err = r.ReadU32(); err != nil {
		return e, err
	}
	if e.DataOffset, err = r.ReadU32(); err != nil {
		return e, err
	}
	if e.ContainerNameLength, err = r.ReadU16(); err != nil {
		return e, err
	}
	containerName, err := r.ReadExact(int(e.ContainerNameLength))
	if err != nil {
		return e, err
	}
	e.ContainerName = newRawString(containerName)
	directoryName, err := r.ReadExact(int(e.DirectoryNameLength))
	if err != nil {
		return e, err
	}
	e.DirectoryName = newRawString(directoryName)
	return e, nil
}

// Extract decompresses (and, if required, decrypts) the payload of entry
// index and returns it. It fails with ErrNoReader if the archive was not
// opened with a retained source.
func (a *IpfArchive) Extract(index int) ([]byte, error) {
	if index < 0 || index >= len(a.entries) {
		return nil, newFormatErrorf(KindEntryOutOfRange, "index %d, have %d entries", index, len(a.entries))
	}
	if a.source == nil {
		return nil, ErrNoReader
	}
	entry := a.entries[index]

	if err := a.source.SeekFromStart(int64(entry.DataOffset)); err != nil {
		return nil, newFormatErrorf(KindTruncatedPayload, "entry %d data offset %d: %w", index, entry.DataOffset, err)
	}
	buf, err := a.source.ReadExact(int(entry.CompressedSize))
	if err != nil {
		return nil, err
	}

	if a.shouldDecrypt(entry) {
		decryptIPFBuffer(buf)
	}

	out, err := inflateRaw(buf, int(entry.UncompressedSize))
	if err != nil {
		return nil, newFormatError(KindDecompression, err)
	}
	return out, nil
}

// shouldDecrypt implements the Open Question resolution recorded in
// SPEC_FULL.md section 4: decryption is gated on the archive version, then
// exempted for a fixed set of container extensions.
func (a *IpfArchive) shouldDecrypt(entry IpfEntry) bool {
	nv := a.Header.NewVersion
	if nv != 0 && nv < ipfEncryptionVersionThreshold {
		return false
	}
	name := strings.ToLower(entry.ContainerName.String())
	for _, suffix := range unencryptedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}
	return true
}

// decryptIPFBuffer applies the three-key rolling cipher in place, per
// spec.md section 4.3: keys are reset and seeded with the fixed password,
// then for every even index j within the aligned prefix (j < len -
// len%2), the current keystream byte XORs buf[j] and the *ciphertext* byte
// buf[j+1] advances the key state. The trailing odd byte (if any) is left
// untouched.
func decryptIPFBuffer(buf []byte) {
	keys := initIPFKeys()
	aligned := len(buf) - len(buf)%2
	for j := 0; j < aligned; j += 2 {
		d := keys.derive()
		keys.update(buf[j+1])
		buf[j] ^= d
	}
}

// inflateRaw decompresses buf as raw DEFLATE (no zlib/gzip header) into a
// buffer sized to exactly want bytes; the decoder never allocates past that
// bound. It fails if fewer bytes come out, or if the stream has anything
// left after want bytes have been read.
func inflateRaw(buf []byte, want int) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(buf))
	defer fr.Close()

	out := make([]byte, want)
	n, err := io.ReadFull(fr, out)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	if n != want {
		return nil, fmt.Errorf("inflated %d bytes, want %d", n, want)
	}

	var extra [1]byte
	if m, _ := fr.Read(extra[:]); m > 0 {
		return nil, fmt.Errorf("decompressed data exceeds declared size %d", want)
	}

	return out, nil
}
