// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tosmole

const (
	iesIDSpaceSize    = 64
	iesKeySpaceSize   = 64
	iesColumnIDSize   = 64
	iesDisplayNmSize  = 64
	iesObfuscationXOR = 0x01
)

// IesTypeCode is the column type discriminator read from the IES column
// table. TypeCode 2 is preserved verbatim alongside TypeCode 1: storage is
// identical, the semantic difference (if any) is unconfirmed, see
// SPEC_FULL.md section 4.
type IesTypeCode uint16

const (
	IesTypeFloat     IesTypeCode = 0
	IesTypeString    IesTypeCode = 1
	IesTypeStringAlt IesTypeCode = 2
)

// IesHeader is the fixed 156-byte block at the start of an IES file; the
// column table follows it immediately.
type IesHeader struct {
	IDSpace         RawString
	KeySpace        RawString
	Version         uint16
	Pad             uint16
	InfoSize        uint32
	DataSize        uint32
	TotalSize       uint32
	UseClassID      uint8
	Pad2            uint8
	NumField        uint16
	NumColumn       uint16
	NumColumnNumber uint16
	NumColumnString uint16
	Pad3            uint16
}

// IesColumn describes one column of the table.
type IesColumn struct {
	ColumnID    RawString
	DisplayName RawString
	TypeCode    IesTypeCode
	Access      uint16
	Sync        uint16
	DeclIndex   uint16
}

// IesRow is one variable-length row of the table.
type IesRow struct {
	RowIndex    int32
	PrimaryText RawString
	Floats      []float32
	Strings     []RawString
	ScopeFlags  []int8
}

// IesFile is a fully parsed IES table.
type IesFile struct {
	Header  IesHeader
	Columns []IesColumn
	Rows    []IesRow
}

// ParseIES parses an IES table from data.
func ParseIES(data []byte) (*IesFile, error) {
	r := NewMemoryReader(data)
	defer r.Close()

	header, err := readIESHeader(r)
	if err != nil {
		return nil, err
	}
	if int(header.NumColumn) != int(header.NumColumnNumber)+int(header.NumColumnString) {
		return nil, newFormatErrorf(KindTruncatedPayload,
			"num_column %d != num_column_number %d + num_column_string %d",
			header.NumColumn, header.NumColumnNumber, header.NumColumnString)
	}

	columns := make([]IesColumn, 0, header.NumColumn)
	for i := uint16(0); i < header.NumColumn; i++ {
		col, err := readIESColumn(r)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}

	rowSectionStart, err := r.Position()
	if err != nil {
		return nil, err
	}

	rows := make([]IesRow, 0, header.NumField)
	for i := uint16(0); i < header.NumField; i++ {
		row, err := readIESRow(r, int(header.NumColumnNumber), int(header.NumColumnString))
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	rowSectionEnd, err := r.Position()
	if err != nil {
		return nil, err
	}
	if consumed := uint32(rowSectionEnd - rowSectionStart); consumed != header.DataSize {
		return nil, newFormatErrorf(KindTruncatedPayload,
			"row section consumed %d bytes, data_size declares %d", consumed, header.DataSize)
	}

	return &IesFile{Header: header, Columns: columns, Rows: rows}, nil
}

func readIESHeader(r *BinaryReader) (IesHeader, error) {
	var h IesHeader
	idSpace, err := r.ReadExact(iesIDSpaceSize)
	if err != nil {
		return h, err
	}
	keySpace, err := r.ReadExact(iesKeySpaceSize)
	if err != nil {
		return h, err
	}
	h.IDSpace = newRawString(deobfuscateIESBytes(idSpace))
	h.KeySpace = newRawString(deobfuscateIESBytes(keySpace))

	if h.Version, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.Pad, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.InfoSize, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.DataSize, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.TotalSize, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.UseClassID, err = r.ReadU8(); err != nil {
		return h, err
	}
	if h.Pad2, err = r.ReadU8(); err != nil {
		return h, err
	}
	if h.NumField, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.NumColumn, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.NumColumnNumber, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.NumColumnString, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.Pad3, err = r.ReadU16(); err != nil {
		return h, err
	}
	return h, nil
}

func readIESColumn(r *BinaryReader) (IesColumn, error) {
	var c IesColumn
	id, err := r.ReadExact(iesColumnIDSize)
	if err != nil {
		return c, err
	}
	name, err := r.ReadExact(iesDisplayNmSize)
	if err != nil {
		return c, err
	}
	c.ColumnID = newRawString(deobfuscateIESBytes(id))
	c.DisplayName = newRawString(deobfuscateIESBytes(name))

	typeCode, err := r.ReadU16()
	if err != nil {
		return c, err
	}
	c.TypeCode = IesTypeCode(typeCode)
	if c.Access, err = r.ReadU16(); err != nil {
		return c, err
	}
	if c.Sync, err = r.ReadU16(); err != nil {
		return c, err
	}
	if c.DeclIndex, err = r.ReadU16(); err != nil {
		return c, err
	}
	return c, nil
}

func readIESRow(r *BinaryReader, numColumnNumber, numColumnString int) (IesRow, error) {
	var row IesRow
	var err error
	if row.RowIndex, err = r.ReadI32(); err != nil {
		return row, err
	}

	primaryLen, err := r.ReadU16()
	if err != nil {
		return row, err
	}
	primary, err := r.ReadExact(int(primaryLen))
	if err != nil {
		return row, err
	}
	row.PrimaryText = newRawString(deobfuscateIESBytes(primary))

	row.Floats = make([]float32, numColumnNumber)
	for i := range row.Floats {
		if row.Floats[i], err = r.ReadF32(); err != nil {
			return row, err
		}
	}

	row.Strings = make([]RawString, numColumnString)
	for i := range row.Strings {
		strLen, err := r.ReadU16()
		if err != nil {
			return row, err
		}
		b, err := r.ReadExact(int(strLen))
		if err != nil {
			return row, err
		}
		row.Strings[i] = newRawString(deobfuscateIESBytes(b))
	}

	row.ScopeFlags = make([]int8, numColumnString)
	for i := range row.ScopeFlags {
		if row.ScopeFlags[i], err = r.ReadI8(); err != nil {
			return row, err
		}
	}

	return row, nil
}

// deobfuscateIESBytes XORs every byte with the fixed IES key 0x01, then
// trims trailing bytes that are neither ASCII-graphic nor whitespace. XOR
// with the same key is its own inverse, so re-encoding an already-decoded
// buffer reproduces the original bytes (modulo the trimmed tail, which by
// construction only ever held such bytes).
func deobfuscateIESBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c ^ iesObfuscationXOR
	}
	return trimNonPrintableTail(out)
}
