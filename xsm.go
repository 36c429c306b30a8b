// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tosmole

// XSM chunk type identifiers; see the comment on the XAC chunk type
// constants in xac.go for why these are this decoder's own numbering
// rather than values published by spec.md.
const (
	xsmChunkMetadata     uint32 = 1
	xsmChunkBoneAnimation uint32 = 2
)

var xsmMagic = [4]byte{'X', 'S', 'M', ' '}

// XsmHeader is the 8-byte header at the start of an XSM file.
type XsmHeader struct {
	Major     uint8
	Minor     uint8
	BigEndian uint8
	Unused    uint8
}

// XsmChunkHeader is the 12-byte framing that precedes every chunk payload,
// identical in shape to XacChunkHeader.
type XsmChunkHeader struct {
	TypeID     uint32
	ByteLength uint32
	Version    uint32
}

// XsmMetadata corresponds to spec.md's XSM metadata chunk.
type XsmMetadata struct {
	MaxAcceptableError float32
	FPS                int32
	ExporterMajor      uint8
	ExporterMinor      uint8
	SourceApp          RawString
	OriginalFileName   RawString
	ExportDate         RawString
	MotionName         RawString
}

func (*XsmMetadata) isXsmChunk() {}

// XsmPositionKey is a keyframe of a Vec3-valued track (position or scale).
type XsmPositionKey struct {
	Value Vec3
	Time  float32
}

// XsmRotationKey is a keyframe of a Quat-valued track (rotation or
// scale-rotation).
type XsmRotationKey struct {
	Value Quat
	Time  float32
}

// XsmSubMotion is one bone's keyframe track within the bone-animation
// chunk.
type XsmSubMotion struct {
	PoseRotation           Quat
	BindPoseRotation       Quat
	PoseScaleRotation      Quat
	BindPoseScaleRotation  Quat
	PosePosition           Vec3
	PoseScale              Vec3
	BindPosePosition       Vec3
	BindPoseScalePosition  Vec3
	MaxError               float32
	NodeName               RawString
	PositionKeys           []XsmPositionKey
	RotationKeys           []XsmRotationKey
	ScaleKeys              []XsmPositionKey
	ScaleRotationKeys      []XsmRotationKey
}

// XsmBoneAnimation is the decoded bone-animation chunk.
type XsmBoneAnimation struct {
	SubMotions []XsmSubMotion
}

func (*XsmBoneAnimation) isXsmChunk() {}

// XsmUnknownChunk preserves a chunk this decoder does not recognize, or one
// whose known-type decode failed, without losing data.
type XsmUnknownChunk struct {
	TypeID  uint32
	Version uint32
	Data    []byte
}

func (*XsmUnknownChunk) isXsmChunk() {}

// XsmChunk is the tagged-variant interface implemented by every decoded XSM
// chunk payload, including XsmUnknownChunk.
type XsmChunk interface {
	isXsmChunk()
}

// XsmFile is a fully parsed XSM skeletal-motion container.
type XsmFile struct {
	Header   XsmHeader
	Chunks   []XsmChunk
	Warnings []string
}

// ParseXSM parses an XSM skeletal-motion file from data.
func ParseXSM(data []byte) (*XsmFile, error) {
	r := NewMemoryReader(data)
	defer r.Close()

	header, err := readXSMHeader(r)
	if err != nil {
		return nil, err
	}

	file := &XsmFile{Header: header}

	for {
		chunkHeader, payload, eof, err := readXSMChunkFrame(r)
		if err != nil {
			return nil, err
		}
		if eof {
			break
		}
		chunk, warn := decodeXSMChunk(chunkHeader, payload)
		if warn != "" {
			file.Warnings = append(file.Warnings, warn)
		}
		file.Chunks = append(file.Chunks, chunk)
	}

	return file, nil
}

func readXSMHeader(r *BinaryReader) (XsmHeader, error) {
	var h XsmHeader
	magic, err := r.ReadExact(4)
	if err != nil {
		return h, err
	}
	if [4]byte(magic) != xsmMagic {
		return h, newFormatErrorf(KindInvalidMagic, "got %q, want %q", magic, xsmMagic[:])
	}
	if h.Major, err = r.ReadU8(); err != nil {
		return h, err
	}
	if h.Minor, err = r.ReadU8(); err != nil {
		return h, err
	}
	if h.BigEndian, err = r.ReadU8(); err != nil {
		return h, err
	}
	if h.BigEndian != 0 {
		return h, newFormatErrorf(KindInvalidMagic, "big-endian XSM input is not supported")
	}
	if h.Unused, err = r.ReadU8(); err != nil {
		return h, err
	}
	return h, nil
}

// readXSMChunkFrame mirrors readChunkFrame in xac.go: identical 12-byte
// framing, shared by both formats per spec.md section 4.6.
func readXSMChunkFrame(r *BinaryReader) (hdr XsmChunkHeader, payload []byte, eof bool, err error) {
	pos, err := r.Position()
	if err != nil {
		return hdr, nil, false, err
	}
	if pos >= r.Len() {
		return hdr, nil, true, nil
	}

	if hdr.TypeID, err = r.ReadU32(); err != nil {
		return hdr, nil, false, err
	}
	if hdr.ByteLength, err = r.ReadU32(); err != nil {
		return hdr, nil, false, err
	}
	if hdr.Version, err = r.ReadU32(); err != nil {
		return hdr, nil, false, err
	}
	payload, err = r.ReadExact(int(hdr.ByteLength))
	if err != nil {
		return hdr, nil, false, err
	}
	return hdr, payload, false, nil
}

func decodeXSMChunk(hdr XsmChunkHeader, payload []byte) (XsmChunk, string) {
	pr := NewMemoryReader(payload)
	defer pr.Close()

	var (
		chunk XsmChunk
		err   error
	)
	switch hdr.TypeID {
	case xsmChunkMetadata:
		chunk, err = decodeXSMMetadata(pr)
	case xsmChunkBoneAnimation:
		chunk, err = decodeXSMBoneAnimation(pr)
	default:
		return &XsmUnknownChunk{TypeID: hdr.TypeID, Version: hdr.Version, Data: payload}, ""
	}
	if err != nil {
		return &XsmUnknownChunk{TypeID: hdr.TypeID, Version: hdr.Version, Data: payload},
			newFormatErrorf(KindUnsupportedVersion, "chunk type %d: %v", hdr.TypeID, err).Error()
	}
	return chunk, ""
}

func decodeXSMMetadata(r *BinaryReader) (*XsmMetadata, error) {
	var m XsmMetadata
	var err error
	if _, err = r.ReadU32(); err != nil { // _unused
		return nil, err
	}
	if m.MaxAcceptableError, err = r.ReadF32(); err != nil {
		return nil, err
	}
	if m.FPS, err = r.ReadI32(); err != nil {
		return nil, err
	}
	if m.ExporterMajor, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if m.ExporterMinor, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if _, err = r.ReadU16(); err != nil { // _pad
		return nil, err
	}
	if m.SourceApp, err = readLengthPrefixedString(r); err != nil {
		return nil, err
	}
	if m.OriginalFileName, err = readLengthPrefixedString(r); err != nil {
		return nil, err
	}
	if m.ExportDate, err = readLengthPrefixedString(r); err != nil {
		return nil, err
	}
	if m.MotionName, err = readLengthPrefixedString(r); err != nil {
		return nil, err
	}
	return &m, nil
}

func decodeXSMBoneAnimation(r *BinaryReader) (*XsmBoneAnimation, error) {
	numSubmotions, err := r.ReadU32()
	if err != nil {
		return nil, err
	}

	anim := &XsmBoneAnimation{SubMotions: make([]XsmSubMotion, 0, numSubmotions)}
	for i := uint32(0); i < numSubmotions; i++ {
		sm, err := decodeXSMSubMotion(r)
		if err != nil {
			return nil, err
		}
		anim.SubMotions = append(anim.SubMotions, sm)
	}
	return anim, nil
}

func decodeXSMSubMotion(r *BinaryReader) (XsmSubMotion, error) {
	var sm XsmSubMotion
	var err error

	if sm.PoseRotation, err = readQuat(r); err != nil {
		return sm, err
	}
	if sm.BindPoseRotation, err = readQuat(r); err != nil {
		return sm, err
	}
	if sm.PoseScaleRotation, err = readQuat(r); err != nil {
		return sm, err
	}
	if sm.BindPoseScaleRotation, err = readQuat(r); err != nil {
		return sm, err
	}
	if sm.PosePosition, err = readVec3(r); err != nil {
		return sm, err
	}
	if sm.PoseScale, err = readVec3(r); err != nil {
		return sm, err
	}
	if sm.BindPosePosition, err = readVec3(r); err != nil {
		return sm, err
	}
	if sm.BindPoseScalePosition, err = readVec3(r); err != nil {
		return sm, err
	}

	numPosKeys, err := r.ReadU32()
	if err != nil {
		return sm, err
	}
	numRotKeys, err := r.ReadU32()
	if err != nil {
		return sm, err
	}
	numScaleKeys, err := r.ReadU32()
	if err != nil {
		return sm, err
	}
	numScaleRotKeys, err := r.ReadU32()
	if err != nil {
		return sm, err
	}
	if sm.MaxError, err = r.ReadF32(); err != nil {
		return sm, err
	}
	if sm.NodeName, err = readLengthPrefixedString(r); err != nil {
		return sm, err
	}

	sm.PositionKeys = make([]XsmPositionKey, numPosKeys)
	for i := range sm.PositionKeys {
		if sm.PositionKeys[i].Value, err = readVec3(r); err != nil {
			return sm, err
		}
		if sm.PositionKeys[i].Time, err = r.ReadF32(); err != nil {
			return sm, err
		}
	}

	sm.RotationKeys = make([]XsmRotationKey, numRotKeys)
	for i := range sm.RotationKeys {
		if sm.RotationKeys[i].Value, err = readQuat(r); err != nil {
			return sm, err
		}
		if sm.RotationKeys[i].Time, err = r.ReadF32(); err != nil {
			return sm, err
		}
	}

	sm.ScaleKeys = make([]XsmPositionKey, numScaleKeys)
	for i := range sm.ScaleKeys {
		if sm.ScaleKeys[i].Value, err = readVec3(r); err != nil {
			return sm, err
		}
		if sm.ScaleKeys[i].Time, err = r.ReadF32(); err != nil {
			return sm, err
		}
	}

	sm.ScaleRotationKeys = make([]XsmRotationKey, numScaleRotKeys)
	for i := range sm.ScaleRotationKeys {
		if sm.ScaleRotationKeys[i].Value, err = readQuat(r); err != nil {
			return sm, err
		}
		if sm.ScaleRotationKeys[i].Time, err = r.ReadF32(); err != nil {
			return sm, err
		}
	}

	return sm, nil
}
