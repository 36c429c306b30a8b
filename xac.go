// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tosmole

// XAC chunk type identifiers. spec.md's source material names chunk
// categories without publishing their on-disk integer tags, so these
// constants are this decoder's own stable numbering, used consistently by
// the dispatch table below and by this package's test fixtures. Any type id
// not present here decodes as XacUnknownChunk.
const (
	xacChunkMetadata         uint32 = 1
	xacChunkNodeHierarchy    uint32 = 2
	xacChunkMaterialTotals   uint32 = 3
	xacChunkStandardMaterial uint32 = 4
	xacChunkShaderMaterial   uint32 = 5
	xacChunkMesh             uint32 = 6
	xacChunkSkinning         uint32 = 7
)

var xacMagic = [4]byte{'X', 'A', 'C', ' '}

// XacHeader is the 8-byte header at the start of an XAC file.
type XacHeader struct {
	Major         uint8
	Minor         uint8
	BigEndian     uint8
	MultiplyOrder uint8
}

// XacChunkHeader is the 12-byte framing that precedes every chunk payload.
type XacChunkHeader struct {
	TypeID     uint32
	ByteLength uint32
	Version    uint32
}

// XacMetadata corresponds to spec.md's XAC metadata chunk.
type XacMetadata struct {
	// RepositioningMask packs which transform components (position,
	// rotation, scale) were repositioned at export time. The exact bit
	// layout is asset-specific and preserved verbatim, not interpreted.
	RepositioningMask  uint32
	ExporterMajor      uint8
	ExporterMinor      uint8
	RetargetRootOffset int32
	UnitType           uint32
	ExporterHighVersion uint32
	SourceApp          RawString
	OriginalFileName   RawString
	ExportDate         RawString
	ActorName          RawString
}

func (*XacMetadata) isXacChunk() {}

// XacNode is one entry of the node hierarchy chunk.
type XacNode struct {
	Rotation         Quat
	ScaleRotation    Quat
	Position         Vec3
	Scale            Vec3
	Pad              [3]float32
	ParentIndex      int32
	ChildCount       int32
	IncludeInBounds  int32
	Transform        [16]float32
	ImportanceFactor float32
	Name             RawString
}

// XacNodeHierarchy is the decoded node-hierarchy chunk.
type XacNodeHierarchy struct {
	Nodes []XacNode
}

func (*XacNodeHierarchy) isXacChunk() {}

// XacMaterialTotals is the material-count chunk that precedes the
// standard/shader material chunks in a well-formed file.
type XacMaterialTotals struct {
	NumStandardMaterials uint32
	NumFXMaterials       uint32
}

func (*XacMaterialTotals) isXacChunk() {}

// XacMaterialLayer is one texture layer of a standard material.
type XacMaterialLayer struct {
	Amount     float32
	UOffset    float32
	VOffset    float32
	UTiling    float32
	VTiling    float32
	Rotation   float32
	MaterialID int16
	MapType    uint8
	Pad        uint8
	Texture    RawString
}

// XacStandardMaterial is a fixed-function material with texture layers.
type XacStandardMaterial struct {
	Ambient          Vec3
	Diffuse          Vec3
	Specular         Vec3
	Emissive         Vec3
	Shininess        float32
	ShineStrength    float32
	Opacity          float32
	IOR              float32
	DoubleSided      uint8
	Wireframe        uint8
	TransparencyType uint8
	NumLayers        uint8
	Name             RawString
	Layers           []XacMaterialLayer
}

func (*XacStandardMaterial) isXacChunk() {}

// XacShaderIntProperty is a named int32 shader parameter.
type XacShaderIntProperty struct {
	Name  RawString
	Value int32
}

// XacShaderFloatProperty is a named float32 shader parameter.
type XacShaderFloatProperty struct {
	Name  RawString
	Value float32
}

// XacShaderBoolProperty is a named boolean shader parameter.
type XacShaderBoolProperty struct {
	Name  RawString
	Value uint8
}

// XacShaderStringProperty is a named string shader parameter.
type XacShaderStringProperty struct {
	Name  RawString
	Value RawString
}

// XacShaderMaterial is a shader-driven material with typed property blocks.
type XacShaderMaterial struct {
	Flags            uint32
	NumInt           uint32
	NumFloat         uint32
	NumBool          uint32
	NumString        uint32
	Flags2           uint32
	Name             RawString
	EffectFile       RawString
	IntProperties    []XacShaderIntProperty
	FloatProperties  []XacShaderFloatProperty
	BoolProperties   []XacShaderBoolProperty
	StringProperties []XacShaderStringProperty
}

func (*XacShaderMaterial) isXacChunk() {}

// XacAttributeLayer is one per-vertex attribute stream of a mesh (e.g.
// positions, normals, UVs); Data holds NumVertices*Size raw bytes whose
// interpretation depends on TypeID.
type XacAttributeLayer struct {
	TypeID uint32
	Size   uint32
	Flags  uint32
	Data   []byte
}

// XacSubMesh is one material-grouped index range of a mesh.
//
// spec.md lists "indices and bone indices" after the four header fields
// without giving the bone-index array's length explicitly; this decoder
// follows the common per-vertex bone-lookup convention and reads
// NumVertices bone indices, documented here rather than silently assumed.
type XacSubMesh struct {
	NumIndices    uint32
	NumVertices   uint32
	MaterialIndex uint32
	Pad           uint32
	Indices       []uint32
	BoneIndices   []uint32
}

// XacMesh is a decoded mesh chunk.
type XacMesh struct {
	NodeID              uint32
	NumInfluenceRanges   uint32
	NumVertices          uint32
	NumIndices           uint32
	NumSubMeshes         uint32
	NumAttributeLayers   uint32
	IsCollision          uint8
	Pad                  [3]uint8
	AttributeLayers      []XacAttributeLayer
	SubMeshes            []XacSubMesh
}

func (*XacMesh) isXacChunk() {}

// XacSkinInfluence is one bone weight contribution.
type XacSkinInfluence struct {
	Weight    float32
	BoneIndex int32
}

// XacInfluenceRange selects the slice of the influence pool used by one
// local bone.
type XacInfluenceRange struct {
	Start uint32
	Count uint32
}

// XacSkinning is a decoded skinning-information chunk.
//
// spec.md's field list gives NumLocalBones and NumInfluences but not an
// explicit length for InfluenceRanges; this decoder reads one range per
// local bone (NumLocalBones entries), pairing each local bone with the
// slice of the influence pool it owns.
type XacSkinning struct {
	NodeIndex       uint32
	IsForCollision  uint8
	NumLocalBones   uint32
	NumInfluences   uint32
	Influences      []XacSkinInfluence
	InfluenceRanges []XacInfluenceRange
	LocalBones      []int32
}

func (*XacSkinning) isXacChunk() {}

// XacUnknownChunk preserves a chunk this decoder does not recognize, or
// one whose known-type decode failed, without losing data.
type XacUnknownChunk struct {
	TypeID  uint32
	Version uint32
	Data    []byte
}

func (*XacUnknownChunk) isXacChunk() {}

// XacChunk is the tagged-variant interface implemented by every decoded XAC
// chunk payload, including XacUnknownChunk.
type XacChunk interface {
	isXacChunk()
}

// XacFile is a fully parsed XAC model container.
type XacFile struct {
	Header   XacHeader
	Chunks   []XacChunk
	Warnings []string
}

// ParseXAC parses an XAC model file from data.
func ParseXAC(data []byte) (*XacFile, error) {
	r := NewMemoryReader(data)
	defer r.Close()

	header, err := readXACHeader(r)
	if err != nil {
		return nil, err
	}

	file := &XacFile{Header: header}
	if header.Major != 1 || header.Minor != 0 {
		file.Warnings = append(file.Warnings,
			newFormatErrorf(KindUnsupportedVersion, "version %d.%d, expected 1.0", header.Major, header.Minor).Error())
	}

	for {
		chunkHeader, payload, eof, err := readChunkFrame(r)
		if err != nil {
			return nil, err
		}
		if eof {
			break
		}
		chunk, warn := decodeXACChunk(chunkHeader, payload)
		if warn != "" {
			file.Warnings = append(file.Warnings, warn)
		}
		file.Chunks = append(file.Chunks, chunk)
	}

	return file, nil
}

func readXACHeader(r *BinaryReader) (XacHeader, error) {
	var h XacHeader
	magic, err := r.ReadExact(4)
	if err != nil {
		return h, err
	}
	if [4]byte(magic) != xacMagic {
		return h, newFormatErrorf(KindInvalidMagic, "got %q, want %q", magic, xacMagic[:])
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
		return h, newFormatErrorf(KindInvalidMagic, "big-endian XAC input is not supported")
	}
	if h.MultiplyOrder, err = r.ReadU8(); err != nil {
		return h, err
	}
	return h, nil
}

// readChunkFrame reads one {type, length, version} header plus exactly
// byte_length bytes of payload from r. eof is true when r has no more
// chunks (a clean end of stream at a chunk boundary).
func readChunkFrame(r *BinaryReader) (hdr XacChunkHeader, payload []byte, eof bool, err error) {
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

// decodeXACChunk dispatches on the chunk's type id. Because payload was
// already fully read from the outer stream by readChunkFrame, any failure
// decoding a known chunk type degrades to an XacUnknownChunk carrying the
// raw bytes rather than aborting the whole file: the outer loop's position
// is unaffected either way, satisfying the chunk-resync invariant by
// construction.
func decodeXACChunk(hdr XacChunkHeader, payload []byte) (XacChunk, string) {
	pr := NewMemoryReader(payload)
	defer pr.Close()

	var (
		chunk XacChunk
		err   error
	)
	switch hdr.TypeID {
	case xacChunkMetadata:
		chunk, err = decodeXACMetadata(pr)
	case xacChunkNodeHierarchy:
		chunk, err = decodeXACNodeHierarchy(pr)
	case xacChunkMaterialTotals:
		chunk, err = decodeXACMaterialTotals(pr)
	case xacChunkStandardMaterial:
		chunk, err = decodeXACStandardMaterial(pr)
	case xacChunkShaderMaterial:
		chunk, err = decodeXACShaderMaterial(pr)
	case xacChunkMesh:
		chunk, err = decodeXACMesh(pr)
	case xacChunkSkinning:
		chunk, err = decodeXACSkinning(pr)
	default:
		return &XacUnknownChunk{TypeID: hdr.TypeID, Version: hdr.Version, Data: payload}, ""
	}
	if err != nil {
		return &XacUnknownChunk{TypeID: hdr.TypeID, Version: hdr.Version, Data: payload},
			newFormatErrorf(KindUnsupportedVersion, "chunk type %d: %v", hdr.TypeID, err).Error()
	}
	return chunk, ""
}

func readVec3(r *BinaryReader) (Vec3, error) {
	var v Vec3
	var err error
	if v.X, err = r.ReadF32(); err != nil {
		return v, err
	}
	if v.Y, err = r.ReadF32(); err != nil {
		return v, err
	}
	if v.Z, err = r.ReadF32(); err != nil {
		return v, err
	}
	return v, nil
}

func readQuat(r *BinaryReader) (Quat, error) {
	var q Quat
	var err error
	if q.X, err = r.ReadF32(); err != nil {
		return q, err
	}
	if q.Y, err = r.ReadF32(); err != nil {
		return q, err
	}
	if q.Z, err = r.ReadF32(); err != nil {
		return q, err
	}
	if q.W, err = r.ReadF32(); err != nil {
		return q, err
	}
	return q, nil
}

func decodeXACMetadata(r *BinaryReader) (*XacMetadata, error) {
	var m XacMetadata
	var err error
	if m.RepositioningMask, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.ExporterMajor, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if m.ExporterMinor, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if m.RetargetRootOffset, err = r.ReadI32(); err != nil {
		return nil, err
	}
	if m.UnitType, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.ExporterHighVersion, err = r.ReadU32(); err != nil {
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
	if m.ActorName, err = readLengthPrefixedString(r); err != nil {
		return nil, err
	}
	return &m, nil
}

func decodeXACNodeHierarchy(r *BinaryReader) (*XacNodeHierarchy, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	h := &XacNodeHierarchy{Nodes: make([]XacNode, 0, count)}
	for i := uint32(0); i < count; i++ {
		var n XacNode
		if n.Rotation, err = readQuat(r); err != nil {
			return nil, err
		}
		if n.ScaleRotation, err = readQuat(r); err != nil {
			return nil, err
		}
		if n.Position, err = readVec3(r); err != nil {
			return nil, err
		}
		if n.Scale, err = readVec3(r); err != nil {
			return nil, err
		}
		for j := range n.Pad {
			if n.Pad[j], err = r.ReadF32(); err != nil {
				return nil, err
			}
		}
		if n.ParentIndex, err = r.ReadI32(); err != nil {
			return nil, err
		}
		if n.ChildCount, err = r.ReadI32(); err != nil {
			return nil, err
		}
		if n.IncludeInBounds, err = r.ReadI32(); err != nil {
			return nil, err
		}
		for j := range n.Transform {
			if n.Transform[j], err = r.ReadF32(); err != nil {
				return nil, err
			}
		}
		if n.ImportanceFactor, err = r.ReadF32(); err != nil {
			return nil, err
		}
		if n.Name, err = readLengthPrefixedString(r); err != nil {
			return nil, err
		}
		h.Nodes = append(h.Nodes, n)
	}
	return h, nil
}

func decodeXACMaterialTotals(r *BinaryReader) (*XacMaterialTotals, error) {
	var t XacMaterialTotals
	var err error
	if t.NumStandardMaterials, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if t.NumFXMaterials, err = r.ReadU32(); err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeXACStandardMaterial(r *BinaryReader) (*XacStandardMaterial, error) {
	var m XacStandardMaterial
	var err error
	if m.Ambient, err = readVec3(r); err != nil {
		return nil, err
	}
	if m.Diffuse, err = readVec3(r); err != nil {
		return nil, err
	}
	if m.Specular, err = readVec3(r); err != nil {
		return nil, err
	}
	if m.Emissive, err = readVec3(r); err != nil {
		return nil, err
	}
	if m.Shininess, err = r.ReadF32(); err != nil {
		return nil, err
	}
	if m.ShineStrength, err = r.ReadF32(); err != nil {
		return nil, err
	}
	if m.Opacity, err = r.ReadF32(); err != nil {
		return nil, err
	}
	if m.IOR, err = r.ReadF32(); err != nil {
		return nil, err
	}
	if m.DoubleSided, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if m.Wireframe, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if m.TransparencyType, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if m.NumLayers, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if m.Name, err = readLengthPrefixedString(r); err != nil {
		return nil, err
	}
	m.Layers = make([]XacMaterialLayer, 0, m.NumLayers)
	for i := uint8(0); i < m.NumLayers; i++ {
		var l XacMaterialLayer
		if l.Amount, err = r.ReadF32(); err != nil {
			return nil, err
		}
		if l.UOffset, err = r.ReadF32(); err != nil {
			return nil, err
		}
		if l.VOffset, err = r.ReadF32(); err != nil {
			return nil, err
		}
		if l.UTiling, err = r.ReadF32(); err != nil {
			return nil, err
		}
		if l.VTiling, err = r.ReadF32(); err != nil {
			return nil, err
		}
		if l.Rotation, err = r.ReadF32(); err != nil {
			return nil, err
		}
		materialID, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		l.MaterialID = int16(materialID)
		if l.MapType, err = r.ReadU8(); err != nil {
			return nil, err
		}
		if l.Pad, err = r.ReadU8(); err != nil {
			return nil, err
		}
		if l.Texture, err = readLengthPrefixedString(r); err != nil {
			return nil, err
		}
		m.Layers = append(m.Layers, l)
	}
	return &m, nil
}

func decodeXACShaderMaterial(r *BinaryReader) (*XacShaderMaterial, error) {
	var m XacShaderMaterial
	var err error
	if m.Flags, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.NumInt, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.NumFloat, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.NumBool, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.NumString, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.Flags2, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.Name, err = readLengthPrefixedString(r); err != nil {
		return nil, err
	}
	if m.EffectFile, err = readLengthPrefixedString(r); err != nil {
		return nil, err
	}
	for i := uint32(0); i < m.NumInt; i++ {
		var p XacShaderIntProperty
		if p.Name, err = readLengthPrefixedString(r); err != nil {
			return nil, err
		}
		if p.Value, err = r.ReadI32(); err != nil {
			return nil, err
		}
		m.IntProperties = append(m.IntProperties, p)
	}
	for i := uint32(0); i < m.NumFloat; i++ {
		var p XacShaderFloatProperty
		if p.Name, err = readLengthPrefixedString(r); err != nil {
			return nil, err
		}
		if p.Value, err = r.ReadF32(); err != nil {
			return nil, err
		}
		m.FloatProperties = append(m.FloatProperties, p)
	}
	for i := uint32(0); i < m.NumBool; i++ {
		var p XacShaderBoolProperty
		if p.Name, err = readLengthPrefixedString(r); err != nil {
			return nil, err
		}
		if p.Value, err = r.ReadU8(); err != nil {
			return nil, err
		}
		m.BoolProperties = append(m.BoolProperties, p)
	}
	for i := uint32(0); i < m.NumString; i++ {
		var p XacShaderStringProperty
		if p.Name, err = readLengthPrefixedString(r); err != nil {
			return nil, err
		}
		if p.Value, err = readLengthPrefixedString(r); err != nil {
			return nil, err
		}
		m.StringProperties = append(m.StringProperties, p)
	}
	return &m, nil
}

func decodeXACMesh(r *BinaryReader) (*XacMesh, error) {
	var m XacMesh
	var err error
	if m.NodeID, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.NumInfluenceRanges, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.NumVertices, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.NumIndices, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.NumSubMeshes, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.NumAttributeLayers, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if m.IsCollision, err = r.ReadU8(); err != nil {
		return nil, err
	}
	for i := range m.Pad {
		if m.Pad[i], err = r.ReadU8(); err != nil {
			return nil, err
		}
	}

	for i := uint32(0); i < m.NumAttributeLayers; i++ {
		var layer XacAttributeLayer
		if layer.TypeID, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if layer.Size, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if layer.Flags, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if layer.Data, err = r.ReadExact(int(m.NumVertices) * int(layer.Size)); err != nil {
			return nil, err
		}
		m.AttributeLayers = append(m.AttributeLayers, layer)
	}

	for i := uint32(0); i < m.NumSubMeshes; i++ {
		var sm XacSubMesh
		if sm.NumIndices, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if sm.NumVertices, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if sm.MaterialIndex, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if sm.Pad, err = r.ReadU32(); err != nil {
			return nil, err
		}
		sm.Indices = make([]uint32, sm.NumIndices)
		for j := range sm.Indices {
			if sm.Indices[j], err = r.ReadU32(); err != nil {
				return nil, err
			}
		}
		sm.BoneIndices = make([]uint32, sm.NumVertices)
		for j := range sm.BoneIndices {
			if sm.BoneIndices[j], err = r.ReadU32(); err != nil {
				return nil, err
			}
		}
		m.SubMeshes = append(m.SubMeshes, sm)
	}

	return &m, nil
}

func decodeXACSkinning(r *BinaryReader) (*XacSkinning, error) {
	var s XacSkinning
	var err error
	if s.NodeIndex, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if s.IsForCollision, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if s.NumLocalBones, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if s.NumInfluences, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if _, err = r.ReadU8(); err != nil { // _pad
		return nil, err
	}

	s.Influences = make([]XacSkinInfluence, s.NumInfluences)
	for i := range s.Influences {
		if s.Influences[i].Weight, err = r.ReadF32(); err != nil {
			return nil, err
		}
		if s.Influences[i].BoneIndex, err = r.ReadI32(); err != nil {
			return nil, err
		}
	}

	s.InfluenceRanges = make([]XacInfluenceRange, s.NumLocalBones)
	for i := range s.InfluenceRanges {
		if s.InfluenceRanges[i].Start, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if s.InfluenceRanges[i].Count, err = r.ReadU32(); err != nil {
			return nil, err
		}
	}

	s.LocalBones = make([]int32, s.NumLocalBones)
	for i := range s.LocalBones {
		if s.LocalBones[i], err = r.ReadI32(); err != nil {
			return nil, err
		}
	}

	return &s, nil
}
