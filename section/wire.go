// Package section implements the segment-file section framing and the
// typed decoders for each recognised section tag (spec.md §4.1/§4.2,
// C2+C3): header/header2/xheader, volume/disk, sectors/data, table/table2,
// sector_table, digest/hash, error2/session, ltree, done/next.
package section

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/laenix/ewfkit/checksum"
)

func adler32Of(data []byte) uint32 { return checksum.Compute(checksum.Adler32, data) }

// Tag names a section type, with constants for the tags this engine
// recognises, used in place of the teacher's raw 16-byte string compares.
// Tag is a string type: Dispatch switches on it, any tag without a case
// there (including an unrecognised one) falls to its default branch, and
// the compiler does not check that the switch covers every constant.
type Tag string

const (
	TagHeader      Tag = "header"
	TagHeader2     Tag = "header2"
	TagXHeader     Tag = "xheader"
	TagVolume      Tag = "volume"
	TagDisk        Tag = "disk"
	TagData        Tag = "data"
	TagSectors     Tag = "sectors"
	TagTable       Tag = "table"
	TagTable2      Tag = "table2"
	TagSectorTable Tag = "sector_table"
	TagDigest      Tag = "digest"
	TagHash        Tag = "hash"
	TagError2      Tag = "error2"
	TagSession     Tag = "session"
	TagLtree       Tag = "ltree"
	TagLtype       Tag = "ltype"
	TagNext        Tag = "next"
	TagDone        Tag = "done"
)

// DescriptorV1 is the 76-byte v1 (EWF1) section header, spec.md §6.1.
type DescriptorV1 struct {
	TypeDefinition [16]byte
	NextOffset     uint64
	Size           uint64
	Padding        [40]byte
	Checksum       uint32
}

// DescriptorV2 is the variable-size v2 (EWF2) section header, spec.md §6.1.
type DescriptorV2 struct {
	TypeDefinition   [16]byte
	DataFlags        uint32
	PreviousOffset   uint64
	DataSize         uint64
	DescriptorSize   uint32
	PaddingSize      uint32
	DataIntegrityMD5 [16]byte
	Padding          [12]byte
	Checksum         uint32
}

const DescriptorV1Length = 76
const DescriptorV2Length = 16 + 4 + 8 + 8 + 4 + 4 + 16 + 12 + 4

// Tag returns d's type as a Tag, with trailing NUL padding trimmed.
func (d DescriptorV1) Tag() Tag {
	return Tag(bytes.TrimRight(d.TypeDefinition[:], "\x00"))
}

func (d DescriptorV2) Tag() Tag {
	return Tag(bytes.TrimRight(d.TypeDefinition[:], "\x00"))
}

// NewDescriptorV1 builds a v1 section descriptor for a section of the given
// tag and body size whose following section starts at nextOffset; Size
// covers the descriptor plus the body.
func NewDescriptorV1(tag Tag, bodySize int64, nextOffset uint64) DescriptorV1 {
	var d DescriptorV1
	copy(d.TypeDefinition[:], tag)
	d.NextOffset = nextOffset
	d.Size = uint64(DescriptorV1Length) + uint64(bodySize)
	return d
}

// WriteDescriptorV1 serialises d, computing and filling in its trailing
// adler32 checksum over the preceding 72 bytes (spec.md §6.1).
func WriteDescriptorV1(w io.Writer, d DescriptorV1) error {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, d.TypeDefinition)
	binary.Write(&buf, binary.LittleEndian, d.NextOffset)
	binary.Write(&buf, binary.LittleEndian, d.Size)
	binary.Write(&buf, binary.LittleEndian, d.Padding)
	d.Checksum = adler32Of(buf.Bytes())
	binary.Write(&buf, binary.LittleEndian, d.Checksum)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadDescriptorV1 reads one fixed-size v1 section header at the reader's
// current position.
func ReadDescriptorV1(r io.Reader) (DescriptorV1, error) {
	var d DescriptorV1
	if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
		return DescriptorV1{}, fmt.Errorf("section: read v1 descriptor: %w", err)
	}
	return d, nil
}

// ReadDescriptorV2 reads one v2 section header.
func ReadDescriptorV2(r io.Reader) (DescriptorV2, error) {
	var d DescriptorV2
	if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
		return DescriptorV2{}, fmt.Errorf("section: read v2 descriptor: %w", err)
	}
	return d, nil
}

// EVFMagicV1 is the EWF1 segment-file magic, spec.md §6.1.
var EVFMagicV1 = [8]byte{'E', 'V', 'F', 0x09, 0x0D, 0x0A, 0xFF, 0x00}

// EVFMagicV2 is the EWF2 segment-file magic, spec.md §6.1.
var EVFMagicV2 = [8]byte{'E', 'V', 'F', '2', 0x0D, 0x0A, 0x81, 0x00}

// FileHeaderV1 is the 13-byte fixed header immediately following the v1
// magic check point; EWFFileHeader.FieldsStart is always 1.
type FileHeaderV1 struct {
	Magic         [8]byte
	FieldsStart   uint8
	SegmentNumber uint16
	FieldsEnd     uint16
}

// FileHeaderV2 is the EWF2 segment-file header.
type FileHeaderV2 struct {
	Magic              [8]byte
	Major              uint8
	Minor              uint8
	CompressionMethod  uint16
	SegmentNumber      uint16
	SetIdentifier      [16]byte
}

// WriteFileHeaderV1 writes the v1 segment-file magic and fixed header.
func WriteFileHeaderV1(w io.Writer, segmentNumber uint16) error {
	h := FileHeaderV1{Magic: EVFMagicV1, FieldsStart: 1, SegmentNumber: segmentNumber, FieldsEnd: 0}
	return binary.Write(w, binary.LittleEndian, h)
}

func ReadFileHeaderV1(r io.Reader) (FileHeaderV1, error) {
	var h FileHeaderV1
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return FileHeaderV1{}, fmt.Errorf("section: read v1 file header: %w", err)
	}
	if h.Magic != EVFMagicV1 {
		return FileHeaderV1{}, fmt.Errorf("section: bad EWF1 magic %x", h.Magic)
	}
	return h, nil
}

func ReadFileHeaderV2(r io.Reader) (FileHeaderV2, error) {
	var h FileHeaderV2
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return FileHeaderV2{}, fmt.Errorf("section: read v2 file header: %w", err)
	}
	if h.Magic != EVFMagicV2 {
		return FileHeaderV2{}, fmt.Errorf("section: bad EWF2 magic %x", h.Magic)
	}
	return h, nil
}
