// Package media holds MediaValues, the frozen-after-open block of
// per-image parameters every other component reads: sector geometry, chunk
// size, media type/flags, source format and compression defaults.
package media

import "fmt"

// Type enumerates the acquired media's physical kind.
type Type uint8

const (
	TypeRemovable Type = iota
	TypeFixed
	TypeOptical
	TypeMemory
	TypeSingleFiles
)

// Flags is a bitset carried alongside Type.
type Flags uint32

const (
	FlagPhysical Flags = 1 << iota
	FlagFastblocWriteBlocked
	FlagTableauWriteBlocked
	FlagSingleFiles
)

// Format enumerates the EWF/EWF2/LEF container variant.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatEWF
	FormatSMART
	FormatFTK
	FormatEnCase1
	FormatEnCase2
	FormatEnCase3
	FormatEnCase4
	FormatEnCase5
	FormatEnCase6
	FormatEnCase7
	FormatLinen5
	FormatLinen6
	FormatLinen7
	FormatEWFX
	FormatLVF
	FormatL01
	FormatLx01
)

func (f Format) String() string {
	switch f {
	case FormatEWF:
		return "ewf"
	case FormatSMART:
		return "smart"
	case FormatFTK:
		return "ftk"
	case FormatEnCase1:
		return "encase1"
	case FormatEnCase2:
		return "encase2"
	case FormatEnCase3:
		return "encase3"
	case FormatEnCase4:
		return "encase4"
	case FormatEnCase5:
		return "encase5"
	case FormatEnCase6:
		return "encase6"
	case FormatEnCase7:
		return "encase7"
	case FormatLinen5:
		return "linen5"
	case FormatLinen6:
		return "linen6"
	case FormatLinen7:
		return "linen7"
	case FormatEWFX:
		return "ewfx"
	case FormatLVF:
		return "lvf"
	case FormatL01:
		return "l01"
	case FormatLx01:
		return "lx01"
	default:
		return "unknown"
	}
}

// IsV2 reports whether the format uses the EWF2 (EnCase7+) on-disk layout:
// sector_table chunk descriptors (16 bytes each), CRC-32, and the v2
// section descriptor layout.
func (f Format) IsV2() bool {
	return f == FormatEnCase7 || f == FormatLx01
}

// CompressionLevel mirrors the three deflate presets EWF tools expose.
type CompressionLevel uint8

const (
	CompressionNone CompressionLevel = iota
	CompressionFast
	CompressionBest
)

// CompressionMethod selects the EWF2 per-chunk compression algorithm.
type CompressionMethod uint8

const (
	CompressionDeflate CompressionMethod = iota
	CompressionBzip2
)

// platformMinChunkSize is the floor MediaValues.ChunkSize is clamped to, per
// spec.md §3, when bytes_per_sector*sectors_per_chunk computes to something
// implausibly small (a corrupt or exotic volume section).
const platformMinChunkSize = 16 * 1024

// Values is the immutable, per-image parameter block. Build one with a
// Builder, then Freeze it; every field is read-only thereafter.
type Values struct {
	BytesPerSector   uint32
	SectorsPerChunk  uint32
	ChunkSize        uint32
	NumberOfSectors  uint64
	MediaSize        uint64
	MediaType        Type
	MediaFlags       Flags
	Format           Format
	GUID             [16]byte
	ErrorGranularity uint32
	Compression      CompressionLevel
	CompressionKind   CompressionMethod
}

// Builder accumulates volume/disk section fields as they are parsed, then
// produces a frozen Values with derived fields (ChunkSize, MediaSize) filled
// in and clamped per spec.md §3.
type Builder struct {
	v Values
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) SetSectorGeometry(bytesPerSector, sectorsPerChunk uint32) *Builder {
	b.v.BytesPerSector = bytesPerSector
	b.v.SectorsPerChunk = sectorsPerChunk
	return b
}

func (b *Builder) SetNumberOfSectors(n uint64) *Builder {
	b.v.NumberOfSectors = n
	return b
}

func (b *Builder) SetMediaType(t Type) *Builder {
	b.v.MediaType = t
	return b
}

func (b *Builder) SetMediaFlags(f Flags) *Builder {
	b.v.MediaFlags = f
	return b
}

func (b *Builder) SetFormat(f Format) *Builder {
	b.v.Format = f
	return b
}

func (b *Builder) SetGUID(guid [16]byte) *Builder {
	b.v.GUID = guid
	return b
}

func (b *Builder) SetErrorGranularity(g uint32) *Builder {
	b.v.ErrorGranularity = g
	return b
}

func (b *Builder) SetCompression(level CompressionLevel, method CompressionMethod) *Builder {
	b.v.Compression = level
	b.v.CompressionKind = method
	return b
}

// Freeze validates and derives ChunkSize/MediaSize and returns the finished
// Values block. It is an error to build with a zero BytesPerSector. Freeze
// may be called more than once; each call returns a new copy derived from
// the Builder's current fields.
func (b *Builder) Freeze() (Values, error) {
	v := b.v
	if v.BytesPerSector == 0 {
		return Values{}, fmt.Errorf("media: bytes_per_sector is zero")
	}
	if v.SectorsPerChunk == 0 {
		v.SectorsPerChunk = 64
	}
	chunkSize := uint64(v.BytesPerSector) * uint64(v.SectorsPerChunk)
	if chunkSize < platformMinChunkSize {
		chunkSize = platformMinChunkSize
	}
	if chunkSize > 1<<31-1 {
		return Values{}, fmt.Errorf("media: implausible chunk size %d", chunkSize)
	}
	v.ChunkSize = uint32(chunkSize)
	v.MediaSize = v.NumberOfSectors * uint64(v.BytesPerSector)
	return v, nil
}

// NumberOfChunks is ceil(NumberOfSectors / SectorsPerChunk), the invariant
// ChunkTable.Len() must equal after a well-formed open.
func (v Values) NumberOfChunks() uint64 {
	if v.SectorsPerChunk == 0 {
		return 0
	}
	n := v.NumberOfSectors / uint64(v.SectorsPerChunk)
	if v.NumberOfSectors%uint64(v.SectorsPerChunk) != 0 {
		n++
	}
	return n
}
