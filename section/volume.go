package section

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// VolumeInfo is the subset of a "volume"/"disk" section's fields the engine
// needs to build media.Values (spec.md §4.2). Both section kinds carry the
// same sector-geometry prefix; "disk" additionally differs in media-type
// semantics per spec.md, which the caller applies by checking the section's
// tag.
type VolumeInfo struct {
	MediaType        uint8
	ChunkCount       uint32
	SectorsPerChunk  uint32
	BytesPerSector   uint32
	NumberOfSectors  uint64
	MediaFlags       uint8
	CompressionLevel uint8
	ErrorGranularity uint32
	SetIdentifier    [16]byte
}

// volumeV1MinLength is a 54-byte length for the SMART/EnCase volume section body used by
// EWF1 (spec.md §6.1's "Volume and Disk" shape, teacher's DiskSMART minus
// the trailing Size/SectorSize fields some producers omit).
const volumeV1MinLength = 4 + 4 + 4 + 4 + 8 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 1 + 1

// DecodeVolumeV1 parses an EWF1 "volume"/"disk" section payload. It is
// tolerant of short/padded sections (some acquisition tools write the
// nominal 1052-byte SMART layout, others a smaller "volume" variant) — it
// reads the fields it needs and ignores the rest, matching spec.md §4.10's
// "never fatal" rule for anything beyond a hard structural error.
func DecodeVolumeV1(data []byte) (VolumeInfo, error) {
	if len(data) < 4+4+4+4+4+4+4+4+1 {
		return VolumeInfo{}, fmt.Errorf("section: volume payload too short: %d bytes", len(data))
	}
	r := bytes.NewReader(data)

	var info VolumeInfo
	var mediaType uint8
	var reserved [3]byte
	binary.Read(r, binary.LittleEndian, &mediaType)
	binary.Read(r, binary.LittleEndian, &reserved)
	binary.Read(r, binary.LittleEndian, &info.ChunkCount)
	binary.Read(r, binary.LittleEndian, &info.SectorsPerChunk)
	binary.Read(r, binary.LittleEndian, &info.BytesPerSector)
	binary.Read(r, binary.LittleEndian, &info.NumberOfSectors)
	info.MediaType = mediaType

	// Remaining fields (CHS geometry, media flags, compression level,
	// error granularity, GUID) are best-effort: short sections just leave
	// them zero.
	var chs [3]uint32
	binary.Read(r, binary.LittleEndian, &chs)
	binary.Read(r, binary.LittleEndian, &info.MediaFlags)
	var pad3 [3]byte
	binary.Read(r, binary.LittleEndian, &pad3)
	var palm, reserved2, smartLogs uint32
	binary.Read(r, binary.LittleEndian, &palm)
	binary.Read(r, binary.LittleEndian, &reserved2)
	binary.Read(r, binary.LittleEndian, &smartLogs)
	binary.Read(r, binary.LittleEndian, &info.CompressionLevel)
	var pad4 [3]byte
	binary.Read(r, binary.LittleEndian, &pad4)
	binary.Read(r, binary.LittleEndian, &info.ErrorGranularity)
	var reserved5 uint32
	binary.Read(r, binary.LittleEndian, &reserved5)
	binary.Read(r, binary.LittleEndian, &info.SetIdentifier)

	if info.BytesPerSector == 0 {
		info.BytesPerSector = 512
	}
	if info.SectorsPerChunk == 0 {
		info.SectorsPerChunk = 64
	}
	return info, nil
}

// DecodeVolumeV2 parses an EWF2 "disk" section payload — the same logical
// fields, laid out per EnCase7's variable-size section body.
func DecodeVolumeV2(data []byte) (VolumeInfo, error) {
	// EWF2 keeps the same field order for the fields we read; producers
	// extend the tail with a GUID and MD5 of the section, which we ignore
	// here (verified by the section checksum instead).
	return DecodeVolumeV1(data)
}
