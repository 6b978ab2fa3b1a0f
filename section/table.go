package section

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/laenix/ewfkit/checksum"
	"github.com/laenix/ewfkit/chunktable"
)

// tableHeaderLength is EntryNumber(4) + Padding(16) + Checksum(4), the
// fixed prefix before a v1 table/table2 section's entry array (spec.md
// §4.2).
const tableHeaderLength = 4 + 16 + 4

// ErrBadTableChecksum is returned by DecodeTableV1 when the header checksum
// doesn't match its own entry_count+padding bytes — the signal a caller
// uses to fail over from "table" to its redundant "table2" copy (spec.md
// §4.1, §8 scenario 3).
var ErrBadTableChecksum = errors.New("section: table header checksum mismatch")

// DecodeTableV1 parses a v1 "table"/"table2" section payload into its base
// offset and raw entries (spec.md §4.2/§6.1: "{base_offset, entry_count,
// padding, checksum}" then entry_count x 4-byte LE offsets).
func DecodeTableV1(data []byte) (baseOffset int64, entries []chunktable.RawEntryV1, err error) {
	if len(data) < tableHeaderLength {
		return 0, nil, fmt.Errorf("section: table payload too short: %d bytes", len(data))
	}
	r := bytes.NewReader(data)
	var entryCount uint32
	if err := binary.Read(r, binary.LittleEndian, &entryCount); err != nil {
		return 0, nil, fmt.Errorf("section: read table entry count: %w", err)
	}
	var padding [16]byte
	binary.Read(r, binary.LittleEndian, &padding)
	var storedChecksum uint32
	binary.Read(r, binary.LittleEndian, &storedChecksum)

	if !checksum.Verify(checksum.Adler32, data[:20], storedChecksum) {
		return 0, nil, ErrBadTableChecksum
	}

	// base_offset is carried as the low 8 bytes of the 16-byte padding in
	// some producers and as an explicit field in others. DecodeTableV1 reads
	// neither: it always returns 0, and the caller supplies the base itself
	// (ewf.Open uses the body start of the preceding "sectors" section).
	baseOffset = 0

	avail := (len(data) - tableHeaderLength) / 4
	if int(entryCount) > avail {
		return 0, nil, fmt.Errorf("section: table claims %d entries, only %d fit", entryCount, avail)
	}

	entries = make([]chunktable.RawEntryV1, 0, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		var raw uint32
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return 0, nil, fmt.Errorf("section: read table entry %d: %w", i, err)
		}
		entries = append(entries, chunktable.RawEntryV1{
			Compressed:     raw&0x80000000 != 0,
			RelativeOffset: raw &^ 0x80000000,
		})
	}
	return baseOffset, entries, nil
}

// EncodeTableV1 serialises entries into a v1 "table"/"table2" section body:
// {entry_count, padding, checksum} followed by entry_count x 4-byte LE
// relative offsets, the high bit set for compressed chunks (spec.md §4.2).
func EncodeTableV1(entries []chunktable.RawEntryV1) []byte {
	buf := make([]byte, tableHeaderLength+len(entries)*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(entries)))
	// buf[4:20] padding left zero.
	binary.LittleEndian.PutUint32(buf[20:24], checksum.Compute(checksum.Adler32, buf[:20]))
	for i, e := range entries {
		v := e.RelativeOffset
		if e.Compressed {
			v |= 0x80000000
		}
		binary.LittleEndian.PutUint32(buf[tableHeaderLength+i*4:], v)
	}
	return buf
}

// sectorTableEntryLength is data_offset(8)+data_size(4)+flags(4), spec.md
// §6.1.
const sectorTableEntryLength = 16

// DecodeSectorTable parses a v2 "sector_table" section payload into its raw
// entries (spec.md §4.2: dense array, no base_offset indirection).
func DecodeSectorTable(data []byte) ([]chunktable.RawEntryV2, error) {
	if len(data)%sectorTableEntryLength != 0 {
		return nil, fmt.Errorf("section: sector_table payload not a multiple of %d bytes", sectorTableEntryLength)
	}
	count := len(data) / sectorTableEntryLength
	entries := make([]chunktable.RawEntryV2, 0, count)
	r := bytes.NewReader(data)
	for i := 0; i < count; i++ {
		var offset int64
		var size uint32
		var flags uint32
		if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
			return nil, fmt.Errorf("section: read sector_table entry %d: %w", i, err)
		}
		binary.Read(r, binary.LittleEndian, &size)
		binary.Read(r, binary.LittleEndian, &flags)
		entries = append(entries, chunktable.RawEntryV2{
			DataOffset: offset,
			DataSize:   size,
			Flags:      chunktable.Flags(flags),
		})
	}
	return entries, nil
}
