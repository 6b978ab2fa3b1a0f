package section

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Range is one {start_sector, number_of_sectors} entry, used for both
// acquisition-error ranges ("error2") and optical-disc sessions/tracks
// ("session"), spec.md §3.
type Range struct {
	Start uint64
	Count uint64
}

// rangeHeaderLength is the entry-count-plus-padding prefix shared by
// error2/session sections, mirroring the table-section shape.
const rangeHeaderLength = 4 + 4 + 4

// DecodeRanges parses an "error2" or "session" section payload into a
// sorted, validated list of Range (spec.md §3: "each list is sorted and
// non-overlapping by construction"; §3 invariant "start+count <=
// number_of_sectors" is checked by the caller, which knows the media's
// sector count).
func DecodeRanges(data []byte) ([]Range, error) {
	if len(data) < rangeHeaderLength {
		return nil, fmt.Errorf("section: range payload too short: %d bytes", len(data))
	}
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("section: read range count: %w", err)
	}
	var pad [8]byte
	binary.Read(r, binary.LittleEndian, &pad)

	avail := (len(data) - rangeHeaderLength) / 16
	if int(count) > avail {
		return nil, fmt.Errorf("section: range section claims %d entries, only %d fit", count, avail)
	}

	ranges := make([]Range, 0, count)
	var lastEnd uint64
	for i := uint32(0); i < count; i++ {
		var start, num uint64
		if err := binary.Read(r, binary.LittleEndian, &start); err != nil {
			return nil, fmt.Errorf("section: read range %d: %w", i, err)
		}
		binary.Read(r, binary.LittleEndian, &num)
		if start < lastEnd {
			return nil, fmt.Errorf("section: range %d overlaps previous (start=%d < %d)", i, start, lastEnd)
		}
		ranges = append(ranges, Range{Start: start, Count: num})
		lastEnd = start + num
	}
	return ranges, nil
}

// DigestHashLength is the fixed MD5(16)+SHA1(20)+padding(40) body shared by
// "digest" and "hash" sections (spec.md §6.1).
const DigestHashLength = 16 + 20 + 40

// DecodeDigest parses a "digest"/"hash" section into hex-encoded MD5/SHA1
// strings.
func DecodeDigest(data []byte) (md5Hex, sha1Hex string, err error) {
	if len(data) < 16+20 {
		return "", "", fmt.Errorf("section: digest payload too short: %d bytes", len(data))
	}
	return fmt.Sprintf("%x", data[:16]), fmt.Sprintf("%x", data[16:36]), nil
}

// EncodeDigest builds a "digest"/"hash" section body from hex-encoded
// MD5/SHA1 strings, zero-padding the trailing reserved bytes (spec.md
// §6.1).
func EncodeDigest(md5Hex, sha1Hex string) ([]byte, error) {
	md5b, err := hex.DecodeString(md5Hex)
	if err != nil || len(md5b) != 16 {
		return nil, fmt.Errorf("section: malformed md5 hex %q", md5Hex)
	}
	sha1b, err := hex.DecodeString(sha1Hex)
	if err != nil || len(sha1b) != 20 {
		return nil, fmt.Errorf("section: malformed sha1 hex %q", sha1Hex)
	}
	out := make([]byte, DigestHashLength)
	copy(out[:16], md5b)
	copy(out[16:36], sha1b)
	return out, nil
}
