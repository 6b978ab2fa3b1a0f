package section

import (
	"testing"

	"github.com/laenix/ewfkit/chunktable"
)

// =============================================================================
// Table v1 encode/decode round trip
// =============================================================================

func TestEncodeDecodeTableV1RoundTrip(t *testing.T) {
	entries := []chunktable.RawEntryV1{
		{Compressed: true, RelativeOffset: 0},
		{Compressed: false, RelativeOffset: 4096},
		{Compressed: true, RelativeOffset: 9000},
	}
	body := EncodeTableV1(entries)

	_, got, err := DecodeTableV1(body)
	if err != nil {
		t.Fatalf("DecodeTableV1: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("entry count: got %d, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if got[i] != e {
			t.Fatalf("entry %d: got %+v, want %+v", i, got[i], e)
		}
	}
}

func TestDecodeTableV1TooShort(t *testing.T) {
	if _, _, err := DecodeTableV1([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected an error for a too-short table payload")
	}
}

// =============================================================================
// Ranges (error2/session)
// =============================================================================

func TestDecodeRangesSortedNonOverlapping(t *testing.T) {
	var body []byte
	body = append(body, le32(2)...)
	body = append(body, make([]byte, 8)...) // padding
	body = append(body, le64(0)...)
	body = append(body, le64(100)...)
	body = append(body, le64(100)...)
	body = append(body, le64(50)...)

	ranges, err := DecodeRanges(body)
	if err != nil {
		t.Fatalf("DecodeRanges: %v", err)
	}
	if len(ranges) != 2 || ranges[0].Start != 0 || ranges[1].Start != 100 {
		t.Fatalf("got %+v", ranges)
	}
}

func TestDecodeRangesOverlapIsRejected(t *testing.T) {
	var body []byte
	body = append(body, le32(2)...)
	body = append(body, make([]byte, 8)...)
	body = append(body, le64(0)...)
	body = append(body, le64(100)...)
	body = append(body, le64(50)...) // overlaps [0,100)
	body = append(body, le64(10)...)

	if _, err := DecodeRanges(body); err == nil {
		t.Fatalf("expected an error for an overlapping range list")
	}
}

// =============================================================================
// Digest / Hash encode-decode round trip
// =============================================================================

func TestEncodeDecodeDigestRoundTrip(t *testing.T) {
	md5Hex := "d41d8cd98f00b204e9800998ecf8427e"
	sha1Hex := "da39a3ee5e6b4b0d3255bfef95601890afd80709"

	body, err := EncodeDigest(md5Hex, sha1Hex)
	if err != nil {
		t.Fatalf("EncodeDigest: %v", err)
	}
	gotMD5, gotSHA1, err := DecodeDigest(body)
	if err != nil {
		t.Fatalf("DecodeDigest: %v", err)
	}
	if gotMD5 != md5Hex || gotSHA1 != sha1Hex {
		t.Fatalf("got md5=%s sha1=%s", gotMD5, gotSHA1)
	}
}

// =============================================================================
// Dispatch
// =============================================================================

func TestDispatchVolumeSection(t *testing.T) {
	body := make([]byte, 4+4+4+4+4+4+4+4+1)
	body[0] = 1 // media type

	d, err := Dispatch(TagVolume, V1, body)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if d.Volume == nil {
		t.Fatalf("expected a decoded Volume")
	}
}

func TestDispatchUnrecognisedTagIsNotFatal(t *testing.T) {
	d, err := Dispatch(Tag("vendor_extension"), V1, []byte("whatever"))
	if err != nil {
		t.Fatalf("Dispatch should not error on an unrecognised tag, got %v", err)
	}
	if d.Tag != Tag("vendor_extension") {
		t.Fatalf("Tag not preserved: got %q", d.Tag)
	}
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
