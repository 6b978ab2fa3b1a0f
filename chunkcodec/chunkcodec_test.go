package chunkcodec

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/zlib"

	"github.com/laenix/ewfkit/checksum"
	"github.com/laenix/ewfkit/chunktable"
	"testing"
)

// =============================================================================
// Pattern-fill chunks
// =============================================================================

func TestDecodePatternFill(t *testing.T) {
	pattern := [8]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22}
	var payload bytes.Buffer
	payload.Write(pattern[:])
	binary.Write(&payload, binary.LittleEndian, uint64(100)) // repeat count

	d := chunktable.Descriptor{Flags: chunktable.UsesPatternFill}
	out, err := Decode(d, payload.Bytes(), 0, 32, MethodDeflate, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != 32 {
		t.Fatalf("output length: got %d, want 32", len(out))
	}
	for i := 0; i < 32; i++ {
		if out[i] != pattern[i%8] {
			t.Fatalf("byte %d: got %#x, want %#x", i, out[i], pattern[i%8])
		}
	}
}

// =============================================================================
// Deflate round trip with checksum
// =============================================================================

func TestDecodeCompressedWithChecksum(t *testing.T) {
	plain := bytes.Repeat([]byte("forensic evidence bytes "), 50)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	zw.Write(plain)
	zw.Close()

	sum := checksum.Compute(checksum.Adler32, compressed.Bytes())
	raw := append(append([]byte{}, compressed.Bytes()...), le32(sum)...)

	d := chunktable.Descriptor{Flags: chunktable.IsCompressed | chunktable.HasChecksum}
	out, err := Decode(d, raw, 0, len(plain), MethodDeflate, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(out), len(plain))
	}
}

func TestDecodeCompressedBadChecksumIsCorruptNotFatal(t *testing.T) {
	plain := []byte("small payload")
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	zw.Write(plain)
	zw.Close()

	raw := append(append([]byte{}, compressed.Bytes()...), le32(0xDEADBEEF)...)

	d := chunktable.Descriptor{Flags: chunktable.IsCompressed | chunktable.HasChecksum}
	out, err := Decode(d, raw, 0, len(plain), MethodDeflate, nil)
	if err == nil {
		t.Fatalf("expected a CorruptError for a mismatched checksum")
	}
	if _, ok := err.(*CorruptError); !ok {
		t.Fatalf("expected *CorruptError, got %T: %v", err, err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatalf("corrupt chunk should still return its best-effort decompressed bytes")
	}
}

// =============================================================================
// Uncompressed chunk with checksum
// =============================================================================

func TestDecodeUncompressedWithChecksum(t *testing.T) {
	plain := []byte("raw sector bytes, no compression")
	sum := checksum.Compute(checksum.Adler32, plain)
	raw := append(append([]byte{}, plain...), le32(sum)...)

	d := chunktable.Descriptor{Flags: chunktable.HasChecksum}
	out, err := Decode(d, raw, 0, len(plain), MethodDeflate, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatalf("got %q, want %q", out, plain)
	}
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
