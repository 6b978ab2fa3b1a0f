// Package chunkcodec implements the per-chunk read-verify-decompress
// pipeline (spec.md §4.3, C7): given raw on-disk bytes and a chunk
// descriptor, produce the chunk's plaintext media bytes.
package chunkcodec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/crypto/pbkdf2"

	"github.com/laenix/ewfkit/checksum"
	"github.com/laenix/ewfkit/chunktable"
)

// CompressionMethod mirrors media.CompressionMethod without importing the
// media package, avoiding an import cycle; the two are kept in lockstep by
// the handle layer.
type CompressionMethod uint8

const (
	MethodDeflate CompressionMethod = iota
	MethodBzip2
)

// Key carries the per-image AES-256-CBC key material for EWF2 encrypted
// chunks (spec.md §6.4). A nil *Key means encryption is not configured;
// decoding an encrypted chunk without one fails with a plain error (not a
// *CorruptError) saying no key is configured.
type Key struct {
	AES [32]byte
}

// pbkdf2Iterations is the work factor used when a caller derives a Key from
// an explicit passphrase and salt (spec.md §6.4 "EWF2 encryption, key
// supplied out of band"). It is not used when reading a captured header's
// stored password value, which is an unsalted MD5 hash and cannot be run
// back through PBKDF2 (see DESIGN.md's Open Question decision).
const pbkdf2Iterations = 100000

// KeyFromPassphrase derives an AES-256 Key from a caller-supplied
// passphrase and salt, for producers/consumers that negotiate an EWF2
// encryption passphrase out of band rather than storing a derivable key
// inside the segment-file header.
func KeyFromPassphrase(passphrase string, salt []byte) *Key {
	var k Key
	copy(k.AES[:], pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New))
	return &k
}

// iv derives the per-chunk initialization vector from the chunk index, per
// spec.md §6.4 ("The IV is per-chunk and derived from the chunk index").
func iv(chunkIndex uint64) [aes.BlockSize]byte {
	var b [aes.BlockSize]byte
	binary.LittleEndian.PutUint64(b[:8], chunkIndex)
	return b
}

// Decode turns one chunk's raw on-disk bytes into plaintext media bytes.
// wantSize is the expected decompressed length (media.Values.ChunkSize, or
// the media's remainder for the final chunk). chunkIndex is the chunk's
// global index, needed for encrypted-chunk IV derivation.
//
// On a checksum failure, or when a compressed chunk inflates to fewer than
// wantSize bytes, Decode returns the recovered bytes alongside a
// non-nil *CorruptError (never a plain error) so the caller can choose, per
// spec.md §4.10, to surface it as a flag rather than abort; on a
// decompression failure it returns (nil, err) — that case is always fatal
// to the chunk.
func Decode(d chunktable.Descriptor, raw []byte, chunkIndex uint64, wantSize int, method CompressionMethod, key *Key) ([]byte, error) {
	payload := raw
	var trailingChecksum uint32
	hasChecksum := d.Is(chunktable.HasChecksum)
	if hasChecksum {
		if len(payload) < 4 {
			return nil, fmt.Errorf("chunkcodec: chunk too short for trailing checksum: %d bytes", len(payload))
		}
		trailingChecksum = binary.LittleEndian.Uint32(payload[len(payload)-4:])
		payload = payload[:len(payload)-4]
	}

	if d.Is(chunktable.UsesPatternFill) {
		if d.Is(chunktable.IsCompressed) {
			return nil, fmt.Errorf("chunkcodec: malformed chunk: pattern-fill and compressed both set")
		}
		return expandPattern(payload, wantSize)
	}

	// Encrypted chunks may additionally be compressed (some EnCase7
	// captures deflate before encrypting); decrypt first so the
	// compression check below sees plaintext-of-compression either way.
	if d.Is(chunktable.IsEncrypted) {
		plain, err := decrypt(payload, chunkIndex, key)
		if err != nil {
			return nil, err
		}
		payload = plain
	}

	if d.Is(chunktable.IsCompressed) {
		out, err := inflateChunk(payload, method, wantSize)
		if err != nil {
			return nil, fmt.Errorf("chunkcodec: decompress: %w", err)
		}
		if err := checkCompressed(hasChecksum, payload, trailingChecksum, method); err != nil {
			return out, err
		}
		if len(out) < wantSize {
			return out, &CorruptError{Reason: fmt.Sprintf("decompressed to %d bytes, want %d", len(out), wantSize)}
		}
		return out, nil
	}

	out := payload
	if hasChecksum {
		kind := checksum.Adler32
		if method == MethodBzip2 {
			kind = checksum.CRC32
		}
		if !checksum.Verify(kind, payload, trailingChecksum) {
			return out, &CorruptError{Reason: "checksum mismatch"}
		}
	}
	return out, nil
}

// CorruptError signals a recoverable, non-fatal verification failure: the
// returned bytes are the engine's best effort, and the affected chunk
// should be flagged IsCorrupt by the caller (spec.md §4.10).
type CorruptError struct{ Reason string }

func (e *CorruptError) Error() string { return "chunkcodec: corrupt chunk: " + e.Reason }

func checkCompressed(hasChecksum bool, compressedPayload []byte, expected uint32, method CompressionMethod) error {
	if !hasChecksum {
		return nil
	}
	kind := checksum.Adler32
	if method == MethodBzip2 {
		kind = checksum.CRC32
	}
	if !checksum.Verify(kind, compressedPayload, expected) {
		return &CorruptError{Reason: "compressed-payload checksum mismatch"}
	}
	return nil
}

func inflateChunk(compressed []byte, method CompressionMethod, wantSize int) ([]byte, error) {
	var r io.ReadCloser
	var err error
	switch method {
	case MethodBzip2:
		r, err = bzip2.NewReader(bytes.NewReader(compressed), nil)
	default:
		r, err = zlib.NewReader(bytes.NewReader(compressed))
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]byte, 0, wantSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// expandPattern reconstructs a pattern-fill chunk: an 8-byte pattern plus a
// repeat count, expanded to exactly wantSize bytes (spec.md §4.3 step 2,
// §8 scenario 4).
func expandPattern(payload []byte, wantSize int) ([]byte, error) {
	if len(payload) < 16 {
		return nil, fmt.Errorf("chunkcodec: pattern-fill payload too short: %d bytes", len(payload))
	}
	pattern := payload[:8]
	repeat := binary.LittleEndian.Uint64(payload[8:16])

	out := make([]byte, 0, wantSize)
	for uint64(len(out))+8 <= repeat*8 && len(out) < wantSize {
		out = append(out, pattern...)
	}
	if len(out) > wantSize {
		out = out[:wantSize]
	}
	for len(out) < wantSize {
		out = append(out, pattern[:min(8, wantSize-len(out))]...)
	}
	return out, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func decrypt(ciphertext []byte, chunkIndex uint64, key *Key) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("chunkcodec: encrypted chunk but no key configured (Unsupported)")
	}
	block, err := aes.NewCipher(key.AES[:])
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: aes key setup: %w", err)
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("chunkcodec: ciphertext not a multiple of the AES block size")
	}
	v := iv(chunkIndex)
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, v[:]).CryptBlocks(plain, ciphertext)
	return plain, nil
}
