package datastream

import (
	"bytes"
	"io"
	"testing"

	"github.com/laenix/ewfkit/chunktable"
)

// =============================================================================
// fakeSource: an in-memory ChunkSource over fixed-size, uncompressed chunks
// =============================================================================

type fakeSource struct {
	chunks [][]byte
}

func (f *fakeSource) ReadRawChunk(chunkIndex uint64) ([]byte, chunktable.Descriptor, error) {
	return f.chunks[chunkIndex], chunktable.Descriptor{}, nil
}

func (f *fakeSource) MarkCorrupt(chunkIndex uint64) {}

func newFixture(t *testing.T, chunkSize int, total []byte) *Stream {
	t.Helper()
	var chunks [][]byte
	for i := 0; i < len(total); i += chunkSize {
		end := i + chunkSize
		if end > len(total) {
			end = len(total)
		}
		chunks = append(chunks, total[i:end])
	}
	s, err := New(&fakeSource{chunks: chunks}, Config{ChunkSize: chunkSize, TotalSize: int64(len(total))})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// =============================================================================
// ReadAt spanning multiple chunks, including a short final chunk
// =============================================================================

func TestReadAtSpansChunkBoundaries(t *testing.T) {
	total := bytes.Repeat([]byte("0123456789"), 5) // 50 bytes, chunkSize 16 -> last chunk is 2 bytes
	s := newFixture(t, 16, total)

	buf := make([]byte, len(total))
	n, err := s.ReadAt(buf, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != len(total) || !bytes.Equal(buf, total) {
		t.Fatalf("got %d bytes %q, want %q", n, buf, total)
	}
}

func TestReadAtMidChunkOffset(t *testing.T) {
	total := []byte("abcdefghijklmnopqrstuvwxyz")
	s := newFixture(t, 8, total)

	buf := make([]byte, 10)
	n, err := s.ReadAt(buf, 5)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 10 || string(buf) != "fghijklmno" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestReadAtPastEndReturnsEOF(t *testing.T) {
	s := newFixture(t, 8, []byte("abcdefgh"))
	buf := make([]byte, 4)
	if _, err := s.ReadAt(buf, 100); err != io.EOF {
		t.Fatalf("got err %v, want io.EOF", err)
	}
}

// =============================================================================
// Read/Seek cursor semantics
// =============================================================================

func TestReadAdvancesCursor(t *testing.T) {
	total := []byte("0123456789")
	s := newFixture(t, 4, total)

	first := make([]byte, 4)
	if _, err := s.Read(first); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(first) != "0123" {
		t.Fatalf("got %q", first)
	}
	second := make([]byte, 4)
	if _, err := s.Read(second); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(second) != "4567" {
		t.Fatalf("got %q", second)
	}
}

func TestSeekSetAndCurrent(t *testing.T) {
	s := newFixture(t, 4, []byte("0123456789"))
	if _, err := s.Seek(6, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 2)
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "67" {
		t.Fatalf("got %q", buf)
	}
	if pos, err := s.Seek(-1, io.SeekCurrent); err != nil || pos != 7 {
		t.Fatalf("Seek current: pos=%d err=%v", pos, err)
	}
}

func TestSeekNegativeResultErrors(t *testing.T) {
	s := newFixture(t, 4, []byte("0123456789"))
	if _, err := s.Seek(-1, io.SeekStart); err == nil {
		t.Fatalf("expected an error for a negative seek result")
	}
}

// =============================================================================
// Corrupt chunks: non-strict flags and continues, strict fails the read
// =============================================================================

type corruptingSource struct {
	raw    []byte
	desc   chunktable.Descriptor
	marked map[uint64]bool
}

func (c *corruptingSource) ReadRawChunk(chunkIndex uint64) ([]byte, chunktable.Descriptor, error) {
	return c.raw, c.desc, nil
}

func (c *corruptingSource) MarkCorrupt(chunkIndex uint64) {
	if c.marked == nil {
		c.marked = make(map[uint64]bool)
	}
	c.marked[chunkIndex] = true
}

func badChecksumChunk(plain []byte) []byte {
	return append(append([]byte{}, plain...), 0xDE, 0xAD, 0xBE, 0xEF)
}

func TestNonStrictCorruptChunkIsFlaggedNotFatal(t *testing.T) {
	plain := []byte("sector bytes with a wrong trailing checksum")
	src := &corruptingSource{raw: badChecksumChunk(plain), desc: chunktable.Descriptor{Flags: chunktable.HasChecksum}}

	s, err := New(src, Config{ChunkSize: len(plain), TotalSize: int64(len(plain))})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf := make([]byte, len(plain))
	if _, err := s.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt should not fail in non-strict mode: %v", err)
	}
	if !bytes.Equal(buf, plain) {
		t.Fatalf("expected the best-effort bytes back, got %q", buf)
	}
	if !src.marked[0] {
		t.Fatalf("expected chunk 0 to be flagged corrupt")
	}
}

func TestStrictCorruptChunkFailsTheRead(t *testing.T) {
	plain := []byte("sector bytes with a wrong trailing checksum")
	src := &corruptingSource{raw: badChecksumChunk(plain), desc: chunktable.Descriptor{Flags: chunktable.HasChecksum}}

	s, err := New(src, Config{ChunkSize: len(plain), TotalSize: int64(len(plain)), Strict: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf := make([]byte, len(plain))
	if _, err := s.ReadAt(buf, 0); err == nil {
		t.Fatalf("expected a fatal error in strict mode")
	}
	if src.marked[0] {
		t.Fatalf("strict mode should fail before flagging the table entry")
	}
}
