package segwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/laenix/ewfkit/media"
	"github.com/laenix/ewfkit/section"
	"github.com/laenix/ewfkit/segment"
)

// =============================================================================
// Writer -> segment.Open round trip
// =============================================================================

func TestWriterProducesASegmentReadableBackByWalk(t *testing.T) {
	dir := t.TempDir()

	values, err := media.NewBuilder().
		SetSectorGeometry(512, 64).
		SetNumberOfSectors(128).
		SetMediaType(media.TypeFixed).
		Freeze()
	if err != nil {
		t.Fatalf("media.Freeze: %v", err)
	}

	w, err := New(Options{
		BasePath:       filepath.Join(dir, "case"),
		Media:          values,
		ChunkGroupSize: 1, // force a table flush after every chunk
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	chunk1 := make([]byte, 100)
	chunk2 := make([]byte, 200)
	for i := range chunk1 {
		chunk1[i] = byte(i)
	}
	for i := range chunk2 {
		chunk2[i] = byte(i * 3)
	}
	if err := w.WriteChunk(chunk1, false); err != nil {
		t.Fatalf("WriteChunk 1: %v", err)
	}
	if err := w.WriteChunk(chunk2, false); err != nil {
		t.Fatalf("WriteChunk 2: %v", err)
	}

	md5Hex := "d41d8cd98f00b204e9800998ecf8427e"
	sha1Hex := "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	if err := w.Finish(md5Hex, sha1Hex); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if w.SegmentCount() != 1 {
		t.Fatalf("SegmentCount: got %d, want 1", w.SegmentCount())
	}
	if w.ChunksWritten() != 2 {
		t.Fatalf("ChunksWritten: got %d, want 2", w.ChunksWritten())
	}

	path := fmt.Sprintf("%s.E01", filepath.Join(dir, "case"))
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open produced segment: %v", err)
	}
	defer f.Close()

	file, err := segment.Open(f, segment.Descriptor{Path: path, Number: 1})
	if err != nil {
		t.Fatalf("segment.Open: %v", err)
	}

	wantTags := []section.Tag{
		section.TagVolume,
		section.TagSectors, section.TagTable,
		section.TagSectors, section.TagTable,
		section.TagDigest, section.TagDone,
	}
	if len(file.Sections) != len(wantTags) {
		t.Fatalf("section count: got %d, want %d (%v)", len(file.Sections), len(wantTags), file.Sections)
	}
	for i, want := range wantTags {
		if file.Sections[i].Tag != want {
			t.Fatalf("section %d: got tag %q, want %q", i, file.Sections[i].Tag, want)
		}
	}

	digest := file.Sections[len(file.Sections)-2].Decoded
	if digest.MD5Hex != md5Hex || digest.SHA1Hex != sha1Hex {
		t.Fatalf("digest mismatch: got md5=%s sha1=%s", digest.MD5Hex, digest.SHA1Hex)
	}
}
