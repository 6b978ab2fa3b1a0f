// Package segwriter builds a segment-file set from a stream of chunks
// (spec.md §4.1/§6.2, C10): a small state machine drives section order
// within one segment, and rolls over to a new numbered file once
// max_segment_size is reached.
package segwriter

import (
	"fmt"
	"os"

	"github.com/laenix/ewfkit/chunktable"
	"github.com/laenix/ewfkit/header"
	"github.com/laenix/ewfkit/media"
	"github.com/laenix/ewfkit/section"
	"github.com/laenix/ewfkit/segment"
)

// State is the writer's position in one segment's section sequence,
// spec.md §4.1: "Init -> Header -> Volume -> Sectors -> Table -> ... ->
// Digest -> Done", with Sectors/Table repeating once per chunk group and a
// "next" section substituted for "done" on every segment but the last.
type State int

const (
	StateInit State = iota
	StateHeader
	StateVolume
	StateSectors
	StateTable
	StateDigest
	StateDone
)

// DefaultMaxSegmentSize is the spec.md §6.5 default segment size cap
// (1 GiB), the point at which the writer rolls to a new numbered file.
const DefaultMaxSegmentSize int64 = 1 << 30

// DefaultTableEntriesPerChunkGroup bounds how many chunks accumulate between
// table sections, following EnCase's practice of one table per ~16000
// chunks rather than one per segment.
const DefaultTableEntriesPerChunkGroup = 16375

// Options configures a Writer.
type Options struct {
	BasePath        string // e.g. "/out/case001" -> case001.E01, case001.E02, ...
	Kind            segment.Kind
	MaxSegmentSize  int64
	ChunkGroupSize  int
	Header          *header.Store
	HeaderCodepage  header.Codepage
	Media           media.Values
}

// Writer drives one evidence set's segment files.
type Writer struct {
	opts Options

	segmentNumber int
	out           *os.File
	offset        int64 // current write offset within out
	state         State

	pendingEntries  []chunktable.RawEntryV1
	pendingChunks   []byte // buffered raw chunk bytes, flushed as one "sectors" section body ahead of their table
	chunksWritten   uint64

	allEntries []chunktable.RawEntryV1 // every entry written across the whole image; the writer never reads it back and writes no table2

	md5Hex, sha1Hex string
}

// New opens the first segment file and writes its header/volume sections,
// leaving the writer positioned to accept chunks.
func New(opts Options) (*Writer, error) {
	if opts.MaxSegmentSize <= 0 {
		opts.MaxSegmentSize = DefaultMaxSegmentSize
	}
	if opts.ChunkGroupSize <= 0 {
		opts.ChunkGroupSize = DefaultTableEntriesPerChunkGroup
	}
	if opts.Kind == "" {
		opts.Kind = segment.KindImage
	}
	w := &Writer{opts: opts, segmentNumber: 1, state: StateInit}
	if err := w.openSegment(); err != nil {
		return nil, err
	}
	if err := w.writeHeaderSection(); err != nil {
		return nil, err
	}
	if err := w.writeVolumeSection(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) path(n int) (string, error) {
	ext, err := segment.NumberToExtension(w.opts.Kind, n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", w.opts.BasePath, ext), nil
}

func (w *Writer) openSegment() error {
	path, err := w.path(w.segmentNumber)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("segwriter: create %s: %w", path, err)
	}
	w.out = f
	w.offset = 0
	if err := section.WriteFileHeaderV1(f, uint16(w.segmentNumber)); err != nil {
		return fmt.Errorf("segwriter: write file header: %w", err)
	}
	w.offset += 13
	w.state = StateHeader
	return nil
}

func (w *Writer) writeSection(tag section.Tag, body []byte) error {
	d := section.NewDescriptorV1(tag, int64(len(body)), uint64(w.offset)+section.DescriptorV1Length+uint64(len(body)))
	if err := section.WriteDescriptorV1(w.out, d); err != nil {
		return fmt.Errorf("segwriter: write %s descriptor: %w", tag, err)
	}
	if len(body) > 0 {
		if _, err := w.out.Write(body); err != nil {
			return fmt.Errorf("segwriter: write %s body: %w", tag, err)
		}
	}
	w.offset += section.DescriptorV1Length + int64(len(body))
	return nil
}

func (w *Writer) writeHeaderSection() error {
	if w.opts.Header == nil {
		w.state = StateVolume
		return nil
	}
	body, err := header.EncodeSection(w.opts.Header, false, w.opts.HeaderCodepage, "main", 6)
	if err != nil {
		return fmt.Errorf("segwriter: encode header: %w", err)
	}
	if err := w.writeSection(section.TagHeader, body); err != nil {
		return err
	}
	w.state = StateVolume
	return nil
}

// volumeV1BodyLength is the full SMART/EnCase v1 "volume" body: MediaType(1)
// + reserved(3) + chunk_count(4) + sectors_per_chunk(4) + bytes_per_sector(4)
// + number_of_sectors(8) + CHS(12) + media_flags(1) + pad(3) + PALM(4) +
// reserved(4) + smart_logs(4) + compression_level(1) + pad(3) +
// error_granularity(4) + reserved(4) + GUID(16), matching the field order
// DecodeVolumeV1 reads (section/volume.go).
const volumeV1BodyLength = 1 + 3 + 4 + 4 + 4 + 8 + 12 + 1 + 3 + 4 + 4 + 4 + 1 + 3 + 4 + 4 + 16

func (w *Writer) writeVolumeSection() error {
	body := make([]byte, volumeV1BodyLength)
	body[0] = byte(w.opts.Media.MediaType)
	putLE32(body[4:], uint32(w.opts.Media.NumberOfChunks()))
	putLE32(body[8:], w.opts.Media.SectorsPerChunk)
	putLE32(body[12:], w.opts.Media.BytesPerSector)
	putLE64(body[16:], w.opts.Media.NumberOfSectors)
	// CHS geometry (offsets 24-35) is left zero; no Values field carries it.
	body[36] = byte(w.opts.Media.MediaFlags)
	// PALM/reserved/smart_logs (offsets 40-51) are left zero.
	body[52] = byte(w.opts.Media.Compression)
	putLE32(body[56:], w.opts.Media.ErrorGranularity)
	// reserved (offsets 60-63) is left zero.
	copy(body[64:80], w.opts.Media.GUID[:])
	if err := w.writeSection(section.TagVolume, body); err != nil {
		return err
	}
	w.state = StateSectors
	return nil
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// WriteChunk appends one already-encoded (compressed/checksummed) chunk to
// the pending sectors run, rolling over to a new segment first if the chunk
// would push the current file past MaxSegmentSize (spec.md §6.2). Chunks are
// buffered in memory and only committed to disk, as one "sectors" section
// body, when the pending table is flushed — the section's size must be
// known before its descriptor is written.
func (w *Writer) WriteChunk(encoded []byte, compressed bool) error {
	if w.state != StateSectors {
		return fmt.Errorf("segwriter: WriteChunk called in state %d, want StateSectors", w.state)
	}
	projected := w.offset + int64(len(w.pendingChunks)) + int64(len(encoded)) + 2*section.DescriptorV1Length
	// A continuation segment holds only its 13-byte file header until its
	// first chunk group is flushed; rolling over from there would loop.
	if projected > w.opts.MaxSegmentSize && (len(w.pendingEntries) > 0 || w.offset > 13) {
		if err := w.rollover(); err != nil {
			return err
		}
	}

	relOffset := uint32(len(w.pendingChunks))
	w.pendingChunks = append(w.pendingChunks, encoded...)
	w.pendingEntries = append(w.pendingEntries, chunktable.RawEntryV1{Compressed: compressed, RelativeOffset: relOffset})
	w.allEntries = append(w.allEntries, chunktable.RawEntryV1{Compressed: compressed, RelativeOffset: relOffset})
	w.chunksWritten++

	if len(w.pendingEntries) >= w.opts.ChunkGroupSize {
		return w.flushTable()
	}
	return nil
}

// flushTable commits the buffered chunk bytes as one "sectors" section, then
// writes a "table" section describing them, and resets the pending group
// (spec.md §4.2: one table per chunk group, not one per image).
func (w *Writer) flushTable() error {
	if len(w.pendingEntries) == 0 {
		return nil
	}
	if err := w.writeSection(section.TagSectors, w.pendingChunks); err != nil {
		return err
	}
	w.state = StateTable
	body := section.EncodeTableV1(w.pendingEntries)
	if err := w.writeSection(section.TagTable, body); err != nil {
		return err
	}
	w.pendingEntries = nil
	w.pendingChunks = nil
	w.state = StateSectors
	return nil
}

// rollover finalises the current segment (table + next) and opens the next
// numbered file, continuing the sectors run there.
func (w *Writer) rollover() error {
	if err := w.flushTable(); err != nil {
		return err
	}
	nextOffset := uint64(w.offset) + section.DescriptorV1Length
	d := section.NewDescriptorV1(section.TagNext, 0, nextOffset)
	if err := section.WriteDescriptorV1(w.out, d); err != nil {
		return fmt.Errorf("segwriter: write next descriptor: %w", err)
	}
	if err := w.out.Close(); err != nil {
		return fmt.Errorf("segwriter: close segment %d: %w", w.segmentNumber, err)
	}
	w.segmentNumber++
	return w.openSegment2()
}

// openSegment2 is like openSegment but skips straight to StateSectors since
// header/volume are only written once per image, not per segment (spec.md
// §4.1: "continuation segments start directly with 'sectors'").
func (w *Writer) openSegment2() error {
	if err := w.openSegment(); err != nil {
		return err
	}
	w.state = StateSectors
	return nil
}

// Finish writes the trailing table (if any chunks are pending), the
// digest/hash section, and the closing "done" section, then closes the
// file. md5Hex/sha1Hex are the whole-image digests computed by the caller
// as chunks were produced.
func (w *Writer) Finish(md5Hex, sha1Hex string) error {
	if w.state == StateSectors && len(w.pendingEntries) > 0 {
		if err := w.flushTable(); err != nil {
			return err
		}
	}
	w.md5Hex, w.sha1Hex = md5Hex, sha1Hex
	body, err := section.EncodeDigest(md5Hex, sha1Hex)
	if err != nil {
		return fmt.Errorf("segwriter: encode digest: %w", err)
	}
	if err := w.writeSection(section.TagDigest, body); err != nil {
		return err
	}
	w.state = StateDigest
	if err := w.writeSection(section.TagDone, nil); err != nil {
		return err
	}
	w.state = StateDone
	return w.out.Close()
}

// SegmentCount returns how many segment files have been created so far.
func (w *Writer) SegmentCount() int { return w.segmentNumber }

// ChunksWritten returns the total number of chunks written across all
// segments so far.
func (w *Writer) ChunksWritten() uint64 { return w.chunksWritten }
