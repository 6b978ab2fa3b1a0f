package ewf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/laenix/ewfkit/chunkcodec"
	"github.com/laenix/ewfkit/chunktable"
	"github.com/laenix/ewfkit/datastream"
	"github.com/laenix/ewfkit/header"
	"github.com/laenix/ewfkit/lef"
	"github.com/laenix/ewfkit/media"
	"github.com/laenix/ewfkit/section"
	"github.com/laenix/ewfkit/segment"
)

// Handle is the immutable-after-open view over one evidence set (spec.md
// §6, C11). Every exported method is safe for concurrent use except where
// noted: parsing happens once in Open, and reads afterwards only touch the
// datastream cache, which is internally synchronized.
type Handle struct {
	media   media.Values
	header  *header.Store
	hash    *header.Store // MD5/SHA1 identifiers only, from digest/hash sections
	ranges  []section.Range // acquisition errors, from "error2" sections
	sessions []section.Range // from "session" sections, kept apart from ranges
	tree    *lef.Tree
	version section.Version

	segments []segment.Descriptor
	pool     *segment.Pool
	table    *chunktable.Table
	stream   *datastream.Stream

	diag *Diagnostics
	ctx  context.Context
	cancel context.CancelFunc
}

// segmentSource adapts Handle's segment Pool + chunk table into
// datastream.ChunkSource.
type segmentSource struct {
	h *Handle
}

func (s segmentSource) MarkCorrupt(chunkIndex uint64) {
	s.h.table.MarkCorrupt(int(chunkIndex))
}

func (s segmentSource) ReadRawChunk(chunkIndex uint64) ([]byte, chunktable.Descriptor, error) {
	desc, err := s.h.table.Get(int(chunkIndex))
	if err != nil {
		return nil, chunktable.Descriptor{}, err
	}
	if desc.Segment < 0 || desc.Segment >= len(s.h.segments) {
		return nil, desc, fmt.Errorf("ewf: chunk %d references unknown segment %d", chunkIndex, desc.Segment)
	}
	path := s.h.segments[desc.Segment].Path
	f, err := s.h.pool.Acquire(s.h.ctx, path)
	if err != nil {
		return nil, desc, err
	}
	buf := make([]byte, desc.DataSize)
	if _, err := f.ReadAt(buf, desc.DataOffset); err != nil {
		return nil, desc, fmt.Errorf("ewf: read chunk %d from %s at %d: %w", chunkIndex, path, desc.DataOffset, err)
	}
	return buf, desc, nil
}

// Open discovers, parses, and indexes every segment file named by paths.
// paths should already be expanded from any shell glob (spec.md §4.1:
// "filename discovery is caller-driven; the engine only requires the full
// set up front").
func Open(paths []string, opts Options) (*Handle, error) {
	if len(paths) == 0 {
		return nil, newErr("Open", KindInvalidArgument, fmt.Errorf("no segment paths given"))
	}
	descrs, err := segment.Discover(paths)
	if err != nil {
		return nil, newErr("Open", KindInvalidArgument, err)
	}
	if len(descrs) == 0 {
		return nil, newErr("Open", KindNotFound, fmt.Errorf("no files matched the segment naming scheme"))
	}

	pool, err := segment.NewPool(opts.MaxOpenSegmentFiles)
	if err != nil {
		return nil, newErr("Open", KindIO, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	diag := NewDiagnostics(opts.DiagnosticsOutput, opts.CaseID)

	h := &Handle{
		segments: descrs,
		pool:     pool,
		table:    chunktable.New(),
		diag:     diag,
		ctx:      ctx,
		cancel:   cancel,
	}

	mediaBuilder := media.NewBuilder()
	var haveMedia bool
	var format media.Format
	var compressionMethod media.CompressionMethod

	for segIdx, d := range descrs {
		f, err := pool.Acquire(ctx, d.Path)
		if err != nil {
			cancel()
			return nil, newErr("Open", KindIO, err)
		}
		file, err := segment.Open(io.NewSectionReader(f, 0, 1<<62), d)
		if err != nil {
			cancel()
			return nil, newErr("Open", KindFormatMismatch, fmt.Errorf("%s: %w", d.Path, err))
		}
		h.version = file.Version
		if file.Version == section.V2 && file.CompressionMethodV2 == 1 {
			compressionMethod = media.CompressionBzip2
		}

		var lastSectorsBodyOffset int64
		// pendingTable tracks the primary "table" range of the group of
		// sections currently being read, so a following "table2" can be
		// reconciled against it in place instead of appended as new chunks
		// (spec.md §3's ChunkTable.len() invariant, §4.1 failover, §8
		// scenario 3). Reset whenever a new "sectors"/"data" extent starts.
		var pendingTableStart, pendingTableLen int = -1, 0
		var pendingHasBase bool
		var pendingBaseOffset, pendingExtentEnd int64

		for i, s := range file.Sections {
			switch s.Tag {
			case section.TagVolume, section.TagDisk:
				if s.Decoded.Volume != nil && !haveMedia {
					v := s.Decoded.Volume
					mediaBuilder.SetSectorGeometry(v.BytesPerSector, v.SectorsPerChunk).
						SetNumberOfSectors(v.NumberOfSectors).
						SetMediaType(media.Type(v.MediaType)).
						SetMediaFlags(media.Flags(v.MediaFlags)).
						SetErrorGranularity(v.ErrorGranularity).
						SetGUID(v.SetIdentifier)
					if s.Tag == section.TagDisk {
						format = media.FormatEnCase7
					} else {
						format = media.FormatEnCase6
					}
					haveMedia = true
				}

			case section.TagSectors, section.TagData:
				lastSectorsBodyOffset = s.Offset + section.DescriptorV1Length
				pendingTableStart, pendingTableLen = -1, 0
				pendingHasBase = false

			case section.TagTable:
				baseOffset := lastSectorsBodyOffset
				extentEnd := s.Offset
				pendingBaseOffset, pendingExtentEnd = baseOffset, extentEnd
				pendingHasBase = true
				pendingTableStart, pendingTableLen = -1, 0

				_, entries, err := section.DecodeTableV1(s.Decoded.TableV1)
				if err != nil {
					diag.Warn("malformed table section, awaiting table2", err)
					continue
				}
				descs, err := chunktable.BuildRangeV1(segIdx, baseOffset, entries, extentEnd, false)
				if err != nil {
					diag.Warn("table range build failed, awaiting table2", err)
					continue
				}
				pendingTableStart = h.table.Len()
				pendingTableLen = len(descs)
				h.table.AppendDescriptors(descs)

			case section.TagTable2:
				baseOffset, extentEnd := lastSectorsBodyOffset, s.Offset
				if pendingHasBase {
					baseOffset, extentEnd = pendingBaseOffset, pendingExtentEnd
				}
				_, entries, err := section.DecodeTableV1(s.Decoded.TableV1)
				if err != nil {
					diag.Warn("malformed table2 section", err)
					continue
				}
				descs2, err := chunktable.BuildRangeV1(segIdx, baseOffset, entries, extentEnd, true)
				if err != nil {
					diag.Warn("table2 range build failed", err)
					continue
				}
				if pendingTableStart >= 0 {
					primary := h.table.MutableRange(pendingTableStart, pendingTableStart+pendingTableLen)
					if pendingTableLen != len(descs2) {
						// The copies disagree on entry count: flag the whole
						// primary range corrupt rather than adding chunks.
						diag.Warn("table2 entry count differs from table", nil)
						for j := range primary {
							primary[j].Flags |= chunktable.IsCorrupt
						}
					} else {
						chunktable.ReconcileTable2(primary, descs2)
					}
				} else {
					// The primary "table" was missing or unreadable: table2
					// is the only surviving copy, so it becomes the range.
					h.table.AppendDescriptors(descs2)
				}
				pendingTableStart, pendingTableLen = -1, 0

			case section.TagSectorTable:
				entries, err := section.DecodeSectorTable(s.Decoded.SectorTableV2)
				if err != nil {
					diag.Warn("malformed sector_table section", err)
					continue
				}
				h.table.AppendRangeV2(segIdx, entries)

			case section.TagHeader, section.TagHeader2, section.TagXHeader:
				store, err := decodeHeaderSection(s.Tag, s.Decoded.HeaderRaw)
				if err != nil {
					diag.Warn("malformed header section", err)
					continue
				}
				if h.header == nil {
					h.header = store
				}

			case section.TagDigest, section.TagHash:
				if h.hash == nil {
					h.hash = header.NewStore()
				}
				h.hash.Set(header.MD5, s.Decoded.MD5Hex)
				h.hash.Set(header.SHA1, s.Decoded.SHA1Hex)

			case section.TagError2:
				h.ranges = append(h.ranges, s.Decoded.Ranges...)

			case section.TagSession:
				h.sessions = append(h.sessions, s.Decoded.Ranges...)

			case section.TagLtree:
				tree, err := lef.Parse(s.Decoded.LtreeRaw)
				if err != nil {
					diag.Warn("malformed ltree section", err)
					continue
				}
				h.tree = tree
			}
			_ = i
		}
	}

	if !haveMedia {
		cancel()
		return nil, newErr("Open", KindFormatMismatch, fmt.Errorf("no volume/disk section found in any segment"))
	}
	mediaBuilder.SetFormat(format)
	mediaBuilder.SetCompression(media.CompressionBest, compressionMethod)
	v, err := mediaBuilder.Freeze()
	if err != nil {
		cancel()
		return nil, newErr("Open", KindCorrupt, err)
	}
	h.media = v

	if got, want := uint64(h.table.Len()), v.NumberOfChunks(); got != want {
		cancel()
		return nil, newErr("Open", KindFormatMismatch, fmt.Errorf("chunk table has %d chunks, media declares %d", got, want))
	}

	sort.Slice(h.ranges, func(i, j int) bool { return h.ranges[i].Start < h.ranges[j].Start })

	method := chunkcodec.MethodDeflate
	if v.CompressionKind == media.CompressionBzip2 {
		method = chunkcodec.MethodBzip2
	}
	stream, err := datastream.New(segmentSource{h: h}, datastream.Config{
		ChunkSize: int(v.ChunkSize),
		TotalSize: int64(v.MediaSize),
		Method:    method,
		Key:       opts.EncryptionKey,
		CacheSize: opts.ChunkCacheSize,
		Strict:    opts.Strict,
	})
	if err != nil {
		cancel()
		return nil, newErr("Open", KindIO, err)
	}
	h.stream = stream

	return h, nil
}

func decodeHeaderSection(tag section.Tag, raw []byte) (*header.Store, error) {
	wide := tag == section.TagHeader2
	cp := header.CodepageWindows1252
	if tag == section.TagXHeader {
		cp = header.CodepageUTF8
	}
	return header.DecodeSection(raw, wide, cp)
}

// Close releases every open segment file descriptor.
func (h *Handle) Close() error {
	h.cancel()
	return h.pool.Close()
}

// Media returns the frozen per-image parameter block.
func (h *Handle) Media() media.Values { return h.media }

// HeaderValue returns one acquisition metadata field (case number,
// examiner, acquisition date, ...), or ("", false) if absent.
func (h *Handle) HeaderValue(id string) (string, bool) {
	if h.header == nil {
		return "", false
	}
	return h.header.Get(id)
}

// HashValue returns the image-wide MD5 or SHA1 digest recorded at
// acquisition time.
func (h *Handle) HashValue(id string) (string, bool) {
	if h.hash == nil {
		return "", false
	}
	return h.hash.Get(id)
}

// AcquisitionErrorRanges returns the sorted, non-overlapping sector ranges
// the acquisition tool recorded as unreadable.
func (h *Handle) AcquisitionErrorRanges() []section.Range {
	out := make([]section.Range, len(h.ranges))
	copy(out, h.ranges)
	return out
}

// Root returns the root of the logical evidence file tree, if this set
// carries one (an invalid Ref otherwise).
func (h *Handle) Root() (lef.Ref, bool) {
	if h.tree == nil {
		return lef.Ref{}, false
	}
	r := h.tree.Root()
	return r, r.Valid()
}

// Size returns the total logical media size in bytes.
func (h *Handle) Size() int64 { return h.stream.Size() }

// ReadAt implements io.ReaderAt over the logical media bytes. In strict mode
// (Options.Strict) a corrupt chunk surfaces here as a *Error with
// KindCorrupt rather than the generic datastream error (spec.md §7, §8
// scenario 2).
func (h *Handle) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := h.stream.ReadAt(buf, offset)
	if err != nil {
		var corrupt *chunkcodec.CorruptError
		if errors.As(err, &corrupt) {
			return n, newErr("ReadAt", KindCorrupt, err)
		}
	}
	return n, err
}

// ReadBufferAtOffset fills buf starting at the logical offset, spec.md
// §6.3's named operation.
func (h *Handle) ReadBufferAtOffset(buf []byte, offset int64) (int, error) {
	return h.ReadAt(buf, offset)
}

// NewReader returns an io.ReadSeeker over the logical media bytes,
// independent of any other reader's cursor.
func (h *Handle) NewReader() io.ReadSeeker {
	return io.NewSectionReader(readerAtAdapter{h}, 0, h.Size())
}

type readerAtAdapter struct{ h *Handle }

func (r readerAtAdapter) ReadAt(p []byte, off int64) (int, error) { return r.h.ReadAt(p, off) }
