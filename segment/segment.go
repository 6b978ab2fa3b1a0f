// Package segment discovers, opens, and walks the numbered segment files of
// one evidence set (spec.md §4.1, C2): filename globbing, per-segment
// section walking, and a bounded pool of open file descriptors shared
// across segments. Table/table2 failover is done by the caller (ewf.Open).
package segment

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"

	"github.com/laenix/ewfkit/section"
)

// NamePattern matches one segment file's extension, spec.md §4.1:
// E01-E99/EAA../Ex01, L01/Lx01, s01 (SMART), and their lowercase/uppercase
// variants.
var NamePattern = regexp.MustCompile(`^.+\.([EeLlSs]|[Ee]x|[Ll]x)[0-9A-Za-z]{2,3}$`)

// Descriptor is one discovered segment file, before it has been opened.
type Descriptor struct {
	Path   string
	Number int
}

// Discover globs a directory-independent list of candidate paths (the
// caller already expanded any shell glob) and orders them by segment
// number, the order §4.1 requires them to be walked in.
func Discover(paths []string) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(paths))
	for _, p := range paths {
		if !NamePattern.MatchString(p) {
			continue
		}
		n, err := ExtensionToNumber(extOf(p))
		if err != nil {
			return nil, fmt.Errorf("segment: %s: %w", p, err)
		}
		out = append(out, Descriptor{Path: p, Number: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return ""
}

// Section is one decoded section record plus the raw body bytes a caller
// (package ewf) still needs to finish interpreting for tags Dispatch
// left undecoded.
type Section struct {
	Tag      section.Tag
	Offset   int64
	Decoded  section.Decoded
	RawBody  []byte
}

// File is one parsed segment file: its descriptor, format version, and the
// section list walked once at open time. It holds no file handle.
type File struct {
	Descriptor        Descriptor
	Version           section.Version
	Sections          []Section
	CompressionMethodV2 uint16 // from the EWF2 file header; meaningless for V1
}

// walk reads every section descriptor in one already-positioned reader,
// stopping at "next" or "done" (spec.md §4.1: "the segment's sections form
// a singly linked list via next_offset; the walk ends at a 'done' or
// 'next' tag").
func walk(r io.ReadSeeker, version section.Version) ([]Section, error) {
	var sections []Section
	for {
		offset, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("segment: tell: %w", err)
		}

		var tag section.Tag
		var bodyOffset int64
		var bodySize int64

		if version == section.V2 {
			d, err := section.ReadDescriptorV2(r)
			if err != nil {
				return nil, fmt.Errorf("segment: read v2 descriptor at %d: %w", offset, err)
			}
			tag = d.Tag()
			bodyOffset = offset + section.DescriptorV2Length
			bodySize = int64(d.DataSize)
		} else {
			d, err := section.ReadDescriptorV1(r)
			if err != nil {
				return nil, fmt.Errorf("segment: read v1 descriptor at %d: %w", offset, err)
			}
			tag = d.Tag()
			bodyOffset = offset + section.DescriptorV1Length
			bodySize = int64(d.Size) - section.DescriptorV1Length
		}

		var body []byte
		if bodySize > 0 && (tag == section.TagVolume || tag == section.TagDisk ||
			tag == section.TagTable || tag == section.TagTable2 || tag == section.TagSectorTable ||
			tag == section.TagError2 || tag == section.TagSession || tag == section.TagDigest ||
			tag == section.TagHash || tag == section.TagLtree || tag == section.TagLtype ||
			tag == section.TagHeader || tag == section.TagHeader2 || tag == section.TagXHeader) {
			if _, err := r.Seek(bodyOffset, io.SeekStart); err != nil {
				return nil, fmt.Errorf("segment: seek to body at %d: %w", bodyOffset, err)
			}
			body = make([]byte, bodySize)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("segment: read %s body (%d bytes): %w", tag, bodySize, err)
			}
		}

		decoded, err := section.Dispatch(tag, version, body)
		if err != nil {
			return nil, fmt.Errorf("segment: dispatch %s at %d: %w", tag, offset, err)
		}
		sections = append(sections, Section{Tag: tag, Offset: offset, Decoded: decoded, RawBody: body})

		if tag == section.TagDone || tag == section.TagNext {
			break
		}

		var nextOffset int64
		if version == section.V2 {
			if _, err := r.Seek(bodyOffset+bodySize, io.SeekStart); err != nil {
				return nil, fmt.Errorf("segment: seek past body: %w", err)
			}
			nextOffset, _ = r.Seek(0, io.SeekCurrent)
		} else {
			nextOffset = offset + section.DescriptorV1Length + bodySize
		}
		if nextOffset <= offset {
			return nil, fmt.Errorf("segment: non-increasing section offset at %d", offset)
		}
		if _, err := r.Seek(nextOffset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("segment: seek to next section at %d: %w", nextOffset, err)
		}
	}
	return sections, nil
}

// Open reads descr's magic and walks its section list.
func Open(r io.ReadSeeker, descr Descriptor) (*File, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("segment: seek start: %w", err)
	}

	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("segment: read magic: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	version := section.V1
	var compressionMethod uint16
	if magic == section.EVFMagicV2 {
		version = section.V2
		h, err := section.ReadFileHeaderV2(r)
		if err != nil {
			return nil, fmt.Errorf("segment: %s: %w", descr.Path, err)
		}
		compressionMethod = h.CompressionMethod
	} else if magic == section.EVFMagicV1 {
		if _, err := section.ReadFileHeaderV1(r); err != nil {
			return nil, fmt.Errorf("segment: %s: %w", descr.Path, err)
		}
	} else {
		return nil, fmt.Errorf("segment: %s: unrecognised magic %x", descr.Path, magic)
	}

	sections, err := walk(r, version)
	if err != nil {
		return nil, fmt.Errorf("segment: %s: %w", descr.Path, err)
	}
	return &File{Descriptor: descr, Version: version, Sections: sections, CompressionMethodV2: compressionMethod}, nil
}

// Pool bounds the number of concurrently open segment file descriptors
// (default 16), following the semaphore-gated, LRU-evicted pattern used for
// the same problem elsewhere in the pack.
type Pool struct {
	sem   *semaphore.Weighted
	cache *lru.Cache[string, *os.File]
}

// NewPool builds a Pool with the given descriptor budget; 0 uses 16.
func NewPool(maxOpen int) (*Pool, error) {
	if maxOpen <= 0 {
		maxOpen = 16
	}
	p := &Pool{sem: semaphore.NewWeighted(int64(maxOpen))}
	cache, err := lru.NewWithEvict[string, *os.File](maxOpen, func(_ string, f *os.File) {
		f.Close()
		p.sem.Release(1)
	})
	if err != nil {
		return nil, fmt.Errorf("segment: build descriptor pool: %w", err)
	}
	p.cache = cache
	return p, nil
}

// Acquire opens (or returns a cached handle for) path, blocking until a
// descriptor slot is free or ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context, path string) (*os.File, error) {
	if f, ok := p.cache.Get(path); ok {
		return f, nil
	}
	for !p.sem.TryAcquire(1) {
		// Every slot is taken: close the least-recently-used cached
		// descriptor (its eviction callback frees a slot) and retry.
		if _, _, ok := p.cache.RemoveOldest(); !ok {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				return nil, fmt.Errorf("segment: acquire descriptor slot: %w", err)
			}
			break
		}
	}
	f, err := os.Open(path)
	if err != nil {
		p.sem.Release(1)
		return nil, fmt.Errorf("segment: open %s: %w", path, err)
	}
	if evicted, ok := p.cache.Get(path); ok {
		// Another goroutine raced us and opened it first; use theirs and
		// close ours to keep the descriptor budget honest.
		f.Close()
		p.sem.Release(1)
		return evicted, nil
	}
	p.cache.Add(path, f)
	return f, nil
}

// Close closes every descriptor the Pool currently holds.
func (p *Pool) Close() error {
	for _, key := range p.cache.Keys() {
		p.cache.Remove(key)
	}
	return nil
}
