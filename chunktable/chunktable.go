// Package chunktable implements the chunk-table index (spec.md §4.4, C6): a
// dense array mapping every logical chunk number to the segment and
// on-disk byte range holding its (possibly compressed) payload.
package chunktable

import "fmt"

// Flags mirrors the per-chunk range_flags bitset, spec.md §3.
type Flags uint32

const (
	IsCompressed Flags = 1 << iota
	HasChecksum
	UsesPatternFill
	IsTainted
	IsCorrupt
	IsEncrypted
)

// Descriptor is one chunk-table entry: where its bytes live and what shape
// they are in.
type Descriptor struct {
	Segment    int    // index into the owning handle's segment list
	DataOffset int64  // absolute offset within Segment
	DataSize   uint64 // on-disk size, including any trailing checksum
	Flags      Flags
	FromTable2 bool // this range's data came from the table2 redundant copy
}

func (d Descriptor) Is(f Flags) bool { return d.Flags&f != 0 }

// Table is the dense, append-only chunk index built incrementally while
// segment files are parsed. Mutation is forbidden after open (spec.md §5
// "Ordering"): once an Index/Handle has finished Parse, only reads happen.
type Table struct {
	entries []Descriptor
}

// New returns an empty Table.
func New() *Table { return &Table{} }

// Len reports the number of chunks currently indexed.
func (t *Table) Len() int { return len(t.entries) }

// Get returns the descriptor for chunk i.
func (t *Table) Get(i int) (Descriptor, error) {
	if i < 0 || i >= len(t.entries) {
		return Descriptor{}, fmt.Errorf("chunktable: index %d out of range [0,%d)", i, len(t.entries))
	}
	return t.entries[i], nil
}

// MarkCorrupt flags chunk i as corrupt without removing it, so a streaming
// reader can still return its (possibly wrong) bytes per spec.md §4.10.
func (t *Table) MarkCorrupt(i int) {
	if i >= 0 && i < len(t.entries) {
		t.entries[i].Flags |= IsCorrupt
	}
}

// RawEntryV1 is one decoded 4-byte v1 table/table2 entry: bit 31 is the
// compressed flag, the low 31 bits are an offset relative to the range's
// base_offset (spec.md §4.2, §6.1).
type RawEntryV1 struct {
	Compressed     bool
	RelativeOffset uint32
}

// BuildRangeV1 computes the descriptors for one v1 "table"/"table2"
// section's entries without touching the table (spec.md §4.2/§4.4
// derivation). A v1 entry carries no explicit size: chunk i's size is
// derived as the next entry's absolute offset minus chunk i's absolute
// offset, and the final chunk in the range borrows its size from the
// enclosing "sectors"/"data" extent (sectorsExtentEnd is that extent's end
// offset within the segment).
//
// fromTable2 records whether this range is the redundant copy, so a caller
// that is reconciling table vs table2 can tell which descriptors came from
// which section. Callers pick whether/how to commit the result (e.g. via
// AppendDescriptors, after reconciling against the other copy).
func BuildRangeV1(segment int, baseOffset int64, entries []RawEntryV1, sectorsExtentEnd int64, fromTable2 bool) ([]Descriptor, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	descs := make([]Descriptor, 0, len(entries))
	for i, e := range entries {
		abs := baseOffset + int64(e.RelativeOffset)
		var size int64
		if i+1 < len(entries) {
			nextAbs := baseOffset + int64(entries[i+1].RelativeOffset)
			size = nextAbs - abs
		} else {
			size = sectorsExtentEnd - abs
		}
		if size < 0 {
			return nil, fmt.Errorf("chunktable: negative derived size for v1 entry %d in segment %d", i, segment)
		}
		flags := Flags(0)
		if e.Compressed {
			flags |= IsCompressed
		}
		descs = append(descs, Descriptor{
			Segment:    segment,
			DataOffset: abs,
			DataSize:   uint64(size),
			Flags:      flags,
			FromTable2: fromTable2,
		})
	}
	return descs, nil
}

// AppendRangeV1 is BuildRangeV1 followed by an unconditional commit; callers
// that don't need to reconcile against a redundant table2 copy first (e.g.
// v1 images with no table2) can use this directly; v2 sector_table entries
// go through AppendRangeV2 instead.
func (t *Table) AppendRangeV1(segment int, baseOffset int64, entries []RawEntryV1, sectorsExtentEnd int64, fromTable2 bool) error {
	descs, err := BuildRangeV1(segment, baseOffset, entries, sectorsExtentEnd, fromTable2)
	if err != nil {
		return err
	}
	t.entries = append(t.entries, descs...)
	return nil
}

// AppendDescriptors commits already-built descriptors verbatim, e.g. the
// winner of a table/table2 reconciliation.
func (t *Table) AppendDescriptors(descs []Descriptor) {
	t.entries = append(t.entries, descs...)
}

// MutableRange returns the live backing slice for entries [start, end), for
// in-place reconciliation against a redundant copy while a Table is still
// being built during Open. Callers must not resize or reorder it.
func (t *Table) MutableRange(start, end int) []Descriptor {
	return t.entries[start:end]
}

// RawEntryV2 is one decoded 16-byte v2 sector_table entry: explicit offset,
// size and flags, no base_offset indirection (spec.md §4.2, §6.1).
type RawEntryV2 struct {
	DataOffset int64
	DataSize   uint32
	Flags      Flags
}

// AppendRangeV2 ingests one v2 "sector_table" section's entries.
func (t *Table) AppendRangeV2(segment int, entries []RawEntryV2) {
	for _, e := range entries {
		t.entries = append(t.entries, Descriptor{
			Segment:    segment,
			DataOffset: e.DataOffset,
			DataSize:   uint64(e.DataSize),
			Flags:      e.Flags,
		})
	}
}

// ReconcileTable2 compares a primary table range (typically the live slice
// from MutableRange, already committed) against table2 descriptors built
// for the same chunk indices, per spec.md §3's invariant: mismatch flags the
// range corrupt but is not fatal. Entry i is flagged IsCorrupt in both
// slices when its DataOffset or DataSize differs; only the first
// min(len(primary), len(table2)) entries are compared. It only flags, it
// never adds or removes entries.
func ReconcileTable2(primary, table2 []Descriptor) {
	n := len(primary)
	if len(table2) < n {
		n = len(table2)
	}
	for i := 0; i < n; i++ {
		if primary[i].DataOffset != table2[i].DataOffset || primary[i].DataSize != table2[i].DataSize {
			primary[i].Flags |= IsCorrupt
			table2[i].Flags |= IsCorrupt
		}
	}
}
