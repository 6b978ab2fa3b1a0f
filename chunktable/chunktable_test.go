package chunktable

import "testing"

// =============================================================================
// AppendRangeV1: size derivation from offset deltas
// =============================================================================

func TestAppendRangeV1DerivesSizesFromDeltas(t *testing.T) {
	tbl := New()
	entries := []RawEntryV1{
		{Compressed: true, RelativeOffset: 0},
		{Compressed: false, RelativeOffset: 100},
		{Compressed: true, RelativeOffset: 250},
	}
	// Final entry's size comes from the enclosing sectors extent end.
	if err := tbl.AppendRangeV1(0, 1000, entries, 1000+400, false); err != nil {
		t.Fatalf("AppendRangeV1: %v", err)
	}
	if tbl.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", tbl.Len())
	}

	d0, _ := tbl.Get(0)
	if d0.DataOffset != 1000 || d0.DataSize != 100 || !d0.Is(IsCompressed) {
		t.Fatalf("entry 0: got %+v", d0)
	}
	d1, _ := tbl.Get(1)
	if d1.DataOffset != 1100 || d1.DataSize != 150 || d1.Is(IsCompressed) {
		t.Fatalf("entry 1: got %+v", d1)
	}
	d2, _ := tbl.Get(2)
	if d2.DataOffset != 1250 || d2.DataSize != 150 || !d2.Is(IsCompressed) {
		t.Fatalf("entry 2: got %+v", d2)
	}
}

func TestAppendRangeV1RejectsNegativeDerivedSize(t *testing.T) {
	tbl := New()
	entries := []RawEntryV1{{RelativeOffset: 500}}
	// sectorsExtentEnd before the entry's own offset forces a negative size.
	if err := tbl.AppendRangeV1(0, 1000, entries, 1000, false); err == nil {
		t.Fatalf("expected an error for a negative derived chunk size")
	}
}

// =============================================================================
// AppendRangeV2 / ReconcileTable2
// =============================================================================

func TestAppendRangeV2CarriesExplicitFields(t *testing.T) {
	tbl := New()
	tbl.AppendRangeV2(1, []RawEntryV2{{DataOffset: 4096, DataSize: 8192, Flags: IsCompressed | HasChecksum}})
	d, err := tbl.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Segment != 1 || d.DataOffset != 4096 || d.DataSize != 8192 {
		t.Fatalf("entry: got %+v", d)
	}
	if !d.Is(IsCompressed) || !d.Is(HasChecksum) {
		t.Fatalf("expected both IsCompressed and HasChecksum set, got flags %v", d.Flags)
	}
}

func TestReconcileTable2FlagsMismatch(t *testing.T) {
	primary := []Descriptor{{DataOffset: 0, DataSize: 100}}
	table2 := []Descriptor{{DataOffset: 0, DataSize: 200}} // mismatched size
	ReconcileTable2(primary, table2)
	if !primary[0].Is(IsCorrupt) || !table2[0].Is(IsCorrupt) {
		t.Fatalf("expected both descriptors flagged IsCorrupt on mismatch")
	}
}

func TestReconcileTable2NoFlagOnMatch(t *testing.T) {
	primary := []Descriptor{{DataOffset: 0, DataSize: 100}}
	table2 := []Descriptor{{DataOffset: 0, DataSize: 100}}
	ReconcileTable2(primary, table2)
	if primary[0].Is(IsCorrupt) || table2[0].Is(IsCorrupt) {
		t.Fatalf("did not expect IsCorrupt on matching ranges")
	}
}

// =============================================================================
// MarkCorrupt
// =============================================================================

func TestMarkCorruptOutOfRangeIsANoop(t *testing.T) {
	tbl := New()
	tbl.AppendRangeV2(0, []RawEntryV2{{DataOffset: 0, DataSize: 10}})
	tbl.MarkCorrupt(5) // should not panic
	d, _ := tbl.Get(0)
	if d.Is(IsCorrupt) {
		t.Fatalf("unrelated entry should not be marked corrupt")
	}
}
