package header

import "testing"

// =============================================================================
// Store: ordered keys, Set/Get/Clone/Equal
// =============================================================================

func TestStoreSetPreservesInsertionOrder(t *testing.T) {
	s := NewStore()
	s.Set(EvidenceNumber, "2")
	s.Set(CaseNumber, "1")
	s.Set(EvidenceNumber, "2-updated") // overwrite, should not move position

	var order []string
	s.Iter(func(id, value string) { order = append(order, id) })
	if len(order) != 2 || order[0] != EvidenceNumber || order[1] != CaseNumber {
		t.Fatalf("insertion order not preserved: %v", order)
	}
	if v, _ := s.Get(EvidenceNumber); v != "2-updated" {
		t.Fatalf("overwrite: got %q, want %q", v, "2-updated")
	}
}

func TestStoreEqualIgnoresOrder(t *testing.T) {
	a := NewStore()
	a.Set(CaseNumber, "1")
	a.Set(ExaminerName, "jdoe")

	b := NewStore()
	b.Set(ExaminerName, "jdoe")
	b.Set(CaseNumber, "1")

	if !a.Equal(b) {
		t.Fatalf("expected Equal regardless of insertion order")
	}
}

func TestStoreCloneIsIndependent(t *testing.T) {
	a := NewStore()
	a.Set(CaseNumber, "1")
	b := a.Clone()
	b.Set(CaseNumber, "2")
	if v, _ := a.Get(CaseNumber); v != "1" {
		t.Fatalf("Clone should not alias the source store: got %q", v)
	}
}

// =============================================================================
// DecodeSection / EncodeSection round trip
// =============================================================================

func TestEncodeDecodeSectionRoundTrip(t *testing.T) {
	src := NewStore()
	src.Set(CaseNumber, "CASE-001")
	src.Set(ExaminerName, "J. Doe")
	src.Set(Notes, "recovered from evidence locker 4")

	encoded, err := EncodeSection(src, false, CodepageWindows1252, "main", 6)
	if err != nil {
		t.Fatalf("EncodeSection: %v", err)
	}

	got, err := DecodeSection(encoded, false, CodepageWindows1252)
	if err != nil {
		t.Fatalf("DecodeSection: %v", err)
	}
	if !got.Equal(src) {
		t.Fatalf("round trip mismatch: got %d entries, want %d", got.Count(), src.Count())
	}
}

func TestEncodeDecodeSectionRoundTripWide(t *testing.T) {
	src := NewStore()
	src.Set(CaseNumber, "CASE-002")
	src.Set(AcquiryDate, "2026 7 31 12 0 0")

	encoded, err := EncodeSection(src, true, CodepageUTF8, "3", 9)
	if err != nil {
		t.Fatalf("EncodeSection: %v", err)
	}
	got, err := DecodeSection(encoded, true, CodepageUTF8)
	if err != nil {
		t.Fatalf("DecodeSection: %v", err)
	}
	if !got.Equal(src) {
		t.Fatalf("wide round trip mismatch")
	}
}

// =============================================================================
// ParseAcquiryDate
// =============================================================================

func TestParseAcquiryDate(t *testing.T) {
	tm, err := ParseAcquiryDate("2026 7 31 9 15 0")
	if err != nil {
		t.Fatalf("ParseAcquiryDate: %v", err)
	}
	if tm.Year() != 2026 || tm.Month() != 7 || tm.Day() != 31 {
		t.Fatalf("got %v", tm)
	}
}

func TestParseAcquiryDateMalformed(t *testing.T) {
	if _, err := ParseAcquiryDate("not a date"); err == nil {
		t.Fatalf("expected an error for malformed acquiry date text")
	}
}
