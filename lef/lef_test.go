package lef

import (
	"testing"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// =============================================================================
// Parse: a minimal two-level tree
// =============================================================================

func encodeUTF16LE(t *testing.T, s string) []byte {
	t.Helper()
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	out, _, err := transform.Bytes(enc, []byte(s))
	if err != nil {
		t.Fatalf("encode utf16le fixture: %v", err)
	}
	return out
}

func TestParseBuildsTreeWithChildren(t *testing.T) {
	text := "entry\n" +
		"n\tls\tid\n" +
		"0\t2\n" + // root: 2 sub-entries
		"root\t0\t1\n" +
		"0\t0\n" + // child 1: leaf
		"file1.txt\t1024\t2\n" +
		"0\t0\n" + // child 2: leaf
		"file2.txt\t2048\t3\n"

	tree, err := Parse(encodeUTF16LE(t, text))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	root := tree.Root()
	if !root.Valid() {
		t.Fatalf("expected a valid root")
	}
	if root.Name() != "root" {
		t.Fatalf("root name: got %q", root.Name())
	}
	if root.NumberOfSubEntries() != 2 {
		t.Fatalf("root sub-entry count: got %d, want 2", root.NumberOfSubEntries())
	}

	c0, err := root.Sub(0)
	if err != nil {
		t.Fatalf("Sub(0): %v", err)
	}
	if c0.Name() != "file1.txt" || c0.Size() != 1024 {
		t.Fatalf("child 0: got name=%q size=%d", c0.Name(), c0.Size())
	}
	if c0.Parent().Name() != "root" {
		t.Fatalf("child 0 parent: got %q", c0.Parent().Name())
	}

	c1, err := root.Sub(1)
	if err != nil {
		t.Fatalf("Sub(1): %v", err)
	}
	if c1.Name() != "file2.txt" || c1.Size() != 2048 {
		t.Fatalf("child 1: got name=%q size=%d", c1.Name(), c1.Size())
	}
}

func TestParseEmptyPayloadIsNotFatal(t *testing.T) {
	tree, err := Parse(encodeUTF16LE(t, "no entry section here"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r := tree.Root(); r.Valid() {
		t.Fatalf("expected no root for a payload with no entry tree")
	}
}

// =============================================================================
// parseExtents
// =============================================================================

func TestParseExtentsDecodesHexPairs(t *testing.T) {
	extents, err := parseExtents("1 13135c1 3f44")
	if err != nil {
		t.Fatalf("parseExtents: %v", err)
	}
	if len(extents) != 1 || extents[0].Offset != 0x13135c1 || extents[0].Size != 0x3f44 {
		t.Fatalf("got %+v", extents)
	}
}

func TestParseExtentsTruncatedListErrors(t *testing.T) {
	if _, err := parseExtents("2 100 200"); err == nil {
		t.Fatalf("expected an error for a truncated extent list")
	}
}

// =============================================================================
// Unrecognised columns preserved as attributes
// =============================================================================

func TestUnknownColumnBecomesAttribute(t *testing.T) {
	text := "entry\n" +
		"n\tvendor_tag\n" +
		"0\t1\n" +
		"root\tfoo\n" +
		"0\t0\n" +
		"child\tbar\n"

	tree, err := Parse(encodeUTF16LE(t, text))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	child, err := tree.Root().Sub(0)
	if err != nil {
		t.Fatalf("Sub(0): %v", err)
	}
	attrs := child.ExtendedAttributes()
	if len(attrs) != 1 || attrs[0].Name != "vendor_tag" || attrs[0].Value != "bar" {
		t.Fatalf("got %+v", attrs)
	}
}
