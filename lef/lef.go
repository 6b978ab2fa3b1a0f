// Package lef parses the Logical Evidence File "ltree" payload (spec.md
// §4.7, C9) into a tree of file entries plus flat permission/source/subject
// lists. The tree is arena-backed — children referenced by index, parents
// via a side table — per the Design Note in spec.md §9, so Ref
// handles returned to callers are safe {arena, index} pairs rather than raw
// pointers into a self-referential structure.
package lef

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Entry is one node of the LEF tree, spec.md §3's LefFileEntry.
type Entry struct {
	Identifier          uint64
	Type                uint8
	Flags               uint32
	DataOffset          int64
	DataSize            uint64
	LogicalOffset       int64
	PhysicalOffset      int64
	DuplicateDataOffset int64
	GUID                string
	Name                string
	ShortName           string
	Size                uint64
	SourceIdentifier    uint64
	PermissionGroupIndex uint64
	RecordType           uint64
	CreationTime         int64
	ModificationTime     int64
	AccessTime           int64
	EntryModTime         int64
	DeletionTime         int64
	MD5Hash              string
	SHA1Hash             string
	ExtendedAttributes   []Attribute
	Extents              []Extent

	children []int // indices into Tree.nodes
	parent   int   // -1 for the root
}

// Attribute is one unrecognised column preserved verbatim, spec.md §4.7
// step 5.
type Attribute struct{ Name, Value string }

// Extent is one {offset, size} binary extent decoded from a "be" column,
// spec.md §4.7 step 6, measured within the segment's "sectors" region.
type Extent struct {
	Offset int64
	Size   int64
}

// PermissionRecord, Source and Subject are the flat side-lists an ltree
// payload can also carry (libewf's single_file_permission / srce / sub
// schemas); this engine stores them verbatim as raw columns, since
// interpreting their semantics is a CLI/presentation concern per spec.md §1.
type PermissionRecord struct{ Columns map[string]string }
type Source struct{ Columns map[string]string }
type Subject struct{ Columns map[string]string }

// Tree is the parsed result of one ltree payload.
type Tree struct {
	nodes       []*Entry
	Permissions []PermissionRecord
	Sources     []Source
	Subjects    []Subject
}

// Ref is a safe handle to one Entry: {arena, index}. The zero Ref is
// invalid; use Tree.Root to obtain the first valid Ref.
type Ref struct {
	tree  *Tree
	index int
}

// Valid reports whether r refers to a real node.
func (r Ref) Valid() bool { return r.tree != nil && r.index >= 0 && r.index < len(r.tree.nodes) }

func (r Ref) entry() *Entry { return r.tree.nodes[r.index] }

func (r Ref) Name() string                { return r.entry().Name }
func (r Ref) Size() uint64                { return r.entry().Size }
func (r Ref) MD5() string                 { return r.entry().MD5Hash }
func (r Ref) SHA1() string                { return r.entry().SHA1Hash }
func (r Ref) NumberOfSubEntries() int     { return len(r.entry().children) }
func (r Ref) ExtendedAttributes() []Attribute { return r.entry().ExtendedAttributes }
func (r Ref) Entry() Entry                { return *r.entry() }

// Sub returns the i'th child of r.
func (r Ref) Sub(i int) (Ref, error) {
	e := r.entry()
	if i < 0 || i >= len(e.children) {
		return Ref{}, fmt.Errorf("lef: child index %d out of range [0,%d)", i, len(e.children))
	}
	return Ref{tree: r.tree, index: e.children[i]}, nil
}

// Parent returns r's parent, or an invalid Ref if r is the root.
func (r Ref) Parent() Ref {
	p := r.entry().parent
	if p < 0 {
		return Ref{}
	}
	return Ref{tree: r.tree, index: p}
}

// Root returns the tree's root entry, or an invalid Ref if the tree is
// empty.
func (t *Tree) Root() Ref {
	if len(t.nodes) == 0 {
		return Ref{}
	}
	return Ref{tree: t, index: 0}
}

// decodeUTF16LE converts raw UTF-16LE bytes (with or without a BOM) to a Go
// string, step 1 of spec.md §4.7.
func decodeUTF16LE(raw []byte) (string, error) {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", fmt.Errorf("lef: utf-16le decode: %w", err)
	}
	return string(out), nil
}

// Parse decodes one ltree section payload into a Tree, per the algorithm in
// spec.md §4.7.
func Parse(raw []byte) (*Tree, error) {
	text, err := decodeUTF16LE(raw)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	t := &Tree{}
	idx := findSection(lines, "entry")
	if idx < 0 {
		return t, nil // no entry tree in this payload; not fatal (spec.md §4.10)
	}
	typesIdx := idx + 1
	if typesIdx >= len(lines) {
		return t, fmt.Errorf("lef: entry section has no types row")
	}
	columns := strings.Split(lines[typesIdx], "\t")

	pos := typesIdx + 1
	rootIdx, next, err := parseNode(t, lines, pos, columns, -1)
	if err != nil {
		return nil, err
	}
	_ = next
	if rootIdx < 0 {
		return t, fmt.Errorf("lef: entry section has no root record")
	}

	if srceIdx := findSection(lines, "srce"); srceIdx >= 0 {
		t.Sources = parseFlatRecords(lines, srceIdx)
	}
	if subIdx := findSection(lines, "sub"); subIdx >= 0 {
		for _, s := range parseFlatRecords(lines, subIdx) {
			t.Subjects = append(t.Subjects, Subject{Columns: s.Columns})
		}
	}
	if permIdx := findSection(lines, "permissions"); permIdx >= 0 {
		t.Permissions = parsePermissionRecords(lines, permIdx)
	}

	return t, nil
}

// findSection returns the line index of a bare "<name>" section header, or
// -1 if absent.
func findSection(lines []string, name string) int {
	for i, l := range lines {
		if strings.TrimSpace(l) == name {
			return i
		}
	}
	return -1
}

// parseNode consumes one {count-line, values-line} record at lines[pos],
// builds its Entry (and recursively its children), appends it to t.nodes,
// and returns its node index plus the line position immediately after the
// subtree it consumed (spec.md §4.7 steps 4).
func parseNode(t *Tree, lines []string, pos int, columns []string, parent int) (nodeIndex, nextPos int, err error) {
	if pos+1 >= len(lines) {
		return -1, pos, nil
	}
	countLine := strings.Split(lines[pos], "\t")
	if len(countLine) < 2 {
		return -1, pos, fmt.Errorf("lef: malformed count line %q", lines[pos])
	}
	subCount, err := strconv.Atoi(strings.TrimSpace(countLine[1]))
	if err != nil {
		return -1, pos, fmt.Errorf("lef: malformed sub-entry count %q: %w", countLine[1], err)
	}

	valuesLine := strings.Split(lines[pos+1], "\t")
	entry := &Entry{parent: parent}
	var attrs []Attribute
	for i, col := range columns {
		if i >= len(valuesLine) {
			break
		}
		applyColumn(entry, col, valuesLine[i], &attrs)
	}
	entry.ExtendedAttributes = attrs

	nodeIndex = len(t.nodes)
	t.nodes = append(t.nodes, entry)

	cursor := pos + 2
	for i := 0; i < subCount; i++ {
		childIdx, next, err := parseNode(t, lines, cursor, columns, nodeIndex)
		if err != nil {
			return -1, pos, err
		}
		if childIdx < 0 {
			break
		}
		entry.children = append(entry.children, childIdx)
		cursor = next
	}
	return nodeIndex, cursor, nil
}

// applyColumn interprets one typed column per the vocabulary spec.md §3/§4.7
// enumerate; unrecognised tags are preserved verbatim as an Attribute.
func applyColumn(e *Entry, col, value string, attrs *[]Attribute) {
	switch col {
	case "n":
		e.Name = value
	case "p":
		e.ShortName = value
	case "id":
		e.Identifier = parseUint(value)
	case "ls", "du":
		e.Size = parseUint(value)
	case "be":
		ext, err := parseExtents(value)
		if err == nil {
			e.Extents = ext
			if len(ext) > 0 {
				e.DataOffset = ext[0].Offset
				e.DataSize = uint64(ext[0].Size)
			}
		}
	case "cr":
		e.CreationTime = parseInt(value)
	case "ac":
		e.AccessTime = parseInt(value)
	case "wr":
		e.ModificationTime = parseInt(value)
	case "mo":
		e.EntryModTime = parseInt(value)
	case "dl":
		e.DeletionTime = parseInt(value)
	case "ha", "sha":
		if len(value) == 32 {
			e.MD5Hash = value
		} else if len(value) == 40 {
			e.SHA1Hash = value
		}
	case "snh":
		e.SHA1Hash = value
	case "lo":
		e.LogicalOffset = parseInt(value)
	case "po":
		e.PhysicalOffset = parseInt(value)
	case "pm":
		e.PermissionGroupIndex = parseUint(value)
	case "src":
		e.SourceIdentifier = parseUint(value)
	case "cid":
		e.RecordType = parseUint(value)
	case "sig":
		e.Flags = uint32(parseUint(value))
	default:
		*attrs = append(*attrs, Attribute{Name: col, Value: value})
	}
}

func parseUint(s string) uint64 {
	n, _ := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return n
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

// parseExtents decodes a "be" column: "count {offset size}+" space
// separated hex, spec.md §4.7 step 6 ("be of the form '1 13135c1 3f44'
// means one extent at data-offset 0x13135c1 of length 0x3f44").
func parseExtents(value string) ([]Extent, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil, nil
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("lef: malformed extent count %q: %w", fields[0], err)
	}
	if len(fields) < 1+count*2 {
		return nil, fmt.Errorf("lef: extent list truncated: want %d pairs, have %d fields", count, len(fields)-1)
	}
	extents := make([]Extent, 0, count)
	for i := 0; i < count; i++ {
		offset, err := strconv.ParseInt(fields[1+i*2], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("lef: malformed extent offset %q: %w", fields[1+i*2], err)
		}
		size, err := strconv.ParseInt(fields[2+i*2], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("lef: malformed extent size %q: %w", fields[2+i*2], err)
		}
		extents = append(extents, Extent{Offset: offset, Size: size})
	}
	return extents, nil
}

// parseFlatRecords reads a "srce"/"sub" style section: a types row followed
// by one values row per record, terminated by a blank line.
func parseFlatRecords(lines []string, sectionIdx int) []Source {
	if sectionIdx+1 >= len(lines) {
		return nil
	}
	columns := strings.Split(lines[sectionIdx+1], "\t")
	var out []Source
	for i := sectionIdx + 2; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			break
		}
		values := strings.Split(lines[i], "\t")
		rec := Source{Columns: make(map[string]string, len(columns))}
		for j, col := range columns {
			if j < len(values) {
				rec.Columns[col] = values[j]
			}
		}
		out = append(out, rec)
	}
	return out
}

func parsePermissionRecords(lines []string, sectionIdx int) []PermissionRecord {
	srcs := parseFlatRecords(lines, sectionIdx)
	out := make([]PermissionRecord, len(srcs))
	for i, s := range srcs {
		out[i] = PermissionRecord{Columns: s.Columns}
	}
	return out
}
