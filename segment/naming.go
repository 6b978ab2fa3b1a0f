package segment

import (
	"fmt"
	"strconv"
)

// Kind is a segment-file kind, spelled as its leading extension letter(s),
// spec.md §4.1: "E" for EWF1 images, "L" for EWF1 logical (LEF) sets, "s"
// for SMART/EnCase1 images; the EWF2 "x" variants (Ex/Lx) use the same
// numbering scheme with an extra letter.
type Kind string

const (
	KindImage   Kind = "E"
	KindLogical Kind = "L"
	KindSMART   Kind = "s"
	KindImageX  Kind = "Ex"
	KindLogicalX Kind = "Lx"
)

// ExtensionToNumber converts a segment file's extension (the part after the
// last '.') to its 1-based segment number, per the carry scheme in
// NumberToExtension.
func ExtensionToNumber(ext string) (int, error) {
	if len(ext) < 3 {
		return 0, fmt.Errorf("segment: extension %q too short", ext)
	}
	var lead string
	var suffix string
	if len(ext) == 4 && (ext[1] == 'x' || ext[1] == 'X') {
		lead = ext[:2]
		suffix = ext[2:]
	} else {
		lead = ext[:1]
		suffix = ext[1:]
	}
	if len(suffix) != 2 {
		return 0, fmt.Errorf("segment: extension %q has malformed suffix %q", ext, suffix)
	}

	if n, err := strconv.Atoi(suffix); err == nil {
		if n < 1 || n > 99 {
			return 0, fmt.Errorf("segment: numeric suffix %d out of range", n)
		}
		_ = lead
		return n, nil
	}

	if suffix[0] < 'A' || suffix[0] > 'Z' || suffix[1] < 'A' || suffix[1] > 'Z' {
		return 0, fmt.Errorf("segment: malformed alphabetic suffix %q", suffix)
	}
	offset := int(suffix[0]-'A')*26 + int(suffix[1]-'A')
	return 99 + offset + 1, nil
}

// NumberToExtension renders n (1-based) as a segment extension for kind,
// following libewf's overflow scheme: 1-99 as two decimal digits ("E01"),
// then carrying into an alphabetic suffix ("EAA", "EAB", ... "EZZ") for
// segment numbers beyond 99 (spec.md §4.1, §6.2 "segment file rollover").
func NumberToExtension(kind Kind, n int) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("segment: segment number must be >= 1, got %d", n)
	}
	if n <= 99 {
		return fmt.Sprintf("%s%02d", string(kind), n), nil
	}
	offset := n - 100
	if offset >= 26*26 {
		return "", fmt.Errorf("segment: segment number %d exceeds the alphabetic suffix range (max %d)", n, 99+26*26)
	}
	first := byte('A' + offset/26)
	second := byte('A' + offset%26)
	return fmt.Sprintf("%s%c%c", string(kind), first, second), nil
}
