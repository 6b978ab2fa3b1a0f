package header

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// typeCodeToID maps the two-letter (or single-letter) type codes carried on
// a header section's "types" line to the canonical long identifiers in
// spec.md §3. Unrecognised codes are kept verbatim as their own identifier,
// matching the Design Note that the vocabulary is open-ended.
var typeCodeToID = map[string]string{
	"c":   CaseNumber,
	"n":   EvidenceNumber,
	"a":   Description,
	"e":   ExaminerName,
	"t":   Notes,
	"av":  AcquirySoftwareVersion,
	"ov":  AcquiryOperatingSystem,
	"m":   AcquiryDate,
	"u":   SystemDate,
	"p":   Password,
	"r":   CompressionType,
	"md":  Model,
	"sn":  SerialNumber,
	"pid": ProcessIdentifier,
	"dc":  UnknownDC,
	"ext": Extents,
}

// Codepage selects the narrow-text decoding used for EWF1 "header" sections.
type Codepage uint8

const (
	CodepageWindows1252 Codepage = iota
	CodepageUTF8
)

func decodeNarrow(cp Codepage, raw []byte) (string, error) {
	if cp == CodepageUTF8 {
		return string(raw), nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("header: windows-1252 decode: %w", err)
	}
	return string(out), nil
}

func decodeUTF16LE(raw []byte) (string, error) {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", fmt.Errorf("header: utf-16le decode: %w", err)
	}
	return string(out), nil
}

// inflate reverses the zlib-wrapped deflate payload a header/header2/
// xheader section stores on disk.
func inflate(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("header: zlib open: %w", err)
	}
	defer r.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		return nil, fmt.Errorf("header: zlib inflate: %w", err)
	}
	return out.Bytes(), nil
}

// DecodeSection parses one "header"/"header2"/"xheader" section's
// compressed payload into a Store, per the schema in spec.md §6.2:
//
//	<format-version>\n
//	<n>\n
//	<type1>\t<type2>\t...\n
//	<val1>\t<val2>\t...\n
//
// wide selects whether the inflated text is UTF-16LE (header2) or narrow
// codepage text (header); xheader payloads are already UTF-8 after
// inflation and should be decoded with wide=false, cp=CodepageUTF8.
func DecodeSection(compressed []byte, wide bool, cp Codepage) (*Store, error) {
	raw, err := inflate(compressed)
	if err != nil {
		return nil, err
	}

	var text string
	if wide {
		text, err = decodeUTF16LE(raw)
	} else {
		text, err = decodeNarrow(cp, raw)
	}
	if err != nil {
		return nil, err
	}

	return parseSchema(text)
}

// parseSchema walks the tab-delimited schema body. Malformed header text is
// never fatal per spec.md §4.10 — it yields a partially populated (possibly
// empty) Store and nil error.
func parseSchema(text string) (*Store, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	store := NewStore()

	// lines[0] is the schema tag (1, 3, main, srce, sub, ltree, ...);
	// lines[1] is the column count; lines[2] is the types row;
	// lines[3] is the values row. Take the first two consecutive lines that
	// both contain a tab as the types and values rows rather than assuming
	// fixed indices, since some producers emit a blank line before the
	// schema tag. A single-column header (no tab on either row) yields an
	// empty Store.
	var typesLine, valuesLine string
	found := false
	for i := 0; i+1 < len(lines); i++ {
		if strings.Contains(lines[i], "\t") && strings.Contains(lines[i+1], "\t") {
			typesLine, valuesLine = lines[i], lines[i+1]
			found = true
			break
		}
	}
	if !found {
		return store, nil
	}

	types := strings.Split(typesLine, "\t")
	values := strings.Split(valuesLine, "\t")
	for i, t := range types {
		if i >= len(values) {
			break
		}
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		id, ok := typeCodeToID[t]
		if !ok {
			id = t
		}
		store.Set(id, values[i])
	}
	return store, nil
}

// ParseAcquiryDate converts the space-delimited "YYYY M D H M S" tuple
// (spec.md §4.6) to a time.Time. Malformed input leaves the field unset —
// callers should ignore a non-nil error and simply skip the field, matching
// the "never fatal" rule for header parsing.
func ParseAcquiryDate(raw string) (time.Time, error) {
	fields := strings.Fields(raw)
	if len(fields) != 6 {
		return time.Time{}, fmt.Errorf("header: acquiry date %q: want 6 fields", raw)
	}
	nums := make([]int, 6)
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return time.Time{}, fmt.Errorf("header: acquiry date %q: %w", raw, err)
		}
		nums[i] = n
	}
	return time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], 0, time.UTC), nil
}

// DateFormat selects the presentation format for FormatAcquiryDate.
type DateFormat uint8

const (
	DateFormatISO8601 DateFormat = iota
	DateFormatDayMonth
	DateFormatMonthDay
	DateFormatCTime
)

// FormatAcquiryDate renders t per the configured date_format option
// (spec.md §6.5). This is presentation, not parsing — the canonical value
// stored in the Store remains the raw "YYYY M D H M S" text.
func FormatAcquiryDate(t time.Time, f DateFormat) string {
	switch f {
	case DateFormatDayMonth:
		return t.Format("02/01/2006 15:04:05")
	case DateFormatMonthDay:
		return t.Format("01/02/2006 15:04:05")
	case DateFormatCTime:
		return t.Format("Mon Jan  2 15:04:05 2006")
	default:
		return t.Format(time.RFC3339)
	}
}

// EncodeSection renders a Store back into the tab-delimited schema body for
// writing, then deflates it (zlib-wrapped, matching the on-disk format).
// wide selects header2-style UTF-16LE encoding; otherwise the narrow
// codepage in cp is used.
func EncodeSection(s *Store, wide bool, cp Codepage, schemaTag string, level int) ([]byte, error) {
	var types, values []string
	reverse := make(map[string]string, len(typeCodeToID))
	for code, id := range typeCodeToID {
		reverse[id] = code
	}
	s.Iter(func(id, value string) {
		code, ok := reverse[id]
		if !ok {
			code = id
		}
		types = append(types, code)
		values = append(values, value)
	})

	body := fmt.Sprintf("%s\n%d\n%s\n%s\n\n", schemaTag, len(types),
		strings.Join(types, "\t"), strings.Join(values, "\t"))

	var raw []byte
	var err error
	if wide {
		enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
		raw, _, err = transform.Bytes(enc, []byte(body))
	} else if cp == CodepageUTF8 {
		raw = []byte(body)
	} else {
		raw, err = charmap.Windows1252.NewEncoder().Bytes([]byte(body))
	}
	if err != nil {
		return nil, fmt.Errorf("header: encode text: %w", err)
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("header: zlib writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, fmt.Errorf("header: zlib write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("header: zlib close: %w", err)
	}
	return buf.Bytes(), nil
}
