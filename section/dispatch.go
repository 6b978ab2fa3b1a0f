package section

// Version distinguishes the two on-disk section-body layouts a Tag can
// carry; table/table2/volume/disk and the descriptor framing itself differ
// between EWF1 and EWF2 (spec.md §4.2).
type Version int

const (
	V1 Version = 1
	V2 Version = 2
)

// Decoded is the tagged-union result of Dispatch: only the field(s) for Tag
// are populated (MD5Hex and SHA1Hex together for digest/hash; none for
// data/sectors/next/done or an unrecognised tag; TableBase is never set).
// Callers switch on Tag, not on which field is non-nil. A Tag missing from
// Dispatch's switch is not a compile error: it falls to the default branch.
type Decoded struct {
	Tag Tag

	Volume    *VolumeInfo
	TableBase int64
	TableV1   []byte // re-exported raw bytes; caller decodes via DecodeTableV1 and supplies the base offset itself (ewf.Open uses the preceding "sectors" section's body start)
	SectorTableV2 []byte
	Ranges    []Range
	MD5Hex    string
	SHA1Hex   string
	LtreeRaw  []byte // UTF-16LE payload, handed to package lef by the caller
	HeaderRaw []byte // still-zlib-compressed payload, handed to package header by the caller
}

// Dispatch classifies a section payload by tag and, for the fixed-shape
// binary sections, decodes it eagerly. header/xheader/table/table2/ltree
// payloads need additional context the section layer doesn't have (the
// codepage, the previous table descriptor's base offset, whether to
// unicode-decode) so Dispatch passes those through raw for the caller
// (package ewf) to finish decoding — see spec.md §4.2's per-tag handler
// table.
func Dispatch(tag Tag, version Version, payload []byte) (Decoded, error) {
	d := Decoded{Tag: tag}
	switch tag {
	case TagVolume, TagDisk:
		var info VolumeInfo
		var err error
		if version == V2 {
			info, err = DecodeVolumeV2(payload)
		} else {
			info, err = DecodeVolumeV1(payload)
		}
		if err != nil {
			return Decoded{}, err
		}
		d.Volume = &info

	case TagTable, TagTable2:
		d.TableV1 = payload

	case TagSectorTable:
		d.SectorTableV2 = payload

	case TagError2, TagSession:
		ranges, err := DecodeRanges(payload)
		if err != nil {
			return Decoded{}, err
		}
		d.Ranges = ranges

	case TagDigest, TagHash:
		md5Hex, sha1Hex, err := DecodeDigest(payload)
		if err != nil {
			return Decoded{}, err
		}
		d.MD5Hex, d.SHA1Hex = md5Hex, sha1Hex

	case TagLtree, TagLtype:
		d.LtreeRaw = payload

	case TagHeader, TagHeader2, TagXHeader:
		d.HeaderRaw = payload

	case TagData, TagSectors, TagNext, TagDone:
		// No section-layer decode: "data"/"sectors" are addressed via the
		// chunk table instead of read whole, "next"/"done" carry no body.

	default:
		// Unrecognised tags (vendor extensions, future section types) are
		// passed through untouched rather than rejected, per spec.md §4.10's
		// "never fatal" rule for anything short of a structural parse error.
	}
	return d, nil
}
