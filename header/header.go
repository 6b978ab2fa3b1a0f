// Package header implements the insertion-ordered HeaderValueMap /
// HashValueMap described in spec.md §3/§4.6: a small fixed vocabulary of
// identifiers plus an open-ended set of extra keys, all mapping to UTF-8
// strings.
package header

// Known identifiers, spec.md §3. Additional keys outside this list are
// still accepted — Store has no closed vocabulary enforcement, only a
// canonical name table used by the header-section decoder (see decode.go).
const (
	CaseNumber             = "case_number"
	Description            = "description"
	ExaminerName           = "examiner_name"
	EvidenceNumber         = "evidence_number"
	Notes                  = "notes"
	AcquiryDate            = "acquiry_date"
	SystemDate             = "system_date"
	AcquiryOperatingSystem = "acquiry_operating_system"
	AcquirySoftwareVersion = "acquiry_software_version"
	Password               = "password"
	CompressionType        = "compression_type"
	Model                  = "model"
	SerialNumber           = "serial_number"
	ProcessIdentifier      = "process_identifier"
	UnknownDC              = "unknown_dc"
	Extents                = "extents"

	MD5  = "MD5"
	SHA1 = "SHA1"
)

// Store is an insertion-ordered string->string map. It owns both its keys
// and values; keys are unique, and Set on an existing key overwrites the
// value in place, preserving original insertion order.
type Store struct {
	keys   []string
	values map[string]string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// Get returns the value for id, or ("", false) if unset. Per spec.md §7 an
// absent value is NotFound exposed as ("", false) in typed APIs, never an
// error.
func (s *Store) Get(id string) (string, bool) {
	v, ok := s.values[id]
	return v, ok
}

// Set inserts or overwrites id's value, appending id to the insertion order
// the first time it is seen.
func (s *Store) Set(id, value string) {
	if _, exists := s.values[id]; !exists {
		s.keys = append(s.keys, id)
	}
	s.values[id] = value
}

// Count returns the number of distinct identifiers stored.
func (s *Store) Count() int { return len(s.keys) }

// Iter calls fn for every (id, value) pair in insertion order.
func (s *Store) Iter(fn func(id, value string)) {
	for _, k := range s.keys {
		fn(k, s.values[k])
	}
}

// Clone returns a deep copy, used when writing out a header/hash section
// whose source Store must not alias the handle's live state.
func (s *Store) Clone() *Store {
	c := NewStore()
	for _, k := range s.keys {
		c.Set(k, s.values[k])
	}
	return c
}

// Equal reports whether s and other contain the same identifiers mapped to
// the same values, irrespective of insertion order — the property exercised
// by the header round-trip test in spec.md §8.
func (s *Store) Equal(other *Store) bool {
	if other == nil || len(s.values) != len(other.values) {
		return false
	}
	for k, v := range s.values {
		if ov, ok := other.values[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
