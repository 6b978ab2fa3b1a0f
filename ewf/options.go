package ewf

import (
	"io"

	"github.com/laenix/ewfkit/chunkcodec"
)

// Options carries the tunables spec.md §6.5 names: cache sizing, pool
// bounds, an optional decryption key, and where diagnostics go. The zero
// Options is valid — every field defaults sensibly in Open.
type Options struct {
	ChunkCacheSize      int // default datastream.DefaultCacheSize
	MaxOpenSegmentFiles int // default 16
	EncryptionKey       *chunkcodec.Key
	DiagnosticsOutput   io.Writer // nil disables logging
	CaseID              string

	// Strict promotes a corrupt chunk (bad checksum, truncated decompression)
	// to a fatal error instead of flagging the chunk-table entry and
	// returning best-effort bytes (spec.md §7, §8 scenario 2).
	Strict bool
}
