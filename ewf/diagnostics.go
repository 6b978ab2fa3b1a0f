package ewf

import (
	"io"

	"github.com/rs/zerolog"
)

// Diagnostics is a per-handle logging sink, grounded on the chainable
// zerolog wrapper pattern: no package-level logger, every Handle owns one
// so concurrent Opens in the same process never interleave or contend on
// global state.
type Diagnostics struct {
	log zerolog.Logger
}

// NewDiagnostics builds a Diagnostics writing to w (io.Discard silences it
// entirely). caseID tags every subsequent log line.
func NewDiagnostics(w io.Writer, caseID string) *Diagnostics {
	if w == nil {
		w = io.Discard
	}
	l := zerolog.New(w).With().Timestamp().Str("case", caseID).Logger()
	return &Diagnostics{log: l}
}

// WithSegment returns a Diagnostics scoped to one segment file's logs.
func (d *Diagnostics) WithSegment(path string) *Diagnostics {
	return &Diagnostics{log: d.log.With().Str("segment", path).Logger()}
}

func (d *Diagnostics) Warn(msg string, err error) {
	d.log.Warn().Err(err).Msg(msg)
}

func (d *Diagnostics) Info(msg string) {
	d.log.Info().Msg(msg)
}

func (d *Diagnostics) Debug(msg string) {
	d.log.Debug().Msg(msg)
}
