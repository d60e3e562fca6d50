// File: netlog/netlog.go
// Author: momentics <momentics@gmail.com>
//
// Package netlog builds the single zerolog.Logger shared by the acceptor,
// reactors, worker pool and façades. It is the "log sink" spec.md refers to
// for accept-error warnings and reactor hard-error termination; nothing
// else in the core depends on it.
package netlog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console-formatted logger tagged with component for the given
// process. Pass the result by value into the pieces that need it; the zero
// value of zerolog.Logger (or zerolog.Nop()) is equally valid where logging
// is undesired, e.g. in tests.
func New(component string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Str("component", component).Logger()
}
