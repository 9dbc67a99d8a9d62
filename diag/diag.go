// Package diag is the loader's logging dependency: a thin, level-tagged
// wrapper over the standard log package, matching the teacher's direct use
// of log.Fatalln/log.Println at call sites rather than a structured logging
// framework. Unlike the teacher, a Logger is always passed in explicitly —
// there is no package-global logger — so tests can capture output and the
// HandoffSequencer can swap targets once interrupts are disabled.
package diag

import (
	"io"
	"log"
)

// Logger tags every line with a level prefix the way magiskboot's CLI tags
// stderr output, but keeps the three kinds Quibble's pipeline actually needs
// pre-hand-off: informational progress, recoverable warnings (e.g. a
// skipped boot driver), and the fatal diagnostic a caller surfaces before
// halting.
type Logger struct {
	l *log.Logger
}

// New wraps w with the loader's line format: no timestamp (boot firmware
// consoles rarely have a usable clock), just the level tag.
func New(w io.Writer) *Logger {
	return &Logger{l: log.New(w, "", 0)}
}

// Discard is a Logger that drops everything, for components exercised in
// tests that don't care about diagnostic output.
func Discard() *Logger {
	return New(io.Discard)
}

func (d *Logger) Infof(format string, args ...any) {
	d.l.Printf("INFO  "+format, args...)
}

func (d *Logger) Warnf(format string, args ...any) {
	d.l.Printf("WARN  "+format, args...)
}

// Fatalf logs and returns — unlike log.Fatalln it never calls os.Exit. Only
// the CLI's outermost dispatch (cmd/quibble) gets to end the process; every
// component in the pipeline returns an error instead, per §7.
func (d *Logger) Fatalf(format string, args ...any) {
	d.l.Printf("FATAL "+format, args...)
}
