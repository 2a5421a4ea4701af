// Package backend implements the two execution backends (C5): a fork-server
// variant that speaks the AFL co-process protocol over a pair of named
// pipes, and a trace-parse variant that derives coverage from a dynamic
// translation tool's stderr stream. Both produce a coverage.Trace per
// execution plus a distinct "hung" outcome the engine tracks separately
// from a crash.
package backend

import (
	"time"

	"github.com/coverfuzz/coverfuzz/coverage"
)

// Backend launches instrumented executions of one target and reports a
// Trace for each. Exactly one execution is outstanding at a time (spec's
// concurrency model is strictly serial); callers must not call Exec
// concurrently with itself or with Close.
type Backend interface {
	// Exec runs the target once against data and returns the resulting
	// trace. Hanged is true iff the per-execution timeout elapsed before
	// the backend observed completion; in that case Trace is nil.
	Exec(data []byte) (trace *coverage.Trace, hanged bool, err error)

	// Close releases every resource acquired at construction: shared
	// memory, pipes/fifos, duplicated descriptors, the input staging file,
	// and the spawned runner process. Idempotent.
	Close() error
}

// Config carries the process-wide constants spec.md §9 calls out as global
// state, passed to backend construction instead of read from globals.
type Config struct {
	// Bin is the full command line of the instrumented runner, e.g.
	// ["qemu-x86_64", "-d", "trace:...", "/path/to/target"] or
	// ["valgrind", "--tool=...", "/path/to/target"]. Bin[0] is the
	// executable; the rest are its arguments.
	Bin []string

	// WorkDir is the directory the backend creates its scratch files
	// (named pipes, input staging file) in.
	WorkDir string

	// Timeout is the per-execution hang-detection timeout. Zero disables
	// hang detection.
	Timeout time.Duration
}
