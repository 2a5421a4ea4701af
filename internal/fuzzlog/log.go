// Package fuzzlog provides leveled logging in the shape of syzkaller's
// pkg/log: a thin wrapper around the standard log package with a global
// verbosity gate and an in-memory ring buffer of recent lines, so the
// engine can attach recent diagnostics to a fatal error report.
package fuzzlog

import (
	"bytes"
	golog "log"
	"fmt"
	"sync"
)

var (
	mu           sync.Mutex
	verbosity    int
	cacheEntries []string
	cachePos     int
)

// SetVerbosity sets the global verbosity gate; Logf calls at a higher level
// than this are discarded.
func SetVerbosity(v int) {
	mu.Lock()
	defer mu.Unlock()
	verbosity = v
}

// EnableCaching retains the last maxLines formatted log lines for later
// retrieval via CachedOutput, regardless of verbosity.
func EnableCaching(maxLines int) {
	mu.Lock()
	defer mu.Unlock()
	cacheEntries = make([]string, maxLines)
	cachePos = 0
}

// CachedOutput returns the retained lines, oldest first.
func CachedOutput() string {
	mu.Lock()
	defer mu.Unlock()
	buf := new(bytes.Buffer)
	for i := range cacheEntries {
		pos := (cachePos + i) % len(cacheEntries)
		if cacheEntries[pos] == "" {
			continue
		}
		buf.WriteString(cacheEntries[pos])
		buf.WriteByte('\n')
	}
	return buf.String()
}

// Logf logs msg at verbosity level v if the global gate allows it, and
// always appends it to the cache (if enabled).
func Logf(v int, msg string, args ...interface{}) {
	mu.Lock()
	doLog := v <= verbosity
	if cacheEntries != nil {
		line := fmt.Sprintf(msg, args...)
		cacheEntries[cachePos] = line
		cachePos = (cachePos + 1) % len(cacheEntries)
	}
	mu.Unlock()
	if doLog {
		golog.Printf(msg, args...)
	}
}

// Fatalf logs unconditionally then terminates the process, matching the
// teacher's log.Fatalf convention for unrecoverable configuration errors.
func Fatalf(msg string, args ...interface{}) {
	golog.Fatalf(msg, args...)
}
