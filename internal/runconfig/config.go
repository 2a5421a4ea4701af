// Package runconfig implements the run configuration record (C8): the
// RunConfig struct SPEC_FULL.md §3 defines, plus an optional JSON file
// loader in the shape of syzkaller's pkg/config (comment-stripping regex,
// json.Decoder with DisallowUnknownFields).
package runconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Backend selection strings, used verbatim as RunConfig.Backend values. The
// CLI sets them from its --qemu (forkserver) and --valgrind (traceparse)
// flags.
const (
	BackendForkserver = "forkserver"
	BackendTraceparse = "traceparse"
)

// RunConfig is the configuration record passed to backend and engine
// construction, gathering what spec.md §9 calls "global state" into one
// value instead of package-level variables.
type RunConfig struct {
	Target      string        `json:"target"`
	Backend     string        `json:"backend"`
	SeedDir     string        `json:"seed_dir"`
	OutputDir   string        `json:"output_dir"`
	Timeout     time.Duration `json:"timeout"`
	Verbose     int           `json:"verbose"`
	StatusEvery time.Duration `json:"status_every"`
	MetricsAddr string        `json:"metrics_addr"`
}

// Default returns the baseline RunConfig flags overlay onto, matching the
// CLI surface's documented defaults (output directory "output").
func Default() RunConfig {
	return RunConfig{
		OutputDir: "output",
	}
}

// Validate enforces the CLI surface's mutual-exclusion and required-field
// rules (spec.md §6): target and seed dir are required, and exactly one of
// the two known backends must be selected.
func (c RunConfig) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("runconfig: target executable path is required")
	}
	if c.SeedDir == "" {
		return fmt.Errorf("runconfig: seed input directory is required")
	}
	switch c.Backend {
	case BackendForkserver, BackendTraceparse:
	case "":
		return fmt.Errorf("runconfig: exactly one backend must be chosen (forkserver or traceparse)")
	default:
		return fmt.Errorf("runconfig: unknown backend %q", c.Backend)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("runconfig: output directory must not be empty")
	}
	return nil
}

// LoadFile reads and parses a JSON config file, stripping '#'-prefixed
// comment lines first. Mirrors pkg/config.LoadFile/LoadData exactly.
func LoadFile(filename string) (RunConfig, error) {
	cfg := Default()
	if filename == "" {
		return cfg, fmt.Errorf("runconfig: no config file specified")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("runconfig: read config file: %w", err)
	}
	if err := LoadData(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var commentLine = regexp.MustCompile(`(^|\n)\s*#[^\n]*`)

// LoadData parses JSON config data into cfg after stripping comment lines.
func LoadData(data []byte, cfg *RunConfig) error {
	data = commentLine.ReplaceAll(data, nil)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("runconfig: parse config file: %w", err)
	}
	return nil
}

// Merge overlays non-zero fields of override onto c, implementing "flags
// always win over file values when both are present" (SPEC_FULL.md §3). An
// OutputDir equal to the default "output" is treated as unset and does not
// replace c's value.
func (c RunConfig) Merge(override RunConfig) RunConfig {
	out := c
	if override.Target != "" {
		out.Target = override.Target
	}
	if override.Backend != "" {
		out.Backend = override.Backend
	}
	if override.SeedDir != "" {
		out.SeedDir = override.SeedDir
	}
	if override.OutputDir != "" && override.OutputDir != "output" {
		out.OutputDir = override.OutputDir
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	if override.Verbose != 0 {
		out.Verbose = override.Verbose
	}
	if override.StatusEvery != 0 {
		out.StatusEvery = override.StatusEvery
	}
	if override.MetricsAddr != "" {
		out.MetricsAddr = override.MetricsAddr
	}
	return out
}
