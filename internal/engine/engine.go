// Package engine implements the fuzzer engine (C6): the single background
// worker that pops seeds off an input queue, instantiates every mutation
// strategy against each one, drives the configured backend, classifies the
// resulting traces against a running baseline, and persists crashes.
//
// Grounded on fuzzer/fuzzer.go's historical main loop (poll/triage/mutate
// priority ladder) and syz-fuzzer/workqueue.go's queue-of-queues shape,
// narrowed to spec.md's single input-queue + per-case strategy-queue
// design — there is no manager RPC and no global/group queue split here,
// since distributed fuzzing is an explicit Non-goal.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/coverfuzz/coverfuzz/backend"
	"github.com/coverfuzz/coverfuzz/coverage"
	"github.com/coverfuzz/coverfuzz/internal/fuzzlog"
	"github.com/coverfuzz/coverfuzz/internal/runconfig"
	"github.com/coverfuzz/coverfuzz/internal/stats"
	"github.com/coverfuzz/coverfuzz/strategy"
	"github.com/coverfuzz/coverfuzz/testcase"
)

// Engine owns the input queue, the strategy queue for the case currently
// being mutated, the accumulated baseline, and the run's counters. Exactly
// one instance runs per process; it is not safe for concurrent use (spec's
// concurrency model is strictly serial — see §5).
type Engine struct {
	cfg     runconfig.RunConfig
	backend backend.Backend
	metrics *stats.Set
	workDir string

	inputQueue    []*testcase.TestCase
	strategyQueue []strategy.Strategy
	current       strategy.Strategy
	currentName   string
	currentPct    float64

	baseline *coverage.Trace

	executions  *stats.Val
	pathCounter *stats.Val
	crashCount  *stats.Val

	startedAt   time.Time
	lastNewPath time.Time
	lastCrash   time.Time
	lastStatus  time.Time

	stopped atomic.Bool
}

// New constructs an Engine against cfg, validating it, loading the seed
// corpus into the input queue, and creating the configured backend.
func New(cfg runconfig.RunConfig, metrics *stats.Set) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	seeds, err := loadSeeds(cfg.SeedDir)
	if err != nil {
		return nil, fmt.Errorf("engine: load seeds: %w", err)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: seed directory %s has no files", ErrConfigInvalid, cfg.SeedDir)
	}

	// Each run gets its own scratch subdirectory so two engines pointed at
	// the same output directory (or a rerun after a crash left stale FIFOs
	// behind) never collide over forksrv_in/forksrv_out/__input_file.
	bc := backend.Config{
		WorkDir: filepath.Join(cfg.OutputDir, ".work-"+uuid.NewString()),
		Timeout: cfg.Timeout,
	}
	var be backend.Backend
	switch cfg.Backend {
	case runconfig.BackendForkserver:
		bc.Bin = []string{cfg.Target}
		be, err = backend.NewForkServer(bc)
	case runconfig.BackendTraceparse:
		bc.Bin = []string{cfg.Target}
		be, err = backend.NewTraceParse(bc)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrConfigInvalid, cfg.Backend)
	}
	if err != nil {
		if cfg.Backend == runconfig.BackendForkserver {
			return nil, fmt.Errorf("%w: %v", ErrForkserverExited, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrIPC, err)
	}

	if metrics == nil {
		metrics = stats.NewSet()
	}

	e := &Engine{
		cfg:         cfg,
		backend:     be,
		metrics:     metrics,
		workDir:     bc.WorkDir,
		inputQueue:  seeds,
		executions:  metrics.New("executions", "total backend executions"),
		pathCounter: metrics.New("paths", "edges present in the baseline"),
		crashCount:  metrics.New("crashes", "crashing inputs persisted"),
	}
	return e, nil
}

func loadSeeds(dir string) ([]*testcase.TestCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var seeds []*testcase.TestCase
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		tc, err := testcase.LoadFrom(filepath.Join(dir, ent.Name()))
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, tc)
	}
	return seeds, nil
}

// Run drives the main loop until the queues and current strategy are all
// empty (natural end-of-tasks) or ctx is cancelled (external stop signal).
// Either exit path invokes cleanup. Mirrors the single-worker-goroutine
// shape the teacher's long-running commands (syz-fuzzer, syz-manager) each
// implement inline for their own signal handling.
func (e *Engine) Run(ctx context.Context) error {
	defer e.cleanup()
	e.startedAt = time.Now()

	for {
		select {
		case <-ctx.Done():
			e.stopped.Store(true)
			return nil
		default:
		}

		done, err := e.step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		e.maybeRenderStatus()
	}
}

// step runs one iteration of the loop described in spec.md §4.7: it skips
// past exhausted strategies to the next generated test case and executes
// it once. It returns done=true when both queues and the current strategy
// are empty — the natural termination condition.
func (e *Engine) step() (done bool, err error) {
	if e.current == nil {
		if len(e.strategyQueue) == 0 {
			if len(e.inputQueue) == 0 {
				return true, nil
			}
			seed := e.inputQueue[0]
			e.inputQueue = e.inputQueue[1:]
			for _, ctor := range strategy.All {
				e.strategyQueue = append(e.strategyQueue, ctor(seed))
			}
		}
		e.current = e.strategyQueue[0]
		e.strategyQueue = e.strategyQueue[1:]
	}

	tc, ok := e.current.GenTest()
	if !ok {
		e.current = nil
		return e.step()
	}
	e.currentName, e.currentPct = e.current.Stats()

	trace, hanged, err := e.backend.Exec(tc.Data)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrIPC, err)
	}
	if hanged {
		return false, nil
	}

	e.executions.Add(1)
	e.metrics.ObserveDuration(trace.Duration())

	firstTrace := e.baseline == nil
	if firstTrace {
		e.baseline = trace
		e.lastNewPath = time.Now()
	}

	// The crash check and persistence apply to every execution, including
	// the one whose trace becomes the baseline (scenario: a target that
	// segfaults on its very first input must still produce input_1).
	if trace.DidCrash() {
		e.crashCount.Add(1)
		if err := e.persistCrash(tc); err != nil {
			return false, err
		}
		e.lastCrash = time.Now()
	} else if !firstTrace && trace.CompareTo(e.baseline) {
		e.inputQueue = append(e.inputQueue, tc)
	}

	before := e.baseline.NumberOfPaths()
	trace.CombineInto(e.baseline)
	after := e.baseline.NumberOfPaths()
	e.pathCounter.Set(int64(after))
	if after > before {
		e.lastNewPath = time.Now()
	}

	return false, nil
}

// persistCrash writes tc's bytes to <output>/input_<n>, creating the output
// directory on the first crash (spec.md's persisted crash layout).
func (e *Engine) persistCrash(tc *testcase.TestCase) error {
	if err := os.MkdirAll(e.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("engine: create output dir: %w", err)
	}
	n := e.crashCount.Value()
	path := filepath.Join(e.cfg.OutputDir, fmt.Sprintf("input_%d", n))
	if err := tc.WriteTo(path); err != nil {
		return fmt.Errorf("engine: persist crash: %w", err)
	}
	fuzzlog.Logf(1, "crash persisted: %s", path)
	return nil
}

// maybeRenderStatus renders the single self-overwriting status line
// described in spec.md §4.7, gated by RunConfig.StatusEvery with an
// every-execution fallback when unset (open question 3).
func (e *Engine) maybeRenderStatus() {
	now := time.Now()
	if e.cfg.StatusEvery > 0 && now.Sub(e.lastStatus) < e.cfg.StatusEvery {
		return
	}
	e.lastStatus = now
	e.renderStatus(now)
}

func (e *Engine) renderStatus(now time.Time) {
	sinceNewPath := "never"
	if !e.lastNewPath.IsZero() {
		sinceNewPath = stats.FormatElapsed(now.Sub(e.lastNewPath))
	}
	sinceCrash := "never"
	if !e.lastCrash.IsZero() {
		sinceCrash = stats.FormatElapsed(now.Sub(e.lastCrash))
	}
	fmt.Fprintf(os.Stderr, "\relapsed %s | execs %d | paths %d (last %s) | crashes %d (last %s) | queue %d | strategy %s %.0f%%  ",
		stats.FormatElapsed(now.Sub(e.startedAt)),
		e.executions.Value(),
		e.pathCounter.Value(),
		sinceNewPath,
		e.crashCount.Value(),
		sinceCrash,
		len(e.inputQueue),
		e.currentName,
		e.currentPct,
	)
}

// cleanup releases the backend and removes the staging work directory.
// Invoked on every exit path (natural end-of-tasks or cancellation), per
// spec.md §4.7/§5.
func (e *Engine) cleanup() {
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			fuzzlog.Logf(0, "engine: backend cleanup: %v", err)
		}
	}
	if e.workDir != "" {
		os.RemoveAll(e.workDir)
	}
	fmt.Fprintln(os.Stderr)
}

// Stopped reports whether Run returned because of external cancellation
// rather than natural end-of-tasks.
func (e *Engine) Stopped() bool {
	return e.stopped.Load()
}

// Executions, Paths and Crashes expose the run's counters for callers that
// want a final summary (e.g. cmd/afl-fuzz on exit).
func (e *Engine) Executions() int64 { return e.executions.Value() }
func (e *Engine) Paths() int64      { return e.pathCounter.Value() }
func (e *Engine) Crashes() int64    { return e.crashCount.Value() }
