package backend

import (
	"bufio"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/coverfuzz/coverfuzz/coverage"
)

// sbLine matches a superblock-start record on the tracer's stderr, e.g.
// "SB 0x400530" or "sb 400530".
var sbLine = regexp.MustCompile(`(?i)^SB\s+(?:0x)?([0-9a-f]+)\s*$`)

// recordEdge applies the AFL edge-hash to one superblock address, bumps the
// corresponding map cell (saturating at 255), and returns the new prev.
func recordEdge(mapBuf []byte, prev uint32, addr uint64) uint32 {
	cur := (uint32(addr>>4) ^ uint32(addr<<8)) & (coverage.MapSize - 1)
	idx := cur ^ prev
	if mapBuf[idx] != 0xFF {
		mapBuf[idx]++
	}
	return cur >> 1
}

// TraceParse runs the target once per Exec under a dynamic-translation tool
// that emits one "SB <hex-address>" line per superblock entered, and folds
// that stream into a coverage map using the AFL edge-hash. There is no
// persistent runner here — each Exec spawns and waits for a fresh process,
// generalizing the exec.Cmd-with-piped-stderr shape the teacher uses in
// pkg/ipc and pkg/osutil.Run into a line-oriented scan instead of a
// slurp-to-[]byte read.
type TraceParse struct {
	cfg Config
}

func NewTraceParse(cfg Config) (*TraceParse, error) {
	if len(cfg.Bin) == 0 {
		return nil, fmt.Errorf("backend: empty tracer command")
	}
	return &TraceParse{cfg: cfg}, nil
}

func (tp *TraceParse) Exec(data []byte) (*coverage.Trace, bool, error) {
	cmd := exec.Command(tp.cfg.Bin[0], tp.cfg.Bin[1:]...)
	cmd.Dir = tp.cfg.WorkDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, false, fmt.Errorf("backend: stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, false, fmt.Errorf("backend: stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, false, fmt.Errorf("backend: start tracer: %w", err)
	}
	go func() {
		stdin.Write(data)
		stdin.Close()
	}()

	mapBuf := make([]byte, coverage.MapSize)
	var prev uint32

	done := make(chan error, 1)
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			m := sbLine.FindStringSubmatch(scanner.Text())
			if m == nil {
				continue
			}
			addr, err := strconv.ParseUint(m[1], 16, 64)
			if err != nil {
				continue
			}
			prev = recordEdge(mapBuf, prev, addr)
		}
	}()

	go func() { done <- cmd.Wait() }()

	if tp.cfg.Timeout > 0 {
		select {
		case err := <-done:
			<-scanDone
			return tp.finish(mapBuf, err, start)
		case <-time.After(tp.cfg.Timeout):
			cmd.Process.Kill()
			<-done
			<-scanDone
			return nil, true, nil
		}
	}
	err = <-done
	<-scanDone
	return tp.finish(mapBuf, err, start)
}

func (tp *TraceParse) finish(mapBuf []byte, waitErr error, start time.Time) (*coverage.Trace, bool, error) {
	didCrash := false
	var exitSignal, exitCode uint8
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				// Signal-terminated: exec.Cmd reports a return code of -1,
				// so the signal number comes from the wait status.
				didCrash = true
				exitSignal = uint8(ws.Signal())
			} else {
				exitCode = uint8(exitErr.ExitCode())
			}
		} else {
			return nil, false, fmt.Errorf("backend: tracer wait: %w", waitErr)
		}
	}
	duration := time.Since(start).Seconds()
	trace := coverage.NewTrace(mapBuf, didCrash, exitSignal, exitCode, duration)
	return trace, false, nil
}

func (tp *TraceParse) Close() error {
	return nil
}

var _ Backend = (*TraceParse)(nil)
