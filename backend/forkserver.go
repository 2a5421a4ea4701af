package backend

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/coverfuzz/coverfuzz/coverage"
)

// forksrvFD and forksrvFD+1 are the fixed descriptor numbers the
// instrumented runner expects its control pipes at, matching AFL's
// FORKSRV_FD convention.
const forksrvFD = 198

// ForkServer spawns the instrumented runner once and keeps it alive as a
// fork server: each execution asks it to fork a fresh child rather than
// paying process-startup cost per test case. Grounded on the
// handshake/request-response shape of pkg/ipc.command in the teacher, with
// the protocol's exact wire layout replaced by spec.md §4.5 and its pipes
// moved to the fixed fd numbers and on-disk FIFOs the spec names.
type ForkServer struct {
	cfg Config

	shmap *coverage.SharedMap

	inPipe  *os.File // engine's write end of forksrv_in
	outPipe *os.File // engine's read end of forksrv_out

	inputFile  *os.File
	inputPath  string
	inFIFOPath string
	outFIFOPath string

	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error
	waitMu  sync.Mutex
}

// NewForkServer creates the shared map, the on-disk FIFOs, and the input
// staging file, then spawns the runner and waits for its handshake.
func NewForkServer(cfg Config) (*ForkServer, error) {
	if len(cfg.Bin) == 0 {
		return nil, errors.New("backend: empty runner command")
	}
	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("backend: create workdir: %w", err)
	}

	shmap, err := coverage.NewSharedMap()
	if err != nil {
		return nil, fmt.Errorf("backend: shared map: %w", err)
	}

	fs := &ForkServer{
		cfg:         cfg,
		shmap:       shmap,
		inputPath:   filepath.Join(cfg.WorkDir, "__input_file"),
		inFIFOPath:  filepath.Join(cfg.WorkDir, "forksrv_in"),
		outFIFOPath: filepath.Join(cfg.WorkDir, "forksrv_out"),
		exited:      make(chan struct{}),
	}
	if err := fs.start(); err != nil {
		fs.Close()
		return nil, err
	}
	return fs, nil
}

func (fs *ForkServer) start() error {
	os.Remove(fs.inFIFOPath)
	os.Remove(fs.outFIFOPath)
	if err := syscall.Mkfifo(fs.inFIFOPath, 0600); err != nil {
		return fmt.Errorf("backend: mkfifo %s: %w", fs.inFIFOPath, err)
	}
	if err := syscall.Mkfifo(fs.outFIFOPath, 0600); err != nil {
		return fmt.Errorf("backend: mkfifo %s: %w", fs.outFIFOPath, err)
	}

	// Opening a FIFO O_RDWR never blocks waiting for a peer, regardless of
	// open order; every open below relies on that.
	var err error
	fs.inPipe, err = os.OpenFile(fs.inFIFOPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("backend: open %s: %w", fs.inFIFOPath, err)
	}
	fs.outPipe, err = os.OpenFile(fs.outFIFOPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("backend: open %s: %w", fs.outFIFOPath, err)
	}
	childIn, err := os.OpenFile(fs.inFIFOPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("backend: open %s: %w", fs.inFIFOPath, err)
	}
	defer childIn.Close()
	childOut, err := os.OpenFile(fs.outFIFOPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("backend: open %s: %w", fs.outFIFOPath, err)
	}
	defer childOut.Close()

	fs.inputFile, err = os.OpenFile(fs.inputPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("backend: create input file: %w", err)
	}

	cmd := exec.Command(fs.cfg.Bin[0], fs.cfg.Bin[1:]...)
	cmd.Dir = fs.cfg.WorkDir
	cmd.Stdin = fs.inputFile
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), fs.shmap.Env())
	cmd.ExtraFiles = fixedDescriptorFiles(childIn, childOut)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("backend: start runner: %w", err)
	}
	fs.cmd = cmd

	go func() {
		fs.waitMu.Lock()
		fs.waitErr = cmd.Wait()
		fs.waitMu.Unlock()
		close(fs.exited)
	}()

	return fs.handshake()
}

// fixedDescriptorFiles builds the ExtraFiles slice that lands in, out at
// fds forksrvFD and forksrvFD+1 in the child. os/exec only supports
// sequential duplication starting at fd 3, so every descriptor between 3
// and forksrvFD-1 is padded with duplicates of /dev/null — paid once, at
// fork-server startup, not per execution.
func fixedDescriptorFiles(in, out *os.File) []*os.File {
	filler := forksrvFD - 3
	files := make([]*os.File, filler+2)
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		devnull = os.Stdin
	}
	for i := 0; i < filler; i++ {
		files[i] = devnull
	}
	files[filler] = in
	files[filler+1] = out
	return files
}

// handshake waits for the 4 ready bytes on forksrv_out, racing against the
// runner exiting early (a fatal configuration error).
func (fs *ForkServer) handshake() error {
	read := make(chan error, 1)
	go func() {
		var buf [4]byte
		_, err := io.ReadFull(fs.outPipe, buf[:])
		read <- err
	}()
	select {
	case err := <-read:
		if err != nil {
			return fmt.Errorf("backend: forkserver handshake failed: %w", err)
		}
		return nil
	case <-fs.exited:
		fs.waitMu.Lock()
		werr := fs.waitErr
		fs.waitMu.Unlock()
		return fmt.Errorf("backend: runner exited before handshake: %w", orNil(werr))
	}
}

func orNil(err error) error {
	if err == nil {
		return errors.New("exit status 0")
	}
	return err
}

// Exec zeroes the shared map, stages the payload, requests a fork, and
// decodes the result.
func (fs *ForkServer) Exec(data []byte) (*coverage.Trace, bool, error) {
	fs.shmap.Zero()

	if err := fs.stageInput(data); err != nil {
		return nil, false, err
	}

	start := time.Now()
	var spawnSignal [4]byte
	if _, err := fs.inPipe.Write(spawnSignal[:]); err != nil {
		return nil, false, fmt.Errorf("backend: write forksrv_in: %w", err)
	}

	// The pid arrives as soon as the fork server forks the child, well
	// before the child necessarily finishes — only the status word that
	// follows is subject to the hang timeout.
	var pidBuf [4]byte
	if _, err := io.ReadFull(fs.outPipe, pidBuf[:]); err != nil {
		return nil, false, fmt.Errorf("backend: forksrv_out read pid: %w", err)
	}
	pid := binary.LittleEndian.Uint32(pidBuf[:])

	statusCh := make(chan struct {
		status uint32
		err    error
	}, 1)
	go func() {
		var statusBuf [4]byte
		_, err := io.ReadFull(fs.outPipe, statusBuf[:])
		statusCh <- struct {
			status uint32
			err    error
		}{binary.LittleEndian.Uint32(statusBuf[:]), err}
	}()

	if fs.cfg.Timeout > 0 {
		select {
		case res := <-statusCh:
			return fs.finish(res.status, res.err, start)
		case <-time.After(fs.cfg.Timeout):
			fs.killHung(int(pid))
			// The fork server still reaps and reports the now-killed
			// child; drain that status so the next Exec's pid/status
			// read isn't racing this one on the same pipe.
			<-statusCh
			return nil, true, nil
		}
	}
	res := <-statusCh
	return fs.finish(res.status, res.err, start)
}

func (fs *ForkServer) finish(status uint32, err error, start time.Time) (*coverage.Trace, bool, error) {
	if err != nil {
		return nil, false, fmt.Errorf("backend: forksrv_out read status: %w", err)
	}
	exitSignal := uint8(status & 0x7F)
	exitCode := uint8((status >> 8) & 0xFF)
	didCrash := exitSignal != 0
	duration := time.Since(start).Seconds()

	trace := coverage.NewTrace(fs.shmap.Snapshot(), didCrash, exitSignal, exitCode, duration)
	return trace, false, nil
}

// killHung kills the forked child that never reported its exit status
// within the configured timeout. Exec then waits for the status word the
// fork server reports for the killed child; the fork server itself (not the
// hung child) is what the engine keeps talking to on the next Exec, so it is
// left running.
func (fs *ForkServer) killHung(pid int) {
	if pid > 0 {
		_ = unix.Kill(pid, unix.SIGKILL)
	}
}

func (fs *ForkServer) stageInput(data []byte) error {
	if _, err := fs.inputFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("backend: seek input file: %w", err)
	}
	if _, err := fs.inputFile.Write(data); err != nil {
		return fmt.Errorf("backend: write input file: %w", err)
	}
	if err := fs.inputFile.Truncate(int64(len(data))); err != nil {
		return fmt.Errorf("backend: truncate input file: %w", err)
	}
	if _, err := fs.inputFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("backend: seek input file: %w", err)
	}
	return nil
}

// Close tears down the runner, the fifos, the input file and the shared
// map. Safe to call multiple times and safe to call after a partial
// construction failure.
func (fs *ForkServer) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if fs.cmd != nil && fs.cmd.Process != nil {
		fs.cmd.Process.Kill()
		<-fs.exited
	}
	if fs.inPipe != nil {
		record(fs.inPipe.Close())
	}
	if fs.outPipe != nil {
		record(fs.outPipe.Close())
	}
	if fs.inputFile != nil {
		record(fs.inputFile.Close())
		os.Remove(fs.inputPath)
	}
	os.Remove(fs.inFIFOPath)
	os.Remove(fs.outFIFOPath)
	if fs.shmap != nil {
		record(fs.shmap.Close())
	}
	return firstErr
}

var _ Backend = (*ForkServer)(nil)
