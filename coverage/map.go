// Package coverage implements the shared coverage bitmap (C1) and the
// per-execution trace snapshot derived from it (C2).
//
// The map is a fixed-size SysV shared memory segment, attached both by this
// process and by the instrumented target it spawns. The segment id is
// published to the child through the __AFL_SHM_ID environment variable,
// mirroring the classic AFL convention (see test_shmem.c in the original
// fuzzer source: getenv("__AFL_SHM_ID") -> shmat).
package coverage

import (
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"
)

// MapSize is the fixed number of edge-hit-count cells in the coverage map.
const MapSize = 65536

// SharedMap is a MapSize-byte region backed by SysV shared memory, readable
// and writable by this process and by exactly one live child at a time.
type SharedMap struct {
	id  int
	buf []byte
}

// NewSharedMap allocates and attaches a fresh MapSize-byte segment.
func NewSharedMap() (*SharedMap, error) {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, MapSize, unix.IPC_CREAT|0600)
	if err != nil {
		return nil, fmt.Errorf("shmget: %w", err)
	}
	buf, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, fmt.Errorf("shmat: %w", err)
	}
	// Mark the segment for destruction as soon as every attachment (ours,
	// and the target's once it attaches and exits) goes away.
	if _, err := unix.SysvShmCtl(id, unix.IPC_RMID, nil); err != nil {
		_ = unix.SysvShmDetach(buf)
		return nil, fmt.Errorf("shmctl(IPC_RMID): %w", err)
	}
	return &SharedMap{id: id, buf: buf[:MapSize]}, nil
}

// ID returns the short decimal identifier published to the child via
// __AFL_SHM_ID.
func (m *SharedMap) ID() string {
	return strconv.Itoa(m.id)
}

// Env returns the single environment-variable assignment the child process
// needs to find this segment.
func (m *SharedMap) Env() string {
	return "__AFL_SHM_ID=" + m.ID()
}

// Zero clears every cell. Must happen before each spawn (I4's precondition).
func (m *SharedMap) Zero() {
	clear(m.buf)
}

// Snapshot returns an owned copy of the map's current bytes, safe to retain
// across the next Zero/spawn cycle. The live map must never be handed out
// directly: it will be overwritten on the next spawn.
func (m *SharedMap) Snapshot() []byte {
	cp := make([]byte, MapSize)
	copy(cp, m.buf)
	return cp
}

// Close detaches the segment. Safe to call once; the segment itself was
// already marked IPC_RMID at creation time, so detaching the last
// attachment (ours) is what actually frees it.
func (m *SharedMap) Close() error {
	if m.buf == nil {
		return nil
	}
	err := unix.SysvShmDetach(m.buf)
	m.buf = nil
	if err != nil {
		return fmt.Errorf("shmdt: %w", err)
	}
	return nil
}
