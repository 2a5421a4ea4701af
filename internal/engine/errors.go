package engine

import "errors"

// Sentinel errors the engine and its CLI collaborator test against with
// errors.Is, in the shape of the teacher's pkg/ipc error constants.
var (
	// ErrConfigInvalid is returned by New when a RunConfig fails validation
	// (e.g. no seeds, or a missing or unknown backend).
	ErrConfigInvalid = errors.New("engine: invalid run configuration")

	// ErrForkserverExited is returned by New when the fork-server backend
	// cannot be started, including when the runner exits before completing
	// its startup handshake.
	ErrForkserverExited = errors.New("engine: forkserver exited before handshake")

	// ErrIPC wraps any other backend communication failure (short reads,
	// broken pipes) that isn't a plain timeout.
	ErrIPC = errors.New("engine: ipc failure")
)
