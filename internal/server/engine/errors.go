package engine

import "errors"

var (
	// ErrUnavailable means the subprocess could not be spawned or never finished the handshake.
	// The handle is cleared and the next call retries startup from scratch.
	ErrUnavailable = errors.New("engine unavailable")

	// ErrCrashed means the subprocess closed its output mid-conversation
	ErrCrashed = errors.New("engine crashed")

	// ErrSearchTimeout means no terminal reply arrived within the operation deadline
	ErrSearchTimeout = errors.New("engine search timed out")

	// ErrCancelled is returned by a search interrupted through Session.Cancel
	ErrCancelled = errors.New("engine search cancelled")

	// ErrClosed is returned by sessions after Close
	ErrClosed = errors.New("engine session closed")

	// errNoOutput is a read window elapsing without a line; never surfaced to callers
	errNoOutput = errors.New("no engine output")
)
