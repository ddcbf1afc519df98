package session

import "errors"

// Sentinel errors returned by the session package. Callers should use
// errors.Is to test for these rather than comparing error strings.
var (
	// ErrDisposed is returned by any command issued after Dispose.
	ErrDisposed = errors.New("session: disposed")

	// ErrInvalidState is returned when a command is not accepted by the
	// current SessionState (see SessionStateMachine.Accepts).
	ErrInvalidState = errors.New("session: command not valid in current state")

	// ErrNoHandle is returned when an operation requires a bound engine
	// handle for a BreakEvent that does not currently have one.
	ErrNoHandle = errors.New("session: break event has no engine handle")

	// ErrNilEngine is returned by NewSession when no Engine is supplied.
	ErrNilEngine = errors.New("session: engine is required")

	// ErrNilStartInfo is returned by Run when start info is nil.
	ErrNilStartInfo = errors.New("session: start info is required")

	// ErrEmptyProcessID is returned by Attach when given an empty process
	// id.
	ErrEmptyProcessID = errors.New("session: process id is required")

	// ErrReadOnlyTimeout names the case where the session lock could not
	// be acquired within the read-only check's bounded wait. The check
	// itself does not return it: it reports read-only via setReadOnly(true).
	ErrReadOnlyTimeout = errors.New("session: read-only check timed out")
)
