// Package session implements the debugger session front-end: the
// coordination layer between a user interface and a pluggable debugging
// Engine. It owns the command/event state machine, the break-event
// registry that keeps a user-facing breakpoint store in sync with an
// imperative backend, the target-event bus, the command dispatcher, and
// the expression resolver cache.
//
// The package never talks to a concrete debugger. Callers supply an
// Engine implementation (for example the DAP-backed one in
// github.com/dshills/dbgsession/engine/dapengine) and a BreakpointStore;
// everything else — ordering guarantees, failure recovery, handle
// bookkeeping — is handled here.
package session
