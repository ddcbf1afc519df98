package session

import "time"

// SteppingGranularity controls whether step/next commands operate on
// source lines or machine instructions.
type SteppingGranularity int

const (
	GranularityLine SteppingGranularity = iota
	GranularityInstruction
)

// EvaluationOptions bounds expression evaluation behavior. This is the one
// part of SessionOptions that may be swapped after the session has
// started, unlike the rest of SessionOptions which is immutable once the
// session is running.
type EvaluationOptions struct {
	Timeout             time.Duration
	AllowMethodInvoke    bool
	MemberVisibility    string // e.g. "public", "public+internal", "all"
}

// DefaultEvaluationOptions returns conservative evaluation defaults.
func DefaultEvaluationOptions() EvaluationOptions {
	return EvaluationOptions{
		Timeout:          2 * time.Second,
		AllowMethodInvoke: false,
		MemberVisibility: "public",
	}
}

// AttachPreferences controls how Attach chooses and validates a target
// process.
type AttachPreferences struct {
	// RequireDebugSymbols rejects attaching to a process with no
	// resolvable symbols up front, rather than discovering it later.
	RequireDebugSymbols bool
	// SuspendOnAttach asks the engine to stop the process immediately
	// after attach instead of leaving it running.
	SuspendOnAttach bool
}

// SessionOptions configures a Session. It is immutable once the session
// has started, except for Evaluation which may be swapped at any time via
// Session.SetEvaluationOptions.
type SessionOptions struct {
	UseOperationThread bool
	Stepping           SteppingGranularity
	Evaluation         EvaluationOptions
	Attach             AttachPreferences

	// ExceptionHandler receives every engine-call failure. It returns
	// true if the failure was handled (informational only; the session
	// always recovers regardless of the return value).
	ExceptionHandler func(error) bool

	// BreakpointTraceHandler is invoked when a tracepoint/log point
	// fires, with the rendered trace text.
	BreakpointTraceHandler func(be BreakEvent, text string)

	// TypeResolverHandler resolves a bare identifier to its qualified
	// form for a given location string.
	TypeResolverHandler ResolverHook

	// GetExpressionEvaluator resolves a file extension to an Evaluator.
	GetExpressionEvaluator EvaluatorLookup

	// CustomBreakEventHitHandler lets the UI intercept a break event hit
	// tagged with a custom action id (e.g. "run a script instead of
	// stopping"). Returning true suppresses the default stop behavior.
	CustomBreakEventHitHandler func(actionID string, be BreakEvent) bool

	// OutputWriter receives debuggee stdout/stderr.
	OutputWriter func(isStderr bool, text string)

	// LogWriter receives session/debugger-internal diagnostic lines
	// (bind failures, resolver exceptions, ...).
	LogWriter func(isStderr bool, text string)

	// PathEqual overrides how BreakEventRegistry matches source paths on
	// source-file-loaded/unloaded. Nil selects the default
	// filepath.Clean + exact comparison.
	PathEqual PathEqual
}

// DefaultSessionOptions returns the options a new Session uses unless
// overridden: a worker-thread dispatcher, line-granularity stepping, and
// conservative evaluation limits.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		UseOperationThread: true,
		Stepping:           GranularityLine,
		Evaluation:         DefaultEvaluationOptions(),
	}
}
