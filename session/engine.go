package session

import "context"

// Handle is an opaque backend-assigned identifier for an installed break
// event. Implementations may use integers, strings, or composite tokens;
// equality is whatever the concrete type's == operator does, so backends
// that hand out non-comparable handles must wrap them in a comparable
// box (a pointer or a string key) before returning them.
type Handle any

// StartInfo carries the information needed to launch a debuggee.
type StartInfo struct {
	Command    string
	Args       []string
	Env        map[string]string
	WorkingDir string
}

// AssemblyLine is one disassembled instruction.
type AssemblyLine struct {
	Address     uint64
	Instruction string
	SourceLine  int
}

// Engine is the abstract debugging backend. Concrete implementations
// (native, managed, or remote-protocol debuggers) satisfy this interface;
// the session package never depends on a specific one. Every method may
// block and must be safe to call without the session lock held — the
// Dispatcher guarantees it never holds that lock across an Engine call.
type Engine interface {
	// Lifecycle
	OnRun(ctx context.Context, start *StartInfo) error
	OnAttach(ctx context.Context, processID string) error
	OnDetach(ctx context.Context) error
	OnExit(ctx context.Context) error
	OnStop(ctx context.Context) error

	// Execution control
	OnContinue(ctx context.Context) error
	OnStepLine(ctx context.Context) error
	OnNextLine(ctx context.Context) error
	OnStepInstruction(ctx context.Context) error
	OnNextInstruction(ctx context.Context) error
	OnFinish(ctx context.Context) error
	OnSetActiveThread(ctx context.Context, processID, threadID string) error

	// Break events
	OnInsertBreakEvent(ctx context.Context, be BreakEvent, activate bool) (Handle, error)
	OnRemoveBreakEvent(ctx context.Context, handle Handle) error
	OnUpdateBreakEvent(ctx context.Context, handle Handle, be BreakEvent) (Handle, error)
	OnEnableBreakEvent(ctx context.Context, handle Handle, enabled bool) error
	AllowBreakEventChanges() bool

	// Introspection
	OnGetProcesses(ctx context.Context) ([]*ProcessInfo, error)
	OnGetThreads(ctx context.Context, processID string) ([]*ThreadInfo, error)
	OnGetThreadBacktrace(ctx context.Context, processID, threadID string) (*Backtrace, error)
	// OnDisassembleFile may return (nil, nil) when disassembly is not
	// available for path.
	OnDisassembleFile(ctx context.Context, path string) ([]AssemblyLine, error)

	// Evaluation
	OnResolveExpression(ctx context.Context, expr, location string) (string, error)
	OnCancelAsyncEvaluations(ctx context.Context) error
	CanCancelAsyncEvaluations() bool
}
