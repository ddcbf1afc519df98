// Package memengine is an in-process session.Engine with no real
// debuggee: a scripted program counter over a fixed source listing. It
// exists for tests and for cmd/dbgsession's demo mode, so the rest of
// the session package can be exercised without a live adapter process.
package memengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/dbgsession/session"
)

// Line is one line of the scripted program this engine "runs". Variables
// holds the values visible when execution is stopped at this line, used by
// OnResolveExpression.
type Line struct {
	Text      string
	Variables map[string]string
}

// Program is the fixed source listing an Engine executes top to bottom,
// one Line per step, looping back to 0 after the last line (so a demo
// session can Continue indefinitely without ever exiting on its own —
// Exit/Stop are the only ways out, matching a long-running service
// debuggee rather than a short script).
type Program struct {
	File  string
	Lines []Line
}

type breakpointEntry struct {
	handle uuid.UUID
	bp     *session.Breakpoint
}

// Engine implements session.Engine by stepping an in-memory Program. It
// has exactly one process ("0") and one thread ("0").
type Engine struct {
	program Program

	mu          sync.Mutex
	pc          int
	breakpoints []breakpointEntry
	allowEdits  bool
}

// New creates an Engine over program. allowEdits controls
// AllowBreakEventChanges, for simulating a backend that rejects
// breakpoint edits while the debuggee is running.
func New(program Program, allowEdits bool) *Engine {
	return &Engine{program: program, allowEdits: allowEdits}
}

const processID = "0"
const threadID = "0"

func (e *Engine) currentLine() Line {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.program.Lines) == 0 {
		return Line{}
	}
	return e.program.Lines[e.pc%len(e.program.Lines)]
}

func (e *Engine) breakpointAtPC() (*session.Breakpoint, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range e.breakpoints {
		if b.bp.Enabled() && b.bp.Line == e.pc {
			return b.bp, true
		}
	}
	return nil, false
}

// OnRun implements session.Engine.
func (e *Engine) OnRun(ctx context.Context, start *session.StartInfo) error {
	e.mu.Lock()
	e.pc = 0
	e.mu.Unlock()
	return nil
}

// OnAttach implements session.Engine. memengine has no external process to
// attach to; any non-empty id is accepted and behaves like Run.
func (e *Engine) OnAttach(ctx context.Context, processID string) error {
	return e.OnRun(ctx, nil)
}

// OnDetach implements session.Engine.
func (e *Engine) OnDetach(ctx context.Context) error { return nil }

// OnExit implements session.Engine.
func (e *Engine) OnExit(ctx context.Context) error { return nil }

// OnStop implements session.Engine.
func (e *Engine) OnStop(ctx context.Context) error { return nil }

// OnContinue implements session.Engine. It advances until the next enabled
// breakpoint, or one lap of the program if none is hit.
func (e *Engine) OnContinue(ctx context.Context) error {
	e.mu.Lock()
	n := len(e.program.Lines)
	e.mu.Unlock()
	if n == 0 {
		return fmt.Errorf("memengine: program has no lines")
	}
	for i := 0; i < n; i++ {
		e.advance()
		if _, hit := e.breakpointAtPC(); hit {
			return nil
		}
	}
	return nil
}

func (e *Engine) advance() {
	e.mu.Lock()
	e.pc = (e.pc + 1) % len(e.program.Lines)
	e.mu.Unlock()
}

// OnStepLine implements session.Engine.
func (e *Engine) OnStepLine(ctx context.Context) error {
	e.advance()
	return nil
}

// OnNextLine implements session.Engine.
func (e *Engine) OnNextLine(ctx context.Context) error {
	e.advance()
	return nil
}

// OnStepInstruction implements session.Engine.
func (e *Engine) OnStepInstruction(ctx context.Context) error {
	e.advance()
	return nil
}

// OnNextInstruction implements session.Engine.
func (e *Engine) OnNextInstruction(ctx context.Context) error {
	e.advance()
	return nil
}

// OnFinish implements session.Engine.
func (e *Engine) OnFinish(ctx context.Context) error {
	e.advance()
	return nil
}

// OnSetActiveThread implements session.Engine. memengine has a single
// thread, so any call either succeeds (thread "0") or fails.
func (e *Engine) OnSetActiveThread(ctx context.Context, pid, tid string) error {
	if pid != processID || tid != threadID {
		return fmt.Errorf("memengine: no such thread %s/%s", pid, tid)
	}
	return nil
}

// OnInsertBreakEvent implements session.Engine. Only line breakpoints are
// supported; catchpoints are accepted but never fire (memengine has no
// exception model).
func (e *Engine) OnInsertBreakEvent(ctx context.Context, be session.BreakEvent, activate bool) (session.Handle, error) {
	bp, ok := be.(*session.Breakpoint)
	if !ok {
		return uuid.New(), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if bp.Line < 0 || bp.Line >= len(e.program.Lines) {
		return nil, fmt.Errorf("memengine: line %d out of range", bp.Line)
	}
	handle := uuid.New()
	e.breakpoints = append(e.breakpoints, breakpointEntry{handle: handle, bp: bp})
	return handle, nil
}

// OnRemoveBreakEvent implements session.Engine.
func (e *Engine) OnRemoveBreakEvent(ctx context.Context, handle session.Handle) error {
	id, ok := handle.(uuid.UUID)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, b := range e.breakpoints {
		if b.handle == id {
			e.breakpoints = append(e.breakpoints[:i], e.breakpoints[i+1:]...)
			return nil
		}
	}
	return nil
}

// OnUpdateBreakEvent implements session.Engine.
func (e *Engine) OnUpdateBreakEvent(ctx context.Context, handle session.Handle, be session.BreakEvent) (session.Handle, error) {
	return handle, nil
}

// OnEnableBreakEvent implements session.Engine.
func (e *Engine) OnEnableBreakEvent(ctx context.Context, handle session.Handle, enabled bool) error {
	return nil
}

// AllowBreakEventChanges implements session.Engine.
func (e *Engine) AllowBreakEventChanges() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allowEdits
}

// OnGetProcesses implements session.Engine.
func (e *Engine) OnGetProcesses(ctx context.Context) ([]*session.ProcessInfo, error) {
	return []*session.ProcessInfo{{ID: processID, Name: e.program.File}}, nil
}

// OnGetThreads implements session.Engine.
func (e *Engine) OnGetThreads(ctx context.Context, pid string) ([]*session.ThreadInfo, error) {
	if pid != processID {
		return nil, fmt.Errorf("memengine: no such process %s", pid)
	}
	line := e.currentLine()
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	return []*session.ThreadInfo{{
		ID: threadID, Name: "main", ProcessID: processID,
		SourceFile: e.program.File, SourceLine: pc, FunctionStack: line.Text,
	}}, nil
}

// OnGetThreadBacktrace implements session.Engine. memengine has no call
// stack beyond the current line, so the backtrace is always one frame.
func (e *Engine) OnGetThreadBacktrace(ctx context.Context, pid, tid string) (*session.Backtrace, error) {
	if pid != processID || tid != threadID {
		return nil, fmt.Errorf("memengine: no such thread %s/%s", pid, tid)
	}
	line := e.currentLine()
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	return &session.Backtrace{
		Frames: []session.StackFrame{{Index: 0, FunctionName: line.Text, File: e.program.File, Line: pc}},
	}, nil
}

// OnDisassembleFile implements session.Engine. memengine has no
// instruction-level representation of its scripted lines.
func (e *Engine) OnDisassembleFile(ctx context.Context, path string) ([]session.AssemblyLine, error) {
	return nil, nil
}

// OnResolveExpression implements session.Engine, looking expr up in the
// current line's Variables map.
func (e *Engine) OnResolveExpression(ctx context.Context, expr, location string) (string, error) {
	line := e.currentLine()
	if v, ok := line.Variables[expr]; ok {
		return v, nil
	}
	return "", fmt.Errorf("memengine: %q is not defined at %s", expr, location)
}

// OnCancelAsyncEvaluations implements session.Engine.
func (e *Engine) OnCancelAsyncEvaluations(ctx context.Context) error { return nil }

// CanCancelAsyncEvaluations implements session.Engine.
func (e *Engine) CanCancelAsyncEvaluations() bool { return false }

var _ session.Engine = (*Engine)(nil)
