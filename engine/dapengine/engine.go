// Package dapengine implements session.Engine over the Debug Adapter
// Protocol, wrapping a dap.Client and a per-language adapters.Adapter.
package dapengine

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/dbgsession/engine/dapengine/adapters"
	"github.com/dshills/dbgsession/engine/dapengine/dap"
	"github.com/dshills/dbgsession/session"
)

// Notifier is the subset of *session.Session the engine calls back into
// when the debug adapter pushes an event. *session.Session satisfies this
// interface; it is expressed separately so the engine package does not
// need a cyclic import of the concrete Session constructor.
type Notifier interface {
	NotifyTargetEvent(session.TargetEvent)
	NotifyStarted()
	NotifyTargetOutput(isStderr bool, text string)
	NotifyDebuggerOutput(isStderr bool, text string)
	NotifySourceFileLoaded(path string)
	NotifySourceFileUnloaded(path string)
	SetBusyState(session.BusyState)
}

// trackedBreakpoint pairs a live session.Breakpoint with the DAP-assigned
// handle last reported for it. DAP has no per-breakpoint insert/remove: a
// change to any breakpoint in a file resends the file's whole list, so the
// engine must keep its own per-file bookkeeping to translate that back
// into the handle-oriented contract session.Engine expects.
type trackedBreakpoint struct {
	handle   uuid.UUID
	bp       *session.Breakpoint
	verified bool
}

// Engine implements session.Engine by driving a dap.Client built from an
// adapters.Adapter configuration.
type Engine struct {
	adapter  adapters.Adapter
	client   *dap.Client
	notifier Notifier

	mu              sync.Mutex
	fileBreakpoints map[string][]*trackedBreakpoint
	byHandle        map[uuid.UUID]string // handle -> file, for remove/update/enable
	exceptionTypes  map[string]*session.Catchpoint
	activeThread    int

	allowChanges bool
}

// New creates an Engine for the given adapter. Bind must be called before
// Run/Attach so the engine has somewhere to deliver callbacks.
func New(adapter adapters.Adapter) *Engine {
	return &Engine{
		adapter:         adapter,
		fileBreakpoints: make(map[string][]*trackedBreakpoint),
		byHandle:        make(map[uuid.UUID]string),
		exceptionTypes:  make(map[string]*session.Catchpoint),
		allowChanges:    true,
	}
}

// Bind attaches the session that will receive this engine's callbacks. It
// must be called exactly once, after the Session has been constructed with
// this Engine.
func (e *Engine) Bind(n Notifier) { e.notifier = n }

func (e *Engine) connect(ctx context.Context) error {
	var transport dap.Transport
	switch e.adapter.GetConnectionType() {
	case "socket":
		if err := adapters.WaitForPort(ctx, "127.0.0.1", portFromAddress(e.adapter.GetAddress())); err != nil {
			return fmt.Errorf("wait for adapter port: %w", err)
		}
		t, err := dap.NewSocketTransport(e.adapter.GetAddress())
		if err != nil {
			return fmt.Errorf("dial adapter: %w", err)
		}
		transport = t
	default:
		cmd, err := e.adapter.GetCommand()
		if err != nil {
			return fmt.Errorf("build adapter command: %w", err)
		}
		t, err := dap.NewStdioTransport(cmd)
		if err != nil {
			return fmt.Errorf("start adapter: %w", err)
		}
		transport = t
	}

	e.client = dap.NewClient(transport)
	e.installHandlers()

	if _, err := e.client.Initialize(ctx, dap.InitializeRequestArguments{
		AdapterID:      string(e.adapter.Type()),
		LinesStartAt1:  true,
		ColumnsStartAt1: true,
		PathFormat:     "path",
	}); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

func (e *Engine) installHandlers() {
	e.client.OnInitialized(func() {
		if err := e.client.ConfigurationDone(context.Background()); err != nil {
			e.notifier.NotifyDebuggerOutput(true, fmt.Sprintf("configurationDone: %v", err))
		}
	})
	e.client.OnStopped(func(body dap.StoppedEventBody) {
		e.notifier.NotifyTargetEvent(session.TargetEvent{Kind: stopReasonToKind(body.Reason)})
	})
	e.client.OnExited(func(dap.ExitedEventBody) {
		e.notifier.NotifyTargetEvent(session.TargetEvent{Kind: session.TargetExited})
	})
	e.client.OnTerminated(func(dap.TerminatedEventBody) {
		e.notifier.NotifyTargetEvent(session.TargetEvent{Kind: session.TargetExited})
	})
	e.client.OnThread(func(body dap.ThreadEventBody) {
		kind := session.ThreadStarted
		if body.Reason == "exited" {
			kind = session.ThreadStopped
		}
		e.notifier.NotifyTargetEvent(session.TargetEvent{Kind: kind})
	})
	e.client.OnOutput(func(body dap.OutputEventBody) {
		if body.Source != nil && body.Source.Path != "" {
			// loadedSource-adjacent output referencing a path; most
			// adapters instead use the dedicated loadedSource event, so
			// this is best-effort only.
			return
		}
		e.notifier.NotifyTargetOutput(body.Category == "stderr", body.Output)
	})
	e.client.OnLoadedSource(func(body dap.LoadedSourceEventBody) {
		switch body.Reason {
		case "new", "changed":
			e.notifier.NotifySourceFileLoaded(body.Source.Path)
		case "removed":
			e.notifier.NotifySourceFileUnloaded(body.Source.Path)
		}
	})
	e.client.OnProcess(func(dap.ProcessEventBody) {
		e.notifier.NotifyStarted()
		e.notifier.NotifyTargetEvent(session.TargetEvent{Kind: session.TargetReady})
	})
}

func stopReasonToKind(reason string) session.TargetEventKind {
	switch reason {
	case "breakpoint":
		return session.TargetHitBreakpoint
	case "exception":
		return session.TargetExceptionThrown
	case "pause":
		return session.TargetInterrupted
	default:
		return session.TargetStopped
	}
}

func portFromAddress(addr string) int {
	_, portStr, err := splitHostPort(addr)
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(portStr)
	return p
}

// splitHostPort avoids importing net solely for this helper in two places.
func splitHostPort(addr string) (host, port string, err error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("no port in address %q", addr)
}

// OnRun implements session.Engine.
func (e *Engine) OnRun(ctx context.Context, start *session.StartInfo) error {
	if err := e.connect(ctx); err != nil {
		return err
	}
	args, err := e.adapter.GetLaunchArgs()
	if err != nil {
		return fmt.Errorf("build launch args: %w", err)
	}
	_ = start // adapter configuration (program/args/env) is fixed at construction
	return e.client.Launch(ctx, args)
}

// OnAttach implements session.Engine.
func (e *Engine) OnAttach(ctx context.Context, processID string) error {
	if err := e.connect(ctx); err != nil {
		return err
	}
	args, err := e.adapter.GetAttachArgs()
	if err != nil {
		return fmt.Errorf("build attach args: %w", err)
	}
	return e.client.Attach(ctx, args)
}

// OnDetach implements session.Engine.
func (e *Engine) OnDetach(ctx context.Context) error {
	return e.client.Disconnect(ctx, dap.DisconnectArguments{TerminateDebuggee: false})
}

// OnExit implements session.Engine.
func (e *Engine) OnExit(ctx context.Context) error {
	return e.client.Terminate(ctx, dap.TerminateArguments{})
}

// OnStop implements session.Engine.
func (e *Engine) OnStop(ctx context.Context) error {
	return e.client.Pause(ctx, dap.PauseArguments{ThreadID: e.activeThreadID()})
}

// OnContinue implements session.Engine.
func (e *Engine) OnContinue(ctx context.Context) error {
	_, err := e.client.Continue(ctx, dap.ContinueArguments{ThreadID: e.activeThreadID()})
	return err
}

// OnStepLine implements session.Engine.
func (e *Engine) OnStepLine(ctx context.Context) error {
	return e.client.StepIn(ctx, dap.StepInArguments{ThreadID: e.activeThreadID(), Granularity: "line"})
}

// OnNextLine implements session.Engine.
func (e *Engine) OnNextLine(ctx context.Context) error {
	return e.client.Next(ctx, dap.NextArguments{ThreadID: e.activeThreadID(), Granularity: "line"})
}

// OnStepInstruction implements session.Engine.
func (e *Engine) OnStepInstruction(ctx context.Context) error {
	return e.client.StepIn(ctx, dap.StepInArguments{ThreadID: e.activeThreadID(), Granularity: "instruction"})
}

// OnNextInstruction implements session.Engine.
func (e *Engine) OnNextInstruction(ctx context.Context) error {
	return e.client.Next(ctx, dap.NextArguments{ThreadID: e.activeThreadID(), Granularity: "instruction"})
}

// OnFinish implements session.Engine.
func (e *Engine) OnFinish(ctx context.Context) error {
	return e.client.StepOut(ctx, dap.StepOutArguments{ThreadID: e.activeThreadID()})
}

// OnSetActiveThread implements session.Engine.
func (e *Engine) OnSetActiveThread(ctx context.Context, processID, threadID string) error {
	e.mu.Lock()
	e.activeThread, _ = strconv.Atoi(threadID)
	e.mu.Unlock()
	return nil
}

func (e *Engine) activeThreadID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeThread
}

// OnInsertBreakEvent implements session.Engine.
func (e *Engine) OnInsertBreakEvent(ctx context.Context, be session.BreakEvent, activate bool) (session.Handle, error) {
	switch v := be.(type) {
	case *session.Breakpoint:
		return e.insertBreakpoint(ctx, v)
	case *session.Catchpoint:
		return e.insertCatchpoint(ctx, v)
	default:
		return nil, fmt.Errorf("dapengine: unsupported break event type %T", be)
	}
}

func (e *Engine) insertBreakpoint(ctx context.Context, bp *session.Breakpoint) (session.Handle, error) {
	e.mu.Lock()
	handle := uuid.New()
	e.fileBreakpoints[bp.File] = append(e.fileBreakpoints[bp.File], &trackedBreakpoint{handle: handle, bp: bp})
	e.byHandle[handle] = bp.File
	e.mu.Unlock()

	if err := e.resyncFile(ctx, bp.File); err != nil {
		return nil, err
	}
	return handle, nil
}

func (e *Engine) insertCatchpoint(ctx context.Context, cp *session.Catchpoint) (session.Handle, error) {
	e.mu.Lock()
	handle := uuid.New()
	e.exceptionTypes[cp.ExceptionType] = cp
	e.mu.Unlock()

	if err := e.resyncExceptionFilters(ctx); err != nil {
		return nil, err
	}
	return handle, nil
}

// resyncFile resends the full breakpoint list for file, matching the
// adapter's response back to each tracked entry by position (the order
// DAP guarantees the response list follows the request list).
func (e *Engine) resyncFile(ctx context.Context, file string) error {
	e.mu.Lock()
	tracked := append([]*trackedBreakpoint(nil), e.fileBreakpoints[file]...)
	e.mu.Unlock()

	wire := make([]dap.SourceBreakpoint, 0, len(tracked))
	for _, t := range tracked {
		if !t.bp.Enabled() {
			continue
		}
		wire = append(wire, dap.SourceBreakpoint{
			Line:         t.bp.Line,
			Column:       t.bp.Column,
			Condition:    t.bp.Condition,
			HitCondition: t.bp.HitCountFilter,
			LogMessage:   t.bp.TraceExpression,
		})
	}

	resp, err := e.client.SetBreakpoints(ctx, dap.SetBreakpointsArguments{
		Source:      dap.Source{Path: file},
		Breakpoints: wire,
	})
	if err != nil {
		return fmt.Errorf("set breakpoints for %s: %w", file, err)
	}

	i := 0
	for _, t := range tracked {
		if !t.bp.Enabled() {
			t.verified = false
			continue
		}
		if i >= len(resp) {
			break
		}
		t.verified = resp[i].Verified
		if !resp[i].Verified && resp[i].Message != "" {
			return fmt.Errorf("%s", resp[i].Message)
		}
		i++
	}
	return nil
}

func (e *Engine) resyncExceptionFilters(ctx context.Context) error {
	e.mu.Lock()
	filters := make([]string, 0, len(e.exceptionTypes))
	for t, cp := range e.exceptionTypes {
		if cp.Enabled() {
			filters = append(filters, t)
		}
	}
	e.mu.Unlock()

	return e.client.SetExceptionBreakpoints(ctx, dap.SetExceptionBreakpointsArguments{Filters: filters})
}

// OnRemoveBreakEvent implements session.Engine.
func (e *Engine) OnRemoveBreakEvent(ctx context.Context, handle session.Handle) error {
	id, ok := handle.(uuid.UUID)
	if !ok {
		return fmt.Errorf("dapengine: %w", session.ErrNoHandle)
	}

	e.mu.Lock()
	file, ok := e.byHandle[id]
	if ok {
		delete(e.byHandle, id)
		list := e.fileBreakpoints[file]
		for i, t := range list {
			if t.handle == id {
				e.fileBreakpoints[file] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	e.mu.Unlock()

	if !ok {
		return nil
	}
	return e.resyncFile(ctx, file)
}

// OnUpdateBreakEvent implements session.Engine.
func (e *Engine) OnUpdateBreakEvent(ctx context.Context, handle session.Handle, be session.BreakEvent) (session.Handle, error) {
	bp, ok := be.(*session.Breakpoint)
	if !ok {
		return handle, nil
	}
	id, ok := handle.(uuid.UUID)
	if !ok {
		return nil, fmt.Errorf("dapengine: %w", session.ErrNoHandle)
	}

	e.mu.Lock()
	file, ok := e.byHandle[id]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("dapengine: unknown handle")
	}

	if err := e.resyncFile(ctx, file); err != nil {
		return nil, err
	}
	if file != bp.File {
		// The breakpoint moved files: drop the old tracking entry and
		// re-insert fresh under the new file.
		_ = e.OnRemoveBreakEvent(ctx, handle)
		return e.insertBreakpoint(ctx, bp)
	}
	return handle, nil
}

// OnEnableBreakEvent implements session.Engine.
func (e *Engine) OnEnableBreakEvent(ctx context.Context, handle session.Handle, enabled bool) error {
	id, ok := handle.(uuid.UUID)
	if !ok {
		return fmt.Errorf("dapengine: %w", session.ErrNoHandle)
	}
	e.mu.Lock()
	file := e.byHandle[id]
	e.mu.Unlock()
	return e.resyncFile(ctx, file)
}

// AllowBreakEventChanges implements session.Engine.
func (e *Engine) AllowBreakEventChanges() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allowChanges
}

// OnGetProcesses implements session.Engine. DAP has no multi-process
// listing request of its own; a DAP session corresponds to exactly one
// debuggee process, so this synthesizes a single-entry list.
func (e *Engine) OnGetProcesses(ctx context.Context) ([]*session.ProcessInfo, error) {
	return []*session.ProcessInfo{{ID: "0", Name: string(e.adapter.Type())}}, nil
}

// OnGetThreads implements session.Engine.
func (e *Engine) OnGetThreads(ctx context.Context, processID string) ([]*session.ThreadInfo, error) {
	threads, err := e.client.Threads(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*session.ThreadInfo, len(threads))
	for i, t := range threads {
		out[i] = &session.ThreadInfo{ID: strconv.Itoa(t.ID), Name: t.Name, ProcessID: processID}
	}
	return out, nil
}

// OnGetThreadBacktrace implements session.Engine.
func (e *Engine) OnGetThreadBacktrace(ctx context.Context, processID, threadID string) (*session.Backtrace, error) {
	tid, _ := strconv.Atoi(threadID)
	resp, err := e.client.StackTrace(ctx, dap.StackTraceArguments{ThreadID: tid})
	if err != nil {
		return nil, err
	}
	frames := make([]session.StackFrame, len(resp.StackFrames))
	for i, f := range resp.StackFrames {
		path := ""
		if f.Source != nil {
			path = f.Source.Path
		}
		frames[i] = session.StackFrame{Index: f.ID, FunctionName: f.Name, File: path, Line: f.Line, Column: f.Column}
	}
	return &session.Backtrace{Frames: frames}, nil
}

// OnDisassembleFile implements session.Engine. Disassembly is not wired to
// any of the three reference adapters (delve/nodejs/python); DAP's
// disassemble request operates on memory references from a stopped frame,
// not a bare file path, so this always reports unavailable.
func (e *Engine) OnDisassembleFile(ctx context.Context, path string) ([]session.AssemblyLine, error) {
	return nil, nil
}

// OnResolveExpression implements session.Engine via the evaluate request
// in "hover" context.
func (e *Engine) OnResolveExpression(ctx context.Context, expr, location string) (string, error) {
	resp, err := e.client.Evaluate(ctx, dap.EvaluateArguments{Expression: expr, Context: "hover"})
	if err != nil {
		return "", err
	}
	return resp.Result, nil
}

// OnCancelAsyncEvaluations implements session.Engine. DAP has no cancel
// request for evaluate; see CanCancelAsyncEvaluations.
func (e *Engine) OnCancelAsyncEvaluations(ctx context.Context) error { return nil }

// CanCancelAsyncEvaluations implements session.Engine.
func (e *Engine) CanCancelAsyncEvaluations() bool { return false }

var _ session.Engine = (*Engine)(nil)
