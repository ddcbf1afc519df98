package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// readOnlyCheckTimeout bounds how long NotifyCheckingReadOnly waits for the
// session lock before reporting read-only. A store query must never block
// on a busy dispatcher worker, so the answer defaults to read-only on
// timeout rather than waiting indefinitely.
const readOnlyCheckTimeout = 10 * time.Millisecond

// recoveryKind selects what a Session does to its state machine when a
// dispatched engine call returns an error: stepping-family commands force
// a synthesized stop, lifecycle commands force a synthesized exit, and
// everything else just reports the failure.
type recoveryKind int

const (
	recoveryNone recoveryKind = iota
	recoveryForceStopped
	recoveryForceExited
)

// Session is the coordination façade: the single entry point a UI talks
// to, wiring together the state machine, the break-event registry, the
// event bus, the dispatcher and the expression resolver cache around one
// injected Engine.
//
// Session itself holds no single giant mutex. Instead it follows a
// three-lock partition: sessionLock guards the handful of cross-cutting
// fields below (active thread, process cache, store reference, disposed
// flag) and supports a bounded-wait acquisition for the read-only check;
// outputMu separately guards the output/log writer slots; the registry and
// the state machine each carry their own lock for their own state. The
// Dispatcher's single worker goroutine is what actually gives "no other
// session mutation is observable mid-action" for commands that call the
// engine — see dispatch.go.
type Session struct {
	engine  Engine
	options SessionOptions

	state      *SessionStateMachine
	registry   *BreakEventRegistry
	bus        *EventBus
	dispatcher *Dispatcher
	resolver   *ExpressionResolverCache

	sessionLock *chanMutex

	outputMu     sync.Mutex
	outputWriter func(isStderr bool, text string)
	logWriter    func(isStderr bool, text string)

	store      BreakpointStore
	ownedStore bool
	unsub      []func()

	activeProcessID string
	activeThreadID  string

	processesCache      []*ProcessInfo
	processesCacheValid bool

	disposed bool
}

// NewSession creates a Session bound to engine, with an auto-created
// in-memory store the session owns until BindStore replaces it.
func NewSession(engine Engine, opts SessionOptions) (*Session, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}

	s := &Session{
		engine:       engine,
		options:      opts,
		state:        NewSessionStateMachine(),
		bus:          NewEventBus(),
		dispatcher:   NewDispatcher(opts.UseOperationThread),
		sessionLock:  newChanMutex(),
		outputWriter: opts.OutputWriter,
		logWriter:    opts.LogWriter,
	}

	s.registry = NewBreakEventRegistry(engine)
	s.registry.SetPathEqual(opts.PathEqual)
	s.registry.SetLogWriter(s.writeLog)
	s.registry.SetExceptionHandler(opts.ExceptionHandler)
	s.registry.SetStatusChangedHandler(func(be BreakEvent, _ *BreakEventInfo) {
		if store := s.currentStore(); store != nil {
			store.NotifyStatusChanged(be)
		}
	})

	s.resolver = NewExpressionResolverCache(opts.TypeResolverHandler, opts.GetExpressionEvaluator, nil)
	s.resolver.SetLogWriter(s.writeLog)

	if err := s.bindStore(NewInMemoryStore(), true); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Session) isDisposed() bool {
	s.sessionLock.Lock()
	d := s.disposed
	s.sessionLock.Unlock()
	return d
}

func (s *Session) currentStore() BreakpointStore {
	s.sessionLock.Lock()
	st := s.store
	s.sessionLock.Unlock()
	return st
}

func (s *Session) writeOutput(isStderr bool, text string) {
	s.outputMu.Lock()
	w := s.outputWriter
	s.outputMu.Unlock()
	if w != nil {
		w(isStderr, text)
	}
}

func (s *Session) writeLog(isStderr bool, text string) {
	s.outputMu.Lock()
	w := s.logWriter
	s.outputMu.Unlock()
	if w != nil {
		w(isStderr, text)
	}
}

// SetOutputWriter replaces the sink for debuggee stdout/stderr.
func (s *Session) SetOutputWriter(w func(isStderr bool, text string)) {
	s.outputMu.Lock()
	s.outputWriter = w
	s.outputMu.Unlock()
}

// SetLogWriter replaces the sink for session/debugger diagnostic lines.
func (s *Session) SetLogWriter(w func(isStderr bool, text string)) {
	s.outputMu.Lock()
	s.logWriter = w
	s.outputMu.Unlock()
}

// SetEvaluationOptions swaps the evaluation sub-options, the one part of
// SessionOptions allowed to change after the session has started.
func (s *Session) SetEvaluationOptions(opts EvaluationOptions) {
	s.sessionLock.Lock()
	s.options.Evaluation = opts
	s.sessionLock.Unlock()
}

// EvaluationOptions returns the current evaluation sub-options.
func (s *Session) EvaluationOptions() EvaluationOptions {
	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()
	return s.options.Evaluation
}

// State returns the session's current state.
func (s *Session) State() SessionState { return s.state.State() }

// Started reports whether the engine has completed its first handshake.
func (s *Session) Started() bool { return s.state.Started() }

// ActiveThread returns the (processID, threadID) last set via
// SetActiveThread.
func (s *Session) ActiveThread() (processID, threadID string) {
	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()
	return s.activeProcessID, s.activeThreadID
}

// Subscribe registers h for TargetEvents of kind only.
func (s *Session) Subscribe(kind TargetEventKind, h TargetEventHandler) func() {
	return s.bus.Subscribe(kind, h)
}

// SubscribeAll registers h as a catch-all TargetEvent subscriber.
func (s *Session) SubscribeAll(h TargetEventHandler) func() { return s.bus.SubscribeAll(h) }

// SubscribeStarted registers h for the target_started signal.
func (s *Session) SubscribeStarted(h TargetStartedHandler) func() { return s.bus.SubscribeStarted(h) }

// SubscribeBusyState registers h for busy_state_changed notifications.
func (s *Session) SubscribeBusyState(h BusyStateHandler) func() { return s.bus.SubscribeBusyState(h) }

// BreakEventStatus returns the current BreakEventInfo snapshot for be, if
// it is registered.
func (s *Session) BreakEventStatus(be BreakEvent) (*BreakEventInfo, bool) {
	return s.registry.Lookup(be)
}

// BindStore replaces the session's BreakpointStore, unregistering every
// break event bound to the old store before registering the new store's.
func (s *Session) BindStore(store BreakpointStore) error {
	if store == nil {
		return fmt.Errorf("session: store is required")
	}
	if s.isDisposed() {
		return ErrDisposed
	}
	return s.bindStore(store, false)
}

func (s *Session) bindStore(store BreakpointStore, owned bool) error {
	ctx := context.Background()

	s.sessionLock.Lock()
	oldStore := s.store
	oldUnsub := s.unsub
	started := s.state.Started()
	s.sessionLock.Unlock()

	if oldStore != nil {
		for _, be := range oldStore.BreakEvents() {
			s.registry.Remove(ctx, be)
		}
		for _, u := range oldUnsub {
			u()
		}
	}

	unsub := []func(){
		store.OnAdded(func(be BreakEvent) { s.onStoreAdded(be) }),
		store.OnRemoved(func(be BreakEvent) { s.onStoreRemoved(be) }),
		store.OnModified(func(be BreakEvent) { s.onStoreModified(be) }),
		store.OnEnableChanged(func(be BreakEvent) { s.onStoreEnableChanged(be) }),
		store.OnCheckingReadOnly(func(setReadOnly func(bool)) { s.onCheckingReadOnly(setReadOnly) }),
	}

	s.sessionLock.Lock()
	s.store = store
	s.ownedStore = owned
	s.unsub = unsub
	s.sessionLock.Unlock()

	for _, be := range store.BreakEvents() {
		s.registry.Add(ctx, be, started)
	}
	return nil
}

func (s *Session) onStoreAdded(be BreakEvent) {
	s.registry.Add(context.Background(), be, s.state.Started())
}

func (s *Session) onStoreRemoved(be BreakEvent) {
	s.registry.Remove(context.Background(), be)
}

func (s *Session) onStoreModified(be BreakEvent) {
	if s.registry.Adjusting() {
		return
	}
	s.registry.Update(context.Background(), be)
}

func (s *Session) onStoreEnableChanged(be BreakEvent) {
	s.registry.UpdateEnabled(context.Background(), be)
}

func (s *Session) onCheckingReadOnly(setReadOnly func(bool)) {
	if !s.sessionLock.TryLockTimeout(readOnlyCheckTimeout) {
		setReadOnly(true)
		return
	}
	defer s.sessionLock.Unlock()
	setReadOnly(!s.engine.AllowBreakEventChanges())
}

// AdjustBreakEventLocation applies an engine-driven line relocation to a
// bound breakpoint and announces it through the store, with the registry's
// reentrancy flag set so the resulting Modify callback does not loop back
// into another engine Update.
func (s *Session) AdjustBreakEventLocation(bp *Breakpoint, newLine int) {
	store := s.currentStore()
	s.registry.AdjustLocation(bp, newLine, func(int) {
		if store != nil {
			store.Modify(bp)
		}
	})
}

func (s *Session) invalidateProcessesCache() {
	s.sessionLock.Lock()
	s.processesCache = nil
	s.processesCacheValid = false
	s.sessionLock.Unlock()
}

// runCommand is the shared path for every mutating façade command: check
// disposal and the state machine's accept table, optionally raise the
// OnRunning transition, then submit the engine call to the dispatcher.
// Command-level validation errors (disposed, wrong state) are returned
// synchronously; engine-level failures surface only through the exception
// handler and forced state transitions, never through this return value,
// since with use_operation_thread=true the caller has already moved on.
func (s *Session) runCommand(ctx context.Context, cmd Command, emitRunning bool, recovery recoveryKind, fn func(ctx context.Context) error) error {
	if s.isDisposed() {
		return ErrDisposed
	}
	if !s.state.Accepts(cmd) {
		if cmd == CmdStop {
			return nil
		}
		return ErrInvalidState
	}

	if emitRunning {
		s.state.ApplyRunning()
		s.bus.PublishStarted()
	}

	s.dispatcher.Submit(func() {
		s.guardedExec(ctx, fn, recovery)
	})
	return nil
}

func (s *Session) guardedExec(ctx context.Context, fn func(ctx context.Context) error, recovery recoveryKind) {
	defer func() {
		if r := recover(); r != nil {
			s.handleEngineFailure(fmt.Errorf("engine panic: %v", r), recovery)
		}
	}()
	if err := fn(ctx); err != nil {
		s.handleEngineFailure(err, recovery)
	}
}

func (s *Session) handleEngineFailure(err error, recovery recoveryKind) {
	handled := false
	if s.options.ExceptionHandler != nil {
		handled = s.options.ExceptionHandler(err)
	}
	if !handled {
		s.writeLog(true, fmt.Sprintf("session: engine error: %v", err))
	}

	switch recovery {
	case recoveryForceStopped:
		s.state.ForceStopped()
		s.invalidateProcessesCache()
		s.bus.Publish(TargetEvent{Kind: TargetStopped})
	case recoveryForceExited:
		s.state.ForceExited()
		s.invalidateProcessesCache()
		s.bus.Publish(TargetEvent{Kind: TargetExited})
	}
}

// Run launches a new debuggee. A failure in the engine forces the session
// to StateExited.
func (s *Session) Run(ctx context.Context, start *StartInfo) error {
	if start == nil {
		return ErrNilStartInfo
	}
	return s.runCommand(ctx, CmdRun, true, recoveryForceExited, func(ctx context.Context) error {
		return s.engine.OnRun(ctx, start)
	})
}

// Attach connects to an already-running process.
func (s *Session) Attach(ctx context.Context, processID string) error {
	if processID == "" {
		return ErrEmptyProcessID
	}
	return s.runCommand(ctx, CmdAttach, true, recoveryForceExited, func(ctx context.Context) error {
		return s.engine.OnAttach(ctx, processID)
	})
}

// Detach disconnects from the debuggee without terminating it.
func (s *Session) Detach(ctx context.Context) error {
	return s.runCommand(ctx, CmdDetach, false, recoveryNone, func(ctx context.Context) error {
		return s.engine.OnDetach(ctx)
	})
}

// Continue resumes a stopped debuggee.
func (s *Session) Continue(ctx context.Context) error {
	return s.runCommand(ctx, CmdContinue, true, recoveryForceStopped, func(ctx context.Context) error {
		return s.engine.OnContinue(ctx)
	})
}

// StepLine steps one source line, descending into calls.
func (s *Session) StepLine(ctx context.Context) error {
	return s.runCommand(ctx, CmdStepLine, true, recoveryForceStopped, func(ctx context.Context) error {
		return s.engine.OnStepLine(ctx)
	})
}

// NextLine steps one source line, stepping over calls.
func (s *Session) NextLine(ctx context.Context) error {
	return s.runCommand(ctx, CmdNextLine, true, recoveryForceStopped, func(ctx context.Context) error {
		return s.engine.OnNextLine(ctx)
	})
}

// StepInstruction steps one machine instruction, descending into calls.
func (s *Session) StepInstruction(ctx context.Context) error {
	return s.runCommand(ctx, CmdStepInstruction, true, recoveryForceStopped, func(ctx context.Context) error {
		return s.engine.OnStepInstruction(ctx)
	})
}

// NextInstruction steps one machine instruction, stepping over calls.
func (s *Session) NextInstruction(ctx context.Context) error {
	return s.runCommand(ctx, CmdNextInstruction, true, recoveryForceStopped, func(ctx context.Context) error {
		return s.engine.OnNextInstruction(ctx)
	})
}

// Finish runs until the current function returns. A failure forces
// StateExited, matching run/attach.
func (s *Session) Finish(ctx context.Context) error {
	return s.runCommand(ctx, CmdFinish, true, recoveryForceExited, func(ctx context.Context) error {
		return s.engine.OnFinish(ctx)
	})
}

// SetActiveThread changes which thread subsequent stepping/backtrace
// operations target.
func (s *Session) SetActiveThread(ctx context.Context, processID, threadID string) error {
	return s.runCommand(ctx, CmdSetActiveThread, false, recoveryNone, func(ctx context.Context) error {
		if err := s.engine.OnSetActiveThread(ctx, processID, threadID); err != nil {
			return err
		}
		s.sessionLock.Lock()
		s.activeProcessID, s.activeThreadID = processID, threadID
		s.sessionLock.Unlock()
		return nil
	})
}

// Stop requests that a running debuggee pause. It is a silent no-op
// outside StateRunning, since a caller racing the debuggee's own exit
// should not see an error for asking it to stop.
func (s *Session) Stop(ctx context.Context) error {
	if !s.isDisposed() && s.State() != StateRunning {
		return nil
	}
	return s.runCommand(ctx, CmdStop, false, recoveryNone, func(ctx context.Context) error {
		return s.engine.OnStop(ctx)
	})
}

// Exit terminates the debuggee.
func (s *Session) Exit(ctx context.Context) error {
	return s.runCommand(ctx, CmdExit, false, recoveryForceExited, func(ctx context.Context) error {
		return s.engine.OnExit(ctx)
	})
}

// DisassembleFile returns the disassembly for path. Only admitted while
// Stopped; unlike the control commands above, this is a query and runs
// synchronously rather than through the dispatcher.
func (s *Session) DisassembleFile(ctx context.Context, path string) ([]AssemblyLine, error) {
	if s.isDisposed() {
		return nil, ErrDisposed
	}
	if !s.state.Accepts(CmdDisassemble) {
		return nil, ErrInvalidState
	}
	lines, err := s.engine.OnDisassembleFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("disassemble %s: %w", path, err)
	}
	return lines, nil
}

// ResolveExpression resolves a bare identifier at location, through the
// cache. Resolver errors are logged and swallowed; only the state check
// can return an error here.
func (s *Session) ResolveExpression(ctx context.Context, expression, location string) (string, error) {
	if s.isDisposed() {
		return "", ErrDisposed
	}
	if !s.state.Accepts(CmdResolveExpression) {
		return "", ErrInvalidState
	}
	return s.resolver.Resolve(ctx, expression, location), nil
}

// CancelAsyncEvaluations asks the engine to cancel any in-flight
// evaluations, fire-and-forget on the dispatcher.
func (s *Session) CancelAsyncEvaluations() {
	if s.isDisposed() {
		return
	}
	if !s.engine.CanCancelAsyncEvaluations() {
		return
	}
	s.dispatcher.Submit(func() {
		if err := s.engine.OnCancelAsyncEvaluations(context.Background()); err != nil {
			s.handleEngineFailure(err, recoveryNone)
		}
	})
}

// GetProcesses returns the debuggee process list, memoized until the next
// TargetEvent invalidates the cache.
func (s *Session) GetProcesses() ([]*ProcessInfo, error) {
	if s.isDisposed() {
		return nil, ErrDisposed
	}

	s.sessionLock.Lock()
	if s.processesCacheValid {
		cached := s.processesCache
		s.sessionLock.Unlock()
		return cached, nil
	}
	s.sessionLock.Unlock()

	procs, err := s.engine.OnGetProcesses(context.Background())
	if err != nil {
		return nil, fmt.Errorf("get processes: %w", err)
	}
	for _, p := range procs {
		attachProcess(s, p)
	}

	s.sessionLock.Lock()
	s.processesCache = procs
	s.processesCacheValid = true
	s.sessionLock.Unlock()
	return procs, nil
}

// GetThreads returns the threads of processID, each attached back to s.
func (s *Session) GetThreads(processID string) ([]*ThreadInfo, error) {
	if s.isDisposed() {
		return nil, ErrDisposed
	}
	threads, err := s.engine.OnGetThreads(context.Background(), processID)
	if err != nil {
		return nil, fmt.Errorf("get threads for process %s: %w", processID, err)
	}
	for _, t := range threads {
		attachThread(s, t)
	}
	return threads, nil
}

// GetBacktrace returns the call stack for threadID, attached back to s.
func (s *Session) GetBacktrace(processID, threadID string) (*Backtrace, error) {
	if s.isDisposed() {
		return nil, ErrDisposed
	}
	bt, err := s.engine.OnGetThreadBacktrace(context.Background(), processID, threadID)
	if err != nil {
		return nil, fmt.Errorf("get backtrace for thread %s: %w", threadID, err)
	}
	return attachBacktrace(s, bt), nil
}

// NotifyTargetEvent is the Engine's callback entry point for a TargetEvent.
// The process cache is cleared before subscribers observe the event, so a
// subscriber calling GetProcesses mid-callback never sees stale data. Must
// be called on the engine's own callback goroutine, never from inside the
// Dispatcher's worker.
func (s *Session) NotifyTargetEvent(evt TargetEvent) {
	if s.isDisposed() {
		return
	}
	attachProcess(s, evt.Process)
	attachThread(s, evt.Thread)
	attachBacktrace(s, evt.Backtrace)

	s.invalidateProcessesCache()
	s.state.ApplyTargetEvent(evt.Kind)
	s.bus.Publish(evt)
}

// NotifyStarted marks the session started and flushes any break events
// that were registered before the engine was ready to bind them.
func (s *Session) NotifyStarted() {
	if s.isDisposed() {
		return
	}
	s.state.MarkStarted()

	store := s.currentStore()
	if store == nil {
		return
	}
	ctx := context.Background()
	for _, be := range store.BreakEvents() {
		s.registry.Update(ctx, be)
	}
}

// NotifyTargetOutput forwards debuggee stdout/stderr to the output writer.
func (s *Session) NotifyTargetOutput(isStderr bool, text string) {
	s.writeOutput(isStderr, text)
}

// NotifyDebuggerOutput forwards an engine-internal diagnostic line to the
// log writer.
func (s *Session) NotifyDebuggerOutput(isStderr bool, text string) {
	s.writeLog(isStderr, text)
}

// NotifyCustomBreakEventAction lets the engine ask the UI whether a
// custom-tagged break event hit should suppress the default stop.
func (s *Session) NotifyCustomBreakEventAction(actionID string, be BreakEvent) bool {
	if s.options.CustomBreakEventHitHandler == nil {
		return false
	}
	return s.options.CustomBreakEventHitHandler(actionID, be)
}

// NotifySourceFileLoaded retries binding for break events in path.
func (s *Session) NotifySourceFileLoaded(path string) {
	if s.isDisposed() {
		return
	}
	s.registry.SourceFileLoaded(context.Background(), path)
}

// NotifySourceFileUnloaded unbinds break events in path.
func (s *Session) NotifySourceFileUnloaded(path string) {
	if s.isDisposed() {
		return
	}
	s.registry.SourceFileUnloaded(path)
}

// SetBusyState forwards an engine busy/idle transition to subscribers.
func (s *Session) SetBusyState(state BusyState) {
	s.bus.PublishBusyState(state)
}

// Dispose releases the session's store subscription and stops the
// dispatcher. It is idempotent; after Dispose every command is a no-op.
// The store itself is only ever released here, never closed — an
// auto-created store holds no resources of its own to release.
func (s *Session) Dispose() error {
	s.sessionLock.Lock()
	if s.disposed {
		s.sessionLock.Unlock()
		return nil
	}
	s.disposed = true
	unsub := s.unsub
	s.unsub = nil
	s.sessionLock.Unlock()

	for _, u := range unsub {
		if u != nil {
			u()
		}
	}
	s.registry.Clear()
	s.dispatcher.Close()
	return nil
}
