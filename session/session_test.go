package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newTestSession(t *testing.T, eng *stubEngine, opts SessionOptions) *Session {
	t.Helper()
	s, err := NewSession(eng, opts)
	if err != nil {
		t.Fatalf("NewSession error = %v", err)
	}
	t.Cleanup(func() { s.Dispose() })
	return s
}

// Scenario 1: stepping from Stopped fires target_started, calls the
// engine, and moves the session back to Stopped once the engine reports
// TargetStopped.
func TestScenario_Stepping(t *testing.T) {
	eng := newStubEngine()
	opts := DefaultSessionOptions()
	s := newTestSession(t, eng, opts)
	s.state.transition(StateStopped)

	startedCh := make(chan struct{}, 1)
	s.SubscribeStarted(func() { startedCh <- struct{}{} })
	stoppedCh := make(chan struct{}, 1)
	s.Subscribe(TargetStopped, func(TargetEvent) { stoppedCh <- struct{}{} })

	eng.onStepLine = func() error {
		// Real engines deliver TargetEvents from their own callback
		// goroutine, never from the dispatcher's worker.
		go s.NotifyTargetEvent(TargetEvent{Kind: TargetStopped})
		return nil
	}

	if err := s.StepLine(context.Background()); err != nil {
		t.Fatalf("StepLine error = %v", err)
	}

	select {
	case <-startedCh:
	case <-time.After(time.Second):
		t.Fatal("target_started was not fired")
	}
	select {
	case <-stoppedCh:
	case <-time.After(time.Second):
		t.Fatal("target_stopped was not fired")
	}
	waitFor(t, time.Second, func() bool { return s.State() == StateStopped })
}

// Scenario 2: a failed insert is logged with the location, recorded as a
// null-handle entry, and never surfaces as an error to the caller.
func TestScenario_InsertFailure(t *testing.T) {
	eng := newStubEngine()
	eng.insertErr = errUnknownLine{}
	r := NewBreakEventRegistry(eng)
	var logged string
	r.SetLogWriter(func(isStderr bool, text string) { logged = text })

	bp := NewBreakpoint("foo.cs", 42)
	r.Add(context.Background(), bp, true)

	if !strings.Contains(logged, "Could not set breakpoint at location 'foo.cs:42'") {
		t.Errorf("logged = %q, want it to mention foo.cs:42", logged)
	}
	info, ok := r.Lookup(bp)
	if !ok || !info.IsValid || info.Handle != nil {
		t.Errorf("info = %+v, %v, want IsValid=true Handle=nil", info, ok)
	}
}

type errUnknownLine struct{}

func (errUnknownLine) Error() string { return "unknown line" }

// Scenario 3: a breakpoint registered with a null handle is retried when
// its source file is reported loaded.
func TestScenario_SourceReload(t *testing.T) {
	eng := newStubEngine()
	r := NewBreakEventRegistry(eng)
	var changedCount int
	var lastInfo *BreakEventInfo
	r.SetStatusChangedHandler(func(be BreakEvent, info *BreakEventInfo) {
		changedCount++
		lastInfo = info
	})

	bp := NewBreakpoint("foo.cs", 10)
	eng.insertErr = errUnknownLine{}
	r.Add(context.Background(), bp, true)
	eng.insertErr = nil

	r.SourceFileLoaded(context.Background(), "foo.cs")

	if changedCount == 0 {
		t.Fatal("expected status-changed to fire after retry")
	}
	if lastInfo.Handle == nil {
		t.Error("expected a non-nil handle after successful retry")
	}
}

// Scenario 4: swapping the store under a running session removes every
// break event bound to the old store and (re)inserts every break event in
// the new store, firing status-changed once per affected break event.
func TestScenario_StoreSwapUnderRunningSession(t *testing.T) {
	eng := newStubEngine()
	opts := DefaultSessionOptions()
	s := newTestSession(t, eng, opts)
	s.state.MarkStarted()

	s1 := NewInMemoryStore()
	bp1 := NewBreakpoint("a.go", 1)
	bp2 := NewBreakpoint("b.go", 2)
	s1.Add(bp1)
	s1.Add(bp2)
	if err := s.BindStore(s1); err != nil {
		t.Fatalf("BindStore(s1) error = %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(eng.inserted) == 2 })

	var changed int
	var mu sync.Mutex
	s.registry.SetStatusChangedHandler(func(be BreakEvent, info *BreakEventInfo) {
		mu.Lock()
		changed++
		mu.Unlock()
	})

	s2 := NewInMemoryStore()
	bp3 := NewBreakpoint("c.go", 3)
	s2.Add(bp3)
	if err := s.BindStore(s2); err != nil {
		t.Fatalf("BindStore(s2) error = %v", err)
	}

	if len(eng.removed) != 2 {
		t.Errorf("removed = %v, want 2 engine removes", eng.removed)
	}
	if len(eng.inserted) != 3 {
		t.Errorf("inserted total = %d, want 3 (2 + 1)", len(eng.inserted))
	}
	mu.Lock()
	got := changed
	mu.Unlock()
	if got != 1 {
		t.Errorf("status-changed fired %d times for the new store's single entry, want 1", got)
	}
}

// Scenario 5: a checking_read_only call made while the session lock is
// held by a blocked engine call gets set_read_only(true) within the
// bounded wait, without blocking the caller.
func TestScenario_ReadOnlyTimeout(t *testing.T) {
	eng := newStubEngine()
	opts := DefaultSessionOptions()
	s := newTestSession(t, eng, opts)

	// Hold the session lock the way a blocking engine call would.
	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()

	var got bool
	done := make(chan struct{})
	start := time.Now()
	go func() {
		s.onCheckingReadOnly(func(v bool) { got = v })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("onCheckingReadOnly blocked far longer than the bounded wait")
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("onCheckingReadOnly took %v, want close to the 10ms bound", elapsed)
	}
	if !got {
		t.Error("expected set_read_only(true) when the lock could not be acquired")
	}
}

// Scenario 6: an engine failure mid-step is reported to the exception
// handler, a synthesized TargetStopped is delivered, the session lands in
// Stopped, and a subsequent Continue is accepted.
func TestScenario_ExitWhileStepping(t *testing.T) {
	eng := newStubEngine()
	eng.onStepLine = func() error { return errUnknownLine{} }

	var handledErr error
	opts := DefaultSessionOptions()
	opts.ExceptionHandler = func(err error) bool {
		handledErr = err
		return true
	}
	s := newTestSession(t, eng, opts)
	s.state.transition(StateStopped)

	stoppedCh := make(chan struct{}, 1)
	s.Subscribe(TargetStopped, func(TargetEvent) { stoppedCh <- struct{}{} })

	if err := s.StepLine(context.Background()); err != nil {
		t.Fatalf("StepLine error = %v", err)
	}

	select {
	case <-stoppedCh:
	case <-time.After(time.Second):
		t.Fatal("synthesized TargetStopped was not delivered")
	}
	if handledErr == nil {
		t.Error("expected the exception handler to be invoked")
	}
	waitFor(t, time.Second, func() bool { return s.State() == StateStopped })

	if err := s.Continue(context.Background()); err != nil {
		t.Errorf("Continue after recovery error = %v, want accepted", err)
	}
}

func TestNewSessionRejectsNilEngine(t *testing.T) {
	_, err := NewSession(nil, DefaultSessionOptions())
	if err != ErrNilEngine {
		t.Errorf("err = %v, want ErrNilEngine", err)
	}
}

func TestRunRejectsNilStartInfo(t *testing.T) {
	eng := newStubEngine()
	s := newTestSession(t, eng, DefaultSessionOptions())
	if err := s.Run(context.Background(), nil); err != ErrNilStartInfo {
		t.Errorf("err = %v, want ErrNilStartInfo", err)
	}
}

func TestDisposeIsIdempotentAndRejectsFurtherCommands(t *testing.T) {
	eng := newStubEngine()
	s := newTestSession(t, eng, DefaultSessionOptions())
	if err := s.Dispose(); err != nil {
		t.Fatalf("Dispose error = %v", err)
	}
	if err := s.Dispose(); err != nil {
		t.Fatalf("second Dispose error = %v", err)
	}
	if err := s.Run(context.Background(), &StartInfo{}); err != ErrDisposed {
		t.Errorf("err = %v, want ErrDisposed", err)
	}
}

func TestGetProcessesCachesUntilTargetEvent(t *testing.T) {
	eng := newStubEngine()
	calls := 0
	s := newTestSession(t, eng, DefaultSessionOptions())
	s.engine = countingProcessesEngine{stubEngine: eng, calls: &calls}

	p1, err := s.GetProcesses()
	if err != nil {
		t.Fatalf("GetProcesses error = %v", err)
	}
	p2, err := s.GetProcesses()
	if err != nil {
		t.Fatalf("GetProcesses error = %v", err)
	}
	if calls != 1 {
		t.Errorf("engine called %d times, want 1 (cached)", calls)
	}
	if len(p1) != len(p2) {
		t.Errorf("cached result changed shape between calls")
	}

	s.NotifyTargetEvent(TargetEvent{Kind: TargetStopped})
	if _, err := s.GetProcesses(); err != nil {
		t.Fatalf("GetProcesses error = %v", err)
	}
	if calls != 2 {
		t.Errorf("engine called %d times after a TargetEvent, want 2 (re-queried)", calls)
	}
}

// countingProcessesEngine wraps stubEngine to count OnGetProcesses calls;
// stubEngine's method set doesn't expose a counter of its own since it's
// shared by the registry tests above.
type countingProcessesEngine struct {
	*stubEngine
	calls *int
}

func (e countingProcessesEngine) OnGetProcesses(ctx context.Context) ([]*ProcessInfo, error) {
	*e.calls++
	return []*ProcessInfo{{ID: "1", Name: "demo"}}, nil
}
