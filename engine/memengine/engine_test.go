package memengine

import (
	"context"
	"testing"

	"github.com/dshills/dbgsession/session"
)

func testProgram() Program {
	return Program{
		File: "demo.go",
		Lines: []Line{
			{Text: "x := 1", Variables: map[string]string{"x": "1"}},
			{Text: "y := x + 1", Variables: map[string]string{"x": "1", "y": "2"}},
			{Text: "fmt.Println(y)", Variables: map[string]string{"x": "1", "y": "2"}},
		},
	}
}

func TestRunStepsFromZero(t *testing.T) {
	e := New(testProgram(), true)
	ctx := context.Background()
	if err := e.OnStepLine(ctx); err != nil {
		t.Fatalf("OnStepLine error = %v", err)
	}
	threads, err := e.OnGetThreads(ctx, processID)
	if err != nil {
		t.Fatalf("OnGetThreads error = %v", err)
	}
	if len(threads) != 1 || threads[0].SourceLine != 1 {
		t.Fatalf("threads = %+v, want one thread at line 1", threads)
	}
}

func TestContinueStopsAtBreakpoint(t *testing.T) {
	e := New(testProgram(), true)
	ctx := context.Background()

	bp := session.NewBreakpoint("demo.go", 2)
	handle, err := e.OnInsertBreakEvent(ctx, bp, true)
	if err != nil {
		t.Fatalf("OnInsertBreakEvent error = %v", err)
	}
	if handle == nil {
		t.Fatal("expected non-nil handle")
	}

	if err := e.OnContinue(ctx); err != nil {
		t.Fatalf("OnContinue error = %v", err)
	}
	threads, err := e.OnGetThreads(ctx, processID)
	if err != nil {
		t.Fatalf("OnGetThreads error = %v", err)
	}
	if threads[0].SourceLine != 2 {
		t.Fatalf("SourceLine = %d, want 2", threads[0].SourceLine)
	}
}

func TestRemoveBreakEventStopsHitting(t *testing.T) {
	e := New(testProgram(), true)
	ctx := context.Background()

	bp := session.NewBreakpoint("demo.go", 1)
	handle, err := e.OnInsertBreakEvent(ctx, bp, true)
	if err != nil {
		t.Fatalf("OnInsertBreakEvent error = %v", err)
	}
	if err := e.OnRemoveBreakEvent(ctx, handle); err != nil {
		t.Fatalf("OnRemoveBreakEvent error = %v", err)
	}

	if err := e.OnContinue(ctx); err != nil {
		t.Fatalf("OnContinue error = %v", err)
	}
	threads, _ := e.OnGetThreads(ctx, processID)
	if threads[0].SourceLine == 1 {
		t.Fatalf("breakpoint at removed line still hit")
	}
}

func TestResolveExpression(t *testing.T) {
	e := New(testProgram(), true)
	ctx := context.Background()
	if err := e.OnStepLine(ctx); err != nil {
		t.Fatalf("OnStepLine error = %v", err)
	}

	v, err := e.OnResolveExpression(ctx, "y", "demo.go:1")
	if err != nil {
		t.Fatalf("OnResolveExpression error = %v", err)
	}
	if v != "2" {
		t.Errorf("y = %q, want 2", v)
	}

	if _, err := e.OnResolveExpression(ctx, "nope", "demo.go:1"); err == nil {
		t.Error("expected error for undefined identifier")
	}
}

func TestBacktraceAndDisassemble(t *testing.T) {
	e := New(testProgram(), true)
	ctx := context.Background()

	bt, err := e.OnGetThreadBacktrace(ctx, processID, threadID)
	if err != nil {
		t.Fatalf("OnGetThreadBacktrace error = %v", err)
	}
	if len(bt.Frames) != 1 || bt.Frames[0].File != "demo.go" {
		t.Fatalf("backtrace = %+v", bt)
	}

	asm, err := e.OnDisassembleFile(ctx, "demo.go")
	if err != nil || asm != nil {
		t.Errorf("OnDisassembleFile = %v, %v, want nil, nil", asm, err)
	}
}

func TestAllowBreakEventChanges(t *testing.T) {
	e := New(testProgram(), false)
	if e.AllowBreakEventChanges() {
		t.Error("AllowBreakEventChanges() = true, want false")
	}
}

var _ session.Engine = (*Engine)(nil)
