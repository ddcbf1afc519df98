package session

import "testing"

func TestNewSessionStateMachineStartsIdle(t *testing.T) {
	m := NewSessionStateMachine()
	if m.State() != StateIdle {
		t.Fatalf("State() = %v, want StateIdle", m.State())
	}
	if m.Started() {
		t.Error("Started() = true for a fresh machine")
	}
}

func TestAcceptsPerState(t *testing.T) {
	m := NewSessionStateMachine()

	if !m.Accepts(CmdRun) {
		t.Error("idle state should accept CmdRun")
	}
	if m.Accepts(CmdContinue) {
		t.Error("idle state should not accept CmdContinue")
	}

	m.ApplyRunning()
	if m.State() != StateRunning {
		t.Fatalf("State() = %v, want StateRunning", m.State())
	}
	if !m.Accepts(CmdStop) {
		t.Error("running state should accept CmdStop")
	}
	if m.Accepts(CmdStepLine) {
		t.Error("running state should not accept CmdStepLine")
	}

	m.ApplyTargetEvent(TargetHitBreakpoint)
	if m.State() != StateStopped {
		t.Fatalf("State() = %v, want StateStopped", m.State())
	}
	if !m.Accepts(CmdStepLine) {
		t.Error("stopped state should accept CmdStepLine")
	}

	m.ApplyTargetEvent(TargetExited)
	if m.State() != StateExited {
		t.Fatalf("State() = %v, want StateExited", m.State())
	}
	if m.Accepts(CmdRun) {
		t.Error("exited state should accept nothing")
	}
}

func TestApplyTargetEventNonStopKindDoesNotTransition(t *testing.T) {
	m := NewSessionStateMachine()
	m.ApplyRunning()
	m.ApplyTargetEvent(TargetReady)
	if m.State() != StateRunning {
		t.Errorf("State() = %v after a non-stop event, want StateRunning unchanged", m.State())
	}
}

func TestOnChangeFiresOnTransition(t *testing.T) {
	m := NewSessionStateMachine()
	var transitions [][2]SessionState
	m.SetOnChange(func(old, new SessionState) {
		transitions = append(transitions, [2]SessionState{old, new})
	})

	m.ApplyRunning()
	m.ApplyRunning() // same state, must not re-fire
	m.ForceStopped()

	want := [][2]SessionState{
		{StateIdle, StateRunning},
		{StateRunning, StateStopped},
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestMarkStarted(t *testing.T) {
	m := NewSessionStateMachine()
	m.MarkStarted()
	if !m.Started() {
		t.Error("Started() = false after MarkStarted")
	}
	if m.State() != StateIdle {
		t.Error("MarkStarted must not itself change state")
	}
}

func TestForceExited(t *testing.T) {
	m := NewSessionStateMachine()
	m.ApplyRunning()
	m.ForceExited()
	if m.State() != StateExited {
		t.Fatalf("State() = %v, want StateExited", m.State())
	}
}
