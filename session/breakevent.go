package session

import (
	"fmt"
	"sync"
)

// BreakEvent is the abstract, store-owned entity a user configures:
// a breakpoint or a catchpoint. Identity is by reference — the same
// *Breakpoint or *Catchpoint instance is what the registry and the store
// both hold, so map lookups key off a stable pointer rather than
// re-deriving identity from field values that can themselves change
// (e.g. a relocated breakpoint's line).
type BreakEvent interface {
	// Location is a short human-readable description used in log lines
	// and status text, e.g. "main.go:42" or "runtime.Error".
	Location() string

	Enabled() bool
	SetEnabled(enabled bool)

	HitCount() int
	IncrementHitCount() int
	ResetHitCount()

	LastTraceValue() string
	SetLastTraceValue(value string)

	Tag() any
	SetTag(tag any)
}

// breakEventState holds the fields common to Breakpoint and Catchpoint.
// Embedded rather than promoted through an interface method set, so each
// concrete type still owns its own mutex.
type breakEventState struct {
	mu        sync.Mutex
	enabled   bool
	hitCount  int
	lastTrace string
	tag       any
}

func newBreakEventState() breakEventState {
	return breakEventState{enabled: true}
}

func (s *breakEventState) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *breakEventState) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *breakEventState) HitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hitCount
}

func (s *breakEventState) IncrementHitCount() int {
	s.mu.Lock()
	s.hitCount++
	v := s.hitCount
	s.mu.Unlock()
	return v
}

func (s *breakEventState) ResetHitCount() {
	s.mu.Lock()
	s.hitCount = 0
	s.mu.Unlock()
}

func (s *breakEventState) LastTraceValue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTrace
}

func (s *breakEventState) SetLastTraceValue(value string) {
	s.mu.Lock()
	s.lastTrace = value
	s.mu.Unlock()
}

func (s *breakEventState) Tag() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tag
}

func (s *breakEventState) SetTag(tag any) {
	s.mu.Lock()
	s.tag = tag
	s.mu.Unlock()
}

// Breakpoint is a source-line break event, optionally conditional, with a
// hit-count filter and a trace ("log point") expression.
type Breakpoint struct {
	breakEventState

	File            string
	Line            int
	Column          int
	Condition       string
	HitCountFilter  string // e.g. ">= 3"; empty means always
	TraceExpression string // non-empty makes this a tracepoint/log point
}

// NewBreakpoint creates an enabled line breakpoint at file:line.
func NewBreakpoint(file string, line int) *Breakpoint {
	return &Breakpoint{breakEventState: newBreakEventState(), File: file, Line: line}
}

// Location implements BreakEvent.
func (b *Breakpoint) Location() string {
	if b.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", b.File, b.Line, b.Column)
	}
	return fmt.Sprintf("%s:%d", b.File, b.Line)
}

// Catchpoint stops (or traces) whenever an exception of ExceptionType is
// thrown, optionally including subclasses.
type Catchpoint struct {
	breakEventState

	ExceptionType     string
	IncludeSubclasses bool
}

// NewCatchpoint creates an enabled catchpoint for exceptionType.
func NewCatchpoint(exceptionType string, includeSubclasses bool) *Catchpoint {
	return &Catchpoint{
		breakEventState:   newBreakEventState(),
		ExceptionType:     exceptionType,
		IncludeSubclasses: includeSubclasses,
	}
}

// Location implements BreakEvent.
func (c *Catchpoint) Location() string { return c.ExceptionType }

var (
	_ BreakEvent = (*Breakpoint)(nil)
	_ BreakEvent = (*Catchpoint)(nil)
)
