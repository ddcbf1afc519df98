package session

// ProcessInfo, ThreadInfo and Backtrace are value objects returned by the
// Engine. The session attaches a weak back-reference to each one it hands
// out so later calls (ThreadInfo.Backtrace, ProcessInfo.Threads) can route
// back through the façade without the caller needing to keep the Session
// around explicitly.

// ProcessInfo describes a debuggee process.
type ProcessInfo struct {
	ID   string
	Name string

	session *Session
}

// Threads fetches the threads of this process through the owning session.
// It fails if the ProcessInfo was constructed without a session attached.
func (p *ProcessInfo) Threads() ([]*ThreadInfo, error) {
	if p.session == nil {
		return nil, ErrDisposed
	}
	return p.session.GetThreads(p.ID)
}

// ThreadInfo describes a debuggee thread.
type ThreadInfo struct {
	ID            string
	Name          string
	ProcessID     string
	SourceFile    string
	SourceLine    int
	FunctionStack string

	session *Session
}

// Backtrace fetches the call stack for this thread through the owning
// session.
func (t *ThreadInfo) Backtrace() (*Backtrace, error) {
	if t.session == nil {
		return nil, ErrDisposed
	}
	return t.session.GetBacktrace(t.ProcessID, t.ID)
}

// StackFrame is one frame of a Backtrace.
type StackFrame struct {
	Index        int
	FunctionName string
	File         string
	Line         int
	Column       int
}

// Backtrace is the call stack for a stopped thread, along with a
// "current frame" cursor so a UI can walk up/down the stack without
// re-issuing a backtrace request for every frame selection.
type Backtrace struct {
	Frames  []StackFrame
	current int

	session *Session
}

// Current returns the currently selected frame. If the backtrace has no
// frames it returns the zero StackFrame.
func (b *Backtrace) Current() StackFrame {
	if b.current < 0 || b.current >= len(b.Frames) {
		return StackFrame{}
	}
	return b.Frames[b.current]
}

// CurrentIndex returns the index of the currently selected frame.
func (b *Backtrace) CurrentIndex() int { return b.current }

// SelectFrame moves the cursor to the given frame index. It reports false
// and leaves the cursor unchanged if the index is out of range.
func (b *Backtrace) SelectFrame(index int) bool {
	if index < 0 || index >= len(b.Frames) {
		return false
	}
	b.current = index
	return true
}

// Up moves the cursor one frame toward the caller (higher index).
func (b *Backtrace) Up() bool { return b.SelectFrame(b.current + 1) }

// Down moves the cursor one frame toward the callee (lower index).
func (b *Backtrace) Down() bool { return b.SelectFrame(b.current - 1) }

func attachProcess(s *Session, p *ProcessInfo) *ProcessInfo {
	if p != nil {
		p.session = s
	}
	return p
}

func attachThread(s *Session, t *ThreadInfo) *ThreadInfo {
	if t != nil {
		t.session = s
	}
	return t
}

func attachBacktrace(s *Session, b *Backtrace) *Backtrace {
	if b != nil {
		b.session = s
	}
	return b
}
