package dap

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeTransport is an in-memory Transport: Send hands the encoded request to
// onSend (which can synthesize a response or event), and queue feeds frames
// back out through Receive, the way a real adapter's reply stream would.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []*Frame
	recv   chan *Frame
	closed bool
	sendErr error
	recvErr error
	onSend func(*Frame)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{recv: make(chan *Frame, 10)}
}

func (t *fakeTransport) Send(frame *Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return io.ErrClosedPipe
	}
	if t.sendErr != nil {
		return t.sendErr
	}

	t.sent = append(t.sent, frame)
	if t.onSend != nil {
		t.onSend(frame)
	}
	return nil
}

func (t *fakeTransport) Receive() (*Frame, error) {
	if t.recvErr != nil {
		return nil, t.recvErr
	}
	frame, ok := <-t.recv
	if !ok {
		return nil, io.EOF
	}
	return frame, nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.recv)
	}
	return nil
}

func (t *fakeTransport) queue(frame *Frame) { t.recv <- frame }

func (t *fakeTransport) sentFrames() []*Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Frame{}, t.sent...)
}

// respondOK builds a success Response frame that echoes the request's
// command and sequence number back with the given body.
func respondOK(req Request, body any) *Frame {
	encoded, _ := json.Marshal(body)
	resp := Response{
		Envelope:   Envelope{Seq: 1, Type: "response"},
		RequestSeq: req.Seq,
		Success:    true,
		Command:    req.Command,
		Body:       encoded,
	}
	content, _ := json.Marshal(resp)
	return &Frame{ContentLength: len(content), Content: content}
}

func decodeRequest(frame *Frame) Request {
	var req Request
	json.Unmarshal(frame.Content, &req)
	return req
}

// queueEvent encodes and queues an event frame with an optional JSON body.
func queueEvent(transport *fakeTransport, name string, body any) {
	evt := Event{Envelope: Envelope{Seq: 1, Type: "event"}, Event: name}
	if body != nil {
		evt.Body, _ = json.Marshal(body)
	}
	content, _ := json.Marshal(evt)
	transport.queue(&Frame{ContentLength: len(content), Content: content})
}

func TestClientConfigurationDoneRoundTrip(t *testing.T) {
	transport := newFakeTransport()
	transport.onSend = func(frame *Frame) {
		req := decodeRequest(frame)
		transport.queue(respondOK(req, struct{}{}))
	}

	client := NewClient(transport)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.ConfigurationDone(ctx); err != nil {
		t.Fatalf("configurationDone: %v", err)
	}

	sent := transport.sentFrames()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent frame, got %d", len(sent))
	}
	req := decodeRequest(sent[0])
	if req.Command != "configurationDone" {
		t.Errorf("command = %q, want configurationDone", req.Command)
	}
	if req.Type != "request" {
		t.Errorf("type = %q, want request", req.Type)
	}
}

func TestClientInitializeReturnsAdvertisedCapabilities(t *testing.T) {
	transport := newFakeTransport()
	transport.onSend = func(frame *Frame) {
		req := decodeRequest(frame)
		transport.queue(respondOK(req, Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsFunctionBreakpoints:      true,
			SupportsConditionalBreakpoints:   true,
		}))
	}

	client := NewClient(transport)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	caps, err := client.Initialize(ctx, InitializeRequestArguments{
		ClientID:        "dbgsession",
		ClientName:      "dbgsession test",
		AdapterID:       "go",
		LinesStartAt1:   true,
		ColumnsStartAt1: true,
		PathFormat:      "path",
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !caps.SupportsConfigurationDoneRequest || !caps.SupportsFunctionBreakpoints {
		t.Errorf("capabilities not propagated from response body: %+v", caps)
	}
}

func TestClientSetBreakpointsReturnsVerdicts(t *testing.T) {
	transport := newFakeTransport()
	transport.onSend = func(frame *Frame) {
		req := decodeRequest(frame)
		transport.queue(respondOK(req, SetBreakpointsResponseBody{
			Breakpoints: []Breakpoint{
				{ID: 1, Verified: true, Line: 10},
				{ID: 2, Verified: true, Line: 20},
			},
		}))
	}

	client := NewClient(transport)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	bps, err := client.SetBreakpoints(ctx, SetBreakpointsArguments{
		Source: Source{Path: "/path/to/file.go"},
		Breakpoints: []SourceBreakpoint{
			{Line: 10},
			{Line: 20},
		},
	})
	if err != nil {
		t.Fatalf("setBreakpoints: %v", err)
	}
	if len(bps) != 2 || bps[0].Line != 10 || bps[1].Line != 20 {
		t.Fatalf("unexpected breakpoints: %+v", bps)
	}
}

func TestClientRequestFailureCarriesAdapterMessage(t *testing.T) {
	transport := newFakeTransport()
	transport.onSend = func(frame *Frame) {
		req := decodeRequest(frame)
		resp := Response{
			Envelope:   Envelope{Seq: 1, Type: "response"},
			RequestSeq: req.Seq,
			Success:    false,
			Command:    req.Command,
			Message:    "command not supported",
		}
		content, _ := json.Marshal(resp)
		transport.queue(&Frame{ContentLength: len(content), Content: content})
	}

	client := NewClient(transport)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := client.ConfigurationDone(ctx)
	if err == nil {
		t.Fatal("expected an error for a failed request")
	}
	if err.Error() != "configurationDone failed: command not supported" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestClientRequestTimesOutWithoutAResponse(t *testing.T) {
	transport := newFakeTransport()
	// No onSend hook: the request is sent and never answered.

	client := NewClient(transport)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.ConfigurationDone(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestClientDispatchesNamedEventCallbacks(t *testing.T) {
	transport := newFakeTransport()
	client := NewClient(transport)
	defer client.Close()

	var (
		gotInitialized bool
		gotStopped     StoppedEventBody
		gotOutput      OutputEventBody
	)
	client.OnInitialized(func() { gotInitialized = true })
	client.OnStopped(func(body StoppedEventBody) { gotStopped = body })
	client.OnOutput(func(body OutputEventBody) { gotOutput = body })

	queueEvent(transport, "initialized", nil)
	queueEvent(transport, "stopped", StoppedEventBody{Reason: "breakpoint", ThreadID: 1})
	queueEvent(transport, "output", OutputEventBody{Category: "stdout", Output: "Hello, World!"})

	time.Sleep(100 * time.Millisecond)

	if !gotInitialized {
		t.Error("initialized callback was not invoked")
	}
	if gotStopped.Reason != "breakpoint" || gotStopped.ThreadID != 1 {
		t.Errorf("stopped body = %+v", gotStopped)
	}
	if gotOutput.Category != "stdout" || gotOutput.Output != "Hello, World!" {
		t.Errorf("output body = %+v", gotOutput)
	}
}

func TestClientOnAnyEventSeesEveryEventInOrder(t *testing.T) {
	transport := newFakeTransport()
	client := NewClient(transport)
	defer client.Close()

	var seen []string
	client.OnAnyEvent(func(evt Event) { seen = append(seen, evt.Event) })

	for _, name := range []string{"initialized", "stopped", "continued"} {
		queueEvent(transport, name, nil)
	}
	time.Sleep(100 * time.Millisecond)

	want := []string{"initialized", "stopped", "continued"}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestClientThreadsUnwrapsResponseBody(t *testing.T) {
	transport := newFakeTransport()
	transport.onSend = func(frame *Frame) {
		req := decodeRequest(frame)
		transport.queue(respondOK(req, ThreadsResponseBody{Threads: []Thread{
			{ID: 1, Name: "main"},
			{ID: 2, Name: "worker-1"},
		}}))
	}

	client := NewClient(transport)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	threads, err := client.Threads(ctx)
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if len(threads) != 2 || threads[0].Name != "main" {
		t.Fatalf("unexpected threads: %+v", threads)
	}
}

func TestClientStackTraceUnwrapsResponseBody(t *testing.T) {
	transport := newFakeTransport()
	transport.onSend = func(frame *Frame) {
		req := decodeRequest(frame)
		transport.queue(respondOK(req, StackTraceResponseBody{
			StackFrames: []StackFrame{{
				ID:     1000,
				Name:   "main.main",
				Source: &Source{Name: "main.go", Path: "/path/to/main.go"},
				Line:   42,
				Column: 1,
			}},
			TotalFrames: 1,
		}))
	}

	client := NewClient(transport)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := client.StackTrace(ctx, StackTraceArguments{ThreadID: 1, StartFrame: 0, Levels: 20})
	if err != nil {
		t.Fatalf("stackTrace: %v", err)
	}
	if len(result.StackFrames) != 1 || result.StackFrames[0].Name != "main.main" {
		t.Fatalf("unexpected frames: %+v", result.StackFrames)
	}
	if result.StackFrames[0].Line != 42 {
		t.Errorf("line = %d, want 42", result.StackFrames[0].Line)
	}
	if result.TotalFrames != 1 {
		t.Errorf("totalFrames = %d, want 1", result.TotalFrames)
	}
}

func TestClientEvaluateUnwrapsResponseBody(t *testing.T) {
	transport := newFakeTransport()
	transport.onSend = func(frame *Frame) {
		req := decodeRequest(frame)
		transport.queue(respondOK(req, EvaluateResponseBody{
			Result:             "42",
			Type:               "int",
			VariablesReference: 0,
		}))
	}

	client := NewClient(transport)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := client.Evaluate(ctx, EvaluateArguments{Expression: "x + y", FrameID: 1000, Context: "watch"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Result != "42" || result.Type != "int" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClientAssignsMonotonicSequenceNumbers(t *testing.T) {
	transport := newFakeTransport()

	var seqs []int
	transport.onSend = func(frame *Frame) {
		req := decodeRequest(frame)
		seqs = append(seqs, req.Seq)
		transport.queue(respondOK(req, struct{}{}))
	}

	client := NewClient(transport)
	defer client.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		client.ConfigurationDone(ctx)
	}

	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("sequence numbers not strictly increasing: %v", seqs)
		}
	}
}
