package dap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// Client drives a single debug adapter over a Transport: it assigns
// sequence numbers, matches responses back to their requests, and fans
// events out to whichever On* callbacks are registered.
type Client struct {
	transport Transport
	seq       int64

	inflightMu sync.RWMutex
	inflight   map[int]*pendingCall

	callbackMu sync.RWMutex
	callbacks  eventCallbacks

	done      chan struct{}
	closeOnce sync.Once

	errMu sync.RWMutex
	err   error
}

// pendingCall is the receipt for one in-flight request: the receive loop
// fills in response/err and closes done exactly once.
type pendingCall struct {
	done      chan struct{}
	closeOnce sync.Once
	response  *Response
	err       error
}

func (p *pendingCall) resolve(resp *Response, err error) {
	p.closeOnce.Do(func() {
		p.response, p.err = resp, err
		close(p.done)
	})
}

// eventCallbacks holds one optional handler per DAP event kind, plus a
// catch-all. A nil field means no one is listening for that event.
type eventCallbacks struct {
	onInitialized    func()
	onStopped        func(StoppedEventBody)
	onContinued      func(ContinuedEventBody)
	onExited         func(ExitedEventBody)
	onTerminated     func(TerminatedEventBody)
	onThread         func(ThreadEventBody)
	onOutput         func(OutputEventBody)
	onBreakpoint     func(BreakpointEventBody)
	onModule         func(ModuleEventBody)
	onLoadedSource   func(LoadedSourceEventBody)
	onProcess        func(ProcessEventBody)
	onCapabilities   func(CapabilitiesEventBody)
	onProgressStart  func(ProgressStartEventBody)
	onProgressUpdate func(ProgressUpdateEventBody)
	onProgressEnd    func(ProgressEndEventBody)
	onAny            func(Event)
}

// NewClient starts a receive loop over transport and returns a ready
// client. The caller is responsible for sending initialize once connected.
func NewClient(transport Transport) *Client {
	c := &Client{
		transport: transport,
		inflight:  make(map[int]*pendingCall),
		done:      make(chan struct{}),
	}
	go c.receiveLoop()
	return c
}

// Close stops the receive loop and closes the underlying transport.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.transport.Close()
}

// Error reports the error (if any) that ended the receive loop.
func (c *Client) Error() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.err
}

func (c *Client) receiveLoop() {
	for {
		frame, err := c.transport.Receive()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.failInflight(err)
			return
		}
		if c.isClosed() {
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// failInflight aborts every outstanding call once the transport has died,
// so no caller blocks forever waiting on a response that will never come.
func (c *Client) failInflight(err error) {
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()

	c.inflightMu.Lock()
	calls := c.inflight
	c.inflight = make(map[int]*pendingCall)
	c.inflightMu.Unlock()

	for _, call := range calls {
		call.resolve(nil, err)
	}
}

func (c *Client) dispatch(frame *Frame) {
	var env Envelope
	if err := json.Unmarshal(frame.Content, &env); err != nil {
		return
	}
	switch env.Type {
	case "response":
		c.resolveResponse(frame.Content)
	case "event":
		c.fireEvent(frame.Content)
	}
}

func (c *Client) resolveResponse(content []byte) {
	var resp Response
	if err := json.Unmarshal(content, &resp); err != nil {
		return
	}

	c.inflightMu.Lock()
	call, ok := c.inflight[resp.RequestSeq]
	if ok {
		delete(c.inflight, resp.RequestSeq)
	}
	c.inflightMu.Unlock()

	if ok {
		call.resolve(&resp, nil)
	}
}

func (c *Client) fireEvent(content []byte) {
	var evt Event
	if err := json.Unmarshal(content, &evt); err != nil {
		return
	}

	c.callbackMu.RLock()
	cb := c.callbacks
	c.callbackMu.RUnlock()

	switch evt.Event {
	case "initialized":
		if cb.onInitialized != nil {
			cb.onInitialized()
		}
	case "stopped":
		callIfBody(cb.onStopped, evt.Body)
	case "continued":
		callIfBody(cb.onContinued, evt.Body)
	case "exited":
		callIfBody(cb.onExited, evt.Body)
	case "terminated":
		callIfBody(cb.onTerminated, evt.Body)
	case "thread":
		callIfBody(cb.onThread, evt.Body)
	case "output":
		callIfBody(cb.onOutput, evt.Body)
	case "breakpoint":
		callIfBody(cb.onBreakpoint, evt.Body)
	case "module":
		callIfBody(cb.onModule, evt.Body)
	case "loadedSource":
		callIfBody(cb.onLoadedSource, evt.Body)
	case "process":
		callIfBody(cb.onProcess, evt.Body)
	case "capabilities":
		callIfBody(cb.onCapabilities, evt.Body)
	case "progressStart":
		callIfBody(cb.onProgressStart, evt.Body)
	case "progressUpdate":
		callIfBody(cb.onProgressUpdate, evt.Body)
	case "progressEnd":
		callIfBody(cb.onProgressEnd, evt.Body)
	}

	if cb.onAny != nil {
		cb.onAny(evt)
	}
}

// callIfBody decodes body into T and invokes handler, provided both a
// handler is registered and the body decodes cleanly. A malformed body is
// dropped rather than crashing the event loop.
func callIfBody[T any](handler func(T), body json.RawMessage) {
	if handler == nil {
		return
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return
	}
	handler(v)
}

// request sends command with the given arguments and blocks until the
// matching response arrives, ctx is cancelled, or the transport fails.
func (c *Client) request(ctx context.Context, command string, args interface{}) (*Response, error) {
	seq := int(atomic.AddInt64(&c.seq, 1))

	var argsJSON json.RawMessage
	if args != nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal %s arguments: %w", command, err)
		}
		argsJSON = encoded
	}

	req := Request{
		Envelope:  Envelope{Seq: seq, Type: "request"},
		Command:   command,
		Arguments: argsJSON,
	}
	content, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", command, err)
	}

	call := &pendingCall{done: make(chan struct{})}
	c.inflightMu.Lock()
	c.inflight[seq] = call
	c.inflightMu.Unlock()

	if err := c.transport.Send(&Frame{ContentLength: len(content), Content: content}); err != nil {
		c.inflightMu.Lock()
		delete(c.inflight, seq)
		c.inflightMu.Unlock()
		return nil, fmt.Errorf("send %s request: %w", command, err)
	}

	select {
	case <-ctx.Done():
		c.inflightMu.Lock()
		delete(c.inflight, seq)
		c.inflightMu.Unlock()
		return nil, ctx.Err()
	case <-call.done:
		return call.response, call.err
	}
}

// call sends a request that carries no response body of interest, only a
// success/failure verdict (e.g. launch, pause, stepIn).
func (c *Client) call(ctx context.Context, command string, args interface{}) error {
	resp, err := c.request(ctx, command, args)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s failed: %s", command, resp.Message)
	}
	return nil
}

// callBody sends a request and decodes its response body as T.
func callBody[T any](ctx context.Context, c *Client, command string, args interface{}) (T, error) {
	var body T
	resp, err := c.request(ctx, command, args)
	if err != nil {
		return body, err
	}
	if !resp.Success {
		return body, fmt.Errorf("%s failed: %s", command, resp.Message)
	}
	if len(resp.Body) == 0 {
		return body, nil
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return body, fmt.Errorf("unmarshal %s response: %w", command, err)
	}
	return body, nil
}

// Event subscriptions. Each setter replaces any previously registered
// handler for that event; there is no multiplexing, matching how the rest
// of this client assumes a single owner per Client instance.

func (c *Client) OnInitialized(h func()) { c.setCallback(func(cb *eventCallbacks) { cb.onInitialized = h }) }
func (c *Client) OnStopped(h func(StoppedEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onStopped = h })
}
func (c *Client) OnContinued(h func(ContinuedEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onContinued = h })
}
func (c *Client) OnExited(h func(ExitedEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onExited = h })
}
func (c *Client) OnTerminated(h func(TerminatedEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onTerminated = h })
}
func (c *Client) OnThread(h func(ThreadEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onThread = h })
}
func (c *Client) OnOutput(h func(OutputEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onOutput = h })
}
func (c *Client) OnBreakpoint(h func(BreakpointEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onBreakpoint = h })
}
func (c *Client) OnModule(h func(ModuleEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onModule = h })
}
func (c *Client) OnLoadedSource(h func(LoadedSourceEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onLoadedSource = h })
}
func (c *Client) OnProcess(h func(ProcessEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onProcess = h })
}
func (c *Client) OnCapabilities(h func(CapabilitiesEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onCapabilities = h })
}
func (c *Client) OnProgressStart(h func(ProgressStartEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onProgressStart = h })
}
func (c *Client) OnProgressUpdate(h func(ProgressUpdateEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onProgressUpdate = h })
}
func (c *Client) OnProgressEnd(h func(ProgressEndEventBody)) {
	c.setCallback(func(cb *eventCallbacks) { cb.onProgressEnd = h })
}

// OnAnyEvent registers a handler invoked after every event's specific
// handler, useful for logging or forwarding raw events.
func (c *Client) OnAnyEvent(h func(Event)) { c.setCallback(func(cb *eventCallbacks) { cb.onAny = h }) }

func (c *Client) setCallback(set func(*eventCallbacks)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	set(&c.callbacks)
}

// Request methods, one per DAP command this client speaks.

func (c *Client) Initialize(ctx context.Context, args InitializeRequestArguments) (*Capabilities, error) {
	caps, err := callBody[Capabilities](ctx, c, "initialize", args)
	if err != nil {
		return nil, err
	}
	return &caps, nil
}

func (c *Client) ConfigurationDone(ctx context.Context) error {
	return c.call(ctx, "configurationDone", nil)
}

func (c *Client) Launch(ctx context.Context, args interface{}) error {
	return c.call(ctx, "launch", args)
}

func (c *Client) Attach(ctx context.Context, args interface{}) error {
	return c.call(ctx, "attach", args)
}

func (c *Client) Disconnect(ctx context.Context, args DisconnectArguments) error {
	return c.call(ctx, "disconnect", args)
}

func (c *Client) Terminate(ctx context.Context, args TerminateArguments) error {
	return c.call(ctx, "terminate", args)
}

func (c *Client) SetBreakpoints(ctx context.Context, args SetBreakpointsArguments) ([]Breakpoint, error) {
	body, err := callBody[SetBreakpointsResponseBody](ctx, c, "setBreakpoints", args)
	return body.Breakpoints, err
}

func (c *Client) SetFunctionBreakpoints(ctx context.Context, args SetFunctionBreakpointsArguments) ([]Breakpoint, error) {
	body, err := callBody[SetBreakpointsResponseBody](ctx, c, "setFunctionBreakpoints", args)
	return body.Breakpoints, err
}

func (c *Client) SetExceptionBreakpoints(ctx context.Context, args SetExceptionBreakpointsArguments) error {
	return c.call(ctx, "setExceptionBreakpoints", args)
}

func (c *Client) Continue(ctx context.Context, args ContinueArguments) (*ContinueResponseBody, error) {
	body, err := callBody[ContinueResponseBody](ctx, c, "continue", args)
	if err != nil {
		return nil, err
	}
	return &body, nil
}

func (c *Client) Next(ctx context.Context, args NextArguments) error {
	return c.call(ctx, "next", args)
}

func (c *Client) StepIn(ctx context.Context, args StepInArguments) error {
	return c.call(ctx, "stepIn", args)
}

func (c *Client) StepOut(ctx context.Context, args StepOutArguments) error {
	return c.call(ctx, "stepOut", args)
}

func (c *Client) Pause(ctx context.Context, args PauseArguments) error {
	return c.call(ctx, "pause", args)
}

func (c *Client) Threads(ctx context.Context) ([]Thread, error) {
	body, err := callBody[ThreadsResponseBody](ctx, c, "threads", nil)
	return body.Threads, err
}

func (c *Client) StackTrace(ctx context.Context, args StackTraceArguments) (*StackTraceResponseBody, error) {
	body, err := callBody[StackTraceResponseBody](ctx, c, "stackTrace", args)
	if err != nil {
		return nil, err
	}
	return &body, nil
}

func (c *Client) Scopes(ctx context.Context, args ScopesArguments) ([]Scope, error) {
	body, err := callBody[ScopesResponseBody](ctx, c, "scopes", args)
	return body.Scopes, err
}

func (c *Client) Variables(ctx context.Context, args VariablesArguments) ([]Variable, error) {
	body, err := callBody[VariablesResponseBody](ctx, c, "variables", args)
	return body.Variables, err
}

func (c *Client) SetVariable(ctx context.Context, args SetVariableArguments) (*SetVariableResponseBody, error) {
	body, err := callBody[SetVariableResponseBody](ctx, c, "setVariable", args)
	if err != nil {
		return nil, err
	}
	return &body, nil
}

func (c *Client) Evaluate(ctx context.Context, args EvaluateArguments) (*EvaluateResponseBody, error) {
	body, err := callBody[EvaluateResponseBody](ctx, c, "evaluate", args)
	if err != nil {
		return nil, err
	}
	return &body, nil
}

func (c *Client) Source(ctx context.Context, args SourceArguments) (*SourceResponseBody, error) {
	body, err := callBody[SourceResponseBody](ctx, c, "source", args)
	if err != nil {
		return nil, err
	}
	return &body, nil
}
