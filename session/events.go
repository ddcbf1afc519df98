package session

import "sync"

// TargetEventKind identifies the variant of a TargetEvent.
type TargetEventKind int

const (
	TargetReady TargetEventKind = iota
	TargetStopped
	TargetInterrupted
	TargetHitBreakpoint
	TargetSignaled
	TargetExited
	TargetExceptionThrown
	TargetUnhandledException
	ThreadStarted
	ThreadStopped
)

// String returns the lower_snake_case wire name used in log output.
func (k TargetEventKind) String() string {
	switch k {
	case TargetReady:
		return "target_ready"
	case TargetStopped:
		return "target_stopped"
	case TargetInterrupted:
		return "target_interrupted"
	case TargetHitBreakpoint:
		return "target_hit_breakpoint"
	case TargetSignaled:
		return "target_signaled"
	case TargetExited:
		return "target_exited"
	case TargetExceptionThrown:
		return "target_exception_thrown"
	case TargetUnhandledException:
		return "target_unhandled_exception"
	case ThreadStarted:
		return "thread_started"
	case ThreadStopped:
		return "thread_stopped"
	default:
		return "unknown"
	}
}

// IsStopEvent reports whether receipt of this kind transitions the
// session from Running to Stopped.
func (k TargetEventKind) IsStopEvent() bool {
	switch k {
	case TargetStopped, TargetInterrupted, TargetHitBreakpoint, TargetSignaled,
		TargetExceptionThrown, TargetUnhandledException:
		return true
	default:
		return false
	}
}

// TargetEvent is the tagged variant delivered from the engine to the
// EventBus.
type TargetEvent struct {
	Kind      TargetEventKind
	Process   *ProcessInfo
	Thread    *ThreadInfo
	Backtrace *Backtrace
}

// IsStopEvent is a convenience forwarding to Kind.IsStopEvent.
func (e TargetEvent) IsStopEvent() bool { return e.Kind.IsStopEvent() }

// BusyState is delivered via busy_state_changed.
type BusyState struct {
	IsBusy      bool
	Description string
}

// TargetEventHandler receives TargetEvents, either for one specific kind
// or, if registered via SubscribeAll, for every kind.
type TargetEventHandler func(TargetEvent)

// TargetStartedHandler receives the target_started signal.
type TargetStartedHandler func()

// BusyStateHandler receives busy_state_changed notifications.
type BusyStateHandler func(BusyState)

// EventBus multiplexes engine-originated notifications to subscribers.
// Delivery is synchronous, on whatever goroutine calls Publish* — the
// engine's own callback goroutine, never the Dispatcher's worker, so a
// subscriber must not block or it stalls the engine's event loop.
// Subscribers for a specific TargetEventKind always run before the
// catch-all subscribers, and within each group callbacks fire in
// registration order.
type EventBus struct {
	mu       sync.Mutex
	byKind   map[TargetEventKind]*subscriberList[TargetEventHandler]
	catchAll subscriberList[TargetEventHandler]
	started  subscriberList[TargetStartedHandler]
	busy     subscriberList[BusyStateHandler]
}

// NewEventBus creates an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{byKind: make(map[TargetEventKind]*subscriberList[TargetEventHandler])}
}

func (b *EventBus) listFor(kind TargetEventKind) *subscriberList[TargetEventHandler] {
	b.mu.Lock()
	l, ok := b.byKind[kind]
	if !ok {
		l = &subscriberList[TargetEventHandler]{}
		b.byKind[kind] = l
	}
	b.mu.Unlock()
	return l
}

// Subscribe registers h for events of the given kind only.
func (b *EventBus) Subscribe(kind TargetEventKind, h TargetEventHandler) (unsubscribe func()) {
	return b.listFor(kind).add(h)
}

// SubscribeAll registers h as a catch-all subscriber, invoked for every
// TargetEvent kind after all kind-specific subscribers have run.
func (b *EventBus) SubscribeAll(h TargetEventHandler) (unsubscribe func()) {
	return b.catchAll.add(h)
}

// SubscribeStarted registers h for the target_started signal.
func (b *EventBus) SubscribeStarted(h TargetStartedHandler) (unsubscribe func()) {
	return b.started.add(h)
}

// SubscribeBusyState registers h for busy_state_changed notifications.
func (b *EventBus) SubscribeBusyState(h BusyStateHandler) (unsubscribe func()) {
	return b.busy.add(h)
}

// Publish delivers evt to kind-specific subscribers, then catch-all
// subscribers, in that order.
func (b *EventBus) Publish(evt TargetEvent) {
	for _, h := range b.listFor(evt.Kind).snapshot() {
		h(evt)
	}
	for _, h := range b.catchAll.snapshot() {
		h(evt)
	}
}

// PublishStarted fires the target_started signal.
func (b *EventBus) PublishStarted() {
	for _, h := range b.started.snapshot() {
		h()
	}
}

// PublishBusyState fires busy_state_changed.
func (b *EventBus) PublishBusyState(state BusyState) {
	for _, h := range b.busy.snapshot() {
		h(state)
	}
}
