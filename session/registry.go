package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
)

// BreakEventInfo is the session-private counterpart to a store-owned
// BreakEvent: where (if anywhere) it is bound in the engine, and whether
// the engine currently considers it valid.
type BreakEventInfo struct {
	Handle        Handle
	IsValid       bool
	StatusMessage string
}

func newBreakEventInfo() *BreakEventInfo {
	return &BreakEventInfo{IsValid: true}
}

// Status renders the human-readable status line for a BreakEventInfo: an
// explicit StatusMessage always wins; otherwise a valid, bound break
// event reads "ok" and everything else reads "will not currently be hit".
func (i *BreakEventInfo) Status() string {
	if i.StatusMessage != "" {
		return i.StatusMessage
	}
	if i.IsValid && i.Handle != nil {
		return "ok"
	}
	return "will not currently be hit"
}

func (i *BreakEventInfo) clone() *BreakEventInfo {
	c := *i
	return &c
}

// PathEqual decides whether two source paths refer to the same file for
// the purposes of source-file-loaded/unloaded matching. The default
// compares filepath.Clean'd paths byte-for-byte on every platform;
// callers needing case-insensitive or symlink-aware matching can install
// their own via SetPathEqual.
type PathEqual func(a, b string) bool

func defaultPathEqual(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// StatusChangedHandler is invoked after a registry mutation, once the map
// itself is already consistent, so handlers never observe a half-updated
// entry.
type StatusChangedHandler func(be BreakEvent, info *BreakEventInfo)

// BreakEventRegistry maps store-owned BreakEvents to their engine-side
// binding. Mutating methods (Add/Remove/Update/...) are expected to run
// under the session lock — the Session façade serializes them through
// its Dispatcher. The registry additionally holds its own narrow mapMu:
// it is taken only to read or swap map entries, never held across an
// Engine call, so a slow bind/unbind in progress never blocks a UI
// thread asking Lookup for a status string.
type BreakEventRegistry struct {
	engine    Engine
	pathEqual PathEqual

	mapMu   sync.RWMutex
	entries map[BreakEvent]*BreakEventInfo

	// adjusting suppresses the store-modify echo that would otherwise
	// fire when the registry itself rewrites a BreakEvent's line in
	// response to an engine-driven relocation (adjustLocation).
	adjusting bool

	onStatusChanged StatusChangedHandler
	logWriter       func(isStderr bool, text string)
	exceptionHandler func(error) bool
}

// NewBreakEventRegistry creates an empty registry bound to engine.
func NewBreakEventRegistry(engine Engine) *BreakEventRegistry {
	return &BreakEventRegistry{
		engine:    engine,
		pathEqual: defaultPathEqual,
		entries:   make(map[BreakEvent]*BreakEventInfo),
	}
}

// SetPathEqual overrides the path-comparison rule used by
// SourceFileLoaded/SourceFileUnloaded.
func (r *BreakEventRegistry) SetPathEqual(eq PathEqual) {
	if eq != nil {
		r.pathEqual = eq
	}
}

// SetStatusChangedHandler installs the callback fired after a status- or
// handle-affecting mutation.
func (r *BreakEventRegistry) SetStatusChangedHandler(h StatusChangedHandler) {
	r.onStatusChanged = h
}

// SetLogWriter installs the sink for human-readable bind-failure messages.
func (r *BreakEventRegistry) SetLogWriter(w func(isStderr bool, text string)) {
	r.logWriter = w
}

// SetExceptionHandler installs the handler invoked (not for control flow,
// only for observability) when an engine break-event call fails.
func (r *BreakEventRegistry) SetExceptionHandler(h func(error) bool) {
	r.exceptionHandler = h
}

// Len reports how many break events are currently registered.
func (r *BreakEventRegistry) Len() int {
	r.mapMu.RLock()
	defer r.mapMu.RUnlock()
	return len(r.entries)
}

// Lookup returns a snapshot of the BreakEventInfo for be, if registered.
// Safe to call from a UI thread regardless of whether a bind/unbind is
// in flight on another goroutine.
func (r *BreakEventRegistry) Lookup(be BreakEvent) (*BreakEventInfo, bool) {
	r.mapMu.RLock()
	defer r.mapMu.RUnlock()
	info, ok := r.entries[be]
	if !ok {
		return nil, false
	}
	return info.clone(), true
}

// All returns a snapshot of every registered (BreakEvent, BreakEventInfo)
// pair.
func (r *BreakEventRegistry) All() map[BreakEvent]*BreakEventInfo {
	r.mapMu.RLock()
	defer r.mapMu.RUnlock()
	out := make(map[BreakEvent]*BreakEventInfo, len(r.entries))
	for be, info := range r.entries {
		out[be] = info.clone()
	}
	return out
}

func (r *BreakEventRegistry) fireStatusChanged(be BreakEvent, info *BreakEventInfo) {
	if r.onStatusChanged != nil {
		r.onStatusChanged(be, info)
	}
}

func (r *BreakEventRegistry) logBindFailure(be BreakEvent, err error) {
	if r.logWriter != nil {
		r.logWriter(true, fmt.Sprintf("Could not set breakpoint at location '%s': %v", be.Location(), err))
	}
	if r.exceptionHandler != nil {
		r.exceptionHandler(err)
	}
}

// Add registers be. If started is false the entry is recorded with no
// engine call (handle creation is deferred until the session starts).
// Otherwise the engine is asked to insert it; a failure is recorded as a
// null-handle entry and logged, never propagated to the caller — a bad
// breakpoint should not abort the rest of the session's startup.
func (r *BreakEventRegistry) Add(ctx context.Context, be BreakEvent, started bool) {
	info := newBreakEventInfo()
	r.mapMu.Lock()
	r.entries[be] = info
	r.mapMu.Unlock()

	if !started {
		return
	}

	handle, err := r.engine.OnInsertBreakEvent(ctx, be, be.Enabled())

	r.mapMu.Lock()
	if err != nil {
		info.IsValid = true
		info.Handle = nil
		info.StatusMessage = ""
	} else {
		info.Handle = handle
	}
	r.mapMu.Unlock()

	if err != nil {
		r.logBindFailure(be, err)
	}
	r.fireStatusChanged(be, info)
}

// Remove drops be from the registry, asking the engine to remove the
// bound handle first if one is recorded. Engine failures are logged but
// never prevent the map entry from being dropped.
func (r *BreakEventRegistry) Remove(ctx context.Context, be BreakEvent) {
	r.mapMu.Lock()
	info, ok := r.entries[be]
	if ok {
		delete(r.entries, be)
	}
	r.mapMu.Unlock()
	if !ok {
		return
	}

	if info.Handle != nil {
		if err := r.engine.OnRemoveBreakEvent(ctx, info.Handle); err != nil {
			r.logBindFailure(be, err)
		}
	}
}

// Update re-syncs be with the engine: if bound, it calls engine Update and
// rebinds if the returned handle differs; if unbound, it retries Insert.
// This second path is how a break event recovers after
// SourceFileLoaded re-establishes its binding.
func (r *BreakEventRegistry) Update(ctx context.Context, be BreakEvent) {
	r.mapMu.RLock()
	info, ok := r.entries[be]
	var handle Handle
	if ok {
		handle = info.Handle
	}
	r.mapMu.RUnlock()
	if !ok {
		return
	}

	if handle == nil {
		newHandle, err := r.engine.OnInsertBreakEvent(ctx, be, be.Enabled())
		if err != nil {
			r.logBindFailure(be, err)
			return
		}
		r.mapMu.Lock()
		info.Handle = newHandle
		info.IsValid = true
		r.mapMu.Unlock()
		r.fireStatusChanged(be, info)
		return
	}

	newHandle, err := r.engine.OnUpdateBreakEvent(ctx, handle, be)
	if err != nil {
		r.logBindFailure(be, err)
		return
	}
	if newHandle != handle {
		r.mapMu.Lock()
		info.Handle = newHandle
		r.mapMu.Unlock()
		r.fireStatusChanged(be, info)
	}
}

// UpdateEnabled pushes be's current Enabled() value to the engine if it
// is bound.
func (r *BreakEventRegistry) UpdateEnabled(ctx context.Context, be BreakEvent) {
	r.mapMu.RLock()
	info, ok := r.entries[be]
	var handle Handle
	if ok {
		handle = info.Handle
	}
	r.mapMu.RUnlock()
	if !ok || handle == nil {
		return
	}
	if err := r.engine.OnEnableBreakEvent(ctx, handle, be.Enabled()); err != nil {
		r.logBindFailure(be, err)
	}
}

// SetStatus is the engine-initiated counterpart to Update: the engine
// reports that a break event's validity or message changed (e.g. after
// symbol resolution). Fires status-changed only when something actually
// changed.
func (r *BreakEventRegistry) SetStatus(be BreakEvent, valid bool, msg string) {
	r.mapMu.Lock()
	info, ok := r.entries[be]
	if !ok {
		r.mapMu.Unlock()
		return
	}
	unchanged := info.IsValid == valid && info.StatusMessage == msg
	if !unchanged {
		info.IsValid = valid
		info.StatusMessage = msg
	}
	r.mapMu.Unlock()
	if !unchanged {
		r.fireStatusChanged(be, info)
	}
}

// SourceFileLoaded retries Insert for every registered break event whose
// file matches path and whose handle is currently null.
func (r *BreakEventRegistry) SourceFileLoaded(ctx context.Context, path string) {
	for _, be := range r.unboundMatching(path) {
		r.Update(ctx, be)
	}
}

// unboundMatching snapshots the break events with a nil handle whose
// file matches path, without holding mapMu across the caller's
// subsequent engine calls.
func (r *BreakEventRegistry) unboundMatching(path string) []BreakEvent {
	r.mapMu.RLock()
	defer r.mapMu.RUnlock()
	var out []BreakEvent
	for be, info := range r.entries {
		if info.Handle != nil {
			continue
		}
		bp, ok := be.(*Breakpoint)
		if !ok || !r.pathEqual(bp.File, path) {
			continue
		}
		out = append(out, be)
	}
	return out
}

// SourceFileUnloaded clears the handle (unconditionally — see
// DESIGN.md's Open Question decision) for every registered break event
// whose file matches path and currently has a handle. The engine is not
// called: the backend is assumed to have already dropped the binding.
func (r *BreakEventRegistry) SourceFileUnloaded(path string) {
	r.mapMu.Lock()
	var changed []BreakEvent
	for be, info := range r.entries {
		if info.Handle == nil {
			continue
		}
		bp, ok := be.(*Breakpoint)
		if !ok || !r.pathEqual(bp.File, path) {
			continue
		}
		info.Handle = nil
		changed = append(changed, be)
	}
	r.mapMu.Unlock()

	for _, be := range changed {
		info, ok := r.Lookup(be)
		if ok {
			r.fireStatusChanged(be, info)
		}
	}
}

// AdjustLocation applies an engine-driven line relocation to a bound
// breakpoint. It sets the reentrancy flag for the duration of the
// callback supplied by the caller (normally "write the new line into the
// store"), so the store's own modified-signal handler does not treat this
// as a user edit and loop back into Update.
func (r *BreakEventRegistry) AdjustLocation(bp *Breakpoint, newLine int, applyToStore func(newLine int)) {
	r.adjusting = true
	defer func() { r.adjusting = false }()

	bp.Line = newLine
	applyToStore(newLine)
}

// Adjusting reports whether a store-modify signal was caused by the
// registry itself (see AdjustLocation) and should therefore be ignored by
// the session's store-modified handler.
func (r *BreakEventRegistry) Adjusting() bool { return r.adjusting }

// Clear drops every entry without calling the engine — used when the
// session is disposed and the backend is already gone.
func (r *BreakEventRegistry) Clear() {
	r.mapMu.Lock()
	r.entries = make(map[BreakEvent]*BreakEventInfo)
	r.mapMu.Unlock()
}
