// Package filestore implements session.BreakpointStore as a JSON file on
// disk, watched with fsnotify so edits made outside this process (another
// tool, a synced file, a text editor) are picked up and reflected as
// store signals the same way an in-process edit would be.
package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/dbgsession/session"
)

// persistedEvent is the on-disk shape of one break event. BreakEvent's
// enabled/hit-count/tag fields live behind unexported state, so they are
// carried here explicitly rather than relying on encoding/json to reach
// into Breakpoint/Catchpoint directly.
type persistedEvent struct {
	Kind    string `json:"kind"` // "breakpoint" or "catchpoint"
	Enabled bool   `json:"enabled"`

	File            string `json:"file,omitempty"`
	Line            int    `json:"line,omitempty"`
	Column          int    `json:"column,omitempty"`
	Condition       string `json:"condition,omitempty"`
	HitCountFilter  string `json:"hitCountFilter,omitempty"`
	TraceExpression string `json:"traceExpression,omitempty"`

	ExceptionType     string `json:"exceptionType,omitempty"`
	IncludeSubclasses bool   `json:"includeSubclasses,omitempty"`
}

func toPersisted(be session.BreakEvent) persistedEvent {
	switch v := be.(type) {
	case *session.Breakpoint:
		return persistedEvent{
			Kind: "breakpoint", Enabled: v.Enabled(),
			File: v.File, Line: v.Line, Column: v.Column,
			Condition: v.Condition, HitCountFilter: v.HitCountFilter,
			TraceExpression: v.TraceExpression,
		}
	case *session.Catchpoint:
		return persistedEvent{
			Kind: "catchpoint", Enabled: v.Enabled(),
			ExceptionType: v.ExceptionType, IncludeSubclasses: v.IncludeSubclasses,
		}
	default:
		return persistedEvent{}
	}
}

func fromPersisted(p persistedEvent) session.BreakEvent {
	switch p.Kind {
	case "breakpoint":
		bp := session.NewBreakpoint(p.File, p.Line)
		bp.Column = p.Column
		bp.Condition = p.Condition
		bp.HitCountFilter = p.HitCountFilter
		bp.TraceExpression = p.TraceExpression
		bp.SetEnabled(p.Enabled)
		return bp
	case "catchpoint":
		cp := session.NewCatchpoint(p.ExceptionType, p.IncludeSubclasses)
		cp.SetEnabled(p.Enabled)
		return cp
	default:
		return nil
	}
}

// sameEvent reports whether two persisted shapes describe the same break
// event identity (location), ignoring enabled/condition/trace fields that
// are expected to change between reloads.
func sameEvent(a, b persistedEvent) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == "breakpoint" {
		return a.File == b.File && a.Line == b.Line
	}
	return a.ExceptionType == b.ExceptionType
}

// subscription pairs a registered callback with an id so it can be
// removed without disturbing the order or identity of the others; plain
// Go func values are not comparable, so removal by equality is not an
// option.
type subscription[T any] struct {
	id int
	fn T
}

type handlerList[T any] struct {
	nextID int
	subs   []subscription[T]
}

func (l *handlerList[T]) add(fn T) (id int) {
	id = l.nextID
	l.nextID++
	l.subs = append(l.subs, subscription[T]{id: id, fn: fn})
	return id
}

func (l *handlerList[T]) remove(id int) {
	for i, s := range l.subs {
		if s.id == id {
			l.subs = append(l.subs[:i], l.subs[i+1:]...)
			return
		}
	}
}

func (l *handlerList[T]) snapshot() []T {
	out := make([]T, len(l.subs))
	for i, s := range l.subs {
		out[i] = s.fn
	}
	return out
}

// Store is a session.BreakpointStore backed by a JSON file at Path,
// watched for external changes.
type Store struct {
	path string

	mu     sync.RWMutex
	events []session.BreakEvent

	addedHandlers         handlerList[session.StoreAddedHandler]
	removedHandlers       handlerList[session.StoreRemovedHandler]
	modifiedHandlers      handlerList[session.StoreModifiedHandler]
	enableChangedHandlers handlerList[session.StoreEnableChangedHandler]
	readOnlyHandlers      handlerList[session.ReadOnlyCheckHandler]

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	// selfWrite suppresses the reload-diff logic's reaction to a write this
	// process just performed, so saving our own state doesn't get
	// interpreted as an external edit and re-fire every signal.
	selfWrite sync.Mutex
	writing   bool
}

// Open loads path if it exists (an empty store otherwise) and begins
// watching it for external changes.
func Open(path string) (*Store, error) {
	s := &Store{path: path, done: make(chan struct{})}

	if err := s.load(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("filestore: create watcher: %w", err)
	}
	s.watcher = w

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("filestore: watch %s: %w", dir, err)
	}

	s.wg.Add(1)
	go s.processLoop()

	return s, nil
}

// Close stops the file watcher. It does not delete the underlying file.
func (s *Store) Close() error {
	close(s.done)
	s.wg.Wait()
	return s.watcher.Close()
}

func (s *Store) processLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			s.selfWrite.Lock()
			skip := s.writing
			s.selfWrite.Unlock()
			if skip {
				continue
			}
			s.reload()
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("filestore: read %s: %w", s.path, err)
	}
	var persisted []persistedEvent
	if err := json.Unmarshal(data, &persisted); err != nil {
		return fmt.Errorf("filestore: parse %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.events = make([]session.BreakEvent, 0, len(persisted))
	for _, p := range persisted {
		if be := fromPersisted(p); be != nil {
			s.events = append(s.events, be)
		}
	}
	s.mu.Unlock()
	return nil
}

// reload re-reads the file and diffs it against the in-memory set, firing
// Added/Removed signals for the difference. Fields on matched events are
// updated in place and a Modified signal fires if anything changed.
func (s *Store) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var persisted []persistedEvent
	if err := json.Unmarshal(data, &persisted); err != nil {
		return
	}

	s.mu.Lock()
	existing := make([]persistedEvent, len(s.events))
	for i, be := range s.events {
		existing[i] = toPersisted(be)
	}

	var added, removed, modified []session.BreakEvent
	matched := make([]bool, len(s.events))

	var next []session.BreakEvent
	for _, p := range persisted {
		found := -1
		for i, e := range existing {
			if !matched[i] && sameEvent(e, p) {
				found = i
				break
			}
		}
		if found >= 0 {
			matched[found] = true
			be := s.events[found]
			if existing[found] != p {
				switch v := be.(type) {
				case *session.Breakpoint:
					v.Column, v.Condition = p.Column, p.Condition
					v.HitCountFilter, v.TraceExpression = p.HitCountFilter, p.TraceExpression
				case *session.Catchpoint:
					v.IncludeSubclasses = p.IncludeSubclasses
				}
				modified = append(modified, be)
			}
			be.SetEnabled(p.Enabled)
			next = append(next, be)
		} else {
			be := fromPersisted(p)
			if be != nil {
				next = append(next, be)
				added = append(added, be)
			}
		}
	}
	for i, m := range matched {
		if !m {
			removed = append(removed, s.events[i])
		}
	}
	s.events = next
	addedH := s.addedHandlers.snapshot()
	removedH := s.removedHandlers.snapshot()
	modifiedH := s.modifiedHandlers.snapshot()
	s.mu.Unlock()

	for _, be := range modified {
		for _, h := range modifiedH {
			h(be)
		}
	}
	for _, be := range added {
		for _, h := range addedH {
			h(be)
		}
	}
	for _, be := range removed {
		for _, h := range removedH {
			h(be)
		}
	}
}

// save serializes the current event set to Path.
func (s *Store) save() error {
	s.mu.RLock()
	persisted := make([]persistedEvent, len(s.events))
	for i, be := range s.events {
		persisted[i] = toPersisted(be)
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: marshal: %w", err)
	}

	s.selfWrite.Lock()
	s.writing = true
	s.selfWrite.Unlock()
	defer func() {
		s.selfWrite.Lock()
		s.writing = false
		s.selfWrite.Unlock()
	}()

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("filestore: write %s: %w", s.path, err)
	}
	return nil
}

// BreakEvents implements session.BreakpointStore.
func (s *Store) BreakEvents() []session.BreakEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]session.BreakEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Add inserts be, persists, and fires the added signal.
func (s *Store) Add(be session.BreakEvent) error {
	s.mu.Lock()
	s.events = append(s.events, be)
	handlers := s.addedHandlers.snapshot()
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return err
	}
	for _, h := range handlers {
		h(be)
	}
	return nil
}

// Remove deletes be, persists, and fires the removed signal.
func (s *Store) Remove(be session.BreakEvent) error {
	s.mu.Lock()
	for i, e := range s.events {
		if e == be {
			s.events = append(s.events[:i], s.events[i+1:]...)
			break
		}
	}
	handlers := s.removedHandlers.snapshot()
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return err
	}
	for _, h := range handlers {
		h(be)
	}
	return nil
}

// Modify implements session.BreakpointStore.
func (s *Store) Modify(be session.BreakEvent) {
	_ = s.save()
	s.mu.RLock()
	handlers := s.modifiedHandlers.snapshot()
	s.mu.RUnlock()
	for _, h := range handlers {
		h(be)
	}
}

// SetEnabled toggles be's enabled flag, persists, and fires the
// enable-changed signal.
func (s *Store) SetEnabled(be session.BreakEvent, enabled bool) {
	be.SetEnabled(enabled)
	_ = s.save()
	s.mu.RLock()
	handlers := s.enableChangedHandlers.snapshot()
	s.mu.RUnlock()
	for _, h := range handlers {
		h(be)
	}
}

// CheckReadOnly asks every registered checker and returns the last answer.
func (s *Store) CheckReadOnly() bool {
	s.mu.RLock()
	handlers := s.readOnlyHandlers.snapshot()
	s.mu.RUnlock()

	readOnly := false
	for _, h := range handlers {
		h(func(v bool) { readOnly = v })
	}
	return readOnly
}

// NotifyStatusChanged implements session.BreakpointStore. The file store
// keeps no separate status projection.
func (s *Store) NotifyStatusChanged(session.BreakEvent) {}

func (s *Store) OnAdded(h session.StoreAddedHandler) func() {
	s.mu.Lock()
	id := s.addedHandlers.add(h)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.addedHandlers.remove(id)
		s.mu.Unlock()
	}
}

func (s *Store) OnRemoved(h session.StoreRemovedHandler) func() {
	s.mu.Lock()
	id := s.removedHandlers.add(h)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.removedHandlers.remove(id)
		s.mu.Unlock()
	}
}

func (s *Store) OnModified(h session.StoreModifiedHandler) func() {
	s.mu.Lock()
	id := s.modifiedHandlers.add(h)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.modifiedHandlers.remove(id)
		s.mu.Unlock()
	}
}

func (s *Store) OnEnableChanged(h session.StoreEnableChangedHandler) func() {
	s.mu.Lock()
	id := s.enableChangedHandlers.add(h)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.enableChangedHandlers.remove(id)
		s.mu.Unlock()
	}
}

func (s *Store) OnCheckingReadOnly(h session.ReadOnlyCheckHandler) func() {
	s.mu.Lock()
	id := s.readOnlyHandlers.add(h)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.readOnlyHandlers.remove(id)
		s.mu.Unlock()
	}
}

var _ session.BreakpointStore = (*Store)(nil)
