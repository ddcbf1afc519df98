package session

import "time"

// chanMutex is a mutex backed by a buffered channel so callers can bound
// how long they wait to acquire it. sync.Mutex has no timed variant, and
// the read-only check must give up rather than block the store's own
// event loop forever.
type chanMutex struct {
	ch chan struct{}
}

func newChanMutex() *chanMutex {
	m := &chanMutex{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}

// Lock blocks until the lock is acquired.
func (m *chanMutex) Lock() { <-m.ch }

// Unlock releases the lock. Calling Unlock without a matching Lock does
// not panic: it blocks forever on the full channel send, where sync.Mutex
// would raise its "unlock of unlocked mutex" runtime panic.
func (m *chanMutex) Unlock() { m.ch <- struct{}{} }

// TryLockTimeout attempts to acquire the lock within d, returning false
// if it could not.
func (m *chanMutex) TryLockTimeout(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-m.ch:
		return true
	case <-t.C:
		return false
	}
}
