// Package cglock implements the write-biased rwlock pattern used
// throughout the coordinator core: many readers may hold the lock
// concurrently, but a writer that has signalled intent is guaranteed
// to eventually acquire it without being starved by a steady stream
// of new readers.
//
// The pattern mirrors cgminer's "cglock": an outer plain mutex
// serializes would-be writers, while an inner sync.RWMutex provides
// the actual read/write exclusion. A goroutine that only wants to
// read takes the outer mutex, then the inner read lock, then releases
// the outer mutex (RLock/RUnlock), so it queues behind any writer
// that already holds the outer mutex. A
// goroutine that may need to write takes the outer mutex first
// (ILock), which blocks out every other would-be writer, then either
// upgrades to a write lock (ULock) or drops to a read lock while
// releasing the outer mutex (DLock).
package cglock

import "sync"

// Lock is a write-biased rwlock.
type Lock struct {
	outer sync.Mutex
	inner sync.RWMutex
}

// RLock acquires the lock for reading.
func (l *Lock) RLock() {
	l.outer.Lock()
	l.inner.RLock()
	l.outer.Unlock()
}

// RUnlock releases a read lock acquired with RLock.
func (l *Lock) RUnlock() {
	l.inner.RUnlock()
}

// ILock acquires the outer mutex only. The caller holds exclusive
// intent-to-write but has not yet taken the inner write lock, so
// readers that already hold the read lock are unaffected, while new
// RLock calls wait for the outer mutex. Must be followed by exactly one
// of ULock or DLock.
func (l *Lock) ILock() {
	l.outer.Lock()
}

// ULock promotes an intermediate lock to a full write lock. The outer
// mutex remains held; callers must pair with WUnlock.
func (l *Lock) ULock() {
	l.inner.Lock()
}

// DLock demotes an intermediate lock to a read lock, releasing the
// outer mutex so other writers may queue behind this reader.
func (l *Lock) DLock() {
	l.inner.RLock()
	l.outer.Unlock()
}

// WLock acquires outer mutex and inner write lock in one call.
func (l *Lock) WLock() {
	l.outer.Lock()
	l.inner.Lock()
}

// WUnlock releases a write lock acquired via WLock or ILock+ULock.
func (l *Lock) WUnlock() {
	l.inner.Unlock()
	l.outer.Unlock()
}
