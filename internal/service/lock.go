package service

import (
	"sync"
)

// KeyLock provides per-key mutual exclusion. A promotion's status transition
// and a product's pricing write each take the lock for their own key, so two
// operations racing on the same promotion or item serialize while unrelated
// keys proceed concurrently. The promotion service, voucher service, and
// sweeper must share a single instance: a sweep flip and a manual transition
// of the same campaign contend on the same key only through the same map.
// Entries are reference-counted and removed once the last holder unlocks.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key and returns the matching unlock function.
func (l *KeyLock) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
