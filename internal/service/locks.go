package service

import (
	"sync"

	"github.com/google/uuid"
)

// tripLocks serializes writers per trip id. Entries are reference counted and
// dropped when the last holder unlocks, so the map only holds ids that are in
// use right now.
type tripLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*tripLock
}

type tripLock struct {
	sync.Mutex
	refs int
}

func newTripLocks() *tripLocks {
	return &tripLocks{locks: make(map[uuid.UUID]*tripLock)}
}

// lock blocks until the caller holds the lock for id and returns the
// matching unlock func.
func (l *tripLocks) lock(id uuid.UUID) (unlock func()) {
	l.mu.Lock()
	tl, ok := l.locks[id]
	if !ok {
		tl = &tripLock{}
		l.locks[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.Lock()

	return func() {
		tl.Unlock()

		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// len reports how many ids currently have holders or waiters.
func (l *tripLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
