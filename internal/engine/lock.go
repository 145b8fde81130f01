package engine

import "sync"

// itemLocks provides the per-work-item mutual-exclusion scope. Operations
// that mutate task state for one item serialize on that item's lock;
// operations on different items proceed fully in parallel. Entries are
// reference-counted and removed once the last holder releases.
type itemLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newItemLocks() *itemLocks {
	return &itemLocks{locks: make(map[string]*lockEntry)}
}

// Lock acquires the exclusion scope for the given item and returns the
// release function.
func (l *itemLocks) Lock(itemID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[itemID]
	if !ok {
		entry = &lockEntry{}
		l.locks[itemID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()

			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, itemID)
			}
			l.mu.Unlock()
		})
	}
}
