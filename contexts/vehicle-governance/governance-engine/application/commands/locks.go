package commands

import "sync"

// lockArena indexes mutexes by key so unrelated proposals (or assets) stay
// fully concurrent while operations on the same key serialize. Entries are
// reference counted and dropped when the last holder releases.
type lockArena struct {
	mu    sync.Mutex
	locks map[string]*arenaLock
}

type arenaLock struct {
	mu   sync.Mutex
	refs int
}

// acquire blocks until the key's lock is held and returns the release func.
func (a *lockArena) acquire(key string) func() {
	a.mu.Lock()
	if a.locks == nil {
		a.locks = make(map[string]*arenaLock)
	}
	entry, ok := a.locks[key]
	if !ok {
		entry = &arenaLock{}
		a.locks[key] = entry
	}
	entry.refs++
	a.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		a.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(a.locks, key)
		}
		a.mu.Unlock()
	}
}
