package engine

import (
	"path/filepath"
	"sync"
)

// Attempts against the same working copy must not interleave: the protocol
// mutates staged and committed state across several steps. The lock is scoped
// to the working copy path, so independent clones still publish in parallel
// and race only at the remote, which the integration retry loop absorbs.
// Entries are reference counted and dropped when the last holder releases,
// so a long-lived process does not keep a lock for every root it ever served.

type rootLock struct {
	key  string
	mu   sync.Mutex
	refs int
}

var (
	locksMu sync.Mutex
	locks   = make(map[string]*rootLock)
)

func lockKey(root string) string {
	key := filepath.Clean(root)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}
	return key
}

// acquireLock blocks until the caller holds the working copy exclusively.
func acquireLock(root string) *rootLock {
	key := lockKey(root)
	locksMu.Lock()
	l, ok := locks[key]
	if !ok {
		l = &rootLock{key: key}
		locks[key] = l
	}
	l.refs++
	locksMu.Unlock()

	l.mu.Lock()
	return l
}

func releaseLock(l *rootLock) {
	l.mu.Unlock()
	locksMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(locks, l.key)
	}
	locksMu.Unlock()
}

// activeLocks reports how many roots are currently tracked.
func activeLocks() int {
	locksMu.Lock()
	defer locksMu.Unlock()
	return len(locks)
}
