package group

import (
	"sync"

	"github.com/warp/split-engine/ledger"
)

// groupLocks serializes membership mutations per group. This is the
// one place the system needs true mutual exclusion: the gate must not
// observe a balance snapshot that a concurrent membership write is
// about to invalidate. Expense writes stay lock-free.
type groupLocks struct {
	mu    sync.Mutex
	locks map[ledger.GroupID]*sync.Mutex
}

func newGroupLocks() *groupLocks {
	return &groupLocks{locks: make(map[ledger.GroupID]*sync.Mutex)}
}

// Lock acquires the mutex for the group and returns its unlock func.
func (gl *groupLocks) Lock(id ledger.GroupID) func() {
	gl.mu.Lock()
	l, ok := gl.locks[id]
	if !ok {
		l = &sync.Mutex{}
		gl.locks[id] = l
	}
	gl.mu.Unlock()

	l.Lock()
	return l.Unlock
}
