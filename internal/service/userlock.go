package service

import (
	"sync"

	"github.com/google/uuid"
)

// UserLocks serializes mutations per user. Conflict detection, snapshot
// capture and revert all read-then-write, so two concurrent writes to one
// user's events must not interleave. Different users proceed in parallel.
// One instance is shared by every service that mutates events.
type UserLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewUserLocks() *UserLocks {
	return &UserLocks{
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (ul *UserLocks) Lock(uid uuid.UUID) func() {
	ul.mu.Lock()
	l, ok := ul.locks[uid]
	if !ok {
		l = &sync.Mutex{}
		ul.locks[uid] = l
	}
	ul.mu.Unlock()
	l.Lock()
	return l.Unlock
}
