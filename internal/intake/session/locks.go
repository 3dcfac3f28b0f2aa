package session

import "sync"

// lockTable hands out one mutex per conversation so every operation against
// a conversation runs alone while different conversations proceed in
// parallel. Entries are refcounted and dropped once idle.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*convLock)}
}

// acquire blocks until the caller holds the conversation's lock and returns
// the release function. Waiters queue on the mutex, so operations on one
// conversation execute in arrival order.
func (t *lockTable) acquire(conversationID string) func() {
	t.mu.Lock()
	lock, ok := t.locks[conversationID]
	if !ok {
		lock = &convLock{}
		t.locks[conversationID] = lock
	}
	lock.refs++
	t.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		t.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(t.locks, conversationID)
		}
		t.mu.Unlock()
	}
}
