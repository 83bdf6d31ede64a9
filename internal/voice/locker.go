package voice

import (
	"context"
	"sync"
)

// ConversationLocker serializes call-state mutations per conversation.
// Two webhook handlers for the same conversation must never interleave their
// read-decide-write cycles; different conversations proceed in parallel.
type ConversationLocker interface {
	// Lock blocks until the conversation lock is held or ctx is done.
	// The returned function releases the lock.
	Lock(ctx context.Context, conversationID int64) (release func(), err error)
}

// MemoryLocker is a process-local keyed mutex. Sufficient for a single API
// node and for tests; multi-node deployments use RedisLocker. Entries are
// reference counted and evicted once the last holder releases, so the map
// stays proportional to in-flight calls rather than calls ever seen.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: map[int64]*lockEntry{}}
}

func (l *MemoryLocker) Lock(ctx context.Context, conversationID int64) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[conversationID]
	if !ok {
		e = &lockEntry{}
		l.locks[conversationID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	release := func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, conversationID)
		}
		l.mu.Unlock()
	}
	return release, nil
}
