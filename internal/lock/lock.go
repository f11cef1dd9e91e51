// Package lock serialises writers of the same project board.
package lock

import (
	"context"
	"sync"

	"github.com/gofrs/uuid"
)

// Unlock releases a held project lock. It is safe to call more than once.
type Unlock func()

type ProjectLocker interface {
	Lock(ctx context.Context, projectID uuid.UUID) (Unlock, error)
}

type memoryEntry struct {
	sem  chan struct{}
	refs int
}

// MemoryLocker is a per-project mutex for a single process. Entries are
// reference counted and dropped once nobody holds or waits for them.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*memoryEntry
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[uuid.UUID]*memoryEntry)}
}

func (l *MemoryLocker) acquireEntry(id uuid.UUID) *memoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		e = &memoryEntry{sem: make(chan struct{}, 1)}
		l.entries[id] = e
	}
	e.refs++
	return e
}

func (l *MemoryLocker) releaseEntry(id uuid.UUID, e *memoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
}

func (l *MemoryLocker) Lock(ctx context.Context, projectID uuid.UUID) (Unlock, error) {
	e := l.acquireEntry(projectID)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.releaseEntry(projectID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.releaseEntry(projectID, e)
		})
	}, nil
}

// Held reports how many projects currently have a holder or waiter.
func (l *MemoryLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
