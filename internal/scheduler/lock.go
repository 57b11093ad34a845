package scheduler

import (
	"context"
	"sync"
	"time"
)

// Locker is a cross-run job lock. *db.JobLockRepository satisfies it.
type Locker interface {
	Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID, workerID string) error
}

// Historian records job executions. *db.JobHistoryRepository satisfies it.
type Historian interface {
	Start(ctx context.Context, jobType, workerID string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, summary string, jobErr error) error
}

// MemoryLocker is the in-process Locker used when no database is
// configured. Locks expire after their TTL like the database ones.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	now   func() time.Time
}

type memoryLock struct {
	owner   string
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]memoryLock), now: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, lockID, workerID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if held, ok := l.locks[lockID]; ok && held.expires.After(now) {
		return false, nil
	}
	l.locks[lockID] = memoryLock{owner: workerID, expires: now.Add(ttl)}
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, lockID, workerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.locks[lockID]; ok && held.owner == workerID {
		delete(l.locks, lockID)
	}
	return nil
}

// noopHistorian discards history when no database is configured.
type noopHistorian struct{}

func (noopHistorian) Start(context.Context, string, string) (int64, error) { return 0, nil }

func (noopHistorian) Finish(context.Context, int64, string, int, string, error) error { return nil }
