package memory

import (
	"context"
	"sync"

	"fleetcast/internal/core/ports"
)

// MemoryLockManager provides per-key mutual exclusion within a single
// process. Entries are reference counted and removed when released so the
// map does not grow with every device ever seen.
type MemoryLockManager struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewMemoryLockManager() ports.LockManager {
	return &MemoryLockManager{
		locks: make(map[string]*keyLock),
	}
}

func (m *MemoryLockManager) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	kl, exists := m.locks[key]
	if !exists {
		kl = &keyLock{}
		m.locks[key] = kl
	}
	kl.refs++
	m.mu.Unlock()

	locked := make(chan struct{})
	go func() {
		kl.mu.Lock()
		close(locked)
	}()

	select {
	case <-locked:
	case <-ctx.Done():
		// The goroutine will still obtain the lock eventually; arrange for
		// it to be released and the refcount dropped.
		go func() {
			<-locked
			kl.mu.Unlock()
			m.release(key, kl)
		}()
		return nil, ctx.Err()
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		kl.mu.Unlock()
		m.release(key, kl)
	}, nil
}

func (m *MemoryLockManager) release(key string, kl *keyLock) {
	m.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}
