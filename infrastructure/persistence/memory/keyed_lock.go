package memory

import (
	"context"
	"sync"

	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/valueobjects"
)

// KeyedLocker serializes work per resource id with one mutex per key.
// Pair locks always acquire in ascending memory-id order, so two
// concurrent compositions over overlapping pairs cannot deadlock.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocker creates a keyed locker
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*refLock)}
}

var _ ports.ResourceLocker = (*KeyedLocker)(nil)

func (l *KeyedLocker) acquire(key string) ports.UnlockFunc {
	l.mu.Lock()
	rl, ok := l.locks[key]
	if !ok {
		rl = &refLock{}
		l.locks[key] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			rl.mu.Unlock()
			l.mu.Lock()
			rl.refs--
			if rl.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

// LockMemory implements ports.ResourceLocker
func (l *KeyedLocker) LockMemory(ctx context.Context, id valueobjects.MemoryID) (ports.UnlockFunc, error) {
	return l.acquire("memory:" + id.String()), nil
}

// LockMemoryPair implements ports.ResourceLocker
func (l *KeyedLocker) LockMemoryPair(ctx context.Context, a, b valueobjects.MemoryID) (ports.UnlockFunc, error) {
	first, second := a, b
	if b.Less(a) {
		first, second = b, a
	}

	unlockFirst := l.acquire("memory:" + first.String())
	unlockSecond := l.acquire("memory:" + second.String())

	return func() {
		unlockSecond()
		unlockFirst()
	}, nil
}

// LockFragment implements ports.ResourceLocker
func (l *KeyedLocker) LockFragment(ctx context.Context, id valueobjects.FragmentID) (ports.UnlockFunc, error) {
	return l.acquire("fragment:" + id.String()), nil
}
