package lock

import (
	"context"
	"sync"
)

// Locker hands out exclusive locks by key. TryLock never blocks: when the
// key is already held it reports ok=false and the caller skips the work
// until the next tick.
type Locker interface {
	// TryLock attempts to acquire the key. On success it returns a release
	// function that must be called exactly once.
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Key builds the canonical lock key for a platform account.
func Key(platform, account string) string {
	return platform + "/" + account
}

// KeyedMutex is an in-process Locker.
type KeyedMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{held: make(map[string]struct{})}
}

// TryLock implements Locker.
func (km *KeyedMutex) TryLock(ctx context.Context, key string) (func(), bool, error) {
	km.mu.Lock()
	defer km.mu.Unlock()

	if _, taken := km.held[key]; taken {
		return nil, false, nil
	}
	km.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			km.mu.Lock()
			defer km.mu.Unlock()
			delete(km.held, key)
		})
	}
	return release, true, nil
}
