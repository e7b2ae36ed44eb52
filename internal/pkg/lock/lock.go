// Package lock provides per-key locking so read-modify-write cycles on one
// cached collection never interleave.
package lock

import "sync"

// keyMutex wraps a mutex with the number of goroutines holding or waiting on it.
type keyMutex struct {
	mu   sync.Mutex
	refs int
}

// KeyLock hands out one mutex per key and forgets keys nobody uses.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyMutex
}

// New creates an empty KeyLock.
func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*keyMutex)}
}

// Lock blocks until key is free.
func (k *KeyLock) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &keyMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
}

// Unlock releases key. Unlocking a key that is not held is a no-op.
func (k *KeyLock) Unlock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		return
	}
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	m.mu.Unlock()
}

// WithLock runs fn while holding key.
func (k *KeyLock) WithLock(key string, fn func() error) error {
	k.Lock(key)
	defer k.Unlock(key)
	return fn()
}

// Len reports how many keys are currently tracked.
func (k *KeyLock) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
