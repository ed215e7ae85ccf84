package services

import (
	"context"
	"sync"
)

// keyedMutex hands out one lock per key and frees it when the last holder or
// waiter leaves, so memory tracks in-flight keys only.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

// refLock is a one-slot semaphore; holding the slot means holding the lock.
type refLock struct {
	slot chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*refLock{}}
}

// Lock blocks until key is free or ctx is done. On success it returns the
// matching unlock func.
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{slot: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
	return func() {
		<-l.slot
		k.release(key, l)
	}, nil
}

func (k *keyedMutex) release(key string, l *refLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
