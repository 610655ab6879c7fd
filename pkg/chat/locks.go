package chat

import (
	"context"
	"sync"
)

// userLocks is a keyed mutex. An entry lives only while someone holds or
// waits on it.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sem  chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// acquire blocks until key is free or ctx is done.
func (u *userLocks) acquire(ctx context.Context, key string) (func(), error) {
	u.mu.Lock()
	l, ok := u.locks[key]
	if !ok {
		l = &userLock{sem: make(chan struct{}, 1)}
		u.locks[key] = l
	}
	l.refs++
	u.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		u.unref(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			u.unref(key, l)
		})
	}, nil
}

func (u *userLocks) unref(key string, l *userLock) {
	u.mu.Lock()
	defer u.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(u.locks, key)
	}
}

func (u *userLocks) size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.locks)
}
