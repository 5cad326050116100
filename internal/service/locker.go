package service

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockHeld is returned by TryAcquire when another holder owns the key.
var ErrLockHeld = errors.New("lock held")

// Unlock releases an acquired lock.
type Unlock func()

// Locker serializes work on a key. Acquire waits until the lock is free or
// ctx ends; TryAcquire returns ErrLockHeld immediately instead of waiting.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

type localLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker returns a process-local Locker. TTLs are ignored since a
// crashed holder takes the whole process with it.
func NewLocalLocker() Locker {
	return &localLocker{slots: make(map[string]*lockSlot)}
}

func (l *localLocker) slot(key string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *localLocker) drop(key string, s *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *localLocker) Acquire(ctx context.Context, key string, _ time.Duration) (Unlock, error) {
	s := l.slot(key)
	select {
	case s.ch <- struct{}{}:
		return l.unlocker(key, s), nil
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ctx.Err()
	}
}

func (l *localLocker) TryAcquire(_ context.Context, key string, _ time.Duration) (Unlock, error) {
	s := l.slot(key)
	select {
	case s.ch <- struct{}{}:
		return l.unlocker(key, s), nil
	default:
		l.drop(key, s)
		return nil, ErrLockHeld
	}
}

func (l *localLocker) unlocker(key string, s *lockSlot) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(key, s)
		})
	}
}
