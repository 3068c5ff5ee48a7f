package services

import (
	"context"
	"sync"
	"time"

	"membership-api/pkg/logging"
)

// Locker serializes work on a key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// RateLimiter admits at most one call per key and window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

// LocalLocker is an in-process Locker. Entries are dropped as soon as
// nobody holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// LocalRateLimiter is an in-process RateLimiter with a background sweep of
// expired windows.
type LocalRateLimiter struct {
	mu          sync.Mutex
	until       map[string]time.Time
	now         func() time.Time
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewLocalRateLimiter starts the cleanup routine; call Stop when done.
func NewLocalRateLimiter(cleanupInterval time.Duration) *LocalRateLimiter {
	rl := &LocalRateLimiter{
		until:       make(map[string]time.Time),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanupRoutine(cleanupInterval)
	return rl
}

// Allow records a hit for key and reports whether the previous window had closed.
func (rl *LocalRateLimiter) Allow(_ context.Context, key string, window time.Duration) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if until, ok := rl.until[key]; ok && now.Before(until) {
		return false, nil
	}
	rl.until[key] = now.Add(window)
	return true, nil
}

func (rl *LocalRateLimiter) startCleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *LocalRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	initial := len(rl.until)
	for key, until := range rl.until {
		if !now.Before(until) {
			delete(rl.until, key)
		}
	}
	if cleaned := initial - len(rl.until); cleaned > 0 {
		logging.Infof("Rate limiter cleanup: removed %d expired windows, remaining: %d", cleaned, len(rl.until))
	}
}

// Stop ends the cleanup routine.
func (rl *LocalRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}
