package eventstore

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// LockToken represents exclusive access granted by a Lock. Tokens are never reused.
type LockToken uint64

// Lock is a single-slot mutual-exclusion primitive for blocking callers.
//
// Waiters are queued and resumed in the order they called Acquire, so acquisition is atomic
// with respect to concurrently arriving requests. There is no built-in timeout: a holder that
// never releases blocks everybody else, callers bound their wait with the context.
type Lock struct {
	sem *semaphore.Weighted

	mu          sync.Mutex
	lastToken   LockToken
	outstanding LockToken
}

// NewLock creates an unlocked Lock.
func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until no token is outstanding and grants a new one.
// The only possible error is ctx.Err(); with a context that is never canceled Acquire cannot fail.
func (l *Lock) Acquire(ctx context.Context) (LockToken, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastToken++
	l.outstanding = l.lastToken

	return l.outstanding, nil
}

// Release returns exclusivity. It must be called exactly once per acquired token.
// Releasing a token that is not the outstanding one is a bookkeeping fault and panics.
func (l *Lock) Release(token LockToken) {
	l.mu.Lock()

	if token == 0 || token != l.outstanding {
		outstanding := l.outstanding
		l.mu.Unlock()

		panic(fmt.Errorf("%w: released %d, outstanding %d", ErrLockTokenMismatch, token, outstanding))
	}

	l.outstanding = 0
	l.mu.Unlock()

	l.sem.Release(1)
}

// WithLock runs fn while holding the lock and releases it on every exit path, panics included.
func (l *Lock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	token, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer l.Release(token)

	return fn(ctx)
}

// Held reports whether a token is currently outstanding.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.outstanding != 0
}
