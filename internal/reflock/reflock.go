// Package reflock collapses many in-process callers onto one OS-level
// file lock. Many goroutines can hold a logical shared reference backed by
// a single flock(2)/LockFileEx call, and exclusive/shared contention
// between goroutines is serialized with a mutex and condition variable
// instead of hammering the OS lock.
package reflock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/forgebay/buildlock/internal/filelock"
)

// ErrPoisoned is wrapped into the error any poisoned Lock returns from
// LockExclusive, LockShared, Unlock, and Downgrade, so callers can tell a
// poisoned lock apart from an ordinary OS lock failure with errors.Is.
var ErrPoisoned = errors.New("reflock: lock poisoned by a prior panic")

// Lock is the process-local wrapper around one lock file. Its invariants
// are:
//
//   - exclusive implies shareCount == 0
//   - shareCount > 0 implies !exclusive
//   - the OS lock is held shared iff shareCount > 0, exclusive iff
//     exclusive, and not held otherwise
type Lock struct {
	handle *filelock.Handle

	mu         sync.Mutex
	cond       *sync.Cond
	exclusive  bool
	shareCount int
	poisoned   bool
	poisonErr  error
}

// New opens path (creating it if necessary) and returns a fresh,
// zero-valued Lock wrapping it. Callers normally reach a Lock through an
// interner.Interner rather than constructing one directly, so that many
// goroutines in the same process share the same instance.
func New(path string) (*Lock, error) {
	h, err := filelock.Open(path)
	if err != nil {
		return nil, err
	}
	l := &Lock{handle: h}
	l.cond = sync.NewCond(&l.mu)
	return l, nil
}

// Path returns the path of the underlying lock file.
func (l *Lock) Path() string {
	return l.handle.Path()
}

// Close releases the file descriptor. It must only be called once nothing
// holds the lock and no goroutine is waiting on it; the process-wide
// interner never calls it; it exists mainly for tests.
func (l *Lock) Close() error {
	return l.handle.Close()
}

// finishLocked unlocks l.mu, poisoning the Lock if a panic is unwinding
// through the call while it was held -- the Go analogue of a poisoned
// mutex in languages where panics unwind through lock guards.
func (l *Lock) finishLocked() {
	if r := recover(); r != nil {
		l.poisoned = true
		l.poisonErr = fmt.Errorf("%w: %s: %v", ErrPoisoned, l.handle.Path(), r)
		l.mu.Unlock()
		panic(r)
	}
	l.mu.Unlock()
}

// waitUntil blocks with l.mu held until pred() is true or ctx is done.
// Must be called with l.mu already held.
func (l *Lock) waitUntil(ctx context.Context, pred func() bool) error {
	if pred() {
		return nil
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.cond.Broadcast()
			l.mu.Unlock()
		case <-stop:
		}
	}()
	for !pred() {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
	return ctx.Err()
}

// LockExclusive waits until no exclusive or shared holder remains, then
// acquires the OS-level exclusive lock.
func (l *Lock) LockExclusive(ctx context.Context) error {
	l.mu.Lock()
	defer l.finishLocked()

	if l.poisoned {
		return l.poisonErr
	}
	if err := l.waitUntil(ctx, func() bool { return !l.exclusive && l.shareCount == 0 }); err != nil {
		return err
	}
	if err := l.handle.LockExclusive(); err != nil {
		return err
	}
	l.exclusive = true
	return nil
}

// LockShared waits until no exclusive holder remains, then acquires the
// OS-level shared lock if this is the first in-process shared holder, and
// always increments the in-process share count.
func (l *Lock) LockShared(ctx context.Context) error {
	l.mu.Lock()
	defer l.finishLocked()

	if l.poisoned {
		return l.poisonErr
	}
	if err := l.waitUntil(ctx, func() bool { return !l.exclusive }); err != nil {
		return err
	}
	if l.shareCount == 0 {
		if err := l.handle.LockShared(); err != nil {
			return err
		}
	}
	l.shareCount++
	return nil
}

// Unlock releases one logical hold. If the Lock is held exclusively, the
// OS lock is released immediately. If it is held shared by more than one
// in-process holder, only the in-process count is decremented; the OS
// lock is released when the last shared holder calls Unlock.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.finishLocked()

	if l.poisoned {
		return l.poisonErr
	}
	if l.exclusive {
		if err := l.handle.Unlock(); err != nil {
			return err
		}
		l.exclusive = false
		l.cond.Broadcast()
		return nil
	}
	switch {
	case l.shareCount > 1:
		l.shareCount--
	case l.shareCount == 1:
		if err := l.handle.Unlock(); err != nil {
			return err
		}
		l.shareCount = 0
		l.cond.Broadcast()
	}
	return nil
}

// Downgrade converts the current exclusive hold into a single shared
// hold, atomically with respect to other processes (see
// filelock.Handle.DowngradeToShared). The precondition is exclusive held
// with no shared holders; violating it is a caller bug, not something
// this package validates -- the state machine in package unitlock is
// responsible for only calling Downgrade from a state where that
// precondition holds.
func (l *Lock) Downgrade() error {
	l.mu.Lock()
	defer l.finishLocked()

	if l.poisoned {
		return l.poisonErr
	}
	if err := l.handle.DowngradeToShared(); err != nil {
		return err
	}
	l.exclusive = false
	l.shareCount = 1
	l.cond.Broadcast()
	return nil
}

// Poisoned reports whether a previous panic while holding the lock has
// left it unusable.
func (l *Lock) Poisoned() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.poisoned, l.poisonErr
}

// PoisonForTesting drives the lock through the exact recover-and-re-panic
// path finishLocked takes on a genuine panic, poisoning it the same way a
// real fault while l.mu was held would. It is not part of the stable API;
// it exists so other packages' tests can exercise poison propagation
// without engineering an actual fault in production code.
func (l *Lock) PoisonForTesting() {
	defer func() { recover() }()
	l.mu.Lock()
	defer l.finishLocked()
	panic("reflock: simulated panic for test")
}
