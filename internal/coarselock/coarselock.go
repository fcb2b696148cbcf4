// Package coarselock backs modeselect.Coarse: a single whole-directory
// lock shared by every build unit, used when Fine per-unit locking is
// unavailable (insufficient file-descriptor headroom) or when the
// configuration forces coarse mode. Unlike the Fine path, there is no in-process
// ref-counting here — github.com/gofrs/flock already serializes
// concurrent callers within one process via an internal mutex, and the
// OS serializes across processes.
package coarselock

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// pollInterval is how often LockContext retries TryLock while waiting.
// Coarse mode has no acquisition timeout (ctx cancellation is the only
// way out), so this only affects latency, not correctness.
const pollInterval = 25 * time.Millisecond

// Lock is the single lock every unit acquires in Coarse mode.
type Lock struct {
	fl *flock.Flock
}

// New returns a coarse lock rooted at dir. The lock file lives alongside
// the per-unit lock files a Fine build would have used, so switching modes
// between builds of the same tree doesn't collide with stale state.
func New(dir string) *Lock {
	return &Lock{fl: flock.New(filepath.Join(dir, "coarse.lock"))}
}

// LockExclusive blocks until the whole-directory lock is held exclusively,
// for a unit that is about to write its fingerprint, rmeta, or rlib.
func (l *Lock) LockExclusive(ctx context.Context) error {
	return l.fl.LockContext(ctx, pollInterval)
}

// LockShared blocks until the whole-directory lock is held for reading,
// for a unit that only needs to read a dependency's finished rlib.
func (l *Lock) LockShared(ctx context.Context) error {
	return l.fl.RLockContext(ctx, pollInterval)
}

// Unlock releases whichever mode of lock is currently held.
func (l *Lock) Unlock() error {
	return l.fl.Unlock()
}
