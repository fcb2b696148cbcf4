// Package unitlock implements the per-build-unit state machine: a strict
// sequence of legal states backed by two on-disk advisory locks
// (active_build.lock and share.lock, see internal/locklayout) held through
// internal/reflock and internal/interner so that multiple goroutines
// compiling the same unit collapse onto one OS-level lock each.
//
// There are two independent roles a caller can take on a unit:
//
//   - Producer: the goroutine actually compiling the unit walks
//     None -> ReadFingerprint -> CompilingRmeta -> CompilingRlib -> None.
//   - Consumer: a goroutine compiling a *different* unit that depends on
//     this one walks None -> SharedPartial -> SharedFull -> None (or
//     jumps straight None -> SharedFull when it only needs the finished
//     rlib, never the pipelined rmeta).
//
// Both roles transition the same UnitLock because both need the same two
// underlying OS locks arbitrated consistently; State records whichever
// role most recently transitioned it. Lock order whenever a transition
// needs both files is always activeBuild before share, so the consumer's
// incremental SharedPartial -> SharedFull step and the producer's and
// LockManager's combined None -> SharedFull shortcut can never invert
// against each other.
package unitlock

import (
	"context"
	"fmt"
	"sync"

	"github.com/forgebay/buildlock/internal/errs"
	"github.com/forgebay/buildlock/internal/interner"
	"github.com/forgebay/buildlock/internal/locklayout"
	"github.com/forgebay/buildlock/internal/reflock"
)

// State is one point in a unit's lock lifecycle.
type State int

const (
	None State = iota
	ReadFingerprint
	CompilingRmeta
	CompilingRlib
	SharedPartial
	SharedFull
)

// String implements fmt.Stringer, used in StateViolation error messages.
func (s State) String() string {
	switch s {
	case None:
		return "None"
	case ReadFingerprint:
		return "ReadFingerprint"
	case CompilingRmeta:
		return "CompilingRmeta"
	case CompilingRlib:
		return "CompilingRlib"
	case SharedPartial:
		return "SharedPartial"
	case SharedFull:
		return "SharedFull"
	default:
		return fmt.Sprintf("unitlock.State(%d)", int(s))
	}
}

// UnitLock coordinates the two OS-level locks backing one build unit.
type UnitLock struct {
	activeBuild *reflock.Lock
	share       *reflock.Lock

	mu    sync.Mutex
	state State
}

// New resolves a unit's lock file paths with resolver and obtains its two
// process-wide reflock.Locks through in. Calling New twice for the same
// unitDir returns UnitLocks that wrap the same underlying OS locks.
func New(resolver locklayout.Resolver, in *interner.Interner, unitDir string) (*UnitLock, error) {
	loc, err := resolver.Locate(unitDir)
	if err != nil {
		return nil, fmt.Errorf("unitlock: locating %s: %w", unitDir, err)
	}
	activeBuild, err := in.GetOrCreate(loc.ActiveBuild)
	if err != nil {
		return nil, err
	}
	share, err := in.GetOrCreate(loc.Share)
	if err != nil {
		return nil, err
	}
	return &UnitLock{activeBuild: activeBuild, share: share}, nil
}

// State returns the state the last successful Transition left this lock in.
func (u *UnitLock) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

type edge struct{ from, to State }

// Transition serializes and performs one legal state change, returning an
// errs.StateViolation for any (from, to) pair not in the table below.
// Transitions for a single unit are serialized by u.mu so the pipelining
// LockManager relies on (independent units proceeding concurrently) isn't
// lost to a single coarse build-wide mutex.
func (u *UnitLock) Transition(ctx context.Context, to State) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	from := u.state
	fn, ok := transitions[edge{from, to}]
	if !ok {
		return errs.StateViolation("unit", from, to)
	}
	if err := fn(ctx, u); err != nil {
		return err
	}
	u.state = to
	return nil
}

var transitions = map[edge]func(ctx context.Context, u *UnitLock) error{
	// Producer chain. activeBuild gates writers to the working outputs
	// (fingerprint, object files, rmeta); share gates the finished rlib.
	{None, ReadFingerprint}: func(ctx context.Context, u *UnitLock) error {
		return u.activeBuild.LockExclusive(ctx)
	},
	{ReadFingerprint, CompilingRmeta}: func(ctx context.Context, u *UnitLock) error {
		return u.share.LockExclusive(ctx)
	},
	{CompilingRmeta, CompilingRlib}: func(ctx context.Context, u *UnitLock) error {
		return u.activeBuild.Downgrade()
	},
	{CompilingRlib, None}: func(ctx context.Context, u *UnitLock) error {
		if err := u.share.Unlock(); err != nil {
			return err
		}
		return u.activeBuild.Unlock()
	},
	// Producer abort paths: a build that fails mid-pipeline releases
	// whatever it's holding without walking the rest of the happy path.
	{ReadFingerprint, None}: func(ctx context.Context, u *UnitLock) error {
		return u.activeBuild.Unlock()
	},
	{CompilingRmeta, None}: func(ctx context.Context, u *UnitLock) error {
		if err := u.share.Unlock(); err != nil {
			return err
		}
		return u.activeBuild.Unlock()
	},

	// Consumer chain.
	{None, SharedPartial}: func(ctx context.Context, u *UnitLock) error {
		return u.activeBuild.LockShared(ctx)
	},
	{SharedPartial, SharedFull}: func(ctx context.Context, u *UnitLock) error {
		return u.share.LockShared(ctx)
	},
	{SharedFull, SharedPartial}: func(ctx context.Context, u *UnitLock) error {
		return u.share.Unlock()
	},
	{SharedPartial, None}: func(ctx context.Context, u *UnitLock) error {
		return u.activeBuild.Unlock()
	},
	{SharedFull, None}: func(ctx context.Context, u *UnitLock) error {
		if err := u.share.Unlock(); err != nil {
			return err
		}
		return u.activeBuild.Unlock()
	},

	// Combined shortcut for a dependent that only ever needs the
	// finished rlib, never the pipelined rmeta.
	{None, SharedFull}: func(ctx context.Context, u *UnitLock) error {
		if err := u.activeBuild.LockShared(ctx); err != nil {
			return err
		}
		if err := u.share.LockShared(ctx); err != nil {
			_ = u.activeBuild.Unlock()
			return err
		}
		return nil
	},
}

// SharedKind is which of a unit's artifacts a dependency observation needs.
type SharedKind int

const (
	// SharedPartialKind needs only the rmeta (type information).
	SharedPartialKind SharedKind = iota
	// SharedFullKind needs the finished rlib.
	SharedFullKind
)

// AcquireDependency and ReleaseDependency let many independent dependents
// observe the same unit concurrently while it may simultaneously be
// mid-pipeline under Transition. State/Transition model a single caller's
// sequential journey through the FSM and are the right tool when a
// UnitLock has exactly one caller (as in the producer's own walk from None
// to CompilingRlib, or a standalone consumer with its own UnitLock
// wrapping the same files). They are the wrong tool once a single
// UnitLock instance is shared -- as internal/lockmanager shares one per
// unit -- between the unit's own producer and an arbitrary number of
// concurrent dependents, because State is one scalar and can't represent
// "producing" and "being read by three dependents" at once. These two
// methods instead operate directly on the underlying reflock.Locks, which
// already ref-count concurrent shared holders correctly, and never touch
// u.state.
func (u *UnitLock) AcquireDependency(ctx context.Context, kind SharedKind) error {
	if err := u.activeBuild.LockShared(ctx); err != nil {
		return err
	}
	if kind == SharedFullKind {
		if err := u.share.LockShared(ctx); err != nil {
			_ = u.activeBuild.Unlock()
			return err
		}
	}
	return nil
}

// ReleaseDependency releases the hold a matching AcquireDependency
// acquired.
func (u *UnitLock) ReleaseDependency(ctx context.Context, kind SharedKind) error {
	if kind == SharedFullKind {
		if err := u.share.Unlock(); err != nil {
			return err
		}
	}
	return u.activeBuild.Unlock()
}
