// Package lockmanager is the entry point the rest of a build driver calls
// into: it hides whether the build ended up Disabled, Coarse, or Fine
// locking (see internal/modeselect) behind five lifecycle methods, and
// owns the map from unit identity to live lock state so that repeated
// calls for the same unit reuse the same internal/unitlock.UnitLock rather
// than resetting its state machine.
//
// Deadlock freedom across units relies on one rule: whenever a caller
// needs more than one unit's lock at a time (a unit's own lock plus its
// dependencies'), the dependencies are always acquired in unitkey.Sort
// order, and always after the unit's own lock. Two units can never wait
// on each other in a cycle because every multi-lock acquisition in the
// whole build walks the same total order.
package lockmanager

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/forgebay/buildlock/internal/coarselock"
	"github.com/forgebay/buildlock/internal/errs"
	"github.com/forgebay/buildlock/internal/interner"
	"github.com/forgebay/buildlock/internal/locklayout"
	"github.com/forgebay/buildlock/internal/modeselect"
	"github.com/forgebay/buildlock/internal/reflock"
	"github.com/forgebay/buildlock/internal/unitkey"
	"github.com/forgebay/buildlock/internal/unitlock"
)

// DependencyKind is how a dependent unit needs to observe a dependency.
type DependencyKind int

const (
	// Partial needs only the dependency's rmeta (type information).
	Partial DependencyKind = iota
	// Full needs the dependency's finished rlib (for linking).
	Full
)

// DependencyRef names one dependency and how it is being used.
type DependencyRef struct {
	Key  unitkey.Key
	Kind DependencyKind
}

// CompilationRef describes a unit about to compile and the dependencies it
// will read while doing so.
type CompilationRef struct {
	Unit unitkey.Key
	Deps []DependencyRef
}

// Receipt is the token LockManager hands back from every acquisition
// method; Release consumes it exactly once.
type Receipt struct {
	ID      string
	Key     unitkey.Key
	Deps    []DependencyRef
	asDep   bool
	depKind DependencyKind
}

// Manager is the process-wide coordinator for one build's locks.
type Manager struct {
	mode     modeselect.Mode
	resolver locklayout.Resolver
	interner *interner.Interner
	coarse   *coarselock.Lock

	mu    sync.Mutex
	units map[unitkey.Key]*entry
}

type entry struct {
	lock     *unitlock.UnitLock
	refcount int

	// fingerprintReceipt caches the receipt LockFingerprint handed out for
	// this unit, so a repeat LockFingerprint call on the same unit is a
	// no-op that returns the identical receipt rather than re-entering the
	// state machine or minting a fresh refcount.
	fingerprintReceipt *Receipt
}

// New returns a Manager that dispatches through mode. coarseDir is only
// used when mode is modeselect.Coarse; it is typically the build's shared
// output root.
func New(mode modeselect.Mode, resolver locklayout.Resolver, in *interner.Interner, coarseDir string) *Manager {
	m := &Manager{mode: mode, resolver: resolver, interner: in, units: make(map[unitkey.Key]*entry)}
	if mode == modeselect.Coarse {
		m.coarse = coarselock.New(coarseDir)
	}
	return m
}

func (m *Manager) entryFor(key unitkey.Key, unitDir string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.units[key]; ok {
		e.refcount++
		return e, nil
	}
	ul, err := unitlock.New(m.resolver, m.interner, unitDir)
	if err != nil {
		return nil, err
	}
	e := &entry{lock: ul, refcount: 1}
	m.units[key] = e
	return e, nil
}

// fingerprintEntryFor is entryFor specialized for LockFingerprint's
// idempotent re-entry (spec.md §8's round-trip law): if key is already
// registered with a cached fingerprint receipt, that receipt is returned
// and the refcount is left untouched, since a repeat call is not a new
// logical holder. Otherwise it behaves exactly like entryFor.
func (m *Manager) fingerprintEntryFor(key unitkey.Key, unitDir string) (*entry, *Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.units[key]; ok {
		if e.fingerprintReceipt != nil {
			return e, e.fingerprintReceipt, nil
		}
		e.refcount++
		return e, nil, nil
	}
	ul, err := unitlock.New(m.resolver, m.interner, unitDir)
	if err != nil {
		return nil, nil, err
	}
	e := &entry{lock: ul, refcount: 1}
	m.units[key] = e
	return e, nil, nil
}

// retain increments the refcount of an already-registered unit, for a
// caller (StartCompiling's dependency list) that borrows a lock entry
// some earlier call (LockFingerprint or ObserveAsDependency) created. The
// bool is false if nothing has registered key yet.
func (m *Manager) retain(key unitkey.Key) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.units[key]
	if ok {
		e.refcount++
	}
	return e, ok
}

func (m *Manager) release(key unitkey.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.units[key]; ok {
		e.refcount--
		if e.refcount <= 0 {
			delete(m.units, key)
		}
	}
}

// LockFingerprint begins a unit's compilation pipeline: it is the None ->
// ReadFingerprint transition, giving the caller exclusive access to read
// and update the unit's fingerprint file.
func (m *Manager) LockFingerprint(ctx context.Context, unitDir string) (Receipt, error) {
	key, err := unitkey.FromLockDir(unitDir)
	if err != nil {
		return Receipt{}, err
	}

	switch m.mode {
	case modeselect.Disabled:
		return Receipt{ID: uuid.NewString(), Key: key}, nil
	case modeselect.Coarse:
		if err := m.coarse.LockExclusive(ctx); err != nil {
			return Receipt{}, errs.OSLockError(string(key), err)
		}
		return Receipt{ID: uuid.NewString(), Key: key}, nil
	}

	e, existing, err := m.fingerprintEntryFor(key, string(key))
	if err != nil {
		return Receipt{}, errs.OpenErr(string(key), unitDir, err)
	}
	if existing != nil {
		return *existing, nil
	}
	if err := e.lock.Transition(ctx, unitlock.ReadFingerprint); err != nil {
		m.release(key)
		return Receipt{}, wrapUnitlockErr(key, err)
	}

	receipt := Receipt{ID: uuid.NewString(), Key: key}
	m.mu.Lock()
	e.fingerprintReceipt = &receipt
	m.mu.Unlock()
	return receipt, nil
}

// StartCompiling moves a unit from ReadFingerprint to CompilingRmeta and
// acquires every dependency lock the compilation will need, in
// unitkey.Sort order.
func (m *Manager) StartCompiling(ctx context.Context, ref CompilationRef) (Receipt, error) {
	if m.mode != modeselect.Fine {
		return Receipt{ID: uuid.NewString(), Key: ref.Unit}, nil
	}

	m.mu.Lock()
	e, ok := m.units[ref.Unit]
	m.mu.Unlock()
	if !ok {
		return Receipt{}, errs.StateViolation(string(ref.Unit), unitlock.None, unitlock.CompilingRmeta)
	}
	if err := e.lock.Transition(ctx, unitlock.CompilingRmeta); err != nil {
		return Receipt{}, wrapUnitlockErr(ref.Unit, err)
	}

	deps := make([]unitkey.Key, len(ref.Deps))
	byKey := make(map[unitkey.Key]DependencyRef, len(ref.Deps))
	for i, d := range ref.Deps {
		deps[i] = d.Key
		byKey[d.Key] = d
	}
	unitkey.Sort(deps)

	acquired := make([]DependencyRef, 0, len(deps))
	for _, depKey := range deps {
		d := byKey[depKey]
		if _, err := m.acquireDependency(ctx, d); err != nil {
			m.releaseDeps(ctx, acquired)
			return Receipt{}, err
		}
		acquired = append(acquired, d)
	}

	return Receipt{ID: uuid.NewString(), Key: ref.Unit, Deps: acquired}, nil
}

// RmetaProduced moves a unit from CompilingRmeta to CompilingRlib,
// downgrading its active_build lock from exclusive to shared so dependents
// waiting on Partial access can proceed while the share lock stays
// exclusive and the rlib finishes linking.
func (m *Manager) RmetaProduced(ctx context.Context, receipt Receipt) error {
	if m.mode != modeselect.Fine {
		return nil
	}
	m.mu.Lock()
	e, ok := m.units[receipt.Key]
	m.mu.Unlock()
	if !ok {
		return errs.StateViolation(string(receipt.Key), unitlock.CompilingRmeta, unitlock.CompilingRlib)
	}
	if err := e.lock.Transition(ctx, unitlock.CompilingRlib); err != nil {
		return wrapUnitlockErr(receipt.Key, err)
	}
	return nil
}

// ObserveAsDependency acquires the given unit's lock on behalf of a
// dependent that is not compiling it, without going through
// LockFingerprint/StartCompiling. It takes the same UnitLock.AcquireDependency
// hold that StartCompiling takes for each of CompilationRef.Deps, and is
// exposed directly for dependents that exist outside a compilation (for
// example a final link step that only reads rlibs).
func (m *Manager) ObserveAsDependency(ctx context.Context, unitDir string, kind DependencyKind) (Receipt, error) {
	key, err := unitkey.FromLockDir(unitDir)
	if err != nil {
		return Receipt{}, err
	}
	if m.mode != modeselect.Fine {
		if m.mode == modeselect.Coarse {
			if lockErr := m.coarse.LockShared(ctx); lockErr != nil {
				return Receipt{}, errs.OSLockError(string(key), lockErr)
			}
		}
		return Receipt{ID: uuid.NewString(), Key: key, asDep: true, depKind: kind}, nil
	}

	e, err := m.entryFor(key, string(key))
	if err != nil {
		return Receipt{}, errs.OpenErr(string(key), unitDir, err)
	}
	if err := e.lock.AcquireDependency(ctx, sharedKindFor(kind)); err != nil {
		m.release(key)
		return Receipt{}, wrapUnitlockErr(key, err)
	}
	return Receipt{ID: uuid.NewString(), Key: key, asDep: true, depKind: kind}, nil
}

// acquireDependency retains an already-registered unit's entry, or -- a
// dependency no prior call in this process has touched, e.g. one
// satisfied from a build cache -- lazily creates one. unitkey.Key is
// always the canonicalized form of the unit's lock directory (see
// unitkey.FromLockDir), so the key alone is enough to resolve it.
func (m *Manager) acquireDependency(ctx context.Context, d DependencyRef) (Receipt, error) {
	e, ok := m.retain(d.Key)
	if !ok {
		var err error
		e, err = m.entryFor(d.Key, string(d.Key))
		if err != nil {
			return Receipt{}, errs.OpenErr(string(d.Key), string(d.Key), err)
		}
	}
	if err := e.lock.AcquireDependency(ctx, sharedKindFor(d.Kind)); err != nil {
		m.release(d.Key)
		return Receipt{}, wrapUnitlockErr(d.Key, err)
	}
	return Receipt{ID: uuid.NewString(), Key: d.Key, asDep: true, depKind: d.Kind}, nil
}

func (m *Manager) releaseDeps(ctx context.Context, deps []DependencyRef) {
	for _, d := range deps {
		m.mu.Lock()
		e, ok := m.units[d.Key]
		m.mu.Unlock()
		if !ok {
			continue
		}
		_ = e.lock.ReleaseDependency(ctx, sharedKindFor(d.Kind))
		m.release(d.Key)
	}
}

func sharedKindFor(kind DependencyKind) unitlock.SharedKind {
	if kind == Full {
		return unitlock.SharedFullKind
	}
	return unitlock.SharedPartialKind
}

// Release returns a unit to None, undoing whatever receipt represents: a
// producer's locks, a direct dependency observation, or a compilation's
// acquired dependency set. It is idempotent-safe to call at most once per
// receipt; calling it twice on the same receipt is a caller bug.
func (m *Manager) Release(ctx context.Context, receipt Receipt) error {
	if m.mode == modeselect.Disabled {
		return nil
	}
	if m.mode == modeselect.Coarse {
		if err := m.coarse.Unlock(); err != nil {
			return errs.OSLockError(string(receipt.Key), err)
		}
		return nil
	}

	m.releaseDeps(ctx, receipt.Deps)

	m.mu.Lock()
	e, ok := m.units[receipt.Key]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	var err error
	if receipt.asDep {
		err = e.lock.ReleaseDependency(ctx, sharedKindFor(receipt.depKind))
	} else if s := e.lock.State(); s != unitlock.None {
		err = e.lock.Transition(ctx, unitlock.None)
	}
	m.release(receipt.Key)
	if err != nil {
		return wrapUnitlockErr(receipt.Key, err)
	}
	return nil
}

func wrapUnitlockErr(key unitkey.Key, err error) error {
	if errs.IsStateViolation(err) {
		return err
	}
	if errors.Is(err, reflock.ErrPoisoned) {
		return errs.PoisonError(string(key), err)
	}
	return errs.OSLockError(string(key), err)
}
