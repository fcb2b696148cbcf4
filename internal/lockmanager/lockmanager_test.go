package lockmanager

import (
	"context"
	"testing"
	"time"

	"github.com/forgebay/buildlock/internal/errs"
	"github.com/forgebay/buildlock/internal/interner"
	"github.com/forgebay/buildlock/internal/locklayout"
	"github.com/forgebay/buildlock/internal/modeselect"
	"github.com/forgebay/buildlock/internal/unitkey"
)

func TestSingleUnitNoDepsLifecycle(t *testing.T) {
	m := New(modeselect.Fine, locklayout.DefaultResolver{}, interner.New(), "")
	dir := t.TempDir()
	ctx := context.Background()

	r, err := m.LockFingerprint(ctx, dir)
	if err != nil {
		t.Fatalf("LockFingerprint() error = %v", err)
	}
	r, err = m.StartCompiling(ctx, CompilationRef{Unit: r.Key})
	if err != nil {
		t.Fatalf("StartCompiling() error = %v", err)
	}
	if err := m.RmetaProduced(ctx, r); err != nil {
		t.Fatalf("RmetaProduced() error = %v", err)
	}
	if err := m.Release(ctx, r); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
}

func TestDiamondPipelineAcquiresDepsInSortedOrder(t *testing.T) {
	m := New(modeselect.Fine, locklayout.DefaultResolver{}, interner.New(), "")
	ctx := context.Background()

	base := t.TempDir()
	left := t.TempDir()
	right := t.TempDir()
	top := t.TempDir()

	baseR, err := m.LockFingerprint(ctx, base)
	if err != nil {
		t.Fatalf("base LockFingerprint() error = %v", err)
	}
	baseR, err = m.StartCompiling(ctx, CompilationRef{Unit: baseR.Key})
	if err != nil {
		t.Fatalf("base StartCompiling() error = %v", err)
	}
	if err := m.RmetaProduced(ctx, baseR); err != nil {
		t.Fatalf("base RmetaProduced() error = %v", err)
	}

	var leftRight []Receipt
	for _, dir := range []string{left, right} {
		r, err := m.LockFingerprint(ctx, dir)
		if err != nil {
			t.Fatalf("%s LockFingerprint() error = %v", dir, err)
		}
		dep, err := m.ObserveAsDependency(ctx, base, Partial)
		if err != nil {
			t.Fatalf("%s ObserveAsDependency(base) error = %v", dir, err)
		}
		if _, err := m.StartCompiling(ctx, CompilationRef{Unit: r.Key}); err != nil {
			t.Fatalf("%s StartCompiling() error = %v", dir, err)
		}
		if err := m.Release(ctx, dep); err != nil {
			t.Fatalf("%s release base dep error = %v", dir, err)
		}
		if err := m.RmetaProduced(ctx, r); err != nil {
			t.Fatalf("%s RmetaProduced() error = %v", dir, err)
		}
		leftRight = append(leftRight, r)
	}
	// Finish left and right (release share) before top tries to
	// observe them Full: a Full dependency read requires the producer to
	// be done writing, not merely past the rmeta stage.
	for _, r := range leftRight {
		if err := m.Release(ctx, r); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
	}

	topR, err := m.LockFingerprint(ctx, top)
	if err != nil {
		t.Fatalf("top LockFingerprint() error = %v", err)
	}
	topR, err = m.StartCompiling(ctx, CompilationRef{Unit: topR.Key, Deps: []DependencyRef{
		{Key: mustKey(t, left), Kind: Full},
		{Key: mustKey(t, right), Kind: Full},
	}})
	if err != nil {
		t.Fatalf("top StartCompiling() with deps error = %v", err)
	}

	if err := m.RmetaProduced(ctx, topR); err != nil {
		t.Fatalf("top RmetaProduced() error = %v", err)
	}
	if err := m.Release(ctx, topR); err != nil {
		t.Fatalf("top Release() error = %v", err)
	}
}

func TestLockFingerprintIsIdempotentInFineMode(t *testing.T) {
	m := New(modeselect.Fine, locklayout.DefaultResolver{}, interner.New(), "")
	ctx := context.Background()
	dir := t.TempDir()

	r1, err := m.LockFingerprint(ctx, dir)
	if err != nil {
		t.Fatalf("first LockFingerprint() error = %v", err)
	}
	r2, err := m.LockFingerprint(ctx, dir)
	if err != nil {
		t.Fatalf("second LockFingerprint() error = %v, want no-op success", err)
	}
	if r1.ID != r2.ID || r1.Key != r2.Key {
		t.Errorf("second LockFingerprint() = %+v, want identical receipt %+v", r2, r1)
	}

	if err := m.Release(ctx, r1); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
}

func TestPoisonedLockSurfacesAsPoisonError(t *testing.T) {
	in := interner.New()
	resolver := locklayout.DefaultResolver{}
	m := New(modeselect.Fine, resolver, in, "")
	dir := t.TempDir()

	loc, err := resolver.Locate(dir)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	activeBuild, err := in.GetOrCreate(loc.ActiveBuild)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	// Poison the exact reflock.Lock the unit's UnitLock will use (the
	// interner hands out the same instance for the same path), simulating
	// a prior panic while it was held.
	activeBuild.PoisonForTesting()

	_, err = m.LockFingerprint(context.Background(), dir)
	if err == nil {
		t.Fatal("LockFingerprint() on a unit with a poisoned lock should fail")
	}
	if !errs.IsPoison(err) {
		t.Errorf("error = %v, want errs.IsPoison", err)
	}
}

func TestDisabledModeNeverBlocks(t *testing.T) {
	m := New(modeselect.Disabled, locklayout.DefaultResolver{}, interner.New(), "")
	ctx := context.Background()
	dir := t.TempDir()

	r1, err := m.LockFingerprint(ctx, dir)
	if err != nil {
		t.Fatalf("LockFingerprint() error = %v", err)
	}
	r2, err := m.LockFingerprint(ctx, dir)
	if err != nil {
		t.Fatalf("second LockFingerprint() error = %v (disabled mode must never block)", err)
	}
	_ = m.Release(ctx, r1)
	_ = m.Release(ctx, r2)
}

func TestCoarseModeSerializesAcrossUnits(t *testing.T) {
	dir := t.TempDir()
	m := New(modeselect.Coarse, locklayout.DefaultResolver{}, interner.New(), dir)
	ctx := context.Background()

	r1, err := m.LockFingerprint(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("LockFingerprint() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		ctx2, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err := m.LockFingerprint(ctx2, t.TempDir())
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Errorf("second LockFingerprint() succeeded while coarse lock held")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("second LockFingerprint() never returned")
	}

	if err := m.Release(ctx, r1); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
}

func mustKey(t *testing.T, dir string) unitkey.Key {
	t.Helper()
	k, err := unitkey.FromLockDir(dir)
	if err != nil {
		t.Fatalf("unitkey.FromLockDir(%s) error = %v", dir, err)
	}
	return k
}
