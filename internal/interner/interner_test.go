package interner

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/forgebay/buildlock/internal/reflock"
)

func TestGetOrCreateIsIdempotent(t *testing.T) {
	in := New()
	path := filepath.Join(t.TempDir(), "active_build.lock")

	l1, err := in.GetOrCreate(path)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	l2, err := in.GetOrCreate(path)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if l1 != l2 {
		t.Error("GetOrCreate() returned different locks for the same path")
	}
	if in.Len() != 1 {
		t.Errorf("Len() = %d, want 1", in.Len())
	}
}

func TestGetOrCreateConcurrentCallersConverge(t *testing.T) {
	in := New()
	path := filepath.Join(t.TempDir(), "share.lock")

	const n = 50
	results := make([]*reflock.Lock, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			l, err := in.GetOrCreate(path)
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
				return
			}
			results[i] = l
		}()
	}
	wg.Wait()

	first := results[0]
	for i, l := range results {
		if l == nil {
			t.Fatalf("result[%d] is nil", i)
		}
		if l != first {
			t.Errorf("result[%d] lock differs from result[0]", i)
		}
	}
	if in.Len() != 1 {
		t.Errorf("Len() = %d, want 1", in.Len())
	}
}

func TestSharedIsSingleton(t *testing.T) {
	a := Shared()
	b := Shared()
	if a != b {
		t.Error("Shared() returned different instances")
	}
}
