// Package interner maintains the process-wide mapping from a lock file's
// path to the single reflock.Lock that represents it. Every caller in the
// process that needs to lock the same path must observe the same
// reflock.Lock so that in-process contention is resolved by the mutex and
// condition variable inside it rather than by racing the OS lock.
package interner

import (
	"sync"

	"github.com/forgebay/buildlock/internal/reflock"
)

// Interner is safe for concurrent use. Entries are created lazily on
// first use and are never removed: a lock file's reflock.Lock lives for
// the process's lifetime. There is no destructor.
type Interner struct {
	mu    sync.Mutex
	locks map[string]*reflock.Lock
}

// New returns an empty Interner. Most callers should use Shared instead;
// New exists for tests that want isolation between cases.
func New() *Interner {
	return &Interner{locks: make(map[string]*reflock.Lock)}
}

// GetOrCreate returns the reflock.Lock for path, opening its backing file
// the first time path is seen. Subsequent calls with the same path
// (canonicalized by the caller, see package unitkey) return the same
// instance.
func (in *Interner) GetOrCreate(path string) (*reflock.Lock, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if l, ok := in.locks[path]; ok {
		return l, nil
	}
	l, err := reflock.New(path)
	if err != nil {
		return nil, err
	}
	in.locks[path] = l
	return l, nil
}

// Len reports how many distinct paths have been interned. Exposed for
// tests and diagnostics; not part of the stable contract.
func (in *Interner) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.locks)
}

var (
	sharedOnce sync.Once
	shared     *Interner
)

// Shared returns the process-wide Interner, creating it on first use.
func Shared() *Interner {
	sharedOnce.Do(func() {
		shared = New()
	})
	return shared
}
