package filelock

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestOpenCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "active_build.lock")

	h, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("lock file should exist: %v", err)
	}
	if h.Path() != path {
		t.Errorf("Path() = %q, want %q", h.Path(), path)
	}
}

func TestOpenDoesNotTruncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "share.lock")

	if err := os.WriteFile(path, []byte("leftover"), 0o644); err != nil {
		t.Fatal(err)
	}

	h, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "leftover" {
		t.Errorf("Open() truncated file, contents = %q", data)
	}
}

func TestExclusiveExcludesExclusive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "active_build.lock")

	h1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer h1.Close()
	if err := h1.LockExclusive(); err != nil {
		t.Fatalf("h1.LockExclusive() error = %v", err)
	}
	defer h1.Unlock()

	h2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer h2.Close()

	acquired := make(chan struct{})
	go func() {
		if err := h2.LockExclusive(); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("h2 acquired exclusive lock while h1 still held it")
	case <-time.After(50 * time.Millisecond):
	}

	if err := h1.Unlock(); err != nil {
		t.Fatalf("h1.Unlock() error = %v", err)
	}

	select {
	case <-acquired:
		h2.Unlock()
	case <-time.After(time.Second):
		t.Fatal("h2 never acquired exclusive lock after h1 released")
	}
}

func TestSharedAllowsMultipleReaders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "share.lock")

	var wg sync.WaitGroup
	errs := make(chan error, 4)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := Open(path)
			if err != nil {
				errs <- err
				return
			}
			defer h.Close()
			if err := h.LockShared(); err != nil {
				errs <- err
				return
			}
			defer h.Unlock()
			time.Sleep(10 * time.Millisecond)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shared locks did not all complete concurrently")
	}
	close(errs)
	for err := range errs {
		t.Errorf("shared lock error: %v", err)
	}
}

func TestDowngradeToSharedAllowsReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "active_build.lock")

	h1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer h1.Close()
	if err := h1.LockExclusive(); err != nil {
		t.Fatalf("LockExclusive() error = %v", err)
	}

	if err := h1.DowngradeToShared(); err != nil {
		t.Fatalf("DowngradeToShared() error = %v", err)
	}
	defer h1.Unlock()

	h2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer h2.Close()

	done := make(chan error, 1)
	go func() { done <- h2.LockShared() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("h2.LockShared() error = %v", err)
		}
		h2.Unlock()
	case <-time.After(time.Second):
		t.Fatal("reader never acquired shared lock after downgrade")
	}
}
