package unitkey

import (
	"path/filepath"
	"testing"
)

func TestFromLockDirCanonicalizes(t *testing.T) {
	a, err := FromLockDir("/tmp/foo/../foo/bar")
	if err != nil {
		t.Fatalf("FromLockDir() error = %v", err)
	}
	b, err := FromLockDir("/tmp/foo/bar")
	if err != nil {
		t.Fatalf("FromLockDir() error = %v", err)
	}
	if a != b {
		t.Errorf("keys for equivalent paths differ: %q != %q", a, b)
	}
	want := filepath.Clean("/tmp/foo/bar")
	if string(a) != want {
		t.Errorf("key = %q, want %q", a, want)
	}
}

func TestSortIsTotalOrder(t *testing.T) {
	keys := []Key{"c", "a", "b"}
	Sort(keys)
	if keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("Sort() = %v, want [a b c]", keys)
	}
}
