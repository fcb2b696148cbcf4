// Package unitkey derives the stable identity of a build unit from its
// on-disk lock directory.
package unitkey

import (
	"path/filepath"
	"sort"
)

// Key identifies a build unit by the canonicalized absolute path of the
// directory holding its lock files. Two units with the same key denote the
// same output location and must share lock state.
type Key string

// FromLockDir canonicalizes dir (the parent directory of a unit's lock
// files) into a Key. Equality of Keys is string-equal after
// canonicalization, so callers never need to re-canonicalize before a map
// lookup.
func FromLockDir(dir string) (Key, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return Key(filepath.Clean(abs)), nil
}

// Less reports whether a sorts before b. LockManager uses this to acquire
// dependency locks in a total order, which is what makes the global
// waits-for graph acyclic (see the package doc on lockmanager).
func Less(a, b Key) bool {
	return a < b
}

// Sort orders keys in the total order used for dependency lock
// acquisition. It sorts in place and also returns the slice for chaining.
func Sort(keys []Key) []Key {
	sort.Slice(keys, func(i, j int) bool { return Less(keys[i], keys[j]) })
	return keys
}
