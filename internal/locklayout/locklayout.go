// Package locklayout is the Go shape of the file-layout collaborator: it
// knows nothing about locking semantics, only where a unit's two lock
// files live on disk. The rest of the coordinator only depends on the
// Resolver interface, so a build system with a richer artifact-path
// scheme can supply its own implementation.
package locklayout

import "path/filepath"

// Location is the pair of lock-file paths for one build unit.
type Location struct {
	// ActiveBuild gates writers to the unit's working outputs
	// (fingerprint file, object files, rmeta).
	ActiveBuild string
	// Share gates readers/writers that require the final artifact (rlib).
	Share string
}

// Resolver locates the two lock-file paths for a unit given the directory
// that holds its lock files.
type Resolver interface {
	Locate(unitDir string) (Location, error)
}

// DefaultResolver places the two lock files directly inside unitDir.
type DefaultResolver struct{}

// Locate implements Resolver.
func (DefaultResolver) Locate(unitDir string) (Location, error) {
	return Location{
		ActiveBuild: filepath.Join(unitDir, "active_build.lock"),
		Share:       filepath.Join(unitDir, "share.lock"),
	}, nil
}
