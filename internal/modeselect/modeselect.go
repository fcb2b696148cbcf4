// Package modeselect decides, once per build, which locking discipline the
// rest of the coordinator should use: Disabled (no locking at all), Coarse
// (one lock per directory), or Fine (one lock pair per build unit). The
// decision is made eagerly, before any unit starts compiling, and is not
// revisited mid-build.
package modeselect

import (
	"fmt"

	"github.com/forgebay/buildlock/internal/fdlimit"
)

// Mode is the locking discipline selected for a build.
type Mode int

const (
	// Disabled performs no locking at all. Selected when the build or
	// artifact directory lives on a filesystem where advisory locks are
	// unreliable (network mounts).
	Disabled Mode = iota
	// Coarse takes one whole-directory lock shared by every unit in the
	// build. Selected as a fallback when file-descriptor headroom is
	// insufficient for Fine locking.
	Coarse
	// Fine takes one lock pair per build unit, allowing independent units
	// to pipeline without serializing on each other.
	Fine
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case Disabled:
		return "disabled"
	case Coarse:
		return "coarse"
	case Fine:
		return "fine"
	default:
		return fmt.Sprintf("modeselect.Mode(%d)", int(m))
	}
}

// Warning is a non-fatal note explaining a decision the caller may want to
// surface to a human (e.g. in build diagnostics output).
type Warning struct {
	Reason string
}

// Strategy is the outcome of DetermineStrategy: the mode to use, plus any
// warnings produced while deciding.
type Strategy struct {
	Mode     Mode
	Warnings []Warning
}

// NFSChecker reports whether a directory lives on a filesystem where
// advisory whole-file locks should not be trusted.
type NFSChecker interface {
	IsNetworkMount(dir string) (bool, error)
}

// DetermineStrategy implements the mode-selection algorithm: a network
// mount always wins (Disabled); otherwise Fine locking is attempted and
// only abandoned for Coarse if the process cannot secure enough
// file-descriptor headroom for unitCount units' worth of locks
// (unitCount times cfg.FDSafetyMultiplier()).
func DetermineStrategy(artifactDir, buildDir string, unitCount int, cfg Config, checker NFSChecker) (Strategy, error) {
	if onNFS, err := dirOnNetworkMount(artifactDir, buildDir, checker); err != nil {
		return Strategy{}, err
	} else if onNFS {
		return Strategy{
			Mode: Disabled,
			Warnings: []Warning{{
				Reason: "artifact or build directory is on a network mount; advisory locks are unreliable there",
			}},
		}, nil
	}

	switch cfg.ForceMode {
	case ModeCoarse:
		return Strategy{Mode: Coarse}, nil
	case ModeDisabled:
		return Strategy{Mode: Disabled}, nil
	case ModeFine:
		return Strategy{Mode: Fine}, nil
	}

	needed := uint64(unitCount) * cfg.FDSafetyMultiplier()
	limits, err := fdlimit.Get()
	if err != nil {
		return Strategy{
			Mode: Coarse,
			Warnings: []Warning{{
				Reason: fmt.Sprintf("could not read file descriptor limits (%v); falling back to coarse locking", err),
			}},
		}, nil
	}

	if limits.Soft >= needed {
		return Strategy{Mode: Fine}, nil
	}

	if limits.Hard >= needed {
		if err := fdlimit.Set(fdlimit.Limits{Soft: needed, Hard: limits.Hard}); err == nil {
			return Strategy{Mode: Fine}, nil
		}
	}

	return Strategy{
		Mode: Coarse,
		Warnings: []Warning{{
			Reason: fmt.Sprintf("insufficient file descriptor headroom for %d units (have soft=%d hard=%d, need %d); falling back to coarse locking", unitCount, limits.Soft, limits.Hard, needed),
		}},
	}, nil
}

func dirOnNetworkMount(artifactDir, buildDir string, checker NFSChecker) (bool, error) {
	if checker == nil {
		return false, nil
	}
	for _, dir := range []string{artifactDir, buildDir} {
		onNFS, err := checker.IsNetworkMount(dir)
		if err != nil {
			return false, fmt.Errorf("modeselect: checking network mount for %s: %w", dir, err)
		}
		if onNFS {
			return true, nil
		}
	}
	return false, nil
}
