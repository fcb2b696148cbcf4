package modeselect

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ForcedMode lets an operator pin the locking discipline instead of letting
// DetermineStrategy compute one, mirroring cargo's own escape hatch for
// diagnosing locking-related build issues.
type ForcedMode string

const (
	ModeAuto     ForcedMode = ""
	ModeDisabled ForcedMode = "disabled"
	ModeCoarse   ForcedMode = "coarse"
	ModeFine     ForcedMode = "fine"
)

// Config is the user-facing, TOML-shaped configuration for mode selection.
type Config struct {
	ForceMode           ForcedMode `toml:"force_mode"`
	FDSafetyMultiplierN uint64     `toml:"fd_safety_multiplier"`
}

// defaultFDSafetyMultiplier reserves this many file descriptors per build
// unit: one for active_build.lock, one for share.lock, and a spare for
// transient opens elsewhere in the build.
const defaultFDSafetyMultiplier = 3

// FDSafetyMultiplier returns the configured multiplier, or the default if
// the config left it unset.
func (c Config) FDSafetyMultiplier() uint64 {
	if c.FDSafetyMultiplierN == 0 {
		return defaultFDSafetyMultiplier
	}
	return c.FDSafetyMultiplierN
}

// LoadConfig reads a mode-selection config from a TOML file. A missing file
// is not an error; it yields the zero Config (auto mode, default
// multiplier).
func LoadConfig(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Config{}, nil
	}
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("modeselect: decoding config %s: %w", path, err)
	}
	switch cfg.ForceMode {
	case ModeAuto, ModeDisabled, ModeCoarse, ModeFine:
	default:
		return Config{}, fmt.Errorf("modeselect: config %s: unknown force_mode %q", path, cfg.ForceMode)
	}
	return cfg, nil
}
