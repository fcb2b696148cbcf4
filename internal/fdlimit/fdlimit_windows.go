//go:build windows

package fdlimit

// Windows has no getrlimit/setrlimit equivalent exposed to Go programs;
// the closest analogue (_getmaxstdio/_setmaxstdio) only governs the C
// runtime's stdio layer, not OS-level handle limits, so raising it would
// not actually buy modeselect the headroom it is trying to reserve. We
// report the conservative constant cargo's own Windows rlimit shim uses
// and always fail to raise it, which steers modeselect.DetermineStrategy
// toward Coarse locking on Windows rather than guessing.

// Get returns a conservative, non-introspected estimate of the process's
// descriptor limits.
func Get() (Limits, error) {
	return Limits{Soft: 512, Hard: conservativeHardLimit}, nil
}

// Set always fails on Windows; callers must treat this as non-fatal and
// fall back to coarse locking (see internal/errs.FdLimitError).
func Set(l Limits) error {
	return errUnsupported
}

var errUnsupported = unsupportedError("fdlimit: raising the descriptor limit is not supported on windows")

type unsupportedError string

func (e unsupportedError) Error() string { return string(e) }
