package errs

import (
	"errors"
	"fmt"
)

// OSLockError reports that an advisory lock syscall failed for the given
// unit (EINTR, EIO, EDEADLK surfaced by the kernel, or an unsupported
// operation). It is transient in the sense that a different unit or a
// later build may succeed, but the current unit's build must abort.
func OSLockError(unit string, err error) *Error {
	return &Error{
		Op:       "lock.acquire",
		Category: CategorySystem,
		Severity: SeverityHigh,
		Err:      err,
		Context:  map[string]interface{}{"unit": unit},
	}
}

// OpenErr reports that creating or opening a lock file failed (permission,
// missing parent directory, quota).
func OpenErr(unit, path string, err error) *Error {
	return &Error{
		Op:       "lock.open",
		Category: CategorySystem,
		Severity: SeverityHigh,
		Err:      err,
		Context:  map[string]interface{}{"unit": unit, "path": path},
	}
}

// StateViolation reports that a caller requested an illegal state
// transition. This is a programmer error: it must never arise from
// external input, and callers may treat it as fatal to the calling
// process rather than retryable.
func StateViolation(unit string, from, to fmt.Stringer) *Error {
	return &Error{
		Op:       "lock.transition",
		Category: CategoryPermanent,
		Severity: SeverityCritical,
		Message:  fmt.Sprintf("illegal transition %s -> %s", from, to),
		Context:  map[string]interface{}{"unit": unit},
	}
}

// PoisonError reports that the in-process mutex/condvar guarding a lock's
// logical state was found in an unrecoverable condition (a prior panic
// while the mutex was held). It is always fatal to the whole build.
func PoisonError(unit string, err error) *Error {
	return &Error{
		Op:       "lock.poison",
		Category: CategoryPermanent,
		Severity: SeverityCritical,
		Err:      err,
		Context:  map[string]interface{}{"unit": unit},
	}
}

// FdLimitError reports a failure to query or raise the process's
// file-descriptor limit. Callers must treat this as non-fatal and fall
// back to coarse-grained locking.
func FdLimitError(op string, err error) *Error {
	return &Error{
		Op:       op,
		Category: CategoryTransient,
		Severity: SeverityMedium,
		Err:      err,
		Message:  "falling back to coarse locking",
	}
}

// IsStateViolation reports whether err is (or wraps) a StateViolation.
func IsStateViolation(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Op == "lock.transition"
	}
	return false
}

// IsPoison reports whether err is (or wraps) a PoisonError.
func IsPoison(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Op == "lock.poison"
	}
	return false
}
