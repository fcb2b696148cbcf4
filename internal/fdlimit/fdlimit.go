// Package fdlimit queries and raises the process's open-file-descriptor
// limit, the shim modeselect uses to decide whether fine-grained per-unit
// locking can afford one or two extra file descriptors per build unit.
package fdlimit

// Limits is the soft (currently enforced) and hard (ceiling the process
// may raise the soft limit to) file-descriptor limits.
type Limits struct {
	Soft uint64
	Hard uint64
}

// conservativeHardLimit is reported on platforms where the true hard
// limit cannot be introspected. 8192 matches the constant cargo's own
// rlimit shim falls back to on Windows.
const conservativeHardLimit = 8192
