//go:build unix

package fdlimit

import "golang.org/x/sys/unix"

// Get returns the process's current soft and hard RLIMIT_NOFILE values.
func Get() (Limits, error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return Limits{}, err
	}
	return Limits{Soft: rl.Cur, Hard: rl.Max}, nil
}

// Set raises (or lowers) the process's soft RLIMIT_NOFILE, keeping the
// hard limit the caller supplies. The kernel will reject any attempt to
// raise the soft limit above the hard limit.
func Set(l Limits) error {
	rl := unix.Rlimit{Cur: l.Soft, Max: l.Hard}
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rl)
}
