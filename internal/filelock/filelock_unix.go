//go:build unix

package filelock

import "golang.org/x/sys/unix"

// LockExclusive blocks until an exclusive (write) advisory lock on the
// file is granted.
func (h *Handle) LockExclusive() error {
	return unix.Flock(int(h.file.Fd()), unix.LOCK_EX)
}

// LockShared blocks until a shared (read) advisory lock on the file is
// granted.
func (h *Handle) LockShared() error {
	return unix.Flock(int(h.file.Fd()), unix.LOCK_SH)
}

// Unlock releases whatever lock mode is currently held.
func (h *Handle) Unlock() error {
	return unix.Flock(int(h.file.Fd()), unix.LOCK_UN)
}

// DowngradeToShared re-locks the file descriptor in shared mode. The
// caller must already hold the exclusive lock. flock(2) changes the lock
// mode on an already-held descriptor atomically with respect to other
// processes: there is no window in which a third process can acquire an
// exclusive lock between the exclusive lock being dropped and the shared
// lock being granted, because from the kernel's point of view the lock is
// never dropped -- only its mode changes.
func (h *Handle) DowngradeToShared() error {
	return unix.Flock(int(h.file.Fd()), unix.LOCK_SH)
}
