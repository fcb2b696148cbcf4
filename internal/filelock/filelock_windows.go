//go:build windows

package filelock

import "golang.org/x/sys/windows"

// allBytes locks the entire file regardless of its length.
const allBytes = ^uint32(0)

// LockExclusive blocks until an exclusive lock on the file is granted.
func (h *Handle) LockExclusive() error {
	return lockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK)
}

// LockShared blocks until a shared lock on the file is granted.
func (h *Handle) LockShared() error {
	return lockFileEx(h, 0)
}

func lockFileEx(h *Handle, flags uint32) error {
	ol := new(windows.Overlapped)
	return windows.LockFileEx(windows.Handle(h.file.Fd()), flags, 0, allBytes, allBytes, ol)
}

// Unlock releases whatever lock mode is currently held.
func (h *Handle) Unlock() error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(h.file.Fd()), 0, allBytes, allBytes, ol)
}

// DowngradeToShared has no atomic equivalent on Windows: LockFileEx and
// UnlockFileEx expose no "change the mode of a held lock" primitive, only
// acquire and release. This implementation unlocks the exclusive lock and
// then acquires a shared one, which opens a narrow window in which
// another process could acquire an exclusive lock in between. This is a
// known, accepted divergence from the Unix backend's atomic downgrade;
// see the package doc.
func (h *Handle) DowngradeToShared() error {
	if err := h.Unlock(); err != nil {
		return err
	}
	return h.LockShared()
}
