// Package filelock is the lowest layer of the build system's lock
// coordinator: it opens a lock file and acquires, downgrades, and releases
// a whole-file advisory OS lock on it.
//
// A Handle never reads or truncates the file it locks; the file's
// existence and lock state are the only persisted information. Callers
// that need to serialize many in-process goroutines onto one Handle
// should use package reflock rather than sharing a Handle directly -- a
// Handle's methods are not safe for concurrent use by themselves.
//
// # Blocking semantics
//
// Lock and downgrade calls block the calling goroutine until the OS lock
// is granted; there is no timeout. This matches the coordinator's design:
// a stuck peer process stalls a build indefinitely rather than racing a
// timeout against legitimate long compiles.
//
// # Downgrade atomicity
//
// On Unix, DowngradeToShared re-locks the same file descriptor with
// flock(2) in shared mode while the exclusive lock is still held. The
// kernel performs this mode change atomically: no other process can slip
// in an exclusive lock during the transition. On Windows there is no
// equivalent primitive, so the downgrade is implemented as unlock-then-
// relock and accepts a narrow race window; see filelock_windows.go.
package filelock
