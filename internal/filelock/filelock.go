package filelock

import "os"

// Handle is an open lock file together with the platform-specific
// primitives for acquiring a whole-file advisory lock on it.
type Handle struct {
	file *os.File
	path string
}

// Open creates path if it does not already exist and opens it for reading
// and appending. The file is never truncated and its contents are never
// interpreted; only its existence and lock state matter to callers.
func Open(path string) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Handle{file: f, path: path}, nil
}

// Path returns the path the Handle was opened with.
func (h *Handle) Path() string {
	return h.path
}

// Close releases the file descriptor. It does not release any lock still
// held on it -- callers must call Unlock first.
func (h *Handle) Close() error {
	return h.file.Close()
}
