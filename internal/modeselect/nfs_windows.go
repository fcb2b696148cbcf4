//go:build windows

package modeselect

import (
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

const driveRemote = 4 // DRIVE_REMOTE, per GetDriveTypeW documentation.

var (
	modkernel32       = windows.NewLazySystemDLL("kernel32.dll")
	procGetDriveTypeW = modkernel32.NewProc("GetDriveTypeW")
)

// StatfsChecker implements NFSChecker using GetDriveType, treating UNC
// paths and DRIVE_REMOTE volumes as network mounts.
type StatfsChecker struct{}

// IsNetworkMount implements NFSChecker.
func (StatfsChecker) IsNetworkMount(dir string) (bool, error) {
	if strings.HasPrefix(dir, `\\`) {
		return true, nil
	}
	root := dir
	if len(root) >= 3 && root[1] == ':' {
		root = root[:3]
	}
	ptr, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return false, err
	}
	ret, _, _ := procGetDriveTypeW.Call(uintptr(unsafe.Pointer(ptr)))
	return ret == driveRemote, nil
}
