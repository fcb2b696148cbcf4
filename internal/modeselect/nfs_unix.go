//go:build unix

package modeselect

import "golang.org/x/sys/unix"

// magic numbers for network filesystem types, as reported by statfs(2)'s
// f_type field on Linux. Darwin and other unix variants don't expose
// f_type the same way; StatfsChecker treats an unknown/zero type as "not
// a network mount" there rather than guessing.
const (
	nfsSuperMagic   = 0x6969
	smbSuperMagic   = 0xfe534d42
	cifsSuperMagic  = 0xff534d42
	afsSuperMagic   = 0x5346414f
	ncpfsSuperMagic = 0x564c
)

// StatfsChecker implements NFSChecker using statfs(2).
type StatfsChecker struct{}

// IsNetworkMount implements NFSChecker.
func (StatfsChecker) IsNetworkMount(dir string) (bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return false, err
	}
	switch uint64(st.Type) {
	case nfsSuperMagic, smbSuperMagic, cifsSuperMagic, afsSuperMagic, ncpfsSuperMagic:
		return true, nil
	default:
		return false, nil
	}
}
