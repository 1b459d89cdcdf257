//go:build linux || darwin

package probe

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskFreeGB returns the free space in GB for the filesystem holding
// path. Negative means unknown; callers treat unknown as "not low".
func DiskFreeGB(path string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return -1, fmt.Errorf("statfs %s: %w", path, err)
	}
	free := float64(st.Bavail) * float64(st.Bsize)
	return free / (1024 * 1024 * 1024), nil
}
