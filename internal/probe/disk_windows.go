//go:build windows

package probe

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// DiskFreeGB returns the free space in GB for the volume holding path.
// Negative means unknown; callers treat unknown as "not low".
func DiskFreeGB(path string) (float64, error) {
	var free, total, totalFree uint64
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return -1, fmt.Errorf("encoding path %s: %w", path, err)
	}
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return -1, fmt.Errorf("disk free %s: %w", path, err)
	}
	return float64(free) / (1024 * 1024 * 1024), nil
}
