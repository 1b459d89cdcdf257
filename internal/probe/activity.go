package probe

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/claudeguard/claudeguard/internal/constants"
)

// Activity computes the ActivitySignals for one poll: the newest mtime in
// the log tree and whether any watched process is CPU-active.
func Activity(logRoot string, samples []ProcessSample, now time.Time) ActivitySignals {
	sig := ActivitySignals{LogLastModifiedSecondsAgo: -1}

	if newest, ok := newestMtime(logRoot); ok {
		age := now.Sub(newest).Seconds()
		if age < 0 {
			age = 0
		}
		sig.LogLastModifiedSecondsAgo = age
		sig.Sources = append(sig.Sources, "log-mtime")
	}

	if CPUActive(samples) {
		sig.CPUActive = true
		sig.Sources = append(sig.Sources, "cpu")
	}

	return sig
}

// newestMtime walks the log tree and returns the most recent file mtime.
// Every file directly under root is considered; subdirectories (one level
// deep) are then visited newest-first by their own mtime, and that pass
// stops once ActivityScanLimit files have been examined in all, so a huge
// tree cannot stall the tick. The bound makes this an approximation of the
// true newest mtime, which is acceptable for staleness detection.
func newestMtime(root string) (time.Time, bool) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return time.Time{}, false
	}

	type dirEntry struct {
		path  string
		mtime time.Time
	}

	var newest time.Time
	found := false
	scanned := 0

	consider := func(info fs.FileInfo) {
		if info.ModTime().After(newest) {
			newest = info.ModTime()
			found = true
		}
	}

	var dirs []dirEntry
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if e.IsDir() {
			dirs = append(dirs, dirEntry{filepath.Join(root, e.Name()), info.ModTime()})
			continue
		}
		consider(info)
		scanned++
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].mtime.After(dirs[j].mtime) })

	for _, d := range dirs {
		if scanned >= constants.ActivityScanLimit {
			break
		}
		children, err := os.ReadDir(d.path)
		if err != nil {
			continue
		}
		for _, c := range children {
			if scanned >= constants.ActivityScanLimit {
				break
			}
			if c.IsDir() {
				continue // shallow: one level below the root
			}
			info, err := c.Info()
			if err != nil {
				continue
			}
			consider(info)
			scanned++
		}
	}

	return newest, found
}

// TreeSizeMB returns the total size of regular files under root, in MB.
// Unreadable subtrees contribute nothing.
func TreeSizeMB(root string) float64 {
	var total int64
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return float64(total) / (1024 * 1024)
}
