// Package logman maintains the assistant's log tree: it compresses old
// session logs, trims oversized ones to their tail, and deletes stale
// session records.
//
// Only session artifacts are ever touched: files named <uuid>.jsonl or
// <uuid>.jsonl.gz and directories named <uuid>. The names "memory" and
// "sessions-index.json" are protected unconditionally. Trimming preserves
// trailing lines; nothing here deletes user content that is not a stale
// session artifact.
package logman

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/claudeguard/claudeguard/internal/constants"
	"github.com/claudeguard/claudeguard/internal/guarderr"
	"github.com/claudeguard/claudeguard/internal/store"
)

// uuidPattern is the canonical 8-4-4-4-12 hex session id.
const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

var (
	sessionFileRe = regexp.MustCompile(`^` + uuidPattern + `\.jsonl(\.gz)?$`)
	sessionDirRe  = regexp.MustCompile(`^` + uuidPattern + `$`)
)

// protectedNames are never touched regardless of age or size.
var protectedNames = map[string]bool{
	"memory":              true,
	"sessions-index.json": true,
}

// ScanReport describes the log tree's current pressure.
type ScanReport struct {
	Files             int      `json:"files"`
	TotalSizeMB       float64  `json:"totalSizeMB"`
	OversizedFiles    []string `json:"oversizedFiles,omitempty"`
	CompressibleFiles []string `json:"compressibleFiles,omitempty"`
	StaleSessions     []string `json:"staleSessions,omitempty"`
	Errors            []string `json:"errors,omitempty"`
}

// FixReport describes what a fix pass did.
type FixReport struct {
	Compressed []string `json:"compressed,omitempty"`
	Trimmed    []string `json:"trimmed,omitempty"`
	Deleted    []string `json:"deleted,omitempty"`
	Errors     []string `json:"errors,omitempty"`

	SizeBeforeMB float64 `json:"sizeBeforeMB"`
	SizeAfterMB  float64 `json:"sizeAfterMB"`
}

// Options controls a scan or fix pass.
type Options struct {
	// Aggressive halves the retention window and the tolerated file
	// size. Triggered automatically when disk is low.
	Aggressive bool
}

// Manager operates on one log tree. The optional journal receives one
// entry per mutation.
type Manager struct {
	root    string
	journal func(store.JournalEntry)
	now     func() time.Time
}

// New creates a manager for the given log tree root. journal may be nil.
func New(root string, journal func(store.JournalEntry)) *Manager {
	if journal == nil {
		journal = func(store.JournalEntry) {}
	}
	return &Manager{root: root, journal: journal, now: time.Now}
}

// thresholds resolves the effective limits for a pass.
func (m *Manager) thresholds(opts Options) (retain, stale time.Duration, maxFileBytes int64) {
	retain = time.Duration(constants.RetainDays) * 24 * time.Hour
	stale = time.Duration(constants.StaleSessionDays) * 24 * time.Hour
	maxFileBytes = int64(constants.MaxFileSizeMB) * 1024 * 1024
	if opts.Aggressive {
		retain /= 2
		stale /= 2
		maxFileBytes /= 2
	}
	return retain, stale, maxFileBytes
}

// Scan walks the tree and reports what a fix pass would touch.
func (m *Manager) Scan(opts Options) (*ScanReport, error) {
	retain, stale, maxFileBytes := m.thresholds(opts)
	now := m.now()

	report := &ScanReport{}
	err := m.walkSessions(func(path string, d fs.DirEntry, info fs.FileInfo) {
		if d.IsDir() {
			if now.Sub(info.ModTime()) > stale {
				report.StaleSessions = append(report.StaleSessions, path)
			}
			return
		}
		report.Files++
		report.TotalSizeMB += float64(info.Size()) / (1024 * 1024)

		age := now.Sub(info.ModTime())
		switch {
		case age > stale:
			report.StaleSessions = append(report.StaleSessions, path)
		case info.Size() > maxFileBytes && !strings.HasSuffix(path, ".gz"):
			report.OversizedFiles = append(report.OversizedFiles, path)
		case age > retain && !strings.HasSuffix(path, ".gz"):
			report.CompressibleFiles = append(report.CompressibleFiles, path)
		}
	}, report)
	if err != nil {
		return nil, guarderr.Wrap(guarderr.CodeScanFailed,
			"could not scan the log tree",
			"verify "+m.root+" exists and is readable", err)
	}
	return report, nil
}

// Fix applies the maintenance pass: compress, trim, delete stale.
func (m *Manager) Fix(opts Options) (*FixReport, error) {
	scan, err := m.Scan(opts)
	if err != nil {
		return nil, err
	}
	_, _, maxFileBytes := m.thresholds(opts)

	report := &FixReport{SizeBeforeMB: scan.TotalSizeMB}

	for _, path := range scan.CompressibleFiles {
		if err := m.compress(path); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		report.Compressed = append(report.Compressed, path)
	}

	for _, path := range scan.OversizedFiles {
		before, after, err := m.trimTail(path, constants.TailKeepLines, maxFileBytes)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		if after < before {
			report.Trimmed = append(report.Trimmed, path)
		}
	}

	for _, path := range scan.StaleSessions {
		if err := os.RemoveAll(path); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		report.Deleted = append(report.Deleted, path)
		m.journal(store.JournalEntry{
			Action: "delete-stale-session",
			Target: path,
			Detail: "session artifact past the stale window",
		})
	}

	if rescan, err := m.Scan(opts); err == nil {
		report.SizeAfterMB = rescan.TotalSizeMB
	} else {
		report.SizeAfterMB = report.SizeBeforeMB
	}
	return report, nil
}

// walkSessions visits every session artifact under the root. Protected
// names and non-session files are skipped; symlinks are never followed.
func (m *Manager) walkSessions(visit func(path string, d fs.DirEntry, info fs.FileInfo), report *ScanReport) error {
	if _, err := os.Stat(m.root); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			return nil
		}
		if path == m.root {
			return nil
		}
		name := d.Name()
		if protectedNames[name] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if d.IsDir() {
			if sessionDirRe.MatchString(name) {
				info, err := d.Info()
				if err == nil {
					visit(path, d, info)
				}
			}
			return nil
		}

		if !sessionFileRe.MatchString(name) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		visit(path, d, info)
		return nil
	})
}

// compress gzips path in place, replacing <name>.jsonl with
// <name>.jsonl.gz. The original is removed only after the archive is
// fully written and synced.
func (m *Manager) compress(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dstPath := path + ".gz"
	dst, err := os.OpenFile(dstPath+".tmp", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		dst.Close()
		_ = os.Remove(dstPath + ".tmp")
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		_ = os.Remove(dstPath + ".tmp")
		return err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		_ = os.Remove(dstPath + ".tmp")
		return err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dstPath + ".tmp")
		return err
	}
	if err := os.Rename(dstPath+".tmp", dstPath); err != nil {
		_ = os.Remove(dstPath + ".tmp")
		return err
	}
	if err := os.Remove(path); err != nil {
		return err
	}

	archived, _ := os.Stat(dstPath)
	after := int64(0)
	if archived != nil {
		after = archived.Size()
	}
	m.journal(store.JournalEntry{
		Action:     "compress",
		Target:     path,
		Detail:     "rotated to " + filepath.Base(dstPath),
		SizeBefore: info.Size(),
		SizeAfter:  after,
	})
	return nil
}

// trimTail rewrites path keeping only its trailing keepLines lines.
// Returns sizes before and after. A file already under maxBytes after a
// concurrent writer shrank it is left alone.
func (m *Manager) trimTail(path string, keepLines int, maxBytes int64) (before, after int64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	before = info.Size()
	if before <= maxBytes {
		return before, before, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return before, before, err
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > keepLines {
			lines = lines[1:]
		}
	}
	scanErr := scanner.Err()
	f.Close()
	if scanErr != nil {
		return before, before, scanErr
	}

	tmp := path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return before, before, err
	}
	w := bufio.NewWriter(out)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			out.Close()
			_ = os.Remove(tmp)
			return before, before, err
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return before, before, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return before, before, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return before, before, err
	}

	trimmed, _ := os.Stat(path)
	if trimmed != nil {
		after = trimmed.Size()
	}
	m.journal(store.JournalEntry{
		Action:     "trim",
		Target:     path,
		Detail:     fmt.Sprintf("kept trailing %d lines", keepLines),
		SizeBefore: before,
		SizeAfter:  after,
	})
	return before, after, nil
}
