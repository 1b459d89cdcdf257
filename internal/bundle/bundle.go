// Package bundle packages diagnostic evidence into a single zip archive
// suitable for attaching to a bug report: system info, process samples,
// the current snapshot and budget, journal and incident tails, and the
// trailing lines of the most recent session logs.
//
// Log content beyond the tails is never read.
package bundle

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/claudeguard/claudeguard/internal/config"
	"github.com/claudeguard/claudeguard/internal/constants"
	"github.com/claudeguard/claudeguard/internal/guarderr"
	"github.com/claudeguard/claudeguard/internal/store"
)

// maxTailedLogs bounds how many session logs contribute tails.
const maxTailedLogs = 5

// Writer assembles bundles for one guardian install.
type Writer struct {
	cfg *config.Config
}

// NewWriter creates a bundle writer.
func NewWriter(cfg *config.Config) *Writer {
	return &Writer{cfg: cfg}
}

// Write creates the archive and returns its path. outPath may be empty,
// in which case the bundle lands in the data directory as
// bundle-<timestamp>.zip.
func (w *Writer) Write(outPath string, state *store.GuardianState) (string, error) {
	if outPath == "" {
		outPath = filepath.Join(w.cfg.DataDir,
			fmt.Sprintf("bundle-%s.zip", time.Now().Format("20060102-150405")))
	}

	f, err := os.Create(outPath)
	if err != nil {
		return "", guarderr.Wrap(guarderr.CodeBundleFailed,
			"could not create bundle archive",
			"check free space and permissions on "+filepath.Dir(outPath), err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	if err := w.addEntries(zw, state); err != nil {
		_ = zw.Close()
		_ = os.Remove(outPath)
		return "", guarderr.Wrap(guarderr.CodeBundleFailed,
			"could not assemble bundle contents",
			"re-run doctor; a partial archive was discarded", err)
	}

	if err := zw.Close(); err != nil {
		_ = os.Remove(outPath)
		return "", guarderr.Wrap(guarderr.CodeBundleFailed,
			"could not finalize bundle archive",
			"check free space on "+filepath.Dir(outPath), err)
	}
	return outPath, nil
}

func (w *Writer) addEntries(zw *zip.Writer, state *store.GuardianState) error {
	if err := w.addText(zw, "system.txt", systemInfo(state)); err != nil {
		return err
	}

	if state != nil {
		if err := w.addJSON(zw, "processes.json", state.Processes); err != nil {
			return err
		}
		if err := w.addJSON(zw, "state.json", state); err != nil {
			return err
		}
	}

	if data, err := os.ReadFile(w.cfg.BudgetPath()); err == nil {
		if err := w.addText(zw, "budget.json", string(data)); err != nil {
			return err
		}
	}

	for name, path := range map[string]string{
		"journal.jsonl":   w.cfg.JournalPath(),
		"incidents.jsonl": w.cfg.IncidentsPath(),
	} {
		lines := store.TailLines(path, constants.BundleTailLines)
		if lines == nil {
			continue
		}
		if err := w.addText(zw, name, strings.Join(lines, "\n")+"\n"); err != nil {
			return err
		}
	}

	return w.addLogTails(zw)
}

// addLogTails adds the trailing lines of the newest session logs.
func (w *Writer) addLogTails(zw *zip.Writer) error {
	type candidate struct {
		path  string
		mtime time.Time
	}
	var logs []candidate

	entries, err := os.ReadDir(w.cfg.WatchedDir)
	if err != nil {
		return nil // no log tree, no tails
	}
	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		children, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, c := range children {
			p := filepath.Join(dir, c.Name())
			if c.IsDir() {
				if depth < 2 {
					walk(p, depth+1)
				}
				continue
			}
			if !strings.HasSuffix(c.Name(), ".jsonl") {
				continue
			}
			if info, err := c.Info(); err == nil {
				logs = append(logs, candidate{p, info.ModTime()})
			}
		}
	}
	for _, e := range entries {
		p := filepath.Join(w.cfg.WatchedDir, e.Name())
		if e.IsDir() {
			walk(p, 1)
		} else if strings.HasSuffix(e.Name(), ".jsonl") {
			if info, err := e.Info(); err == nil {
				logs = append(logs, candidate{p, info.ModTime()})
			}
		}
	}

	sort.Slice(logs, func(i, j int) bool { return logs[i].mtime.After(logs[j].mtime) })
	if len(logs) > maxTailedLogs {
		logs = logs[:maxTailedLogs]
	}

	for _, l := range logs {
		lines := store.TailLines(l.path, constants.BundleTailLines)
		if lines == nil {
			continue
		}
		name := "logs/" + filepath.Base(l.path) + ".tail.txt"
		if err := w.addText(zw, name, strings.Join(lines, "\n")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) addText(zw *zip.Writer, name, content string) error {
	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("creating %s in archive: %w", name, err)
	}
	if _, err := entry.Write([]byte(content)); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (w *Writer) addJSON(zw *zip.Writer, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	return w.addText(zw, name, string(data))
}

// systemInfo renders the system.txt summary.
func systemInfo(state *store.GuardianState) string {
	hostname, _ := os.Hostname()
	var b strings.Builder
	fmt.Fprintf(&b, "generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "os: %s\n", runtime.GOOS)
	fmt.Fprintf(&b, "arch: %s\n", runtime.GOARCH)
	fmt.Fprintf(&b, "hostname: %s\n", hostname)
	fmt.Fprintf(&b, "go: %s\n", runtime.Version())
	if state != nil {
		fmt.Fprintf(&b, "disk free: %.1f GB\n", state.DiskFreeGB)
		fmt.Fprintf(&b, "log tree: %.1f MB\n", state.LogTreeSizeMB)
		fmt.Fprintf(&b, "risk: %s\n", state.HangRisk.Level)
		if state.ActiveIncident != nil {
			fmt.Fprintf(&b, "incident: %s (peak %s)\n",
				state.ActiveIncident.ID, state.ActiveIncident.PeakLevel)
		}
	}
	return b.String()
}
