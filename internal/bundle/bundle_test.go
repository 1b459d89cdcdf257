package bundle

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/claudeguard/claudeguard/internal/config"
	"github.com/claudeguard/claudeguard/internal/risk"
	"github.com/claudeguard/claudeguard/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:    filepath.Join(dir, "data"),
		WatchedDir: filepath.Join(dir, "projects"),
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.WatchedDir, 0755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func readEntry(t *testing.T, zr *zip.ReadCloser, name string) string {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}
	t.Fatalf("entry %s missing from archive", name)
	return ""
}

func TestWriteBundle(t *testing.T) {
	cfg := testConfig(t)
	st := store.New(cfg, nil)

	// Seed journal and a recent session log.
	if err := st.AppendJournal(store.JournalEntry{Action: "compress", Detail: "seed"}); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(cfg.WatchedDir, "6f9619ff-8b86-4d01-b42d-00c04fc964ff.jsonl")
	if err := os.WriteFile(logPath, []byte("line one\nline two\n"), 0644); err != nil {
		t.Fatal(err)
	}

	state := &store.GuardianState{
		UpdatedAt:  time.Now(),
		HangRisk:   risk.HangRisk{Level: risk.LevelCritical},
		DiskFreeGB: 3.2,
	}

	path, err := NewWriter(cfg).Write("", state)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Dir(path) != cfg.DataDir {
		t.Errorf("bundle landed in %s, want the data dir", filepath.Dir(path))
	}
	if !strings.HasPrefix(filepath.Base(path), "bundle-") || !strings.HasSuffix(path, ".zip") {
		t.Errorf("bundle name = %s", filepath.Base(path))
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("archive unreadable: %v", err)
	}
	defer zr.Close()

	system := readEntry(t, zr, "system.txt")
	if !strings.Contains(system, "disk free: 3.2 GB") || !strings.Contains(system, "risk: critical") {
		t.Errorf("system.txt = %q", system)
	}

	stateJSON := readEntry(t, zr, "state.json")
	if !strings.Contains(stateJSON, `"critical"`) {
		t.Errorf("state.json = %q", stateJSON)
	}

	journal := readEntry(t, zr, "journal.jsonl")
	if !strings.Contains(journal, "seed") {
		t.Errorf("journal.jsonl = %q", journal)
	}

	tail := readEntry(t, zr, "logs/6f9619ff-8b86-4d01-b42d-00c04fc964ff.jsonl.tail.txt")
	if !strings.Contains(tail, "line two") {
		t.Errorf("log tail = %q", tail)
	}
}

func TestWriteBundleExplicitPath(t *testing.T) {
	cfg := testConfig(t)
	out := filepath.Join(t.TempDir(), "evidence.zip")

	path, err := NewWriter(cfg).Write(out, &store.GuardianState{UpdatedAt: time.Now()})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if path != out {
		t.Errorf("path = %s, want %s", path, out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Error("archive missing at the requested path")
	}
}

func TestWriteBundleWithoutLogTree(t *testing.T) {
	cfg := testConfig(t)
	if err := os.RemoveAll(cfg.WatchedDir); err != nil {
		t.Fatal(err)
	}
	if _, err := NewWriter(cfg).Write("", &store.GuardianState{UpdatedAt: time.Now()}); err != nil {
		t.Errorf("missing log tree must not fail the bundle: %v", err)
	}
}
