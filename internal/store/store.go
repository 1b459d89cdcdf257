// Package store persists the guardian's two records (state, budget) and
// its two append-only logs (journal, incidents).
//
// Every record write is write-sibling-then-rename; a reader never sees a
// torn file. Reads follow a fixed discipline: a missing file is an empty
// default, and an unparseable file is backed up to <name>.corrupt.<epoch>
// with a single warning line, then treated as empty. The next poll
// repopulates it; corruption is never fatal.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/claudeguard/claudeguard/internal/attention"
	"github.com/claudeguard/claudeguard/internal/budget"
	"github.com/claudeguard/claudeguard/internal/config"
	"github.com/claudeguard/claudeguard/internal/constants"
	"github.com/claudeguard/claudeguard/internal/guarderr"
	"github.com/claudeguard/claudeguard/internal/incident"
	"github.com/claudeguard/claudeguard/internal/probe"
	"github.com/claudeguard/claudeguard/internal/risk"
	"github.com/claudeguard/claudeguard/internal/util"
)

// GuardianState is the full persisted snapshot, rewritten each poll.
type GuardianState struct {
	UpdatedAt             time.Time             `json:"updatedAt"`
	DaemonRunning         bool                  `json:"daemonRunning"`
	DaemonPID             int                   `json:"daemonPid,omitempty"`
	Processes             []probe.ProcessSample `json:"processes"`
	Activity              probe.ActivitySignals `json:"activity"`
	HangRisk              risk.HangRisk         `json:"hangRisk"`
	RecommendedActions    []string              `json:"recommendedActions,omitempty"`
	DiskFreeGB            float64               `json:"diskFreeGB"`
	LogTreeSizeMB         float64               `json:"logTreeSizeMB"`
	ActiveIncident        *incident.Incident    `json:"activeIncident,omitempty"`
	ProcessAgeSeconds     float64               `json:"processAgeSeconds"`
	CompositeQuietSeconds float64               `json:"compositeQuietSeconds"`
	BudgetSummary         *budget.Summary       `json:"budgetSummary,omitempty"`
	Attention             attention.Attention   `json:"attention"`
}

// Fresh reports whether the snapshot is recent enough for RPC handlers to
// serve directly.
func (s *GuardianState) Fresh(now time.Time) bool {
	return now.Sub(s.UpdatedAt) < constants.StateFreshness
}

// JournalEntry is one line of the append-only action log.
type JournalEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	Target     string    `json:"target,omitempty"`
	Detail     string    `json:"detail"`
	SizeBefore int64     `json:"sizeBefore,omitempty"`
	SizeAfter  int64     `json:"sizeAfter,omitempty"`
}

// Store reads and writes the guardian's on-disk records.
type Store struct {
	cfg    *config.Config
	logger *log.Logger
}

// New creates a store over the configured data directory. logger receives
// the single-line corruption warnings; nil uses the default logger.
func New(cfg *config.Config, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{cfg: cfg, logger: logger}
}

// LoadState reads the persisted snapshot. Missing or corrupt files yield
// (nil, nil): the caller treats both as "no snapshot".
func (s *Store) LoadState() (*GuardianState, error) {
	var state GuardianState
	ok, err := s.loadRecord(s.cfg.StatePath(), &state, guarderr.CodeStateCorrupt)
	if err != nil || !ok {
		return nil, err
	}
	return &state, nil
}

// SaveState writes the snapshot atomically.
func (s *Store) SaveState(state *GuardianState) error {
	if err := util.AtomicWriteJSON(s.cfg.StatePath(), state); err != nil {
		return guarderr.Wrap(guarderr.CodeStateWriteFailed,
			"could not persist guardian state",
			"check free space and permissions on "+s.cfg.DataDir, err)
	}
	return nil
}

// LoadBudget reads the persisted budget, or a fresh default when the file
// is missing or corrupt. In-flight leases do not survive corruption.
func (s *Store) LoadBudget() (*budget.Budget, error) {
	var b budget.Budget
	ok, err := s.loadRecord(s.cfg.BudgetPath(), &b, guarderr.CodeBudgetCorrupt)
	if err != nil {
		return nil, err
	}
	if !ok || b.BaseCap == 0 {
		return budget.Default(), nil
	}
	return &b, nil
}

// SaveBudget writes the budget atomically.
func (s *Store) SaveBudget(b *budget.Budget) error {
	if err := util.AtomicWriteJSON(s.cfg.BudgetPath(), b); err != nil {
		return guarderr.Wrap(guarderr.CodeBudgetWriteFailed,
			"could not persist concurrency budget",
			"check free space and permissions on "+s.cfg.DataDir, err)
	}
	return nil
}

// loadRecord reads one JSON record. Returns (false, nil) when the file is
// missing or was corrupt-and-reset.
func (s *Store) loadRecord(path string, v any, corruptCode guarderr.Code) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		backup := fmt.Sprintf("%s.corrupt.%d", path, time.Now().Unix())
		if copyErr := os.WriteFile(backup, data, 0644); copyErr == nil {
			_ = os.Remove(path)
		}
		s.logger.Printf("Warning: %s: %s is unparseable, backed up to %s and reset", corruptCode, path, backup)
		return false, nil
	}
	return true, nil
}

// AppendJournal appends one entry to the action log. Journal appends are
// line-atomic; many writers may interleave safely.
func (s *Store) AppendJournal(e JournalEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling journal entry: %w", err)
	}
	return util.AppendLine(s.cfg.JournalPath(), data)
}

// AppendIncident appends a closed incident to the incident log.
func (s *Store) AppendIncident(inc *incident.Incident) error {
	data, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("marshaling incident: %w", err)
	}
	return util.AppendLine(s.cfg.IncidentsPath(), data)
}

// TailLines returns up to n trailing lines of path. Missing files yield
// nil. Used for bundle assembly.
func TailLines(path string, n int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines
}
