// Package guardian runs the polling supervisor: the 2-second loop that
// drives probes through the detector, the incident tracker, the budget
// controller, and attention synthesis, then persists the snapshot.
//
// The loop is recovery-focused and must not crash: every step failure is
// logged on one line and swallowed, and the next tick starts clean.
package guardian

import (
	"fmt"
	"log"
	"time"

	"github.com/claudeguard/claudeguard/internal/attention"
	"github.com/claudeguard/claudeguard/internal/budget"
	"github.com/claudeguard/claudeguard/internal/bundle"
	"github.com/claudeguard/claudeguard/internal/config"
	"github.com/claudeguard/claudeguard/internal/constants"
	"github.com/claudeguard/claudeguard/internal/incident"
	"github.com/claudeguard/claudeguard/internal/logman"
	"github.com/claudeguard/claudeguard/internal/probe"
	"github.com/claudeguard/claudeguard/internal/recovery"
	"github.com/claudeguard/claudeguard/internal/risk"
	"github.com/claudeguard/claudeguard/internal/store"
)

// Supervisor owns one poll pipeline. All mutable fields are touched only
// from the polling goroutine; cross-task sharing happens through the
// on-disk records.
type Supervisor struct {
	cfg    *config.Config
	st     *store.Store
	prober *probe.Prober
	logman *logman.Manager
	bundle *bundle.Writer
	logger *log.Logger

	tracker *incident.Tracker

	// sampleProcesses and diskFree default to the real probes; tests
	// substitute synthetic signals.
	sampleProcesses func() ([]probe.ProcessSample, error)
	diskFree        func(path string) (float64, error)

	// processFirstSeenAt is set on the first poll with processes and
	// cleared when they disappear; it anchors the grace window.
	processFirstSeenAt time.Time

	// compositeQuietSince anchors the composite quiet counter. Zero when
	// either signal is active.
	compositeQuietSince time.Time

	prevAttention attention.Attention

	daemonPID int
}

// NewSupervisor wires a supervisor over the given store.
func NewSupervisor(cfg *config.Config, st *store.Store, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	s := &Supervisor{
		cfg:     cfg,
		st:      st,
		prober:  probe.NewProber(cfg.ProcessPrefix),
		bundle:  bundle.NewWriter(cfg),
		logger:  logger,
		tracker: incident.NewTracker(),
	}
	s.sampleProcesses = s.prober.Sample
	s.diskFree = probe.DiskFreeGB
	s.logman = logman.New(cfg.WatchedDir, func(e store.JournalEntry) {
		if err := st.AppendJournal(e); err != nil {
			logger.Printf("Warning: journal append failed: %v", err)
		}
	})
	return s
}

// SetDaemonPID marks the snapshot as produced by a running daemon.
func (s *Supervisor) SetDaemonPID(pid int) { s.daemonPID = pid }

// Restore re-seats carried state from a previous snapshot, so a daemon
// restart does not re-open incidents or reset attention dwell time.
func (s *Supervisor) Restore(prev *store.GuardianState) {
	if prev == nil {
		return
	}
	s.tracker.Restore(prev.ActiveIncident)
	s.prevAttention = prev.Attention
	if prev.ProcessAgeSeconds > 0 {
		s.processFirstSeenAt = prev.UpdatedAt.Add(-time.Duration(prev.ProcessAgeSeconds * float64(time.Second)))
	}
	if prev.CompositeQuietSeconds > 0 {
		s.compositeQuietSince = prev.UpdatedAt.Add(-time.Duration(prev.CompositeQuietSeconds * float64(time.Second)))
	}
}

// Tick runs one full poll. Errors inside any step are logged and
// swallowed; the returned state is always usable.
func (s *Supervisor) Tick(now time.Time) *store.GuardianState {
	hangThreshold := time.Duration(s.cfg.HangThresholdSeconds) * time.Second

	// 1. Sample everything.
	diskFree, err := s.diskFree(s.cfg.WatchedDir)
	if err != nil {
		s.logger.Printf("Warning: disk probe failed: %v", err)
		diskFree = -1
	}
	treeSize := probe.TreeSizeMB(s.cfg.WatchedDir)

	procs, err := s.sampleProcesses()
	if err != nil {
		s.logger.Printf("Warning: process probe failed: %v", err)
		procs = nil
	}
	activity := probe.Activity(s.cfg.WatchedDir, procs, now)

	// 2-3. Grace anchor and process age.
	if len(procs) == 0 {
		s.processFirstSeenAt = time.Time{}
		s.compositeQuietSince = time.Time{}
	} else if s.processFirstSeenAt.IsZero() {
		s.processFirstSeenAt = now
	}
	var processAge time.Duration
	if !s.processFirstSeenAt.IsZero() {
		processAge = now.Sub(s.processFirstSeenAt)
	}

	// 4. Composite quiet: advances only while logs are quiet AND CPU is
	// low; any active signal resets it to zero.
	logAge := activity.LogLastModifiedSecondsAgo
	logQuiet := logAge < 0 || logAge > hangThreshold.Seconds()
	cpuLow := !activity.CPUActive
	if logQuiet && cpuLow && len(procs) > 0 {
		if s.compositeQuietSince.IsZero() {
			s.compositeQuietSince = now
		}
	} else {
		s.compositeQuietSince = time.Time{}
	}
	var compositeQuiet time.Duration
	if !s.compositeQuietSince.IsZero() {
		compositeQuiet = now.Sub(s.compositeQuietSince)
	}

	// 5. Detector.
	hangRisk := risk.Evaluate(risk.Inputs{
		Processes:      procs,
		Activity:       activity,
		DiskFreeGB:     diskFree,
		HangThreshold:  hangThreshold,
		ProcessAge:     processAge,
		CompositeQuiet: compositeQuiet,
	})

	// 6. Incident lifecycle and evidence capture.
	s.observeIncident(hangRisk, procs, now)

	// 7. Disk pressure remediation.
	if hangRisk.DiskLow && s.cfg.AutoFix {
		if _, err := s.logman.Fix(logman.Options{Aggressive: true}); err != nil {
			s.logger.Printf("Warning: aggressive log fix failed: %v", err)
		}
	}

	// 8. Budget: re-read so RPC acquires/releases since the last tick
	// are not clobbered, then expire and adjust.
	budgetSummary := s.adjustBudget(hangRisk.Level, now)

	// 9. Handle counts, best-effort and last: they may shell out.
	pids := make([]int, 0, len(procs))
	for _, p := range procs {
		pids = append(pids, p.PID)
	}
	handles := s.prober.Handles(pids)
	for i := range procs {
		procs[i].HandleCount = handles[procs[i].PID]
	}

	// 10. Attention.
	att := attention.Synthesize(hangRisk, budgetSummary, s.tracker.Active(), s.prevAttention, now)
	s.prevAttention = att

	// 11. Persist the snapshot.
	state := &store.GuardianState{
		UpdatedAt:             now,
		DaemonRunning:         s.daemonPID != 0,
		DaemonPID:             s.daemonPID,
		Processes:             procs,
		Activity:              activity,
		HangRisk:              hangRisk,
		RecommendedActions:    att.RecommendedActions,
		DiskFreeGB:            diskFree,
		LogTreeSizeMB:         treeSize,
		ActiveIncident:        s.tracker.Active(),
		ProcessAgeSeconds:     processAge.Seconds(),
		CompositeQuietSeconds: compositeQuiet.Seconds(),
		BudgetSummary:         &budgetSummary,
		Attention:             att,
	}
	if err := s.st.SaveState(state); err != nil {
		s.logger.Printf("Warning: %v", err)
	}
	return state
}

// observeIncident feeds the tracker and captures a bundle when due.
func (s *Supervisor) observeIncident(r risk.HangRisk, procs []probe.ProcessSample, now time.Time) {
	if closed := s.tracker.Observe(r, now); closed != nil {
		s.logger.Printf("Incident %s closed (peak %s, open %s)",
			closed.ID, closed.PeakLevel, closed.ClosedAt.Sub(closed.StartedAt).Round(time.Second))
		if err := s.st.AppendIncident(closed); err != nil {
			s.logger.Printf("Warning: incident log append failed: %v", err)
		}
	} else if inc := s.tracker.Active(); inc != nil && inc.StartedAt.Equal(now) {
		s.logger.Printf("Incident %s opened (%s): %s", inc.ID, inc.PeakLevel, inc.Reason)
	}

	pids := make([]int, 0, len(procs))
	for _, p := range procs {
		pids = append(pids, p.PID)
	}

	// The bundle writer may be slow; it runs inside the tick, so a
	// second bundle cannot start before the first finishes.
	if !s.tracker.ShouldCaptureBundle(pids, now) {
		return
	}

	prev, _ := s.st.LoadState()
	path, err := s.bundle.Write("", prev)
	if err != nil {
		s.logger.Printf("Warning: bundle capture failed: %v", err)
		return
	}
	s.tracker.MarkCaptured(path, pids, now)
	s.logger.Printf("Captured incident bundle: %s", path)
	if err := s.st.AppendJournal(store.JournalEntry{
		Action: "bundle",
		Target: path,
		Detail: "incident " + s.tracker.Active().ID,
	}); err != nil {
		s.logger.Printf("Warning: journal append failed: %v", err)
	}
}

// adjustBudget re-reads the budget record, expires leases, applies the
// risk level, and writes it back. Within one tick the cap adjustment
// always observes the lease set its own expire pass produced. The
// re-read keeps concurrent RPC acquires/releases; last writer wins on
// the cap fields, which commute with lease mutations.
func (s *Supervisor) adjustBudget(level risk.Level, now time.Time) budget.Summary {
	b, err := s.st.LoadBudget()
	if err != nil {
		s.logger.Printf("Warning: budget load failed: %v", err)
		b = budget.Default()
	}

	if expired := b.ExpireLeases(now); expired > 0 {
		s.logger.Printf("Expired %d lease(s)", expired)
	}
	if b.AdjustCap(level, now) {
		s.logger.Printf("Budget cap now %d/%d (risk %s)", b.CurrentCap, b.BaseCap, level)
		if err := s.st.AppendJournal(store.JournalEntry{
			Action: "cap-change",
			Detail: fmt.Sprintf("cap %d after %s risk", b.CurrentCap, level),
		}); err != nil {
			s.logger.Printf("Warning: journal append failed: %v", err)
		}
	}
	if err := s.st.SaveBudget(b); err != nil {
		s.logger.Printf("Warning: %v", err)
	}
	return b.Summarize(now)
}

// LiveSnapshot computes a one-shot degraded snapshot for callers that
// find the persisted state stale (no daemon running). Grace and the
// composite quiet counter read as zero because a one-shot observer has
// no history to carry.
func LiveSnapshot(cfg *config.Config, st *store.Store, logger *log.Logger) *store.GuardianState {
	s := NewSupervisor(cfg, st, logger)
	// A one-shot observer has no startup history: treat grace as already
	// expired rather than shielding escalation it knows nothing about.
	s.processFirstSeenAt = time.Now().Add(-constants.GraceWindow)
	if prev, err := st.LoadState(); err == nil && prev != nil {
		// Keep attention dwell time when a previous snapshot exists.
		s.prevAttention = prev.Attention
		s.tracker.Restore(prev.ActiveIncident)
	}
	return s.Tick(time.Now())
}

// Plan builds the recovery plan for a snapshot.
func Plan(state *store.GuardianState) recovery.Plan {
	var bs budget.Summary
	if state.BudgetSummary != nil {
		bs = *state.BudgetSummary
	}
	return recovery.Build(state.HangRisk, bs, state.ActiveIncident)
}
