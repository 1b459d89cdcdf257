package rpc

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/claudeguard/claudeguard/internal/bundle"
	"github.com/claudeguard/claudeguard/internal/guarderr"
	"github.com/claudeguard/claudeguard/internal/guardian"
	"github.com/claudeguard/claudeguard/internal/logman"
	"github.com/claudeguard/claudeguard/internal/store"
)

// toolOrder fixes the tools/list ordering.
var toolOrder = []string{
	"status",
	"preflight_fix",
	"doctor",
	"nudge",
	"budget_get",
	"budget_acquire",
	"budget_release",
	"recovery_plan",
}

// boundary wraps every tool invocation: panics and errors both become
// the structured payload, never a trace.
func (s *Server) boundary(name string, h func(json.RawMessage) (string, error), args json.RawMessage) (text string, isError bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("Tool %s panicked: %v", name, r)
			text = errorText(guarderr.New(guarderr.CodeUnknown,
				fmt.Sprintf("tool %s failed unexpectedly", name),
				"check the daemon log for details"))
			isError = true
		}
	}()

	text, err := h(args)
	if err != nil {
		s.logger.Printf("Tool %s failed: %v", name, err)
		return errorText(err), true
	}
	return text, false
}

// errorText renders an error as the structured JSON payload.
func errorText(err error) string {
	data, marshalErr := json.MarshalIndent(guarderr.ToPayload(err), "", "  ")
	if marshalErr != nil {
		return fmt.Sprintf(`{"code":"UNKNOWN","message":%q,"hint":"report this"}`, err.Error())
	}
	return string(data)
}

func (s *Server) registerTools() {
	s.tools = map[string]tool{
		"status": {
			description: "Current guardian snapshot: processes, activity, hang risk, incident, budget, attention.",
			handler:     s.handleStatus,
		},
		"preflight_fix": {
			description: "Scan the assistant's log tree and fix pressure: compress old logs, trim oversized ones, delete stale sessions.",
			inputSchema: objectSchema(map[string]any{
				"aggressive": map[string]any{"type": "boolean", "description": "Halve retention and size tolerances"},
			}, nil),
			handler: s.handlePreflightFix,
		},
		"doctor": {
			description: "Capture a diagnostic bundle: system info, process snapshot, log tails, journal, state.",
			inputSchema: objectSchema(map[string]any{
				"outputPath": map[string]any{"type": "string", "description": "Where to write the archive (default: data dir)"},
			}, nil),
			handler: s.handleDoctor,
		},
		"nudge": {
			description: "Deterministic safe remediation: fix log pressure if thresholds are breached, capture evidence if an incident lacks a bundle. Idempotent.",
			handler:     s.handleNudge,
		},
		"budget_get": {
			description: "Concurrency budget summary: cap, slots in use, active leases, recovery countdown.",
			handler:     s.handleBudgetGet,
		},
		"budget_acquire": {
			description: "Acquire concurrency slots under the current cap. Returns a lease id.",
			inputSchema: objectSchema(map[string]any{
				"slots":      map[string]any{"type": "integer", "description": "Slots to acquire"},
				"ttlSeconds": map[string]any{"type": "integer", "description": "Lease lifetime in seconds"},
				"reason":     map[string]any{"type": "string", "description": "What the slots are for"},
			}, []string{"slots", "ttlSeconds", "reason"}),
			handler: s.handleBudgetAcquire,
		},
		"budget_release": {
			description: "Release a previously acquired lease.",
			inputSchema: objectSchema(map[string]any{
				"leaseId": map[string]any{"type": "string", "description": "Lease id from budget_acquire"},
			}, []string{"leaseId"}),
			handler: s.handleBudgetRelease,
		},
		"recovery_plan": {
			description: "Ordered recovery steps for the current state, naming the tool for each step.",
			handler:     s.handleRecoveryPlan,
		},
	}
}

func objectSchema(props map[string]any, required []string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// snapshot returns the persisted state when fresh, otherwise a live
// degraded snapshot.
func (s *Server) snapshot() *store.GuardianState {
	if state, err := s.st.LoadState(); err == nil && state != nil && state.Fresh(time.Now()) {
		return state
	}
	return guardian.LiveSnapshot(s.cfg, s.st, s.logger)
}

func (s *Server) handleStatus(json.RawMessage) (string, error) {
	state := s.snapshot()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", guarderr.Wrap(guarderr.CodeUnknown, "could not render status",
			"retry; report if it persists", err)
	}
	return string(data), nil
}

func (s *Server) handlePreflightFix(args json.RawMessage) (string, error) {
	var params struct {
		Aggressive bool `json:"aggressive"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return "", guarderr.Wrap(guarderr.CodeFixFailed, "invalid preflight_fix arguments",
				"pass {\"aggressive\": true|false}", err)
		}
	}

	mgr := s.logManager()
	report, err := mgr.Fix(logman.Options{Aggressive: params.Aggressive})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Log tree: %.1f MB -> %.1f MB\n", report.SizeBeforeMB, report.SizeAfterMB)
	fmt.Fprintf(&b, "compressed: %d, trimmed: %d, deleted stale: %d\n",
		len(report.Compressed), len(report.Trimmed), len(report.Deleted))
	for _, e := range report.Errors {
		fmt.Fprintf(&b, "skipped: %s\n", e)
	}
	return b.String(), nil
}

func (s *Server) handleDoctor(args json.RawMessage) (string, error) {
	var params struct {
		OutputPath string `json:"outputPath"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return "", guarderr.Wrap(guarderr.CodeBundleFailed, "invalid doctor arguments",
				"pass {\"outputPath\": \"/path/to/bundle.zip\"}", err)
		}
	}

	state := s.snapshot()
	path, err := bundle.NewWriter(s.cfg).Write(params.OutputPath, state)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Bundle written: %s\n", path)
	fmt.Fprintf(&b, "risk: %s, disk free: %.1f GB, log tree: %.1f MB\n",
		state.HangRisk.Level, state.DiskFreeGB, state.LogTreeSizeMB)
	if state.ActiveIncident != nil {
		fmt.Fprintf(&b, "incident: %s (peak %s)\n",
			state.ActiveIncident.ID, state.ActiveIncident.PeakLevel)
	}
	return b.String(), nil
}

// handleNudge is the deterministic safe remediation. It never escalates:
// it only fixes what thresholds already flag and captures evidence an
// open incident is missing. Calling it twice in a row does nothing new.
func (s *Server) handleNudge(json.RawMessage) (string, error) {
	state := s.snapshot()
	var actions []string

	treeOverLimit := state.LogTreeSizeMB > float64(s.cfg.MaxLogDirMB)
	if state.HangRisk.DiskLow || treeOverLimit {
		report, err := s.logManager().Fix(logman.Options{Aggressive: state.HangRisk.DiskLow})
		if err != nil {
			return "", err
		}
		actions = append(actions, fmt.Sprintf(
			"log fix: %.1f MB -> %.1f MB (compressed %d, trimmed %d, deleted %d)",
			report.SizeBeforeMB, report.SizeAfterMB,
			len(report.Compressed), len(report.Trimmed), len(report.Deleted)))
	}

	inc := state.ActiveIncident
	if inc != nil && !inc.BundleCaptured {
		path, err := bundle.NewWriter(s.cfg).Write("", state)
		if err != nil {
			return "", err
		}
		// Persist the captured flag so the next nudge sees exactly one
		// bundle per incident. A running daemon's tracker keeps its own
		// copy of the incident and does not read this flag back.
		inc.BundleCaptured = true
		inc.BundlePath = path
		if err := s.st.SaveState(state); err != nil {
			s.logger.Printf("Warning: %v", err)
		}
		actions = append(actions, "captured bundle: "+path)
		if err := s.st.AppendJournal(store.JournalEntry{
			Action: "bundle",
			Target: path,
			Detail: "nudge for incident " + inc.ID,
		}); err != nil {
			s.logger.Printf("Warning: journal append failed: %v", err)
		}
	}

	if len(actions) == 0 {
		return "Nothing to do: thresholds are clear and no incident needs evidence.\n", nil
	}
	return strings.Join(actions, "\n") + "\n", nil
}

func (s *Server) handleBudgetGet(json.RawMessage) (string, error) {
	b, err := s.st.LoadBudget()
	if err != nil {
		return "", err
	}
	now := time.Now()
	if expired := b.ExpireLeases(now); expired > 0 {
		if err := s.st.SaveBudget(b); err != nil {
			return "", err
		}
	}
	data, err := json.MarshalIndent(b.Summarize(now), "", "  ")
	if err != nil {
		return "", guarderr.Wrap(guarderr.CodeUnknown, "could not render budget",
			"retry; report if it persists", err)
	}
	return string(data), nil
}

func (s *Server) handleBudgetAcquire(args json.RawMessage) (string, error) {
	var params struct {
		Slots      int    `json:"slots"`
		TTLSeconds int    `json:"ttlSeconds"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", guarderr.Wrap(guarderr.CodeUnknown, "invalid budget_acquire arguments",
			"pass {\"slots\": n, \"ttlSeconds\": n, \"reason\": \"...\"}", err)
	}

	b, err := s.st.LoadBudget()
	if err != nil {
		return "", err
	}
	now := time.Now()
	b.ExpireLeases(now)

	lease, err := b.Acquire(params.Slots, time.Duration(params.TTLSeconds)*time.Second, params.Reason, now)
	if err != nil {
		return fmt.Sprintf("denied: %v\n", err), nil
	}
	if err := s.st.SaveBudget(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("granted: lease %s for %d slot(s), expires %s\n",
		lease.ID, lease.Slots, lease.ExpiresAt.Format(time.RFC3339)), nil
}

func (s *Server) handleBudgetRelease(args json.RawMessage) (string, error) {
	var params struct {
		LeaseID string `json:"leaseId"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", guarderr.Wrap(guarderr.CodeUnknown, "invalid budget_release arguments",
			"pass {\"leaseId\": \"...\"}", err)
	}

	b, err := s.st.LoadBudget()
	if err != nil {
		return "", err
	}
	found := b.Release(params.LeaseID)
	if found {
		if err := s.st.SaveBudget(b); err != nil {
			return "", err
		}
		return fmt.Sprintf("released: %s\n", params.LeaseID), nil
	}
	return fmt.Sprintf("not found: %s\n", params.LeaseID), nil
}

func (s *Server) handleRecoveryPlan(json.RawMessage) (string, error) {
	plan := guardian.Plan(s.snapshot())
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", guarderr.Wrap(guarderr.CodeUnknown, "could not render recovery plan",
			"retry; report if it persists", err)
	}
	return string(data), nil
}

// logManager builds the journaling log manager for this session.
func (s *Server) logManager() *logman.Manager {
	return logman.New(s.cfg.WatchedDir, func(e store.JournalEntry) {
		if err := s.st.AppendJournal(e); err != nil {
			s.logger.Printf("Warning: journal append failed: %v", err)
		}
	})
}
