// Package incident tracks the guardian's single active incident.
//
// An incident is a named window spanning the first non-ok risk
// observation to the first subsequent ok. The tracker owns at most one
// active incident at a time and gates evidence capture so each incident
// produces at most one bundle, with a per-process cooldown between
// bundles across incidents.
package incident

import (
	"time"

	"github.com/claudeguard/claudeguard/internal/constants"
	"github.com/claudeguard/claudeguard/internal/risk"
	"github.com/claudeguard/claudeguard/internal/util"
)

// Incident is one detected degradation window.
type Incident struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"startedAt"`
	ClosedAt       *time.Time `json:"closedAt,omitempty"`
	Reason         string     `json:"reason"`
	PeakLevel      risk.Level `json:"peakLevel"`
	BundleCaptured bool       `json:"bundleCaptured"`
	BundlePath     string     `json:"bundlePath,omitempty"`
}

// Tracker owns the active incident and the per-PID bundle cooldown table.
type Tracker struct {
	active       *Incident
	lastBundleAt map[int]time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{lastBundleAt: make(map[int]time.Time)}
}

// Active returns the active incident, or nil.
func (t *Tracker) Active() *Incident { return t.active }

// Restore re-seats an incident loaded from a persisted snapshot, so a
// daemon restart does not double-open. Nil clears the active incident.
func (t *Tracker) Restore(inc *Incident) { t.active = inc }

// Observe feeds one risk evaluation into the state machine. When the
// observation closes an incident, the closed record is returned so the
// caller can append it to the incident log; otherwise closed is nil.
func (t *Tracker) Observe(r risk.HangRisk, now time.Time) (closed *Incident) {
	reason := summarize(r)

	switch {
	case t.active == nil && r.Level == risk.LevelOK:
		return nil

	case t.active == nil:
		t.active = &Incident{
			ID:        util.ShortID(),
			StartedAt: now,
			Reason:    reason,
			PeakLevel: r.Level,
		}
		return nil

	case r.Level == risk.LevelOK:
		done := t.active
		closedAt := now
		done.ClosedAt = &closedAt
		t.active = nil
		return done

	default:
		t.active.Reason = reason
		// Peak level is monotonic: once critical, never demoted.
		if r.Level.Severity() > t.active.PeakLevel.Severity() {
			t.active.PeakLevel = r.Level
		}
		return nil
	}
}

// ShouldCaptureBundle reports whether evidence capture is due: an active
// incident at critical peak, no bundle yet, and every given PID outside
// its cooldown window.
func (t *Tracker) ShouldCaptureBundle(pids []int, now time.Time) bool {
	if t.active == nil || t.active.PeakLevel != risk.LevelCritical || t.active.BundleCaptured {
		return false
	}
	for _, pid := range pids {
		if last, ok := t.lastBundleAt[pid]; ok {
			if now.Sub(last) < constants.BundleCooldown {
				return false
			}
		}
	}
	return true
}

// MarkCaptured records a successful bundle: sets the captured flag, the
// bundle path, and stamps the cooldown for every involved PID.
func (t *Tracker) MarkCaptured(path string, pids []int, now time.Time) {
	if t.active == nil {
		return
	}
	t.active.BundleCaptured = true
	t.active.BundlePath = path
	for _, pid := range pids {
		t.lastBundleAt[pid] = now
	}
}

// summarize collapses the risk reasons into the incident reason line.
func summarize(r risk.HangRisk) string {
	if len(r.Reasons) == 0 {
		return string(r.Level)
	}
	s := r.Reasons[0]
	for _, extra := range r.Reasons[1:] {
		s += "; " + extra
	}
	return s
}
