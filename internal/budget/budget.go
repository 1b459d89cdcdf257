// Package budget implements the advisory concurrency budget.
//
// The controller never blocks or kills work: callers are expected to
// acquire a lease before heavy work and release it when done. Risk
// transitions reduce the cap immediately; recovery is gated behind a
// sustained-ok hysteresis so a flapping detector cannot bounce the cap.
package budget

import (
	"fmt"
	"time"

	"github.com/claudeguard/claudeguard/internal/constants"
	"github.com/claudeguard/claudeguard/internal/risk"
	"github.com/claudeguard/claudeguard/internal/util"
)

// Lease is a time-bounded grant of concurrency slots. Immutable once
// granted; it disappears on release or expiry.
type Lease struct {
	ID        string    `json:"id"`
	Slots     int       `json:"slots"`
	Reason    string    `json:"reason"`
	GrantedAt time.Time `json:"grantedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Budget is the persisted controller state.
type Budget struct {
	CurrentCap   int        `json:"currentCap"`
	BaseCap      int        `json:"baseCap"`
	Leases       []Lease    `json:"leases"`
	CapSetByRisk risk.Level `json:"capSetByRisk,omitempty"`
	CapChangedAt time.Time  `json:"capChangedAt"`
	OkSinceAt    *time.Time `json:"okSinceAt,omitempty"`
}

// Default returns a fresh budget at full cap.
func Default() *Budget {
	return &Budget{CurrentCap: constants.BaseCap, BaseCap: constants.BaseCap}
}

// SlotsInUse sums the slots of all active leases.
func (b *Budget) SlotsInUse() int {
	total := 0
	for _, l := range b.Leases {
		total += l.Slots
	}
	return total
}

// AdjustCap applies a risk observation to the cap. Returns true when the
// cap changed, for logging. Non-ok observations clear okSinceAt, so every
// flap restarts the hysteresis clock.
func (b *Budget) AdjustCap(level risk.Level, now time.Time) bool {
	switch level {
	case risk.LevelCritical:
		return b.reduce(constants.CriticalCap, risk.LevelCritical, now)

	case risk.LevelWarn:
		return b.reduce(constants.WarnCap, risk.LevelWarn, now)

	default:
		if b.CurrentCap >= b.BaseCap {
			b.OkSinceAt = nil
			return false
		}
		if b.OkSinceAt == nil {
			t := now
			b.OkSinceAt = &t
			return false
		}
		if now.Sub(*b.OkSinceAt) < constants.Hysteresis {
			return false
		}
		b.CurrentCap = b.BaseCap
		b.CapSetByRisk = ""
		b.CapChangedAt = now
		b.OkSinceAt = nil
		return true
	}
}

func (b *Budget) reduce(limit int, level risk.Level, now time.Time) bool {
	b.OkSinceAt = nil
	changed := b.CurrentCap != limit || b.CapSetByRisk != level
	if b.CurrentCap != limit {
		b.CurrentCap = limit
		b.CapChangedAt = now
	}
	b.CapSetByRisk = level
	return changed
}

// Acquire mints a lease for n slots with the given TTL. The grant is
// denied when the arguments are invalid or fewer than n slots remain
// under the current cap.
func (b *Budget) Acquire(n int, ttl time.Duration, reason string, now time.Time) (*Lease, error) {
	if n <= 0 {
		return nil, fmt.Errorf("slots must be positive, got %d", n)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	available := b.CurrentCap - b.SlotsInUse()
	if available < 0 {
		available = 0
	}
	if n > available {
		return nil, fmt.Errorf("requested %d slot(s) but only %d available (cap %d, in use %d)",
			n, available, b.CurrentCap, b.SlotsInUse())
	}

	lease := Lease{
		ID:        util.ShortID(),
		Slots:     n,
		Reason:    reason,
		GrantedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	b.Leases = append(b.Leases, lease)
	return &lease, nil
}

// Release removes a lease by id; reports whether it was found.
func (b *Budget) Release(id string) bool {
	for i, l := range b.Leases {
		if l.ID == id {
			b.Leases = append(b.Leases[:i], b.Leases[i+1:]...)
			return true
		}
	}
	return false
}

// ExpireLeases drops all leases whose TTL has elapsed and returns how
// many were removed. Called in each poll before the cap adjustment and
// before each acquire, so cap adjustment never sees stale TTLs.
func (b *Budget) ExpireLeases(now time.Time) int {
	kept := b.Leases[:0]
	removed := 0
	for _, l := range b.Leases {
		if l.ExpiresAt.After(now) {
			kept = append(kept, l)
		} else {
			removed++
		}
	}
	b.Leases = kept
	return removed
}

// Summary is the operator-facing view of the budget.
type Summary struct {
	CurrentCap                 int        `json:"currentCap"`
	BaseCap                    int        `json:"baseCap"`
	SlotsInUse                 int        `json:"slotsInUse"`
	SlotsAvailable             int        `json:"slotsAvailable"`
	ActiveLeases               []Lease    `json:"activeLeases"`
	CapSetByRisk               risk.Level `json:"capSetByRisk,omitempty"`
	OkSinceAt                  *time.Time `json:"okSinceAt,omitempty"`
	HysteresisRemainingSeconds float64    `json:"hysteresisRemainingSeconds"`
}

// Summarize builds the Summary for now.
func (b *Budget) Summarize(now time.Time) Summary {
	inUse := b.SlotsInUse()
	available := b.CurrentCap - inUse
	if available < 0 {
		available = 0
	}

	s := Summary{
		CurrentCap:     b.CurrentCap,
		BaseCap:        b.BaseCap,
		SlotsInUse:     inUse,
		SlotsAvailable: available,
		ActiveLeases:   append([]Lease(nil), b.Leases...),
		CapSetByRisk:   b.CapSetByRisk,
		OkSinceAt:      b.OkSinceAt,
	}
	if b.CurrentCap < b.BaseCap && b.OkSinceAt != nil {
		remaining := constants.Hysteresis.Seconds() - now.Sub(*b.OkSinceAt).Seconds()
		if remaining > 0 {
			s.HysteresisRemainingSeconds = remaining
		}
	}
	return s
}
