// Package constants defines the guardian's hardcoded threshold table.
//
// These values are deliberately not user-configurable: the detector's
// behavior must be predictable across installs so that a bundle from one
// machine can be interpreted on another. The few user-facing knobs live in
// internal/config.
package constants

import "time"

// Polling.
const (
	// PollInterval is the supervisor tick period.
	PollInterval = 2000 * time.Millisecond

	// StateFreshness is how old a persisted snapshot may be before RPC
	// handlers fall back to computing a live degraded snapshot.
	StateFreshness = 10 * time.Second
)

// Disk and log-tree pressure.
const (
	// DiskFreeWarningGB is the free-space floor below which disk is "low".
	// Strict less-than: exactly 5 GB free is not low.
	DiskFreeWarningGB = 5.0

	// MaxFileSizeMB is the per-file size ceiling before trimming.
	MaxFileSizeMB = 25

	// RetainDays is the age past which session logs are compressed.
	RetainDays = 7

	// StaleSessionDays is the age past which session artifacts are deleted.
	StaleSessionDays = 30

	// TailKeepLines is how many trailing lines a trim preserves.
	TailKeepLines = 10000

	// BundleTailLines is how many trailing log lines go into a bundle.
	BundleTailLines = 500
)

// CPU and memory thresholds.
const (
	// CPULowThresholdPercent: below this, a process counts as CPU-idle.
	CPULowThresholdPercent = 5.0

	// CPUHotThresholdPercent: above this, a process counts as CPU-hot.
	CPUHotThresholdPercent = 95.0

	// MemoryHighThresholdMB: above this resident set, memory is high.
	MemoryHighThresholdMB = 4096.0
)

// Hang detection timing.
const (
	// GraceWindow is the startup interval during which hang signals alone
	// never escalate. Disk pressure bypasses grace.
	GraceWindow = 60 * time.Second

	// CriticalAfter is how long past the hang threshold composite quiet
	// must persist before warn escalates to critical.
	CriticalAfter = 600 * time.Second

	// BundleCooldown is the per-PID minimum spacing between bundles.
	BundleCooldown = 300 * time.Second
)

// Concurrency budget.
const (
	// BaseCap is the full concurrency budget under ok risk.
	BaseCap = 4

	// WarnCap is the reduced budget under warn risk.
	WarnCap = 2

	// CriticalCap is the floor budget under critical risk.
	CriticalCap = 1

	// Hysteresis is how long risk must stay ok before the cap restores.
	Hysteresis = 60 * time.Second
)

// Probes.
const (
	// ProbeTimeout bounds any subprocess a probe shells out to. On expiry
	// the probe yields null for that field rather than failing the tick.
	ProbeTimeout = 3 * time.Second

	// ActivityScanLimit caps how many recently-modified files the
	// activity probe examines per walk.
	ActivityScanLimit = 200

	// ProcessNamePrefix selects the watched assistant processes.
	ProcessNamePrefix = "claude"
)

// Defaults for the user-facing knobs (see internal/config).
const (
	// DefaultMaxLogDirMB is the log-tree size ceiling.
	DefaultMaxLogDirMB = 200

	// DefaultHangThreshold is the no-activity duration that arms the
	// composite quiet detector.
	DefaultHangThreshold = 300 * time.Second
)
