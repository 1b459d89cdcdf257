// Package config resolves the guardian's filesystem layout and the small
// set of user-facing knobs.
//
// Layout under the data directory (~/.claudeguard):
//
//	state.json       latest guardian snapshot
//	budget.json      latest concurrency budget
//	journal.jsonl    append-only action log
//	incidents.jsonl  append-only closed incidents
//	bundle-*.zip     diagnostic bundles
//	daemon.log       daemon log
//	daemon.pid       daemon pidfile
//	daemon.lock      daemon flock
//
// Knobs come from defaults, then an optional guardian.toml in the data
// directory; values in the file win. There are no command-line overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/claudeguard/claudeguard/internal/constants"
)

// Config is the resolved guardian configuration.
type Config struct {
	// DataDir holds all guardian state.
	DataDir string

	// WatchedDir is the assistant's log tree (~/.claude/projects).
	WatchedDir string

	// ProcessPrefix selects assistant processes by name prefix.
	ProcessPrefix string

	// MaxLogDirMB is the log-tree size ceiling before fixes kick in.
	MaxLogDirMB int

	// HangThresholdSeconds is the no-activity duration that arms the
	// composite quiet detector.
	HangThresholdSeconds int

	// AutoFix lets the polling loop run the log manager when disk is low.
	AutoFix bool

	// AutoRestart is reserved for a future watchdog mode. Parsed and
	// carried but never acted on: the guardian does not restart anything.
	AutoRestart bool
}

// fileConfig is the guardian.toml schema. All fields optional.
type fileConfig struct {
	WatchedDir           string `toml:"watched_dir"`
	ProcessPrefix        string `toml:"process_prefix"`
	MaxLogDirMB          int    `toml:"max_log_dir_mb"`
	HangThresholdSeconds int    `toml:"hang_no_activity_seconds"`
	AutoFix              *bool  `toml:"auto_fix"`
	AutoRestart          *bool  `toml:"auto_restart"`
}

// Default returns the built-in configuration rooted at the user's home.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	return &Config{
		DataDir:              filepath.Join(home, ".claudeguard"),
		WatchedDir:           filepath.Join(home, ".claude", "projects"),
		ProcessPrefix:        constants.ProcessNamePrefix,
		MaxLogDirMB:          constants.DefaultMaxLogDirMB,
		HangThresholdSeconds: int(constants.DefaultHangThreshold.Seconds()),
		AutoFix:              true,
	}, nil
}

// Load resolves the configuration: defaults overlaid with guardian.toml
// if present. A missing file is not an error; a malformed one is.
func Load() (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if err := cfg.applyFile(filepath.Join(cfg.DataDir, "guardian.toml")); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if fc.WatchedDir != "" {
		c.WatchedDir = fc.WatchedDir
	}
	if fc.ProcessPrefix != "" {
		c.ProcessPrefix = fc.ProcessPrefix
	}
	if fc.MaxLogDirMB > 0 {
		c.MaxLogDirMB = fc.MaxLogDirMB
	}
	if fc.HangThresholdSeconds > 0 {
		c.HangThresholdSeconds = fc.HangThresholdSeconds
	}
	if fc.AutoFix != nil {
		c.AutoFix = *fc.AutoFix
	}
	if fc.AutoRestart != nil {
		c.AutoRestart = *fc.AutoRestart
	}
	return nil
}

// StatePath returns the snapshot record path.
func (c *Config) StatePath() string { return filepath.Join(c.DataDir, "state.json") }

// BudgetPath returns the budget record path.
func (c *Config) BudgetPath() string { return filepath.Join(c.DataDir, "budget.json") }

// JournalPath returns the append-only action log path.
func (c *Config) JournalPath() string { return filepath.Join(c.DataDir, "journal.jsonl") }

// IncidentsPath returns the append-only closed-incident log path.
func (c *Config) IncidentsPath() string { return filepath.Join(c.DataDir, "incidents.jsonl") }

// LogFile returns the daemon log path.
func (c *Config) LogFile() string { return filepath.Join(c.DataDir, "daemon.log") }

// PidFile returns the daemon pidfile path.
func (c *Config) PidFile() string { return filepath.Join(c.DataDir, "daemon.pid") }

// LockFile returns the daemon flock path.
func (c *Config) LockFile() string { return filepath.Join(c.DataDir, "daemon.lock") }
