package guardian

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/claudeguard/claudeguard/internal/config"
	"github.com/claudeguard/claudeguard/internal/constants"
	"github.com/claudeguard/claudeguard/internal/store"
)

// Daemon is the background service wrapping a Supervisor in a fixed
// 2-second tick, a singleton lock, and signal handling.
type Daemon struct {
	cfg    *config.Config
	logger *log.Logger
	st     *store.Store
	sup    *Supervisor
	stop   chan struct{}
}

// NewDaemon creates a daemon instance. The daemon logs to the data
// directory's daemon.log.
func NewDaemon(cfg *config.Config) (*Daemon, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	logFile, err := os.OpenFile(cfg.LogFile(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	logger := log.New(logFile, "", log.LstdFlags)

	st := store.New(cfg, logger)
	return &Daemon{
		cfg:    cfg,
		logger: logger,
		st:     st,
		sup:    NewSupervisor(cfg, st, logger),
		stop:   make(chan struct{}),
	}, nil
}

// Run starts the polling loop and blocks until a signal or Stop. The
// flock prevents the TOCTOU race where concurrent starts all pass an
// IsRunning check before any writes the pidfile.
func (d *Daemon) Run() error {
	d.logger.Printf("Guardian daemon starting (PID %d)", os.Getpid())

	fileLock := flock.New(d.cfg.LockFile())
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("daemon already running (lock held by another process)")
	}
	defer func() { _ = fileLock.Unlock() }()

	if err := os.WriteFile(d.cfg.PidFile(), []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() { _ = os.Remove(d.cfg.PidFile()) }()

	d.sup.SetDaemonPID(os.Getpid())
	if prev, err := d.st.LoadState(); err == nil {
		d.sup.Restore(prev)
	}

	if err := d.st.AppendJournal(store.JournalEntry{
		Action: "daemon-start",
		Detail: fmt.Sprintf("pid %d", os.Getpid()),
	}); err != nil {
		d.logger.Printf("Warning: journal append failed: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, daemonSignals()...)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(constants.PollInterval)
	defer ticker.Stop()

	d.logger.Printf("Polling every %s", constants.PollInterval)
	d.sup.Tick(time.Now())

	for {
		select {
		case sig := <-sigChan:
			d.logger.Printf("Received signal %v, shutting down", sig)
			return d.shutdown()

		case <-d.stop:
			d.logger.Println("Stop requested, shutting down")
			return d.shutdown()

		case <-ticker.C:
			d.sup.Tick(time.Now())
		}
	}
}

// Stop signals the daemon to exit its loop.
func (d *Daemon) Stop() { close(d.stop) }

// shutdown exits cleanly: stop the tick, flush nothing, journal the
// stop. The last persisted snapshot stays as-is.
func (d *Daemon) shutdown() error {
	if err := d.st.AppendJournal(store.JournalEntry{
		Action: "daemon-stop",
		Detail: fmt.Sprintf("pid %d", os.Getpid()),
	}); err != nil {
		d.logger.Printf("Warning: journal append failed: %v", err)
	}
	d.logger.Println("Guardian daemon stopped")
	return nil
}

// IsRunning checks the pidfile and verifies the process is alive and is
// actually a guardian daemon (PID reuse guard). The flock in Run is the
// authoritative duplicate-prevention mechanism; this is for status
// checks and cleanup.
func IsRunning(cfg *config.Config) (bool, int, error) {
	data, err := os.ReadFile(cfg.PidFile())
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("reading PID file: %w", err)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return false, 0, fmt.Errorf("invalid PID in file %q: %w", pidStr, err)
	}

	if !processAlive(pid) || !isGuardianDaemon(pid) {
		// Stale pidfile: the process died or the PID was reused.
		_ = os.Remove(cfg.PidFile())
		return false, 0, nil
	}
	return true, pid, nil
}

// StopDaemon asks the running daemon to exit via the platform's
// termination signal and cleans up the pidfile.
func StopDaemon(cfg *config.Config) error {
	running, pid, err := IsRunning(cfg)
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("daemon is not running")
	}

	if err := terminateProcess(pid); err != nil {
		return fmt.Errorf("stopping daemon (pid %d): %w", pid, err)
	}

	// Give it a moment to exit and remove its own pidfile.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = os.Remove(cfg.PidFile())
	return nil
}

// LogPath returns the daemon log location for `daemon logs`.
func LogPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "daemon.log")
}
