// Package supervision provides process-level primitives: PID-file based
// single-instance enforcement and signal-driven shutdown/reload.
package supervision

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
)

// ErrAlreadyRunning means a live daemon owns the PID file.
var ErrAlreadyRunning = errors.New("daemon already running")

// PidFile holds the daemon's PID on disk for the lifetime of the process.
type PidFile struct {
	path string
	log  zerolog.Logger
}

// CreatePidFile claims path for this process. An existing file owned by a
// live process fails with ErrAlreadyRunning; a stale file is removed.
func CreatePidFile(path string, log zerolog.Logger) (*PidFile, error) {
	log = log.With().Str("component", "pidfile").Logger()

	if data, err := os.ReadFile(path); err == nil {
		if pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil {
			if processAlive(pid) {
				return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
			}
		}
		log.Info().Str("path", path).Msg("removing stale pid file")
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}

	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		return nil, err
	}

	return &PidFile{path: path, log: log}, nil
}

// Path returns the PID file location.
func (p *PidFile) Path() string { return p.path }

// Remove deletes the PID file. Best effort; errors are only logged.
func (p *PidFile) Remove() {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		p.log.Warn().Err(err).Msg("failed to remove pid file")
	}
}

// processAlive probes pid with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return errors.Is(err, syscall.EPERM)
}
