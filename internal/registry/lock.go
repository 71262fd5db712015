package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"
)

// WatchLock is the lock file format watch mode uses to claim exclusive
// ownership of a registry. One-shot commands do not lock; the registry is
// single-writer by convention, and this lock only guards the long-running
// watch loop against a second watcher on the same registry path.
type WatchLock struct {
	Holder     string    `json:"holder"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	StartedAt  time.Time `json:"started_at"`
	InstanceID string    `json:"instance_id"`
}

// AcquireWatchLock creates the lock file next to the registry. A live
// holder fails the acquire; a stale lock (dead PID on this host) is
// overwritten. Returns the lock file path for cleanup on shutdown.
func AcquireWatchLock(registryPath, instanceID string) (string, error) {
	lockPath := registryPath + ".lock"

	if data, err := os.ReadFile(lockPath); err == nil {
		var existing WatchLock
		if json.Unmarshal(data, &existing) == nil {
			if isProcessAlive(existing.PID, existing.Hostname) {
				return "", fmt.Errorf("another watcher is already running (PID %d on %s, started %s)",
					existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
			}
			// Holder is gone; fall through and take the lock over.
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := WatchLock{
		Holder:     "expreg-watch",
		PID:        os.Getpid(),
		Hostname:   hostname,
		StartedAt:  time.Now(),
		InstanceID: instanceID,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}
	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create watch lock: %w", err)
	}
	return lockPath, nil
}

// ReleaseWatchLock removes the lock file. Should be called on watcher
// shutdown (use defer).
func ReleaseWatchLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove watch lock: %w", err)
	}
	return nil
}

// isProcessAlive reports whether the recorded lock holder is still
// running. Holders on another host cannot be probed from here, so they
// count as alive; removing such a lock is the operator's call.
func isProcessAlive(pid int, hostname string) bool {
	self, err := os.Hostname()
	if err != nil || !strings.EqualFold(hostname, self) {
		return true
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	switch err := proc.Signal(syscall.Signal(0)); {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		// Signal refused, so the PID is occupied by someone else's
		// process. Treat the lock as held rather than reclaim it.
		return true
	default:
		return false
	}
}
