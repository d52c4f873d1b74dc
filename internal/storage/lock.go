package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"
)

// ExclusiveLock is the lock file a running monitor writes next to its database
// so a second instance does not write snapshots into the same file.
type ExclusiveLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// LockPath returns the lock file location for a database path
func LockPath(dbPath string) string {
	return dbPath + ".lock"
}

// AcquireExclusiveLock creates the lock file for dbPath.
// A lock left behind by a dead process is taken over.
// Returns the lock file path for cleanup on shutdown.
func AcquireExclusiveLock(dbPath, version string) (lockPath string, err error) {
	if dbPath == "" || dbPath == ":memory:" {
		return "", nil
	}
	lockPath = LockPath(dbPath)

	// Check for existing lock
	if data, err := os.ReadFile(lockPath); err == nil {
		var existingLock ExclusiveLock
		if json.Unmarshal(data, &existingLock) == nil {
			// Check if stale (process no longer exists)
			if isProcessAlive(existingLock.PID, existingLock.Hostname) {
				return "", fmt.Errorf("another healthmon instance is already running (PID %d on %s, started %s)",
					existingLock.PID, existingLock.Hostname, existingLock.StartedAt.Format(time.RFC3339))
			}
			// Stale lock - will overwrite
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := ExclusiveLock{
		Holder:    "healthmon",
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create exclusive lock: %w", err)
	}

	return lockPath, nil
}

// ReleaseExclusiveLock removes the lock file.
// Should be called on shutdown (use defer).
func ReleaseExclusiveLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove exclusive lock: %w", err)
	}

	return nil
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
// Remote hosts and processes we cannot signal are assumed alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}

	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 checks existence without delivering anything
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM means the process exists but belongs to someone else
	if err == syscall.EPERM {
		return true
	}

	return false
}
