package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/steveyegge/sgcc/internal/config"
)

// LockFileName is the resolve lock inside the project directory.
const LockFileName = ".resolve-lock"

// ErrLocked is returned when another live process holds the resolve lock.
var ErrLocked = errors.New("resolve lock held by another process")

// ResolveLock is the lock file format that gives one `sgcc resolve` exclusive
// use of a project database. Two concurrent resolves would interleave their
// mapping rows and iteration history.
type ResolveLock struct {
	Holder    string    `json:"holder"`
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// AcquireResolveLock creates the lock file in the .sgcc directory next to
// dbPath. A lock left behind by a dead local process is treated as stale and
// replaced. Returns the lock file path for ReleaseResolveLock.
//
// The lock is written to a temp file and published with a hard link, which
// fails if the lock already exists. Readers never see a partial lock file.
func AcquireResolveLock(dbPath, runID string) (lockPath string, err error) {
	projectRoot, err := GetProjectRoot(dbPath)
	if err != nil {
		return "", fmt.Errorf("invalid database path: %w", err)
	}

	lockPath = filepath.Join(projectRoot, config.ProjectDir, LockFileName)

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := ResolveLock{
		Holder:    "sgcc-resolve",
		RunID:     runID,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		err := createLockFile(lockPath, data)
		if err == nil {
			return lockPath, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to create resolve lock: %w", err)
		}

		existing, readErr := readLockFile(lockPath)
		if errors.Is(readErr, fs.ErrNotExist) {
			// Released between our link and read
			continue
		}
		if readErr == nil && isProcessAlive(existing.PID, existing.Hostname) {
			return "", fmt.Errorf("%w: run %s (PID %d on %s, started %s)",
				ErrLocked, existing.RunID, existing.PID, existing.Hostname,
				existing.StartedAt.Format(time.RFC3339))
		}

		// Stale or unreadable: remove it and try to publish ours again
		if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to remove stale resolve lock: %w", err)
		}
	}

	return "", fmt.Errorf("%w: lock %s kept changing hands", ErrLocked, lockPath)
}

// maxLockAttempts bounds stale-lock replacement retries.
const maxLockAttempts = 3

// createLockFile publishes data at lockPath, failing with fs.ErrExist when a
// lock is already there.
func createLockFile(lockPath string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(lockPath), LockFileName+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Link(tmpPath, lockPath)
}

func readLockFile(lockPath string) (*ResolveLock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}
	var lock ResolveLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("corrupt resolve lock: %w", err)
	}
	return &lock, nil
}

// ReleaseResolveLock removes the lock file. An empty path is a no-op.
func ReleaseResolveLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove resolve lock: %w", err)
	}

	return nil
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
// Remote hosts cannot be checked and are assumed alive.
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

	// Signal 0 checks for existence without delivering anything.
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM: the process exists but belongs to someone else
	return errors.Is(err, syscall.EPERM)
}
