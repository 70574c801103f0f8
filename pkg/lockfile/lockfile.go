// Package lockfile serializes build steps that write the same output path.
//
// A lock is a small JSON file placed next to the guarded path. It is created
// with O_EXCL, refreshed by a heartbeat while held, and taken over once its
// heartbeat has gone quiet for longer than the stale timeout.
package lockfile

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
	"github.com/paulschiretz/pgl-buildaux/pkg/util"
)

// Lock files are named ".~<base>.pgl-buildaux.lock" next to the guarded path.
const lockSuffix = ".pgl-buildaux.lock"

// LockContent is the data written to the lock file.
type LockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	LastUpdate time.Time `json:"lastUpdate"`
	Nonce      string    `json:"nonce,omitempty"`
	AppID      string    `json:"appID"`
}

// ErrLockActive is returned when another process holds a live lock.
type ErrLockActive struct {
	Path      string
	PID       int64
	Hostname  string
	AppID     string
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("%s is locked by PID %d on host '%s' (App: %s), last updated %s ago",
		e.Path, e.PID, e.Hostname, e.AppID, e.TimeSince.Truncate(time.Second))
}

// ErrLostRace is returned when two processes take over the same stale lock
// and this one lost.
var ErrLostRace = errors.New("lost race during stale lock takeover")

// ErrCorruptLockFile means the lock file is empty or not valid JSON.
var ErrCorruptLockFile = errors.New("lock file is corrupt or empty")

// These are vars to allow modification during testing.
var (
	heartbeatInterval = 30 * time.Second
	staleTimeout      = 3 * heartbeatInterval
)

// Lock is a held lock. Release it when the guarded work is done.
type Lock struct {
	path    string
	content LockContent
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	held    bool
}

// PathFor returns the lock file location for guarded.
func PathFor(guarded string) string {
	clean := filepath.Clean(guarded)
	return filepath.Join(filepath.Dir(clean), ".~"+filepath.Base(clean)+lockSuffix)
}

// Acquire takes the lock for guarded. It returns *ErrLockActive when a live
// lock is held elsewhere; ctx only bounds the acquisition attempt.
func Acquire(ctx context.Context, guarded, appID string) (*Lock, error) {
	lockPath := PathFor(guarded)
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lock, err := tryAcquire(lockPath, appID)
		if err == nil {
			go lock.heartbeat()
			return lock, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file %s: %w", lockPath, err)
		}

		content, readErr := readLockContent(lockPath)
		switch {
		case os.IsNotExist(readErr):
			// Released between our create and read; try again.
			continue
		case errors.Is(readErr, ErrCorruptLockFile):
			plog.Warn("Found corrupt lock file, treating as stale", "path", lockPath, "error", readErr)
		case readErr != nil:
			return nil, readErr
		default:
			elapsed := time.Since(content.LastUpdate)
			if elapsed < staleTimeout {
				return nil, &ErrLockActive{
					Path:      guarded,
					PID:       content.PID,
					Hostname:  content.Hostname,
					AppID:     content.AppID,
					TimeSince: elapsed,
				}
			}
			plog.Warn("Found stale lock, attempting takeover", "path", lockPath, "pid", content.PID, "age", elapsed)
		}

		lock, err = takeover(lockPath, appID)
		if err != nil {
			if errors.Is(err, ErrLostRace) {
				plog.Debug("Lock takeover race lost, retrying acquisition", "path", lockPath)
			} else {
				plog.Warn("Failed to take over lock, retrying", "path", lockPath, "error", err)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		go lock.heartbeat()
		return lock, nil
	}

	return nil, fmt.Errorf("failed to acquire lock %s after %d attempts", lockPath, maxAttempts)
}

func newContent(appID string) (LockContent, error) {
	nonce, err := generateNonce()
	if err != nil {
		return LockContent{}, err
	}
	hostname, err := os.Hostname()
	if err != nil {
		return LockContent{}, err
	}
	return LockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		LastUpdate: time.Now().UTC(),
		Nonce:      nonce,
		AppID:      appID,
	}, nil
}

func newLock(lockPath string, content LockContent) *Lock {
	ctx, cancel := context.WithCancel(context.Background())
	return &Lock{path: lockPath, content: content, ctx: ctx, cancel: cancel, held: true}
}

// tryAcquire creates the lock file; O_EXCL makes the first creator the owner.
func tryAcquire(lockPath, appID string) (*Lock, error) {
	content, err := newContent(appID)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	l := newLock(lockPath, content)
	if err := writeLockContent(f, content); err != nil {
		l.remove()
		return nil, err
	}
	return l, nil
}

// takeover replaces a stale lock atomically and reads it back; only the
// process whose nonce survived owns the lock.
func takeover(lockPath, appID string) (*Lock, error) {
	content, err := newContent(appID)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(lockPath, content); err != nil {
		return nil, err
	}

	readback, err := readLockContent(lockPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read back lock file after takeover: %w", err)
	}
	if readback.PID != content.PID || readback.Nonce != content.Nonce {
		return nil, ErrLostRace
	}
	plog.Debug("Took over stale lock", "path", lockPath)
	return newLock(lockPath, content), nil
}

// Release stops the heartbeat and removes the lock file. It is safe to call
// more than once.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	l.cancel()
	l.remove()
	l.held = false
}

func (l *Lock) remove() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
		return
	}
	plog.Debug("Lock released", "path", l.path)
}

func (l *Lock) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			// Held under mu so a concurrent Release cannot be undone by a late write.
			l.mu.Lock()
			if l.held {
				l.content.LastUpdate = time.Now().UTC()
				if err := writeAtomic(l.path, l.content); err != nil {
					plog.Warn("Heartbeat failed to update lock file", "path", l.path, "error", err)
				}
			}
			l.mu.Unlock()
		}
	}
}

// writeAtomic writes content to a temp file in the lock's directory and
// renames it over the lock, so readers never see a partial file.
func writeAtomic(lockPath string, content LockContent) error {
	tmp, err := os.CreateTemp(filepath.Dir(lockPath), filepath.Base(lockPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeLockContent(tmp, content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp lock file: %w", err)
	}
	if err := os.Rename(tmp.Name(), lockPath); err != nil {
		return fmt.Errorf("failed to rename temp lock file: %w", err)
	}
	return nil
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return fmt.Sprintf("%x", b), nil
}

func writeLockContent(w io.Writer, content LockContent) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock content: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write lock content: %w", err)
	}
	return nil
}

// readLockContent reads the lock file, retrying briefly when it is empty or
// unparsable since a creator may still be writing it.
func readLockContent(lockPath string) (LockContent, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		data, err := os.ReadFile(lockPath)
		if err != nil {
			return LockContent{}, err
		}
		var content LockContent
		if len(data) == 0 {
			lastErr = errors.New("lock file is empty")
		} else if lastErr = json.Unmarshal(data, &content); lastErr == nil {
			return content, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return LockContent{}, fmt.Errorf("%w: %v", ErrCorruptLockFile, lastErr)
}
