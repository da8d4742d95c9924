package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/franz/shelf-curator/internal/util"
)

// Scope names a mutually exclusive class of work
type Scope string

const (
	ScopeApply   Scope = "apply"
	ScopeMigrate Scope = "migrate"
)

// DefaultStaleAfter is how old a lock's metadata must be before Inspect
// reports it as likely stale. Stale locks are reported, never removed.
const DefaultStaleAfter = 24 * time.Hour

// Info is the metadata sidecar written next to each lock file. It
// exists for diagnostics only; the flock itself is authoritative.
type Info struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	Scope      Scope     `json:"scope"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Stale reports whether the metadata is older than the threshold
func (i *Info) Stale(threshold time.Duration) bool {
	return time.Since(i.AcquiredAt) > threshold
}

// HeldError reports a lock already held by another process
type HeldError struct {
	Scope  Scope
	Holder *Info
}

func (e *HeldError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("%s lock held by pid %d on %s since %s",
			e.Scope, e.Holder.PID, e.Holder.Hostname,
			e.Holder.AcquiredAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s lock held by another process", e.Scope)
}

func (e *HeldError) Unwrap() error {
	return util.ErrLockHeld
}

// Handle is a held lock. Release it exactly once.
type Handle struct {
	scope Scope
	fl    *flock.Flock
	meta  string
}

// Scope returns the scope this handle guards
func (h *Handle) Scope() Scope {
	return h.scope
}

// Manager acquires and inspects scoped locks
type Manager interface {
	// Acquire takes the lock for a scope, failing fast if it is held
	Acquire(scope Scope) (*Handle, error)
	// Release frees a held lock and removes its metadata sidecar
	Release(h *Handle) error
	// Inspect reads the metadata of a scope's lock without acquiring
	// it. Returns nil when no lock metadata exists.
	Inspect(scope Scope) (*Info, error)
}

// FileManager implements Manager with OS advisory file locks under a
// single directory. One lock file per scope, plus a JSON sidecar with
// holder metadata.
type FileManager struct {
	dir string
}

// NewFileManager creates a manager rooted at dir, creating it if needed
func NewFileManager(dir string) (*FileManager, error) {
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &FileManager{dir: dir}, nil
}

func (m *FileManager) lockPath(scope Scope) string {
	return filepath.Join(m.dir, string(scope)+".lock")
}

func (m *FileManager) metaPath(scope Scope) string {
	return filepath.Join(m.dir, string(scope)+".lock.json")
}

// Paths returns the lock file and metadata sidecar paths for a scope,
// so an operator can remove a confirmed-dead lock by hand.
func (m *FileManager) Paths(scope Scope) (lockFile, metaFile string) {
	return m.lockPath(scope), m.metaPath(scope)
}

// Acquire attempts to take the scope's lock without blocking. A held
// lock returns a HeldError carrying whatever holder metadata could be
// read; the caller decides whether to surface staleness.
func (m *FileManager) Acquire(scope Scope) (*Handle, error) {
	fl := flock.New(m.lockPath(scope))

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s lock: %w", scope, err)
	}
	if !locked {
		holder, _ := m.Inspect(scope)
		return nil, &HeldError{Scope: scope, Holder: holder}
	}

	hostname, _ := os.Hostname()
	info := Info{
		PID:        os.Getpid(),
		Hostname:   hostname,
		Scope:      scope,
		AcquiredAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err == nil {
		err = os.WriteFile(m.metaPath(scope), data, 0644)
	}
	if err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("failed to write lock metadata: %w", err)
	}

	return &Handle{scope: scope, fl: fl, meta: m.metaPath(scope)}, nil
}

// Release frees the lock and removes the metadata sidecar
func (m *FileManager) Release(h *Handle) error {
	if h == nil || h.fl == nil {
		return nil
	}
	if err := os.Remove(h.meta); err != nil && !errors.Is(err, os.ErrNotExist) {
		util.WarnLog("Failed to remove lock metadata %s: %v", h.meta, err)
	}
	if err := h.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to release %s lock: %w", h.scope, err)
	}
	h.fl = nil
	return nil
}

// Inspect reads a scope's metadata sidecar. A missing sidecar means no
// recorded holder; a corrupt one is an error worth surfacing.
func (m *FileManager) Inspect(scope Scope) (*Info, error) {
	data, err := os.ReadFile(m.metaPath(scope))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock metadata: %w", err)
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("corrupt lock metadata at %s: %w", m.metaPath(scope), err)
	}
	return &info, nil
}

// Held reports whether the scope's lock is currently held by any
// process, without disturbing it.
func (m *FileManager) Held(scope Scope) (bool, error) {
	fl := flock.New(m.lockPath(scope))
	locked, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to probe %s lock: %w", scope, err)
	}
	if !locked {
		return true, nil
	}
	fl.Unlock()
	return false, nil
}
