package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/shelf-curator/internal/util"
)

func newTestManager(t *testing.T) (*FileManager, string) {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "locks")
	m, err := NewFileManager(dir)
	if err != nil {
		t.Fatalf("Failed to create lock manager: %v", err)
	}
	return m, dir
}

func TestAcquireRelease(t *testing.T) {
	m, dir := newTestManager(t)

	handle, err := m.Acquire(ScopeApply)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// Metadata sidecar exists and identifies this process
	info, err := m.Inspect(ScopeApply)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info == nil {
		t.Fatal("Expected lock metadata")
	}
	if info.PID != os.Getpid() || info.Scope != ScopeApply {
		t.Errorf("Wrong metadata: %+v", info)
	}

	if err := m.Release(handle); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	// Sidecar is cleaned up
	if _, err := os.Stat(filepath.Join(dir, "apply.lock.json")); !os.IsNotExist(err) {
		t.Error("Metadata sidecar should be removed on release")
	}

	info, err = m.Inspect(ScopeApply)
	if err != nil || info != nil {
		t.Errorf("Expected no metadata after release, got %+v (%v)", info, err)
	}
}

func TestAcquireFailsFastWhenHeld(t *testing.T) {
	m1, dir := newTestManager(t)

	handle, err := m1.Acquire(ScopeApply)
	if err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	defer m1.Release(handle)

	// Another manager over the same directory (a second fd on the lock)
	m2, err := NewFileManager(dir)
	if err != nil {
		t.Fatalf("Failed to create second manager: %v", err)
	}

	_, err = m2.Acquire(ScopeApply)
	if !errors.Is(err, util.ErrLockHeld) {
		t.Fatalf("Expected ErrLockHeld, got %v", err)
	}

	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("Expected HeldError, got %T", err)
	}
	if held.Holder == nil || held.Holder.PID != os.Getpid() {
		t.Errorf("HeldError should carry holder metadata, got %+v", held.Holder)
	}
}

func TestScopesAreIndependent(t *testing.T) {
	m, _ := newTestManager(t)

	applyHandle, err := m.Acquire(ScopeApply)
	if err != nil {
		t.Fatalf("Acquire apply failed: %v", err)
	}
	defer m.Release(applyHandle)

	migrateHandle, err := m.Acquire(ScopeMigrate)
	if err != nil {
		t.Fatalf("Holding apply must not block migrate: %v", err)
	}
	m.Release(migrateHandle)
}

func TestHeld(t *testing.T) {
	m, dir := newTestManager(t)

	held, err := m.Held(ScopeApply)
	if err != nil || held {
		t.Errorf("Fresh scope should not be held, got %v (%v)", held, err)
	}

	m2, _ := NewFileManager(dir)
	handle, err := m2.Acquire(ScopeApply)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer m2.Release(handle)

	held, err = m.Held(ScopeApply)
	if err != nil || !held {
		t.Errorf("Scope should report held, got %v (%v)", held, err)
	}
}

func TestStaleness(t *testing.T) {
	fresh := &Info{AcquiredAt: time.Now()}
	if fresh.Stale(DefaultStaleAfter) {
		t.Error("Fresh lock should not be stale")
	}

	old := &Info{AcquiredAt: time.Now().Add(-25 * time.Hour)}
	if !old.Stale(DefaultStaleAfter) {
		t.Error("25h old lock should be stale at the default threshold")
	}
	if old.Stale(48 * time.Hour) {
		t.Error("Threshold is configurable")
	}
}

func TestStaleLockIsNeverRemoved(t *testing.T) {
	m, dir := newTestManager(t)

	// Fabricate stale metadata with no live flock behind it
	metaPath := filepath.Join(dir, "apply.lock.json")
	stale := `{"pid": 999999, "hostname": "gone", "scope": "apply", "acquired_at": "2020-01-01T00:00:00Z"}`
	if err := os.WriteFile(metaPath, []byte(stale), 0644); err != nil {
		t.Fatalf("Failed to write stale metadata: %v", err)
	}

	info, err := m.Inspect(ScopeApply)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info == nil || !info.Stale(DefaultStaleAfter) {
		t.Fatal("Expected stale metadata to be reported")
	}

	// Inspect must not clean up; that is the operator's call
	if _, err := os.Stat(metaPath); err != nil {
		t.Error("Stale metadata must never be removed automatically")
	}
}

func TestInspectCorruptMetadata(t *testing.T) {
	m, dir := newTestManager(t)

	os.WriteFile(filepath.Join(dir, "apply.lock.json"), []byte("{not json"), 0644)

	if _, err := m.Inspect(ScopeApply); err == nil {
		t.Error("Corrupt metadata should surface an error")
	}
}
