package execute

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/shelf-curator/internal/lock"
	"github.com/franz/shelf-curator/internal/report"
	"github.com/franz/shelf-curator/internal/store"
	"github.com/franz/shelf-curator/internal/util"
)

type testEnv struct {
	store *store.Store
	locks *lock.FileManager
	dir   string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	locks, err := lock.NewFileManager(filepath.Join(dir, "locks"))
	if err != nil {
		t.Fatalf("Failed to create lock manager: %v", err)
	}

	return &testEnv{store: db, locks: locks, dir: dir}
}

func (env *testEnv) newExecutor(mode report.Mode, opts ...func(*Config)) *Executor {
	cfg := &Config{
		Store:        env.store,
		Locks:        env.locks,
		Mode:         mode,
		ArtifactsDir: filepath.Join(env.dir, "artifacts"),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return New(cfg)
}

// planFile inserts a file in the given state with a real source file on
// disk and one pending action for it.
func (env *testEnv) planFile(t *testing.T, key string, state store.State, kind store.ActionKind, withDest bool) (*store.File, *store.Action) {
	t.Helper()

	srcPath := filepath.Join(env.dir, "src", key+".mp3")
	if err := os.MkdirAll(filepath.Dir(srcPath), 0755); err != nil {
		t.Fatalf("Failed to create source dir: %v", err)
	}
	if err := os.WriteFile(srcPath, []byte("audio-"+key), 0644); err != nil {
		t.Fatalf("Failed to write source file: %v", err)
	}

	f := &store.File{FileKey: key, SrcPath: srcPath, SizeBytes: int64(len("audio-" + key)), SHA256: "h" + key, State: store.StateDiscovered}
	if err := env.store.InsertFile(f); err != nil {
		t.Fatalf("Failed to insert file: %v", err)
	}

	env.store.ApplyTransition(f.ID, store.StateDiscovered, store.StateAnalyzed)
	if state == store.StatePlanned || state == store.StateQuarantined {
		env.store.ApplyTransition(f.ID, store.StateAnalyzed, store.StatePlanned)
	}
	if state == store.StateQuarantined {
		env.store.ApplyTransition(f.ID, store.StatePlanned, store.StateQuarantined)
	}

	a := &store.Action{FileID: f.ID, Kind: kind, SrcPath: srcPath}
	if withDest {
		a.DestPath = filepath.Join(env.dir, "dest", key+".mp3")
	}
	return f, a
}

func persistActions(t *testing.T, env *testEnv, actions ...*store.Action) []*store.Action {
	t.Helper()
	if err := env.store.ReplacePendingActions(actions); err != nil {
		t.Fatalf("Failed to persist actions: %v", err)
	}
	return actions
}

func TestDryRunMutatesNothing(t *testing.T) {
	env := setupTestEnv(t)
	f, a := env.planFile(t, "a", store.StatePlanned, store.ActionMove, true)
	actions := persistActions(t, env, a)

	executor := env.newExecutor(report.ModeDryRun)
	rep, err := executor.Execute(context.Background(), actions)
	if err != nil {
		t.Fatalf("Dry run failed: %v", err)
	}

	if !rep.Simulated || rep.Mode != report.ModeDryRun {
		t.Error("Dry run report must be marked simulated")
	}
	if rep.CountStatus(string(store.ActionApplied)) != 1 {
		t.Errorf("Expected 1 validated action, got %d", rep.CountStatus(string(store.ActionApplied)))
	}

	// Source untouched, destination absent
	if _, err := os.Stat(a.SrcPath); err != nil {
		t.Error("Dry run must not move the source file")
	}
	if _, err := os.Stat(a.DestPath); err == nil {
		t.Error("Dry run must not create the destination")
	}

	// Store untouched
	stored, _ := env.store.GetFileByID(f.ID)
	if stored.State != store.StatePlanned {
		t.Errorf("Dry run must not change state, got %s", stored.State)
	}
	pending, _ := env.store.GetPendingActions()
	if len(pending) != 1 {
		t.Errorf("Dry run must leave actions pending, got %d", len(pending))
	}
}

func TestExecuteMove(t *testing.T) {
	env := setupTestEnv(t)
	f, a := env.planFile(t, "a", store.StatePlanned, store.ActionMove, true)
	actions := persistActions(t, env, a)

	executor := env.newExecutor(report.ModeReal)
	rep, err := executor.Execute(context.Background(), actions)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if rep.CountStatus(string(store.ActionApplied)) != 1 {
		t.Fatalf("Expected 1 applied, got report %+v", rep.Summary)
	}

	if _, err := os.Stat(a.DestPath); err != nil {
		t.Error("Destination file missing after move")
	}
	if _, err := os.Stat(a.SrcPath); !os.IsNotExist(err) {
		t.Error("Source file should be gone after move")
	}

	stored, _ := env.store.GetFileByID(f.ID)
	if stored.State != store.StateApplied {
		t.Errorf("Expected applied, got %s", stored.State)
	}
	if stored.SrcPath != a.DestPath {
		t.Errorf("src_path should track the new location, got %s", stored.SrcPath)
	}

	pending, _ := env.store.GetPendingActions()
	if len(pending) != 0 {
		t.Errorf("Expected no pending actions, got %d", len(pending))
	}
}

func TestExecuteQuarantineIsReversible(t *testing.T) {
	env := setupTestEnv(t)
	f, a := env.planFile(t, "a", store.StatePlanned, store.ActionQuarantine, false)
	a.DestPath = filepath.Join(env.dir, "quarantine", "a.mp3")
	actions := persistActions(t, env, a)

	executor := env.newExecutor(report.ModeReal)
	if _, err := executor.Execute(context.Background(), actions); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if _, err := os.Stat(a.DestPath); err != nil {
		t.Error("Quarantined bytes missing")
	}

	stored, _ := env.store.GetFileByID(f.ID)
	if stored.State != store.StateQuarantined {
		t.Errorf("Expected quarantined, got %s", stored.State)
	}
	if stored.QuarantinedPath != a.DestPath {
		t.Errorf("quarantined_path should record the bytes' location, got %s", stored.QuarantinedPath)
	}
	// Original path is kept for restore
	if stored.SrcPath != a.SrcPath {
		t.Errorf("src_path must stay the original location, got %s", stored.SrcPath)
	}
}

func TestExecuteRefusesHeldLock(t *testing.T) {
	env := setupTestEnv(t)
	_, a := env.planFile(t, "a", store.StatePlanned, store.ActionMove, true)
	actions := persistActions(t, env, a)

	handle, err := env.locks.Acquire(lock.ScopeApply)
	if err != nil {
		t.Fatalf("Failed to pre-acquire lock: %v", err)
	}
	defer env.locks.Release(handle)

	executor := env.newExecutor(report.ModeReal)
	_, err = executor.Execute(context.Background(), actions)
	if !errors.Is(err, util.ErrLockHeld) {
		t.Fatalf("Expected ErrLockHeld, got %v", err)
	}

	// Zero mutation
	if _, err := os.Stat(a.SrcPath); err != nil {
		t.Error("Refused run must not touch the source")
	}
	pending, _ := env.store.GetPendingActions()
	if len(pending) != 1 {
		t.Errorf("Refused run must leave actions pending, got %d", len(pending))
	}
}

func TestExecuteRefusesUnconfirmedPermanentDelete(t *testing.T) {
	env := setupTestEnv(t)
	_, mv := env.planFile(t, "a", store.StatePlanned, store.ActionMove, true)
	_, del := env.planFile(t, "b", store.StateQuarantined, store.ActionPermanentDelete, false)
	actions := persistActions(t, env, mv, del)

	executor := env.newExecutor(report.ModeReal)
	_, err := executor.Execute(context.Background(), actions)
	if !errors.Is(err, ErrDeleteNotConfirmed) {
		t.Fatalf("Expected ErrDeleteNotConfirmed, got %v", err)
	}

	// The refusal is upfront: the move must not have run either
	if _, err := os.Stat(mv.SrcPath); err != nil {
		t.Error("Upfront refusal must not apply earlier actions")
	}
}

func TestExecutePermanentDelete(t *testing.T) {
	env := setupTestEnv(t)

	f, a := env.planFile(t, "a", store.StateQuarantined, store.ActionPermanentDelete, false)
	// Permanent delete targets the quarantined bytes
	env.store.Transaction(func(tx *sql.Tx) error {
		return env.store.SetQuarantinedPathTx(tx, f.ID, a.SrcPath)
	})
	actions := persistActions(t, env, a)

	executor := env.newExecutor(report.ModeReal, func(cfg *Config) {
		cfg.PermanentDelete = true
	})
	rep, err := executor.Execute(context.Background(), actions)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if rep.CountStatus(string(store.ActionApplied)) != 1 {
		t.Fatalf("Expected 1 applied, got %+v", rep.Summary)
	}

	if _, err := os.Stat(a.SrcPath); !os.IsNotExist(err) {
		t.Error("Permanently deleted bytes should be gone")
	}
	stored, _ := env.store.GetFileByID(f.ID)
	if stored.State != store.StateDeleted {
		t.Errorf("Expected deleted, got %s", stored.State)
	}
}

func TestExecuteFailureContinues(t *testing.T) {
	env := setupTestEnv(t)
	_, bad := env.planFile(t, "a", store.StatePlanned, store.ActionMove, true)
	_, good := env.planFile(t, "b", store.StatePlanned, store.ActionMove, true)

	os.Remove(bad.SrcPath) // first action will fail
	actions := persistActions(t, env, bad, good)

	executor := env.newExecutor(report.ModeReal)
	rep, err := executor.Execute(context.Background(), actions)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if rep.CountStatus(string(store.ActionFailed)) != 1 {
		t.Errorf("Expected 1 failed, got %d", rep.CountStatus(string(store.ActionFailed)))
	}
	if rep.CountStatus(string(store.ActionApplied)) != 1 {
		t.Errorf("Failure must not block later actions, got %d applied",
			rep.CountStatus(string(store.ActionApplied)))
	}
	if _, err := os.Stat(good.DestPath); err != nil {
		t.Error("Second action should have been applied")
	}
}

func TestExecuteStopOnError(t *testing.T) {
	env := setupTestEnv(t)
	_, bad := env.planFile(t, "a", store.StatePlanned, store.ActionMove, true)
	_, second := env.planFile(t, "b", store.StatePlanned, store.ActionMove, true)

	os.Remove(bad.SrcPath)
	actions := persistActions(t, env, bad, second)

	executor := env.newExecutor(report.ModeReal, func(cfg *Config) {
		cfg.StopOnError = true
	})
	rep, err := executor.Execute(context.Background(), actions)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if rep.CountStatus(string(store.ActionSkipped)) != 1 {
		t.Errorf("Expected 1 skipped after failure, got %d",
			rep.CountStatus(string(store.ActionSkipped)))
	}
	if _, err := os.Stat(second.DestPath); err == nil {
		t.Error("Skipped action must not run")
	}
	if _, err := os.Stat(second.SrcPath); err != nil {
		t.Error("Skipped action's source must be untouched")
	}
}

func TestExecuteConsistencyFaultAbortsRun(t *testing.T) {
	env := setupTestEnv(t)
	_, first := env.planFile(t, "a", store.StatePlanned, store.ActionMove, true)
	_, second := env.planFile(t, "b", store.StatePlanned, store.ActionMove, true)
	actions := persistActions(t, env, first, second)

	// Make the first action's commit fail after the filesystem mutation:
	// no pending row exists for this id, so the transaction rolls back.
	actions[0].ID = 9999

	executor := env.newExecutor(report.ModeReal)
	rep, err := executor.Execute(context.Background(), actions)
	if !errors.Is(err, util.ErrConsistencyFault) {
		t.Fatalf("Expected a consistency fault from Execute, got %v", err)
	}
	if rep == nil {
		t.Fatal("The report must still be produced for the aborted run")
	}

	// The fault stops the run even without stop-on-error
	if rep.CountStatus(string(store.ActionFailed)) != 1 {
		t.Errorf("Expected 1 failed, got %d", rep.CountStatus(string(store.ActionFailed)))
	}
	if rep.CountStatus(string(store.ActionSkipped)) != 1 {
		t.Errorf("Remaining actions must be skipped, got %d skipped",
			rep.CountStatus(string(store.ActionSkipped)))
	}
	if _, err := os.Stat(second.SrcPath); err != nil {
		t.Error("Actions after the fault must not run")
	}
	if _, err := os.Stat(second.DestPath); err == nil {
		t.Error("Actions after the fault must not create destinations")
	}
}

func TestDryRunFlagsUncreatableDestination(t *testing.T) {
	env := setupTestEnv(t)
	_, a := env.planFile(t, "a", store.StatePlanned, store.ActionMove, false)

	// A regular file sits where a destination ancestor directory must go
	blocker := filepath.Join(env.dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write blocker file: %v", err)
	}
	a.DestPath = filepath.Join(blocker, "nested", "a.mp3")
	actions := persistActions(t, env, a)

	executor := env.newExecutor(report.ModeDryRun)
	rep, err := executor.Execute(context.Background(), actions)
	if err != nil {
		t.Fatalf("Dry run failed: %v", err)
	}

	if rep.CountStatus(string(store.ActionFailed)) != 1 {
		t.Errorf("Dry run must flag the uncreatable destination, got %+v", rep.Summary)
	}
	if _, err := os.Stat(a.SrcPath); err != nil {
		t.Error("Dry run must not touch the source")
	}

	// The precondition names the blocking file, not a bare stat error
	if err := executor.validate(a); !errors.Is(err, util.ErrConflict) {
		t.Errorf("Expected ErrConflict for a blocked destination parent, got %v", err)
	}
}

func TestValidateDestinationConflict(t *testing.T) {
	env := setupTestEnv(t)
	_, a := env.planFile(t, "a", store.StatePlanned, store.ActionMove, true)

	os.MkdirAll(filepath.Dir(a.DestPath), 0755)
	if err := os.WriteFile(a.DestPath, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to write destination file: %v", err)
	}

	executor := env.newExecutor(report.ModeReal)
	if err := executor.validate(a); !errors.Is(err, util.ErrConflict) {
		t.Errorf("Expected ErrConflict for an occupied destination, got %v", err)
	}

	overwriting := env.newExecutor(report.ModeReal, func(cfg *Config) {
		cfg.Overwrite = true
	})
	if err := overwriting.validate(a); err != nil {
		t.Errorf("Overwrite should allow an occupied destination, got %v", err)
	}
}

func TestStaleThresholdDefaults(t *testing.T) {
	env := setupTestEnv(t)

	if e := env.newExecutor(report.ModeReal); e.staleAfter != lock.DefaultStaleAfter {
		t.Errorf("Zero threshold should default, got %s", e.staleAfter)
	}

	custom := env.newExecutor(report.ModeReal, func(cfg *Config) {
		cfg.StaleAfter = time.Hour
	})
	if custom.staleAfter != time.Hour {
		t.Errorf("Configured threshold should be kept, got %s", custom.staleAfter)
	}
}

func TestExecuteWritesReportArtifact(t *testing.T) {
	env := setupTestEnv(t)
	_, a := env.planFile(t, "a", store.StatePlanned, store.ActionMove, true)
	actions := persistActions(t, env, a)

	executor := env.newExecutor(report.ModeReal)
	rep, err := executor.Execute(context.Background(), actions)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	runs, err := env.store.GetRuns(10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Expected 1 recorded run, got %d (%v)", len(runs), err)
	}
	if runs[0].ID != rep.RunID || runs[0].ReportPath == "" {
		t.Errorf("Run record incomplete: %+v", runs[0])
	}

	loaded, err := report.Read(runs[0].ReportPath)
	if err != nil {
		t.Fatalf("Failed to read report artifact: %v", err)
	}
	if loaded.RunID != rep.RunID || len(loaded.Entries) != 1 {
		t.Error("Report artifact does not match the run")
	}
}

func TestMoveFileAcrossDirectories(t *testing.T) {
	env := setupTestEnv(t)
	executor := env.newExecutor(report.ModeReal)

	srcPath := filepath.Join(env.dir, "deep", "src.bin")
	destPath := filepath.Join(env.dir, "other", "nested", "dest.bin")
	os.MkdirAll(filepath.Dir(srcPath), 0755)
	content := []byte("some bytes")
	os.WriteFile(srcPath, content, 0644)

	if err := executor.moveFile(context.Background(), srcPath, destPath); err != nil {
		t.Fatalf("moveFile failed: %v", err)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("Destination unreadable: %v", err)
	}
	if string(got) != string(content) {
		t.Error("Content changed during move")
	}
	if _, err := os.Stat(srcPath); !os.IsNotExist(err) {
		t.Error("Source should be gone")
	}
	if _, err := os.Stat(destPath + ".part"); !os.IsNotExist(err) {
		t.Error("Temp .part file left behind")
	}
}
