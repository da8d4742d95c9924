package execute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/franz/shelf-curator/internal/lock"
	"github.com/franz/shelf-curator/internal/report"
	"github.com/franz/shelf-curator/internal/store"
	"github.com/franz/shelf-curator/internal/util"
)

// ErrDeleteNotConfirmed is returned when the action list contains
// permanent deletes but the run was not started with the confirmation
// flag. The whole run is refused before anything is touched.
var ErrDeleteNotConfirmed = errors.New("permanent delete not confirmed for this run")

// Executor applies a planned action list against the filesystem and
// the store. Actions run strictly in plan order, one at a time; a
// failed action never stops bookkeeping for the ones after it unless
// stop-on-error is set. A consistency fault always stops the run.
type Executor struct {
	store           *store.Store
	locks           lock.Manager
	mode            report.Mode
	stopOnError     bool
	permanentDelete bool
	overwrite       bool
	staleAfter      time.Duration
	artifactsDir    string
	logger          *report.EventLogger
}

// Config holds executor configuration
type Config struct {
	Store *store.Store
	Locks lock.Manager
	Mode  report.Mode
	// StopOnError marks all remaining actions skipped after the first
	// failure instead of continuing.
	StopOnError bool
	// PermanentDelete confirms that this run may execute
	// permanent_delete actions. Never defaulted on.
	PermanentDelete bool
	// Overwrite allows replacing an existing file at a destination
	Overwrite bool
	// StaleAfter is the age after which a held apply lock is flagged as
	// likely stale. Zero means the default threshold.
	StaleAfter   time.Duration
	ArtifactsDir string
	Logger       *report.EventLogger
}

// New creates a new Executor
func New(cfg *Config) *Executor {
	mode := cfg.Mode
	if mode == "" {
		mode = report.ModeDryRun
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = lock.DefaultStaleAfter
	}

	return &Executor{
		store:           cfg.Store,
		locks:           cfg.Locks,
		mode:            mode,
		stopOnError:     cfg.StopOnError,
		permanentDelete: cfg.PermanentDelete,
		overwrite:       cfg.Overwrite,
		staleAfter:      staleAfter,
		artifactsDir:    cfg.ArtifactsDir,
		logger:          cfg.Logger,
	}
}

// Execute applies the given actions in order and returns the run
// report. The report is written to the artifacts directory in both
// modes; only real mode mutates the filesystem and the store.
func (e *Executor) Execute(ctx context.Context, actions []*store.Action) (*report.Report, error) {
	runID := uuid.NewString()
	rep := report.New(runID, e.mode, e.stopOnError)

	if len(actions) == 0 {
		util.InfoLog("No pending actions to execute")
		rep.Finalize()
		return rep, nil
	}

	// Refuse the whole run up front if it contains permanent deletes
	// without confirmation. Planning should not have emitted them, but
	// the executor does not trust the plan on this.
	if !e.permanentDelete {
		for _, a := range actions {
			if a.Kind == store.ActionPermanentDelete {
				return nil, fmt.Errorf("action %d targets file %d: %w", a.ID, a.FileID, ErrDeleteNotConfirmed)
			}
		}
	}

	if e.mode == report.ModeDryRun {
		return e.executeDryRun(ctx, rep, actions)
	}
	return e.executeReal(ctx, rep, actions)
}

// executeDryRun validates each action's preconditions without touching
// the filesystem or the store. The report is still written.
func (e *Executor) executeDryRun(ctx context.Context, rep *report.Report, actions []*store.Action) (*report.Report, error) {
	util.InfoLog("Dry run: validating %d actions, nothing will change", len(actions))

	if e.locks != nil {
		if holder, _ := e.locks.Inspect(lock.ScopeApply); holder != nil {
			util.WarnLog("Apply lock appears held by pid %d on %s; a real run would be refused",
				holder.PID, holder.Hostname)
		}
	}

	failed := false
	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry := report.Entry{
			ActionID: a.ID,
			FileID:   a.FileID,
			Kind:     string(a.Kind),
			SrcPath:  a.SrcPath,
			DestPath: a.DestPath,
		}

		if failed && e.stopOnError {
			entry.Status = string(store.ActionSkipped)
			rep.Add(entry)
			continue
		}

		if err := e.validate(a); err != nil {
			entry.Status = string(store.ActionFailed)
			entry.Error = err.Error()
			failed = true
			util.WarnLog("Action %d would fail: %v", a.ID, err)
		} else {
			entry.Status = string(store.ActionApplied)
			util.DebugLog("Would %s %s -> %s", a.Kind, a.SrcPath, a.DestPath)
		}
		rep.Add(entry)
	}

	return e.finish(rep)
}

// executeReal applies the actions under the apply lock
func (e *Executor) executeReal(ctx context.Context, rep *report.Report, actions []*store.Action) (*report.Report, error) {
	util.InfoLog("Executing %d actions", len(actions))

	handle, err := e.locks.Acquire(lock.ScopeApply)
	if err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) && held.Holder != nil && held.Holder.Stale(e.staleAfter) {
			util.WarnLog("Apply lock metadata is older than %s and may be stale; it is never removed automatically", e.staleAfter)
		}
		return nil, err
	}
	defer func() {
		if relErr := e.locks.Release(handle); relErr != nil {
			util.ErrorLog("Failed to release apply lock: %v", relErr)
		}
	}()

	stopped := false
	var fault error
	for _, a := range actions {
		entry := report.Entry{
			ActionID: a.ID,
			FileID:   a.FileID,
			Kind:     string(a.Kind),
			SrcPath:  a.SrcPath,
			DestPath: a.DestPath,
		}

		if stopped || ctx.Err() != nil {
			if err := e.skip(a, rep.RunID); err != nil {
				util.ErrorLog("Failed to record skip for action %d: %v", a.ID, err)
			}
			entry.Status = string(store.ActionSkipped)
			rep.Add(entry)
			continue
		}

		applyErr := e.applyAction(ctx, a, rep.RunID)
		if applyErr != nil {
			entry.Status = string(store.ActionFailed)
			entry.Error = applyErr.Error()
			util.ErrorLog("Action %d (%s %s) failed: %v", a.ID, a.Kind, a.SrcPath, applyErr)
			if errors.Is(applyErr, util.ErrConsistencyFault) {
				// The filesystem and the store no longer agree; no
				// later commit can be trusted. Stop here regardless of
				// the stop-on-error setting.
				util.ErrorLog("Consistency fault: filesystem changed but the record did not; run doctor before the next apply")
				fault = applyErr
				stopped = true
			}
			if e.stopOnError {
				stopped = true
			}
		} else {
			entry.Status = string(store.ActionApplied)
		}
		rep.Add(entry)

		if e.logger != nil {
			e.logger.LogApply(a.FileID, a.SrcPath, a.DestPath, string(a.Kind), applyErr)
		}
	}

	rep, err = e.finish(rep)
	if fault != nil {
		return rep, fmt.Errorf("run aborted: %w", fault)
	}
	return rep, err
}

// finish finalizes the report, writes the artifact, and records the run
func (e *Executor) finish(rep *report.Report) (*report.Report, error) {
	rep.Finalize()

	reportPath := ""
	if e.artifactsDir != "" {
		path, err := rep.Write(e.artifactsDir)
		if err != nil {
			util.ErrorLog("Failed to write run report: %v", err)
		} else {
			reportPath = path
			util.InfoLog("Run report written to %s", path)
		}
	}

	run := &store.Run{
		ID:         rep.RunID,
		Mode:       string(rep.Mode),
		Simulated:  rep.Simulated,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Applied:    rep.CountStatus(string(store.ActionApplied)),
		Failed:     rep.CountStatus(string(store.ActionFailed)),
		Skipped:    rep.CountStatus(string(store.ActionSkipped)),
		ReportPath: reportPath,
	}
	if err := e.store.InsertRun(run); err != nil {
		util.ErrorLog("Failed to record run: %v", err)
	}

	util.SuccessLog("Run %s complete: %d applied, %d failed, %d skipped",
		rep.RunID, run.Applied, run.Failed, run.Skipped)

	return rep, nil
}

// validate checks an action's preconditions without side effects
func (e *Executor) validate(a *store.Action) error {
	switch a.Kind {
	case store.ActionMove, store.ActionArchive, store.ActionQuarantine:
		if a.DestPath == "" {
			return fmt.Errorf("action %d has no destination", a.ID)
		}
		if _, err := os.Stat(a.SrcPath); err != nil {
			return fmt.Errorf("source missing: %w", err)
		}
		if _, err := os.Stat(a.DestPath); err == nil && !e.overwrite {
			return fmt.Errorf("destination %s already exists: %w", a.DestPath, util.ErrConflict)
		}
		return destDirCreatable(filepath.Dir(a.DestPath))
	case store.ActionPermanentDelete:
		if !e.permanentDelete {
			return ErrDeleteNotConfirmed
		}
		if _, err := os.Stat(a.SrcPath); err != nil {
			return fmt.Errorf("quarantined file missing: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// destDirCreatable verifies MkdirAll would succeed for the destination
// directory: every existing ancestor on the path must be a directory.
func destDirCreatable(dir string) error {
	for d := dir; ; {
		info, err := os.Stat(d)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("destination parent %s is not a directory: %w", d, util.ErrConflict)
			}
			return nil
		}
		// ENOTDIR means a file sits further up the path; keep walking
		// to name it.
		if !os.IsNotExist(err) && !errors.Is(err, syscall.ENOTDIR) {
			return fmt.Errorf("failed to stat destination parent %s: %w", d, err)
		}
		parent := filepath.Dir(d)
		if parent == d {
			return nil
		}
		d = parent
	}
}

// applyAction performs one action's filesystem mutation, then commits
// the action outcome, the file's state transition, and its path
// bookkeeping in a single transaction. A database failure after the
// filesystem changed is a consistency fault.
func (e *Executor) applyAction(ctx context.Context, a *store.Action, runID string) error {
	if err := e.validate(a); err != nil {
		return e.fail(a, runID, err)
	}

	file, err := e.store.GetFileByID(a.FileID)
	if err != nil {
		return e.fail(a, runID, fmt.Errorf("failed to load file: %w", err))
	}
	if file == nil {
		return e.fail(a, runID, fmt.Errorf("file %d: %w", a.FileID, util.ErrNotFound))
	}

	var fsErr error
	switch a.Kind {
	case store.ActionMove, store.ActionArchive, store.ActionQuarantine:
		fsErr = e.moveFile(ctx, a.SrcPath, a.DestPath)
	case store.ActionPermanentDelete:
		fsErr = os.Remove(a.SrcPath)
	}
	if fsErr != nil {
		return e.fail(a, runID, fsErr)
	}

	err = e.store.Transaction(func(tx *sql.Tx) error {
		if err := e.store.FinishActionTx(tx, a.ID, store.ActionApplied, runID, ""); err != nil {
			return err
		}

		switch a.Kind {
		case store.ActionMove, store.ActionArchive:
			if err := e.store.UpdateFilePathTx(tx, a.FileID, a.DestPath); err != nil {
				return err
			}
			return e.store.ApplyTransitionTx(tx, a.FileID, file.State, store.StateApplied)
		case store.ActionQuarantine:
			// src_path stays; the bytes live at the quarantine path
			// until restored or permanently deleted.
			if err := e.store.SetQuarantinedPathTx(tx, a.FileID, a.DestPath); err != nil {
				return err
			}
			return e.store.ApplyTransitionTx(tx, a.FileID, file.State, store.StateQuarantined)
		case store.ActionPermanentDelete:
			return e.store.ApplyTransitionTx(tx, a.FileID, store.StateQuarantined, store.StateDeleted)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("filesystem updated but record for file %d did not commit: %w: %v",
			a.FileID, util.ErrConsistencyFault, err)
	}

	util.DebugLog("Applied %s: %s -> %s", a.Kind, a.SrcPath, a.DestPath)
	return nil
}

// fail records an action failure and returns the original error
func (e *Executor) fail(a *store.Action, runID string, cause error) error {
	err := e.store.Transaction(func(tx *sql.Tx) error {
		return e.store.FinishActionTx(tx, a.ID, store.ActionFailed, runID, cause.Error())
	})
	if err != nil {
		util.ErrorLog("Failed to record failure for action %d: %v", a.ID, err)
	}
	return cause
}

// skip records an action as skipped after a stop-on-error failure
func (e *Executor) skip(a *store.Action, runID string) error {
	return e.store.Transaction(func(tx *sql.Tx) error {
		return e.store.FinishActionTx(tx, a.ID, store.ActionSkipped, runID, "")
	})
}

// moveFile relocates a file, preferring an atomic rename and falling
// back to copy-verify-remove across filesystems.
func (e *Executor) moveFile(ctx context.Context, srcPath, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if same, err := util.IsSameFilesystem(srcPath, filepath.Dir(destPath)); err == nil && same {
		if err := os.Rename(srcPath, destPath); err == nil {
			return nil
		}
		// Rename can still fail on odd mounts; fall through to copy
	}

	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	if err := e.copyFile(ctx, srcPath, destPath); err != nil {
		return err
	}

	destInfo, err := os.Stat(destPath)
	if err != nil {
		return fmt.Errorf("failed to stat destination: %w", err)
	}
	if destInfo.Size() != srcInfo.Size() {
		os.Remove(destPath)
		return fmt.Errorf("size mismatch after copy: src %d dest %d", srcInfo.Size(), destInfo.Size())
	}

	if err := os.Remove(srcPath); err != nil {
		return fmt.Errorf("copied but failed to remove source: %w", err)
	}

	return nil
}

// copyFile copies a file atomically using a .part temporary file
func (e *Executor) copyFile(ctx context.Context, srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	tempPath := destPath + ".part"
	dest, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	_, err = copyWithContext(ctx, dest, src)
	if closeErr := dest.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to copy: %w", err)
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}

// copyWithContext copies data with context cancellation support
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 128*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if ew == nil {
					ew = fmt.Errorf("invalid write result")
				}
			}
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if er != io.EOF {
				return written, er
			}
			break
		}
	}
	return written, nil
}
