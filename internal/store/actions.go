package store

import (
	"database/sql"
	"fmt"
	"time"
)

const actionColumns = `
	id, file_id, kind, src_path, COALESCE(dest_path, ''), COALESCE(reason, ''),
	status, COALESCE(error, ''), COALESCE(run_id, ''),
	planned_at, COALESCE(applied_at, planned_at)`

func scanAction(row interface{ Scan(...any) error }) (*Action, error) {
	a := &Action{}
	err := row.Scan(
		&a.ID, &a.FileID, &a.Kind, &a.SrcPath, &a.DestPath, &a.Reason,
		&a.Status, &a.Error, &a.RunID,
		&a.PlannedAt, &a.AppliedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ReplacePendingActions discards pending actions and writes a fresh plan
// in one transaction. Actions that have left pending are immutable audit
// records and are never touched.
func (s *Store) ReplacePendingActions(actions []*Action) error {
	return s.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM actions WHERE status = ?`, ActionPending); err != nil {
			return fmt.Errorf("failed to clear pending actions: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO actions (file_id, kind, src_path, dest_path, reason, status)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range actions {
			result, err := stmt.Exec(a.FileID, a.Kind, a.SrcPath, a.DestPath, a.Reason, ActionPending)
			if err != nil {
				return fmt.Errorf("failed to insert action: %w", err)
			}
			if id, err := result.LastInsertId(); err == nil {
				a.ID = id
			}
			a.Status = ActionPending
		}

		return nil
	})
}

// GetPendingActions returns pending actions in execution order:
// kind priority first, then file id ascending.
func (s *Store) GetPendingActions() ([]*Action, error) {
	rows, err := s.db.Query(`
		SELECT `+actionColumns+`
		FROM actions
		WHERE status = ?
		ORDER BY CASE kind
			WHEN 'move' THEN 0
			WHEN 'archive' THEN 1
			WHEN 'quarantine' THEN 2
			WHEN 'permanent_delete' THEN 3
			ELSE 4 END,
			file_id ASC
	`, ActionPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, a)
	}

	return actions, rows.Err()
}

// GetActionsByRun returns the actions touched by a run, in id order
func (s *Store) GetActionsByRun(runID string) ([]*Action, error) {
	rows, err := s.db.Query(`
		SELECT `+actionColumns+`
		FROM actions
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, a)
	}

	return actions, rows.Err()
}

// CountPendingByKind returns pending action counts grouped by kind
func (s *Store) CountPendingByKind() (map[ActionKind]int, error) {
	rows, err := s.db.Query(`
		SELECT kind, COUNT(*) FROM actions WHERE status = ? GROUP BY kind
	`, ActionPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[ActionKind]int)
	for rows.Next() {
		var kind ActionKind
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		counts[kind] = count
	}

	return counts, rows.Err()
}

// FinishActionTx transitions an action out of pending inside a
// transaction. Once out of pending the row is immutable.
func (s *Store) FinishActionTx(tx *sql.Tx, actionID int64, status ActionStatus, runID, errMsg string) error {
	result, err := tx.Exec(`
		UPDATE actions SET status = ?, error = ?, run_id = ?, applied_at = ?
		WHERE id = ? AND status = ?
	`, status, errMsg, runID, time.Now(), actionID, ActionPending)
	if err != nil {
		return fmt.Errorf("failed to finish action: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("action %d is not pending", actionID)
	}

	return nil
}

// InsertRun records an apply run summary
func (s *Store) InsertRun(run *Run) error {
	simulated := 0
	if run.Simulated {
		simulated = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, mode, simulated, started_at, finished_at,
		                  applied, failed, skipped, report_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Mode, simulated, run.StartedAt, run.FinishedAt,
		run.Applied, run.Failed, run.Skipped, run.ReportPath)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// GetRuns returns recorded runs, most recent first
func (s *Store) GetRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, mode, simulated, started_at, finished_at,
		       applied, failed, skipped, COALESCE(report_path, '')
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		var simulated int
		err := rows.Scan(&r.ID, &r.Mode, &simulated, &r.StartedAt, &r.FinishedAt,
			&r.Applied, &r.Failed, &r.Skipped, &r.ReportPath)
		if err != nil {
			return nil, err
		}
		r.Simulated = simulated == 1
		runs = append(runs, &r)
	}

	return runs, rows.Err()
}
