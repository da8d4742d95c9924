package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/franz/shelf-curator/internal/util"
)

// State is a file's lifecycle state
type State string

const (
	StateDiscovered  State = "discovered"
	StateAnalyzed    State = "analyzed"
	StateClustered   State = "clustered"
	StatePlanned     State = "planned"
	StateApplied     State = "applied"
	StateQuarantined State = "quarantined"
	StateDeleted     State = "deleted"
)

// ActionKind is the kind of a planned filesystem mutation
type ActionKind string

const (
	ActionMove            ActionKind = "move"
	ActionArchive         ActionKind = "archive"
	ActionQuarantine      ActionKind = "quarantine"
	ActionPermanentDelete ActionKind = "permanent_delete"
)

// KindPriority orders action kinds for execution: irrecoverable work
// runs last. This ordering is a contract.
func KindPriority(kind ActionKind) int {
	switch kind {
	case ActionMove:
		return 0
	case ActionArchive:
		return 1
	case ActionQuarantine:
		return 2
	case ActionPermanentDelete:
		return 3
	default:
		return 4
	}
}

// ActionStatus is the status of a planned action
type ActionStatus string

const (
	ActionPending ActionStatus = "pending"
	ActionApplied ActionStatus = "applied"
	ActionFailed  ActionStatus = "failed"
	ActionSkipped ActionStatus = "skipped"
)

// legalTransitions maps each state to the states it may move to.
// Transitions are monotonic; the only reverse path is the explicit
// Unmark operation, which is not expressed here.
var legalTransitions = map[State][]State{
	StateDiscovered:  {StateAnalyzed},
	StateAnalyzed:    {StateClustered, StatePlanned},
	StateClustered:   {StatePlanned},
	StatePlanned:     {StateApplied, StateQuarantined, StateDeleted},
	StateQuarantined: {StateDeleted},
}

// CanTransition reports whether from -> to is a legal transition
func CanTransition(from, to State) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateViolationError reports a rejected lifecycle transition
type StateViolationError struct {
	FileID int64
	From   State
	To     State
}

func (e *StateViolationError) Error() string {
	return fmt.Sprintf("illegal transition for file %d: %s -> %s", e.FileID, e.From, e.To)
}

func (e *StateViolationError) Unwrap() error {
	return util.ErrStateViolation
}

// ApplyTransition moves a file from one lifecycle state to another.
// The stored state must still equal from; illegal transitions are
// rejected and the store is left untouched.
func (s *Store) ApplyTransition(fileID int64, from, to State) error {
	return s.applyTransition(s.db, fileID, from, to)
}

// ApplyTransitionTx is ApplyTransition inside an existing transaction,
// used by the executor to commit the state change together with the
// rest of an action's bookkeeping.
func (s *Store) ApplyTransitionTx(tx *sql.Tx, fileID int64, from, to State) error {
	return s.applyTransition(tx, fileID, from, to)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *Store) applyTransition(db execer, fileID int64, from, to State) error {
	if !CanTransition(from, to) {
		return &StateViolationError{FileID: fileID, From: from, To: to}
	}

	result, err := db.Exec(`
		UPDATE files SET state = ?, last_update_at = ?
		WHERE id = ? AND state = ?
	`, to, time.Now(), fileID, from)
	if err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check transition: %w", err)
	}
	if rows == 0 {
		// Stored state no longer matches from
		return &StateViolationError{FileID: fileID, From: from, To: to}
	}

	return nil
}

// Unmark resets a file to analyzed, clearing its recommendation, cluster
// linkage, and delete mark. Operator-initiated reverse path; files that
// have already been applied, quarantined, or deleted stay where they are.
func (s *Store) Unmark(fileID int64) error {
	file, err := s.GetFileByID(fileID)
	if err != nil {
		return err
	}
	if file == nil {
		return fmt.Errorf("file %d: %w", fileID, util.ErrNotFound)
	}

	switch file.State {
	case StateClustered, StatePlanned:
		// resettable
	default:
		return &StateViolationError{FileID: fileID, From: file.State, To: StateAnalyzed}
	}

	_, err = s.db.Exec(`
		UPDATE files
		SET state = ?, cluster_key = NULL, recommended_path = NULL,
		    mark_delete = 0, last_update_at = ?
		WHERE id = ?
	`, StateAnalyzed, time.Now(), fileID)
	if err != nil {
		return fmt.Errorf("failed to unmark file: %w", err)
	}

	return nil
}

// Snapshot is an immutable value copy of the store used by the planner.
// Files are sorted by id so every deterministic pass sees the same order.
type Snapshot struct {
	Files []File
	// Preferred marks the canonical candidate of each cluster
	Preferred map[int64]bool
}

// FileByID returns the snapshot file with the given id, or nil
func (snap *Snapshot) FileByID(id int64) *File {
	i := sort.Search(len(snap.Files), func(i int) bool {
		return snap.Files[i].ID >= id
	})
	if i < len(snap.Files) && snap.Files[i].ID == id {
		return &snap.Files[i]
	}
	return nil
}

// GetSnapshot loads an immutable snapshot of all files
func (s *Store) GetSnapshot() (*Snapshot, error) {
	files, err := s.GetAllFiles()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Files:     make([]File, 0, len(files)),
		Preferred: make(map[int64]bool),
	}
	for _, f := range files {
		snap.Files = append(snap.Files, *f)
	}

	sort.Slice(snap.Files, func(i, j int) bool {
		return snap.Files[i].ID < snap.Files[j].ID
	})

	membersMap, err := s.GetAllClusterMembers()
	if err != nil {
		return nil, err
	}
	for _, members := range membersMap {
		for _, m := range members {
			if m.Preferred {
				snap.Preferred[m.FileID] = true
			}
		}
	}

	return snap, nil
}
