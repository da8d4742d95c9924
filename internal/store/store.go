package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/franz/shelf-curator/internal/util"
)

const (
	currentSchemaVersion = 2
)

// Store is the authoritative lifecycle state store. All mutation of
// lifecycle state goes through ApplyTransition; the planner only ever
// sees an immutable Snapshot.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path
func Open(path string) (*Store, error) {
	// Open with pragmas for performance and reliability
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for custom queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// SchemaVersion returns the schema version of the open database
func (s *Store) SchemaVersion() (int, error) {
	return s.getSchemaVersion()
}

// SupportedSchemaVersion returns the schema version this build writes
func SupportedSchemaVersion() int {
	return currentSchemaVersion
}

// SQLiteVersion returns the SQLite version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return ""
	}
	return version
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (s *Store) CheckIntegrity() error {
	var result string
	err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// migrate applies database migrations. A database written by a newer
// build is refused outright; an older database is migrated forward
// (migrations are additive only).
func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d, supported %d: %w",
			version, currentSchemaVersion, util.ErrSchemaTooNew)
	}

	if version == currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		if _, err := tx.Exec(schemaV1); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
		if err := s.setSchemaVersion(tx, 1); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if version < 2 {
		if _, err := tx.Exec(schemaV2); err != nil {
			return fmt.Errorf("failed to apply schema v2: %w", err)
		}
		if err := s.setSchemaVersion(tx, 2); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	// Future migrations would go here:
	// if version < 3 { ... }

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Store) getSchemaVersion() (int, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}

	if exists == 0 {
		return 0, nil
	}

	var version int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion records a schema version in a transaction
func (s *Store) setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// Transaction executes a function within a transaction
func (s *Store) Transaction(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// File represents one physical file under management
type File struct {
	ID              int64
	FileKey         string
	SrcPath         string
	SizeBytes       int64
	SHA256          string
	Fingerprint     string
	Container       string
	Codec           string
	Lossless        bool
	DurationMs      int
	Artist          string
	Title           string
	Album           string
	ArtistNorm      string
	TitleNorm       string
	State           State
	ClusterKey      string
	MarkDelete      bool
	RecommendedPath string
	QuarantinedPath string
	Error           string
	FirstSeenAt     time.Time
	LastUpdate      time.Time
}

// ClusterMember records a file's membership and rank within a cluster
type ClusterMember struct {
	ClusterKey string
	FileID     int64
	Rank       int
	Preferred  bool
}

// ClusterEdge records which signal joined a pair of files
type ClusterEdge struct {
	ClusterKey string
	FileA      int64
	FileB      int64
	Signal     string
	Confidence float64
}

// Action represents one planned filesystem mutation
type Action struct {
	ID        int64
	FileID    int64
	Kind      ActionKind
	SrcPath   string
	DestPath  string
	Reason    string
	Status    ActionStatus
	Error     string
	RunID     string
	PlannedAt time.Time
	AppliedAt time.Time
}

// Run summarizes one apply invocation
type Run struct {
	ID         string
	Mode       string
	Simulated  bool
	StartedAt  time.Time
	FinishedAt time.Time
	Applied    int
	Failed     int
	Skipped    int
	ReportPath string
}
