package store

import (
	"database/sql"
	"fmt"
	"time"
)

const fileColumns = `
	id, file_key, src_path, size_bytes,
	COALESCE(sha256, ''), COALESCE(fingerprint, ''),
	COALESCE(container, ''), COALESCE(codec, ''), lossless,
	COALESCE(duration_ms, 0),
	COALESCE(artist, ''), COALESCE(title, ''), COALESCE(album, ''),
	COALESCE(artist_norm, ''), COALESCE(title_norm, ''),
	state, COALESCE(cluster_key, ''), mark_delete,
	COALESCE(recommended_path, ''), COALESCE(quarantined_path, ''),
	COALESCE(error, ''), first_seen_at, last_update_at`

func scanFile(row interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var lossless, markDelete int
	err := row.Scan(
		&f.ID, &f.FileKey, &f.SrcPath, &f.SizeBytes,
		&f.SHA256, &f.Fingerprint,
		&f.Container, &f.Codec, &lossless,
		&f.DurationMs,
		&f.Artist, &f.Title, &f.Album,
		&f.ArtistNorm, &f.TitleNorm,
		&f.State, &f.ClusterKey, &markDelete,
		&f.RecommendedPath, &f.QuarantinedPath,
		&f.Error, &f.FirstSeenAt, &f.LastUpdate,
	)
	if err != nil {
		return nil, err
	}
	f.Lossless = lossless == 1
	f.MarkDelete = markDelete == 1
	return f, nil
}

// InsertFile inserts or updates a file record. The stable id and
// lifecycle state are never changed by a re-ingest; signals are.
func (s *Store) InsertFile(f *File) error {
	lossless := 0
	if f.Lossless {
		lossless = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO files (
			file_key, src_path, size_bytes, sha256, fingerprint,
			container, codec, lossless, duration_ms,
			artist, title, album, artist_norm, title_norm, state
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(src_path) DO UPDATE SET
			size_bytes = excluded.size_bytes,
			sha256 = excluded.sha256,
			fingerprint = excluded.fingerprint,
			container = excluded.container,
			codec = excluded.codec,
			lossless = excluded.lossless,
			duration_ms = excluded.duration_ms,
			artist = excluded.artist,
			title = excluded.title,
			album = excluded.album,
			artist_norm = excluded.artist_norm,
			title_norm = excluded.title_norm,
			last_update_at = CURRENT_TIMESTAMP
		`, f.FileKey, f.SrcPath, f.SizeBytes, f.SHA256, f.Fingerprint,
		f.Container, f.Codec, lossless, f.DurationMs,
		f.Artist, f.Title, f.Album, f.ArtistNorm, f.TitleNorm, f.State)

	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	// Fetch the id; LastInsertId is unreliable on conflict-update
	err = s.db.QueryRow("SELECT id FROM files WHERE src_path = ?", f.SrcPath).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("failed to get file ID: %w", err)
	}

	return nil
}

// GetFileByID retrieves a file by its id
func (s *Store) GetFileByID(id int64) (*File, error) {
	row := s.db.QueryRow(`SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// GetFileByKey retrieves a file by its stable key
func (s *Store) GetFileByKey(fileKey string) (*File, error) {
	row := s.db.QueryRow(`SELECT `+fileColumns+` FROM files WHERE file_key = ?`, fileKey)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// GetFileByPath retrieves a file by its source path
func (s *Store) GetFileByPath(srcPath string) (*File, error) {
	row := s.db.QueryRow(`SELECT `+fileColumns+` FROM files WHERE src_path = ?`, srcPath)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// GetAllFiles retrieves all files ordered by id
func (s *Store) GetAllFiles() ([]*File, error) {
	rows, err := s.db.Query(`SELECT ` + fileColumns + ` FROM files ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

// GetFilesByState retrieves files in a given lifecycle state, ordered by id
func (s *Store) GetFilesByState(state State) ([]*File, error) {
	rows, err := s.db.Query(`SELECT `+fileColumns+` FROM files WHERE state = ? ORDER BY id`, state)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

// CountFilesByState returns lifecycle state counts
func (s *Store) CountFilesByState() (map[State]int, error) {
	rows, err := s.db.Query(`SELECT state, COUNT(*) FROM files GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}
	defer rows.Close()

	counts := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		counts[state] = count
	}

	return counts, rows.Err()
}

// SetMarkDelete flags or unflags a file for deletion (operator decision)
func (s *Store) SetMarkDelete(fileID int64, mark bool) error {
	markInt := 0
	if mark {
		markInt = 1
	}

	_, err := s.db.Exec(`
		UPDATE files SET mark_delete = ?, last_update_at = ?
		WHERE id = ?
	`, markInt, time.Now(), fileID)
	if err != nil {
		return fmt.Errorf("failed to set mark_delete: %w", err)
	}

	return nil
}

// SetRecommendedPath records the planner's recommended destination
func (s *Store) SetRecommendedPath(fileID int64, path string) error {
	_, err := s.db.Exec(`
		UPDATE files SET recommended_path = ?, last_update_at = ?
		WHERE id = ?
	`, path, time.Now(), fileID)
	if err != nil {
		return fmt.Errorf("failed to set recommended path: %w", err)
	}

	return nil
}

// UpdateFilePathTx rewrites a file's source path inside a transaction,
// used when an action physically relocates the file.
func (s *Store) UpdateFilePathTx(tx *sql.Tx, fileID int64, newPath string) error {
	_, err := tx.Exec(`
		UPDATE files SET src_path = ?, last_update_at = ?
		WHERE id = ?
	`, newPath, time.Now(), fileID)
	if err != nil {
		return fmt.Errorf("failed to update path: %w", err)
	}
	return nil
}

// SetQuarantinedPathTx records where a quarantined file's bytes live,
// inside a transaction. The original src_path is kept for restores.
func (s *Store) SetQuarantinedPathTx(tx *sql.Tx, fileID int64, quarantinePath string) error {
	_, err := tx.Exec(`
		UPDATE files SET quarantined_path = ?, last_update_at = ?
		WHERE id = ?
	`, quarantinePath, time.Now(), fileID)
	if err != nil {
		return fmt.Errorf("failed to set quarantined path: %w", err)
	}
	return nil
}
