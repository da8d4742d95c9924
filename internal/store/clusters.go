package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Cluster represents a group of duplicate files
type Cluster struct {
	ClusterKey  string
	Confidence  float64
	MemberCount int
	Hint        string
}

// ReplaceClusters clears all cluster state and writes a fresh clustering
// result in a single transaction. Clustering is recomputed wholesale on
// every run; cluster keys are content-derived and may change when
// membership changes.
func (s *Store) ReplaceClusters(clusters []*Cluster, members []*ClusterMember, edges []*ClusterEdge) error {
	return s.Transaction(func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM cluster_edges`,
			`DELETE FROM cluster_members`,
			`DELETE FROM clusters`,
			`UPDATE files SET cluster_key = NULL WHERE cluster_key IS NOT NULL`,
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("failed to clear clusters: %w", err)
			}
		}

		clusterStmt, err := tx.Prepare(`
			INSERT INTO clusters (cluster_key, confidence, member_count, hint)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer clusterStmt.Close()

		for _, c := range clusters {
			if _, err := clusterStmt.Exec(c.ClusterKey, c.Confidence, c.MemberCount, c.Hint); err != nil {
				return fmt.Errorf("failed to insert cluster %s: %w", c.ClusterKey, err)
			}
		}

		memberStmt, err := tx.Prepare(`
			INSERT INTO cluster_members (cluster_key, file_id, rank, preferred)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer memberStmt.Close()

		for _, m := range members {
			preferred := 0
			if m.Preferred {
				preferred = 1
			}
			if _, err := memberStmt.Exec(m.ClusterKey, m.FileID, m.Rank, preferred); err != nil {
				return fmt.Errorf("failed to insert cluster member: %w", err)
			}
			if _, err := tx.Exec(`
				UPDATE files SET cluster_key = ?, last_update_at = ? WHERE id = ?
			`, m.ClusterKey, time.Now(), m.FileID); err != nil {
				return fmt.Errorf("failed to link file to cluster: %w", err)
			}
		}

		edgeStmt, err := tx.Prepare(`
			INSERT INTO cluster_edges (cluster_key, file_a, file_b, signal, confidence)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer edgeStmt.Close()

		for _, e := range edges {
			if _, err := edgeStmt.Exec(e.ClusterKey, e.FileA, e.FileB, e.Signal, e.Confidence); err != nil {
				return fmt.Errorf("failed to insert cluster edge: %w", err)
			}
		}

		return nil
	})
}

// GetAllClusters returns all clusters ordered by key
func (s *Store) GetAllClusters() ([]*Cluster, error) {
	rows, err := s.db.Query(`
		SELECT cluster_key, COALESCE(confidence, 0), COALESCE(member_count, 0), COALESCE(hint, '')
		FROM clusters
		ORDER BY cluster_key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []*Cluster
	for rows.Next() {
		var c Cluster
		if err := rows.Scan(&c.ClusterKey, &c.Confidence, &c.MemberCount, &c.Hint); err != nil {
			return nil, err
		}
		clusters = append(clusters, &c)
	}

	return clusters, rows.Err()
}

// GetClusterByKey gets a cluster by its key
func (s *Store) GetClusterByKey(clusterKey string) (*Cluster, error) {
	var c Cluster
	err := s.db.QueryRow(`
		SELECT cluster_key, COALESCE(confidence, 0), COALESCE(member_count, 0), COALESCE(hint, '')
		FROM clusters
		WHERE cluster_key = ?
	`, clusterKey).Scan(&c.ClusterKey, &c.Confidence, &c.MemberCount, &c.Hint)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return &c, err
}

// GetClusterMembers returns members of a cluster in rank order
func (s *Store) GetClusterMembers(clusterKey string) ([]*ClusterMember, error) {
	rows, err := s.db.Query(`
		SELECT cluster_key, file_id, COALESCE(rank, 0), preferred
		FROM cluster_members
		WHERE cluster_key = ?
		ORDER BY rank ASC, file_id ASC
	`, clusterKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*ClusterMember
	for rows.Next() {
		var m ClusterMember
		var preferred int
		if err := rows.Scan(&m.ClusterKey, &m.FileID, &m.Rank, &preferred); err != nil {
			return nil, err
		}
		m.Preferred = preferred == 1
		members = append(members, &m)
	}

	return members, rows.Err()
}

// GetAllClusterMembers returns all memberships keyed by cluster
func (s *Store) GetAllClusterMembers() (map[string][]*ClusterMember, error) {
	rows, err := s.db.Query(`
		SELECT cluster_key, file_id, COALESCE(rank, 0), preferred
		FROM cluster_members
		ORDER BY cluster_key, rank ASC, file_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	membersMap := make(map[string][]*ClusterMember)
	for rows.Next() {
		var m ClusterMember
		var preferred int
		if err := rows.Scan(&m.ClusterKey, &m.FileID, &m.Rank, &preferred); err != nil {
			return nil, err
		}
		m.Preferred = preferred == 1
		membersMap[m.ClusterKey] = append(membersMap[m.ClusterKey], &m)
	}

	return membersMap, rows.Err()
}

// GetClusterEdges returns the edge evidence for a cluster
func (s *Store) GetClusterEdges(clusterKey string) ([]*ClusterEdge, error) {
	rows, err := s.db.Query(`
		SELECT cluster_key, file_a, file_b, signal, confidence
		FROM cluster_edges
		WHERE cluster_key = ?
		ORDER BY file_a, file_b, signal
	`, clusterKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*ClusterEdge
	for rows.Next() {
		var e ClusterEdge
		if err := rows.Scan(&e.ClusterKey, &e.FileA, &e.FileB, &e.Signal, &e.Confidence); err != nil {
			return nil, err
		}
		edges = append(edges, &e)
	}

	return edges, rows.Err()
}

// CountClusters returns the total number of clusters
func (s *Store) CountClusters() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM clusters`).Scan(&count)
	return count, err
}
