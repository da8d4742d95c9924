package store

// Schema v1 - Initial database schema
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Files under management, one row per physical file
CREATE TABLE IF NOT EXISTS files (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file_key TEXT UNIQUE NOT NULL,
  src_path TEXT UNIQUE NOT NULL,
  size_bytes INTEGER,
  sha256 TEXT,
  fingerprint TEXT,
  container TEXT,
  codec TEXT,
  lossless INTEGER DEFAULT 0,
  duration_ms INTEGER,
  artist TEXT,
  title TEXT,
  album TEXT,
  artist_norm TEXT,
  title_norm TEXT,
  state TEXT NOT NULL DEFAULT 'discovered',
  cluster_key TEXT,
  mark_delete INTEGER DEFAULT 0,
  recommended_path TEXT,
  quarantined_path TEXT,
  error TEXT,
  first_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  last_update_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_files_state ON files(state);
CREATE INDEX IF NOT EXISTS idx_files_file_key ON files(file_key);
CREATE INDEX IF NOT EXISTS idx_files_sha256 ON files(sha256);
CREATE INDEX IF NOT EXISTS idx_files_cluster_key ON files(cluster_key);

-- Duplicate groups, recomputed wholesale on every clustering run
CREATE TABLE IF NOT EXISTS clusters (
  cluster_key TEXT PRIMARY KEY,
  confidence REAL,
  member_count INTEGER,
  hint TEXT
);

CREATE TABLE IF NOT EXISTS cluster_members (
  cluster_key TEXT REFERENCES clusters(cluster_key) ON DELETE CASCADE,
  file_id INTEGER REFERENCES files(id) ON DELETE CASCADE,
  rank INTEGER,
  preferred INTEGER DEFAULT 0,
  PRIMARY KEY (cluster_key, file_id)
);

CREATE INDEX IF NOT EXISTS idx_cluster_members_file_id ON cluster_members(file_id);
CREATE INDEX IF NOT EXISTS idx_cluster_members_preferred ON cluster_members(cluster_key, preferred);

-- Per-pair edge evidence, retained for audit
CREATE TABLE IF NOT EXISTS cluster_edges (
  cluster_key TEXT REFERENCES clusters(cluster_key) ON DELETE CASCADE,
  file_a INTEGER NOT NULL,
  file_b INTEGER NOT NULL,
  signal TEXT NOT NULL,
  confidence REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cluster_edges_key ON cluster_edges(cluster_key);

-- Planned filesystem mutations; never deleted once out of pending
CREATE TABLE IF NOT EXISTS actions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  kind TEXT NOT NULL,
  src_path TEXT NOT NULL,
  dest_path TEXT,
  reason TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  error TEXT,
  run_id TEXT,
  planned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  applied_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status);
CREATE INDEX IF NOT EXISTS idx_actions_file_id ON actions(file_id);

-- Apply runs, one row per execution (dry-run or real)
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  mode TEXT NOT NULL,
  simulated INTEGER DEFAULT 0,
  started_at DATETIME,
  finished_at DATETIME,
  applied INTEGER DEFAULT 0,
  failed INTEGER DEFAULT 0,
  skipped INTEGER DEFAULT 0,
  report_path TEXT
);
`

// Schema v2 - Performance indexes for large libraries
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_files_state_id ON files(state, id);
CREATE INDEX IF NOT EXISTS idx_files_mark_delete ON files(mark_delete) WHERE mark_delete = 1;
CREATE INDEX IF NOT EXISTS idx_actions_run_id ON actions(run_id);
CREATE INDEX IF NOT EXISTS idx_actions_status_id ON actions(status, file_id);
`
