package signal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/franz/shelf-curator/internal/util"
)

// Record is one FileRecord-shaped input handed to the core by the
// ingestion collaborator. Ordering in the manifest is not guaranteed;
// the core re-sorts by id before any deterministic pass.
type Record struct {
	ID          string `json:"id,omitempty"`
	Path        string `json:"path"`
	SHA256      string `json:"sha256,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	Container   string `json:"container,omitempty"`
	Codec       string `json:"codec,omitempty"`
	Lossless    bool   `json:"lossless,omitempty"`
	DurationMs  int    `json:"duration_ms,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Title       string `json:"title,omitempty"`
	Album       string `json:"album,omitempty"`
}

// Validate checks the invariants the core depends on. A record without
// a content hash cannot participate in clustering and is rejected
// per-record, never fatally for the batch.
func (r *Record) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("record has no path: %w", util.ErrInvalidConfig)
	}
	if !filepath.IsAbs(r.Path) {
		return fmt.Errorf("path %q is not absolute: %w", r.Path, util.ErrInvalidConfig)
	}
	if r.SHA256 == "" {
		return fmt.Errorf("record %q has no content hash: %w", r.Path, util.ErrSignalMissing)
	}
	return nil
}

// EnsureID assigns a stable identifier if the collaborator did not
func (r *Record) EnsureID() {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
}

// Container returns the container derived from the path extension when
// the record did not carry one.
func (r *Record) EffectiveContainer() string {
	if r.Container != "" {
		return strings.ToLower(r.Container)
	}
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(r.Path), "."))
}

// ReadManifest decodes an NDJSON manifest: one record per line, blank
// lines and #-comments skipped.
func ReadManifest(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	return DecodeManifest(f)
}

// DecodeManifest reads NDJSON records from a reader
func DecodeManifest(r io.Reader) ([]*Record, error) {
	scanner := bufio.NewScanner(r)
	// Records with embedded raw tags can be long
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var records []*Record
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", lineNo, err)
		}
		records = append(records, &rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	return records, nil
}
