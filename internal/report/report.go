package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Version is the report schema version. Changes are additive only:
// consumers of version 1 reports must be able to read later versions.
const Version = 1

// Mode identifies how a run executed
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeReal   Mode = "real"
)

// Entry is the outcome of one action within a run, in execution order
type Entry struct {
	ActionID int64  `json:"action_id"`
	FileID   int64  `json:"file_id"`
	Kind     string `json:"kind"`
	SrcPath  string `json:"src"`
	DestPath string `json:"dest,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// Summary aggregates outcomes per action kind and per status
type Summary struct {
	ByKind   map[string]int `json:"by_kind"`
	ByStatus map[string]int `json:"by_status"`
	Total    int            `json:"total"`
}

// Report is the durable audit record of one apply run
type Report struct {
	Version     int       `json:"version"`
	RunID       string    `json:"run_id"`
	Mode        Mode      `json:"mode"`
	Simulated   bool      `json:"simulated"`
	StopOnError bool      `json:"stop_on_error"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Entries     []Entry   `json:"entries"`
	Summary     Summary   `json:"summary"`
}

// New builds an empty report for a run
func New(runID string, mode Mode, stopOnError bool) *Report {
	return &Report{
		Version:     Version,
		RunID:       runID,
		Mode:        mode,
		Simulated:   mode == ModeDryRun,
		StopOnError: stopOnError,
		StartedAt:   time.Now(),
	}
}

// Add appends an entry in execution order
func (r *Report) Add(entry Entry) {
	r.Entries = append(r.Entries, entry)
}

// Finalize stamps the finish time and computes summary counts
func (r *Report) Finalize() {
	r.FinishedAt = time.Now()
	r.Summary = Summary{
		ByKind:   make(map[string]int),
		ByStatus: make(map[string]int),
		Total:    len(r.Entries),
	}
	for _, e := range r.Entries {
		r.Summary.ByKind[e.Kind]++
		r.Summary.ByStatus[e.Status]++
	}
}

// CountStatus returns the number of entries with the given status
func (r *Report) CountStatus(status string) int {
	count := 0
	for _, e := range r.Entries {
		if e.Status == status {
			count++
		}
	}
	return count
}

// Write persists the report as a JSON artifact and returns its path
func (r *Report) Write(outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	name := fmt.Sprintf("run-%s-%s.json", r.StartedAt.Format("20060102-150405"), r.RunID)
	path := filepath.Join(outputDir, name)

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return path, nil
}

// Read loads a report artifact from disk
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}

	return &r, nil
}
