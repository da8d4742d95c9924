package report

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestReportRoundTrip(t *testing.T) {
	rep := New("run-123", ModeReal, true)
	rep.Add(Entry{ActionID: 1, FileID: 10, Kind: "move", SrcPath: "/a", DestPath: "/b", Status: "applied"})
	rep.Add(Entry{ActionID: 2, FileID: 11, Kind: "quarantine", SrcPath: "/c", DestPath: "/q/c", Status: "failed", Error: "boom"})
	rep.Finalize()

	dir := t.TempDir()
	path, err := rep.Write(dir)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if loaded.Version != Version {
		t.Errorf("Expected version %d, got %d", Version, loaded.Version)
	}
	if loaded.RunID != "run-123" || loaded.Mode != ModeReal || !loaded.StopOnError {
		t.Errorf("Header fields wrong: %+v", loaded)
	}
	if len(loaded.Entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(loaded.Entries))
	}
	if loaded.Entries[1].Error != "boom" {
		t.Error("Entry error lost in round trip")
	}
}

func TestFinalizeSummary(t *testing.T) {
	rep := New("run-1", ModeDryRun, false)
	rep.Add(Entry{Kind: "move", Status: "applied"})
	rep.Add(Entry{Kind: "move", Status: "applied"})
	rep.Add(Entry{Kind: "quarantine", Status: "failed"})
	rep.Finalize()

	if rep.Summary.Total != 3 {
		t.Errorf("Expected total 3, got %d", rep.Summary.Total)
	}
	if rep.Summary.ByKind["move"] != 2 || rep.Summary.ByStatus["failed"] != 1 {
		t.Errorf("Summary counts wrong: %+v", rep.Summary)
	}
	if !rep.Simulated {
		t.Error("Dry-run report should be simulated")
	}
	if rep.FinishedAt.Before(rep.StartedAt) {
		t.Error("FinishedAt must not precede StartedAt")
	}
}

func TestCountStatus(t *testing.T) {
	rep := New("run-1", ModeReal, false)
	rep.Add(Entry{Status: "applied"})
	rep.Add(Entry{Status: "skipped"})
	rep.Add(Entry{Status: "applied"})

	if rep.CountStatus("applied") != 2 {
		t.Errorf("Expected 2 applied, got %d", rep.CountStatus("applied"))
	}
	if rep.CountStatus("failed") != 0 {
		t.Errorf("Expected 0 failed, got %d", rep.CountStatus("failed"))
	}
}

func TestEventLoggerWritesJSONL(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewEventLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogIngest(1, "/music/a.mp3", nil)
	logger.LogCluster(1, "/music/a.mp3", "ck1", 2)
	logger.LogPlan(1, "/music/a.mp3", "/dest/a.mp3", "move", "relocate")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.Open(logger.Path())
	if err != nil {
		t.Fatalf("Failed to open event log: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("Invalid JSONL line %q: %v", scanner.Text(), err)
		}
		events = append(events, e)
	}

	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].Event != EventIngest || events[1].Event != EventCluster || events[2].Event != EventPlan {
		t.Errorf("Event types wrong: %v %v %v", events[0].Event, events[1].Event, events[2].Event)
	}
}

func TestEventLoggerLevelFilter(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewEventLogger(dir, LevelWarning)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogIngest(1, "/a", nil) // info, filtered
	logger.LogError(EventApply, "/a", os.ErrNotExist)

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(logger.Path())
	if err != nil {
		t.Fatalf("Failed to read event log: %v", err)
	}

	lines := strings.Count(strings.TrimSpace(string(data)), "\n") + 1
	if strings.TrimSpace(string(data)) == "" {
		lines = 0
	}
	if lines != 1 {
		t.Errorf("Expected 1 event past the filter, got %d", lines)
	}
}

func TestNullLogger(t *testing.T) {
	logger := NullLogger()
	if err := logger.LogIngest(1, "/a", nil); err != nil {
		t.Errorf("NullLogger should swallow events, got %v", err)
	}
	if logger.Path() != "" {
		t.Error("NullLogger has no path")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("NullLogger close failed: %v", err)
	}
}
