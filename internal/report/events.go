package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventIngest  EventType = "ingest"
	EventCluster EventType = "cluster"
	EventRank    EventType = "rank"
	EventPlan    EventType = "plan"
	EventApply   EventType = "apply"
	EventSkip    EventType = "skip"
	EventError   EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single event in the pipeline
type Event struct {
	Timestamp  time.Time         `json:"ts"`
	Level      EventLevel        `json:"level"`
	Event      EventType         `json:"event"`
	FileID     int64             `json:"file_id,omitempty"`
	SrcPath    string            `json:"src_path,omitempty"`
	DestPath   string            `json:"dest_path,omitempty"`
	ClusterKey string            `json:"cluster_key,omitempty"`
	Kind       string            `json:"kind,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Error      string            `json:"error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL artifact
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogIngest logs one ingested record
func (l *EventLogger) LogIngest(fileID int64, srcPath string, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelWarning
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:   level,
		Event:   EventIngest,
		FileID:  fileID,
		SrcPath: srcPath,
		Error:   errMsg,
	})
}

// LogCluster logs a file joining a cluster
func (l *EventLogger) LogCluster(fileID int64, srcPath, clusterKey string, memberCount int) error {
	return l.Log(&Event{
		Level:      LevelInfo,
		Event:      EventCluster,
		FileID:     fileID,
		SrcPath:    srcPath,
		ClusterKey: clusterKey,
		Extra: map[string]string{
			"member_count": fmt.Sprintf("%d", memberCount),
		},
	})
}

// LogRank logs a canonical selection for a cluster
func (l *EventLogger) LogRank(fileID int64, srcPath, clusterKey string, canonical bool) error {
	level := LevelDebug
	if canonical {
		level = LevelInfo
	}

	return l.Log(&Event{
		Level:      level,
		Event:      EventRank,
		FileID:     fileID,
		SrcPath:    srcPath,
		ClusterKey: clusterKey,
		Extra: map[string]string{
			"canonical": fmt.Sprintf("%t", canonical),
		},
	})
}

// LogPlan logs a planned action
func (l *EventLogger) LogPlan(fileID int64, srcPath, destPath, kind, reason string) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventPlan,
		FileID:   fileID,
		SrcPath:  srcPath,
		DestPath: destPath,
		Kind:     kind,
		Reason:   reason,
	})
}

// LogApply logs one applied (or failed) action
func (l *EventLogger) LogApply(fileID int64, srcPath, destPath, kind string, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventApply,
		FileID:   fileID,
		SrcPath:  srcPath,
		DestPath: destPath,
		Kind:     kind,
		Error:    errMsg,
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, srcPath string, err error) error {
	return l.Log(&Event{
		Level:   LevelError,
		Event:   event,
		SrcPath: srcPath,
		Error:   err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
