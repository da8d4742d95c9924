package main

import (
	"fmt"
	"time"

	"github.com/franz/shelf-curator/internal/lock"
	"github.com/franz/shelf-curator/internal/report"
	"github.com/franz/shelf-curator/internal/store"
	"github.com/franz/shelf-curator/internal/util"
	"github.com/spf13/viper"
)

// applyLogFlags sets the logger level from the global flags
func applyLogFlags() {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
}

// staleThreshold resolves the configured lock staleness threshold
func staleThreshold() time.Duration {
	if d := viper.GetDuration("lock_stale_after"); d > 0 {
		return d
	}
	return lock.DefaultStaleAfter
}

// openStore opens the state database configured via --db
func openStore() (*store.Store, error) {
	dbPath := viper.GetString("db")
	util.InfoLog("Opening database: %s", dbPath)

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// newEventLogger creates the JSONL event logger in the artifacts
// directory, falling back to a null logger on failure.
func newEventLogger() *report.EventLogger {
	logLevel := report.LevelInfo
	if viper.GetBool("quiet") {
		logLevel = report.LevelWarning
	} else if viper.GetBool("verbose") {
		logLevel = report.LevelDebug
	}

	logger, err := report.NewEventLogger(viper.GetString("artifacts"), logLevel)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}

	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}
	return logger
}
