// Package util holds the shared error taxonomy, filesystem helpers,
// and the leveled stderr logger used by every shc command. Structured
// per-run events go to the JSONL artifact instead; this logger is for
// the operator watching the terminal.
package util

import (
	"fmt"
	"os"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

const (
	ansiReset  = "\033[0m"
	ansiGray   = "\033[90m"
	ansiCyan   = "\033[36m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
)

var (
	currentLogLevel = LevelInfo
	useColors       = os.Getenv("NO_COLOR") == ""
)

// SetLogLevel sets the minimum log level to display
func SetLogLevel(level LogLevel) {
	currentLogLevel = level
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		currentLogLevel = LevelDebug
	}
}

// SetQuiet enables quiet mode (errors only)
func SetQuiet(quiet bool) {
	if quiet {
		currentLogLevel = LevelError
	}
}

// SetColors enables or disables colored output
func SetColors(enabled bool) {
	useColors = enabled
}

func logAt(level LogLevel, color, tag, format string, args ...interface{}) {
	if currentLogLevel > level {
		return
	}

	stamp := time.Now().Format("15:04:05")
	if useColors {
		stamp = color + stamp + ansiReset
	}
	fmt.Fprintf(os.Stderr, "%s %s %s\n", stamp, tag, fmt.Sprintf(format, args...))
}

// DebugLog logs debug messages, shown only with --verbose
func DebugLog(format string, args ...interface{}) {
	logAt(LevelDebug, ansiGray, "[DEBUG]", format, args...)
}

// InfoLog logs informational messages
func InfoLog(format string, args ...interface{}) {
	logAt(LevelInfo, ansiCyan, "[INFO] ", format, args...)
}

// WarnLog logs warning messages
func WarnLog(format string, args ...interface{}) {
	logAt(LevelWarn, ansiYellow, "[WARN] ", format, args...)
}

// ErrorLog logs error messages, shown even with --quiet
func ErrorLog(format string, args ...interface{}) {
	logAt(LevelError, ansiRed, "[ERROR]", format, args...)
}

// SuccessLog logs success messages at info level
func SuccessLog(format string, args ...interface{}) {
	logAt(LevelInfo, ansiGreen, "[OK]   ", format, args...)
}
