package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/shelf-curator/internal/lock"
	"github.com/franz/shelf-curator/internal/store"
	"github.com/franz/shelf-curator/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and state",
	Long: `Run diagnostic checks to ensure shc can operate correctly.

This command checks:
- Database accessibility, integrity, and schema version
- SQLite version compatibility
- Run locks and their staleness
- Artifacts directory writability
- Quarantine and archive root writability

A database written by a newer shc is reported as such and never
touched; upgrade shc instead.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	util.InfoLog("=== shc doctor ===")
	util.InfoLog("")

	results := []checkResult{
		checkSQLite(),
		checkDatabase(viper.GetString("db")),
		checkLocks(viper.GetString("lock_dir"), staleThreshold()),
		checkArtifactsDir(viper.GetString("artifacts")),
		checkRoots(viper.GetString("quarantine_root"), viper.GetString("archive_root")),
	}

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Resolve them before running shc.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed.")
	}

	return nil
}

// checkSQLite verifies the embedded SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database accessibility, schema, and integrity
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		if errors.Is(err, util.ErrSchemaTooNew) {
			return checkResult{
				name:    "Database",
				error:   true,
				message: fmt.Sprintf("written by a newer shc (supported schema: %d); upgrade shc", store.SupportedSchemaVersion()),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	version, err := db.SchemaVersion()
	if err != nil {
		return checkResult{
			name:    "Database",
			warning: true,
			message: fmt.Sprintf("cannot read schema version: %v", err),
		}
	}

	counts, _ := db.CountFilesByState()
	total := 0
	for _, n := range counts {
		total += n
	}

	return checkResult{
		name:    "Database",
		message: fmt.Sprintf("%s (schema v%d, %d files)", dbPath, version, total),
	}
}

// checkLocks reports held and stale run locks
func checkLocks(lockDir string, staleAfter time.Duration) checkResult {
	locks, err := lock.NewFileManager(lockDir)
	if err != nil {
		return checkResult{
			name:    "Run locks",
			error:   true,
			message: err.Error(),
		}
	}

	var held, stale []string
	for _, scope := range []lock.Scope{lock.ScopeApply, lock.ScopeMigrate} {
		isHeld, err := locks.Held(scope)
		if err != nil || !isHeld {
			continue
		}
		held = append(held, string(scope))

		if info, _ := locks.Inspect(scope); info != nil && info.Stale(staleAfter) {
			stale = append(stale, string(scope))
		}
	}

	if len(stale) > 0 {
		return checkResult{
			name:    "Run locks",
			warning: true,
			message: fmt.Sprintf("likely stale: %v (inspect with shc lock; never removed automatically)", stale),
		}
	}
	if len(held) > 0 {
		return checkResult{
			name:    "Run locks",
			warning: true,
			message: fmt.Sprintf("currently held: %v", held),
		}
	}

	return checkResult{
		name:    "Run locks",
		message: "free",
	}
}

// checkRoots verifies the configured quarantine and archive roots are
// writable. Missing roots are fine: the executor creates them on
// demand, so only an existing-but-unwritable root is worth flagging.
func checkRoots(quarantineRoot, archiveRoot string) checkResult {
	roots := []struct {
		name string
		root string
	}{
		{"quarantine", quarantineRoot},
		{"archive", archiveRoot},
	}

	var problems []string
	for _, r := range roots {
		name, root := r.name, r.root
		if root == "" {
			continue
		}
		info, err := os.Stat(root)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s root %s: %v", name, root, err))
			continue
		}
		if !info.IsDir() {
			problems = append(problems, fmt.Sprintf("%s root %s is not a directory", name, root))
			continue
		}
		testFile := filepath.Join(root, ".shc_write_test")
		f, err := os.Create(testFile)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s root %s is not writable", name, root))
			continue
		}
		f.Close()
		os.Remove(testFile)
	}

	if len(problems) > 0 {
		return checkResult{
			name:    "Destination roots",
			error:   true,
			message: strings.Join(problems, "; "),
		}
	}

	return checkResult{
		name:    "Destination roots",
		message: "writable or created on demand",
	}
}

// checkArtifactsDir verifies the artifacts directory is writable
func checkArtifactsDir(path string) checkResult {
	if err := os.MkdirAll(path, 0755); err != nil {
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("cannot create %s: %v", path, err),
		}
	}

	testFile := filepath.Join(path, ".shc_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Artifacts directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}
