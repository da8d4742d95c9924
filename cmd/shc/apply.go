package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franz/shelf-curator/internal/execute"
	"github.com/franz/shelf-curator/internal/lock"
	"github.com/franz/shelf-curator/internal/report"
	"github.com/franz/shelf-curator/internal/store"
	"github.com/franz/shelf-curator/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// deleteConfirmToken is the literal an operator must type to run
// permanent deletes. A boolean flag alone is not enough.
const deleteConfirmToken = "DELETE"

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Execute the pending action plan",
	Long: `Apply the pending actions in plan order under an exclusive run lock.

Moves prefer an atomic rename and fall back to copy-verify-remove across
filesystems. Quarantine relocates bytes into the quarantine tree while
the record keeps its original path, so quarantined files stay
restorable. A failed action is recorded and execution continues unless
--stop-on-error is set.

Every run, including dry runs, writes a versioned JSON report to the
artifacts directory.

Permanent deletes require BOTH --permanent-delete and --confirm DELETE.`,
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().Bool("dry-run", false, "Validate the plan without changing anything")
	applyCmd.Flags().Bool("stop-on-error", false, "Skip remaining actions after the first failure")
	applyCmd.Flags().Bool("overwrite", false, "Allow replacing existing files at destinations")
	applyCmd.Flags().Bool("permanent-delete", false, "Allow permanent_delete actions this run")
	applyCmd.Flags().String("confirm", "", "Type DELETE to confirm permanent deletes")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	applyLogFlags()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	stopOnError, _ := cmd.Flags().GetBool("stop-on-error")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	permanentDelete, _ := cmd.Flags().GetBool("permanent-delete")
	confirm, _ := cmd.Flags().GetString("confirm")

	if permanentDelete && confirm != deleteConfirmToken {
		return fmt.Errorf("--permanent-delete requires --confirm %s", deleteConfirmToken)
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	actions, err := db.GetPendingActions()
	if err != nil {
		return fmt.Errorf("failed to load pending actions: %w", err)
	}
	if len(actions) == 0 {
		util.InfoLog("No pending actions. Run shc plan first.")
		return nil
	}

	logger := newEventLogger()
	defer logger.Close()

	locks, err := lock.NewFileManager(viper.GetString("lock_dir"))
	if err != nil {
		return err
	}

	mode := report.ModeReal
	if dryRun {
		mode = report.ModeDryRun
	}

	executor := execute.New(&execute.Config{
		Store:           db,
		Locks:           locks,
		Mode:            mode,
		StopOnError:     stopOnError,
		PermanentDelete: permanentDelete,
		Overwrite:       overwrite,
		StaleAfter:      staleThreshold(),
		ArtifactsDir:    viper.GetString("artifacts"),
		Logger:          logger,
	})

	util.InfoLog("Applying %d actions (%s)", len(actions), mode)

	startTime := time.Now()

	rep, err := executor.Execute(ctx, actions)
	if err != nil {
		if errors.Is(err, util.ErrLockHeld) {
			util.ErrorLog("Another run holds the apply lock; inspect it with: shc lock")
		}
		return fmt.Errorf("apply failed: %w", err)
	}

	util.SuccessLog("Apply complete in %v", time.Since(startTime).Round(time.Millisecond))
	util.InfoLog("  Applied: %d", rep.CountStatus(string(store.ActionApplied)))
	util.InfoLog("  Failed: %d", rep.CountStatus(string(store.ActionFailed)))
	util.InfoLog("  Skipped: %d", rep.CountStatus(string(store.ActionSkipped)))

	if dryRun {
		util.InfoLog("")
		util.InfoLog("Dry run: nothing changed. Apply for real with:")
		util.InfoLog("  shc apply --db %s", viper.GetString("db"))
	}

	if rep.CountStatus(string(store.ActionFailed)) > 0 {
		return fmt.Errorf("%d actions failed; see the run report", rep.CountStatus(string(store.ActionFailed)))
	}

	return nil
}
