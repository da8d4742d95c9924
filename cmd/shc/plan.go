package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/franz/shelf-curator/internal/plan"
	"github.com/franz/shelf-curator/internal/store"
	"github.com/franz/shelf-curator/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Turn review decisions into an ordered action plan",
	Long: `Build the ordered action plan from the current state.

Planning reads a snapshot of all files and emits one action per needed
change: moves to the recommended layout, archival of non-canonical
duplicates, quarantine of delete-marked files, and (only with explicit
confirmation) permanent deletes of already-quarantined files.

The plan is deterministic: the same state always produces the same
actions in the same order. Re-planning replaces pending actions;
applied history is never rewritten.

Use --preview to print the plan without persisting anything.`,
	RunE: runPlanCmd,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().Bool("preview", false, "Print the plan without saving it")
	planCmd.Flags().String("dest", "", "Destination root for the curated layout")
	planCmd.Flags().Bool("archive-duplicates", false, "Archive non-canonical duplicates instead of leaving them")
	planCmd.Flags().String("archive-root", "", "Root directory for archived duplicates")
	planCmd.Flags().String("quarantine-root", "", "Root directory for quarantined files")
	planCmd.Flags().Bool("permanent-delete", false, "Plan permanent deletes for quarantined files")

	viper.BindPFlag("destination", planCmd.Flags().Lookup("dest"))
	viper.BindPFlag("archive_duplicates", planCmd.Flags().Lookup("archive-duplicates"))
	viper.BindPFlag("archive_root", planCmd.Flags().Lookup("archive-root"))
	viper.BindPFlag("quarantine_root", planCmd.Flags().Lookup("quarantine-root"))
}

func runPlanCmd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	applyLogFlags()

	preview, _ := cmd.Flags().GetBool("preview")
	permanentDelete, _ := cmd.Flags().GetBool("permanent-delete")

	dest := viper.GetString("destination")
	opts := plan.Options{
		ArchiveDuplicates: viper.GetBool("archive_duplicates"),
		ArchiveRoot:       viper.GetString("archive_root"),
		QuarantineRoot:    viper.GetString("quarantine_root"),
		PermanentDelete:   permanentDelete,
	}

	if opts.QuarantineRoot == "" {
		opts.QuarantineRoot = "quarantine"
	}
	if opts.ArchiveDuplicates && opts.ArchiveRoot == "" {
		return fmt.Errorf("--archive-duplicates requires --archive-root")
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger()
	defer logger.Close()

	planner := plan.New(&plan.Config{
		Store:  db,
		Logger: logger,
	})

	startTime := time.Now()

	var result *plan.RunResult
	if preview {
		result, err = planner.Preview(ctx, dest, opts)
	} else {
		result, err = planner.Plan(ctx, dest, opts)
	}
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	if preview {
		printPlanTable(result.Actions)
	}

	util.SuccessLog("Planning complete in %v", time.Since(startTime).Round(time.Millisecond))
	util.InfoLog("  Actions: %d", len(result.Actions))
	util.InfoLog("  Recommendations: %d", result.Recommended)
	if len(result.Inconsistencies) > 0 {
		util.WarnLog("  Inconsistencies: %d", len(result.Inconsistencies))
		for _, inc := range result.Inconsistencies {
			util.WarnLog("    file %d: %s", inc.FileID, inc.Reason)
		}
	}

	counts := map[store.ActionKind]int{}
	for _, a := range result.Actions {
		counts[a.Kind]++
	}

	util.InfoLog("")
	util.InfoLog("Planned actions:")
	for _, kind := range []store.ActionKind{store.ActionMove, store.ActionArchive, store.ActionQuarantine, store.ActionPermanentDelete} {
		if counts[kind] > 0 {
			util.InfoLog("  %s: %d files", kind, counts[kind])
		}
	}

	util.InfoLog("")
	if preview {
		util.InfoLog("Preview only: nothing was saved.")
		util.InfoLog("  Persist the plan:  shc plan --db %s", viper.GetString("db"))
	} else if len(result.Actions) > 0 {
		util.InfoLog("Next step:")
		util.InfoLog("  shc apply --db %s --dry-run", viper.GetString("db"))
	} else {
		util.InfoLog("Nothing to do: the shelf matches the plan.")
	}

	return nil
}

// printPlanTable renders the action list for review
func printPlanTable(actions []*store.Action) {
	if len(actions) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Kind", "File", "Source", "Destination", "Reason"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 48, WidthMaxEnforcer: text.Trim},
		{Number: 5, WidthMax: 48, WidthMaxEnforcer: text.Trim},
		{Number: 6, WidthMax: 40, WidthMaxEnforcer: text.Trim},
	})

	for i, a := range actions {
		t.AppendRow(table.Row{i + 1, a.Kind, a.FileID, a.SrcPath, a.DestPath, a.Reason})
	}
	t.Render()
}
