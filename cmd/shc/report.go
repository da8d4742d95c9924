package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/franz/shelf-curator/internal/report"
	"github.com/franz/shelf-curator/internal/util"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report [report.json]",
	Short: "List recorded runs or inspect one run report",
	Long: `Without arguments, list the recorded apply runs with their outcomes.
With a report file path, print that run's per-action entries.

Reports are versioned JSON artifacts; consumers of version 1 reports can
read any later version.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().Int("limit", 20, "Number of runs to list")
}

func runReport(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	if len(args) == 1 {
		return showReport(args[0])
	}

	limit, _ := cmd.Flags().GetInt("limit")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.GetRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to load runs: %w", err)
	}
	if len(runs) == 0 {
		util.InfoLog("No runs recorded yet")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Mode", "Started", "Applied", "Failed", "Skipped", "Report"})

	for _, r := range runs {
		mode := r.Mode
		if r.Simulated {
			mode += " (simulated)"
		}
		t.AppendRow(table.Row{
			shortKey(r.ID), mode, r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Applied, r.Failed, r.Skipped, r.ReportPath,
		})
	}
	t.Render()

	return nil
}

// showReport prints a single run report artifact
func showReport(path string) error {
	rep, err := report.Read(path)
	if err != nil {
		return err
	}

	util.InfoLog("Run %s (%s, report version %d)", rep.RunID, rep.Mode, rep.Version)
	util.InfoLog("  Started: %s", rep.StartedAt.Format("2006-01-02 15:04:05"))
	util.InfoLog("  Finished: %s", rep.FinishedAt.Format("2006-01-02 15:04:05"))

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Kind", "File", "Source", "Destination", "Status", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 44, WidthMaxEnforcer: text.Trim},
		{Number: 5, WidthMax: 44, WidthMaxEnforcer: text.Trim},
		{Number: 7, WidthMax: 36, WidthMaxEnforcer: text.Trim},
	})

	for i, e := range rep.Entries {
		t.AppendRow(table.Row{i + 1, e.Kind, e.FileID, e.SrcPath, e.DestPath, e.Status, e.Error})
	}
	t.Render()

	util.InfoLog("Summary: %d total", rep.Summary.Total)
	for status, n := range rep.Summary.ByStatus {
		util.InfoLog("  %s: %d", status, n)
	}

	return nil
}
