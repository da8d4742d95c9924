package main

import (
	"fmt"
	"strconv"

	"github.com/franz/shelf-curator/internal/util"
	"github.com/spf13/cobra"
)

var markCmd = &cobra.Command{
	Use:   "mark <file-id>...",
	Short: "Mark files for deletion",
	Long: `Mark files so the next plan quarantines them.

Marking never deletes anything by itself: the mark becomes a quarantine
action at plan time, and bytes only leave the quarantine tree after an
explicitly confirmed permanent delete.

Use --clear to remove the mark instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMark,
}

var unmarkCmd = &cobra.Command{
	Use:   "unmark <file-id>...",
	Short: "Reset files back to analyzed",
	Long: `Reset clustered or planned files back to analyzed.

Unmarking clears the file's cluster linkage, destination
recommendation, and delete mark. Files that were already applied,
quarantined, or deleted are not touched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUnmark,
}

func init() {
	rootCmd.AddCommand(markCmd)
	rootCmd.AddCommand(unmarkCmd)

	markCmd.Flags().Bool("clear", false, "Remove the delete mark instead of setting it")
}

func parseFileIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid file id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runMark(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	clear, _ := cmd.Flags().GetBool("clear")

	ids, err := parseFileIDs(args)
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	for _, id := range ids {
		f, err := db.GetFileByID(id)
		if err != nil {
			return err
		}
		if f == nil {
			util.WarnLog("File %d not found", id)
			continue
		}

		if err := db.SetMarkDelete(id, !clear); err != nil {
			return fmt.Errorf("failed to mark file %d: %w", id, err)
		}

		if clear {
			util.SuccessLog("Cleared delete mark on file %d (%s)", id, f.SrcPath)
		} else {
			util.SuccessLog("Marked file %d for deletion (%s)", id, f.SrcPath)
		}
	}

	if !clear {
		util.InfoLog("")
		util.InfoLog("Marked files will be quarantined by the next plan + apply.")
	}

	return nil
}

func runUnmark(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	ids, err := parseFileIDs(args)
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	for _, id := range ids {
		if err := db.Unmark(id); err != nil {
			util.ErrorLog("Failed to unmark file %d: %v", id, err)
			continue
		}
		util.SuccessLog("File %d reset to analyzed", id)
	}

	return nil
}
