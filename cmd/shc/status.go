package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/franz/shelf-curator/internal/store"
	"github.com/franz/shelf-curator/internal/util"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lifecycle states, clusters, and pending work",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Bool("clusters", false, "List duplicate clusters with their canonical pick")
}

func runStatus(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	showClusters, _ := cmd.Flags().GetBool("clusters")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	stateCounts, err := db.CountFilesByState()
	if err != nil {
		return fmt.Errorf("failed to count files: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"State", "Files"})

	total := 0
	for _, state := range []store.State{
		store.StateDiscovered, store.StateAnalyzed, store.StateClustered,
		store.StatePlanned, store.StateApplied, store.StateQuarantined,
		store.StateDeleted,
	} {
		if n := stateCounts[state]; n > 0 {
			t.AppendRow(table.Row{state, n})
			total += n
		}
	}
	t.AppendFooter(table.Row{"total", total})
	t.Render()

	clusterCount, err := db.CountClusters()
	if err != nil {
		return fmt.Errorf("failed to count clusters: %w", err)
	}
	util.InfoLog("Duplicate clusters: %d", clusterCount)

	pending, err := db.CountPendingByKind()
	if err != nil {
		return fmt.Errorf("failed to count pending actions: %w", err)
	}
	if len(pending) > 0 {
		util.InfoLog("Pending actions:")
		for _, kind := range []store.ActionKind{store.ActionMove, store.ActionArchive, store.ActionQuarantine, store.ActionPermanentDelete} {
			if pending[kind] > 0 {
				util.InfoLog("  %s: %d", kind, pending[kind])
			}
		}
	} else {
		util.InfoLog("No pending actions")
	}

	if showClusters {
		if err := printClusters(db); err != nil {
			return err
		}
	}

	return nil
}

// printClusters lists each duplicate cluster with its ranked members
func printClusters(db *store.Store) error {
	clusters, err := db.GetAllClusters()
	if err != nil {
		return fmt.Errorf("failed to load clusters: %w", err)
	}
	if len(clusters) == 0 {
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Cluster", "Conf", "Hint", "Rank", "File", "Size", "Path"})

	for _, c := range clusters {
		members, err := db.GetClusterMembers(c.ClusterKey)
		if err != nil {
			return fmt.Errorf("failed to load cluster members: %w", err)
		}

		for _, m := range members {
			f, err := db.GetFileByID(m.FileID)
			if err != nil || f == nil {
				continue
			}

			marker := ""
			if m.Preferred {
				marker = "*"
			}
			t.AppendRow(table.Row{
				shortKey(c.ClusterKey), fmt.Sprintf("%.2f", c.Confidence), c.Hint,
				fmt.Sprintf("%d%s", m.Rank, marker), f.ID,
				humanize.Bytes(uint64(f.SizeBytes)), f.SrcPath,
			})
		}
		t.AppendSeparator()
	}
	t.Render()

	util.InfoLog("* marks the canonical copy of each cluster")
	return nil
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
