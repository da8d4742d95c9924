package main

import (
	"context"
	"fmt"
	"time"

	"github.com/franz/shelf-curator/internal/cluster"
	"github.com/franz/shelf-curator/internal/rank"
	"github.com/franz/shelf-curator/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Detect duplicate groups and rank a canonical copy per group",
	Long: `Cluster files into duplicate groups and rank each group.

Files are linked by three signals: identical content hash, similar
acoustic fingerprint, and matching normalized artist/title with close
duration. Linked files form a group; each group gets a stable key and
a ranked member list whose head is the canonical copy.

Clusters are recomputed wholesale on every run. Files with none of the
three signals are excluded and reported.`,
	RunE: runCluster,
}

func init() {
	rootCmd.AddCommand(clusterCmd)

	clusterCmd.Flags().Float64("fp-threshold", 0, "Fingerprint similarity threshold (0 = default 0.90)")
	clusterCmd.Flags().Bool("prefer-lossy", false, "Rank lossy encodings above lossless")
	clusterCmd.Flags().Bool("prefer-smallest", false, "Rank smaller files above larger ones")

	viper.BindPFlag("cluster.fp_threshold", clusterCmd.Flags().Lookup("fp-threshold"))
	viper.BindPFlag("rank.prefer_lossy", clusterCmd.Flags().Lookup("prefer-lossy"))
	viper.BindPFlag("rank.prefer_smallest", clusterCmd.Flags().Lookup("prefer-smallest"))
}

func runCluster(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	applyLogFlags()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger()
	defer logger.Close()

	policy := cluster.DefaultPolicy()
	if t := viper.GetFloat64("cluster.fp_threshold"); t > 0 {
		if t > 1 {
			return fmt.Errorf("fingerprint threshold must be in (0, 1], got %v", t)
		}
		policy.FingerprintThreshold = t
	}

	rankPolicy := rank.Policy{
		PreferLossy:    viper.GetBool("rank.prefer_lossy"),
		PreferSmallest: viper.GetBool("rank.prefer_smallest"),
		Containers:     viper.GetStringSlice("rank.containers"),
	}

	clusterer := cluster.New(&cluster.Config{
		Store:      db,
		Logger:     logger,
		Policy:     policy,
		RankPolicy: rankPolicy,
	})

	startTime := time.Now()

	result, err := clusterer.Run(ctx)
	if err != nil {
		return fmt.Errorf("clustering failed: %w", err)
	}

	util.SuccessLog("Clustering complete in %v", time.Since(startTime).Round(time.Millisecond))
	util.InfoLog("  Files considered: %d", result.FilesConsidered)
	util.InfoLog("  Duplicate groups: %d", result.DuplicateGroups)
	util.InfoLog("  Files grouped: %d", result.FilesGrouped)
	util.InfoLog("  Skipped (no signals): %d", result.SkippedNoSignals)
	if len(result.Errors) > 0 {
		util.WarnLog("  Errors: %d", len(result.Errors))
	}

	if result.DuplicateGroups > 0 {
		util.InfoLog("")
		util.InfoLog("Next step:")
		util.InfoLog("  shc plan --db %s --preview", viper.GetString("db"))
	}

	return nil
}
