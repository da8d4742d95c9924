package main

import (
	"context"
	"fmt"
	"time"

	"github.com/franz/shelf-curator/internal/signal"
	"github.com/franz/shelf-curator/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <manifest.ndjson>",
	Short: "Ingest file signals from an NDJSON manifest",
	Long: `Ingest file records produced by an external collector.

The manifest carries one JSON record per line with the file's path and
signals: content hash, fingerprint, container, duration, and tags.
Records without a content hash are rejected individually; the rest of
the batch still lands. Re-ingesting a known path refreshes its signals
without resetting its lifecycle state.

Use --read-tags to let shc fill missing signals by reading the files
directly (hashing and tag extraction).`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().Bool("read-tags", false, "Enrich records by reading files (hash, size, tags)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	applyLogFlags()

	manifestPath := args[0]
	readTags, _ := cmd.Flags().GetBool("read-tags")

	records, err := signal.ReadManifest(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	if len(records) == 0 {
		util.WarnLog("Manifest %s contains no records", manifestPath)
		return nil
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger()
	defer logger.Close()

	ingestor := signal.New(&signal.Config{
		Store:    db,
		Logger:   logger,
		ReadTags: readTags,
		Progress: !viper.GetBool("quiet"),
	})

	startTime := time.Now()

	result, err := ingestor.Run(ctx, records)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	util.SuccessLog("Ingestion complete in %v", time.Since(startTime).Round(time.Millisecond))
	util.InfoLog("  Records ingested: %d", result.Ingested)
	util.InfoLog("  Records rejected: %d", result.Rejected)
	if len(result.Errors) > 0 {
		util.WarnLog("  Errors: %d", len(result.Errors))
	}

	if result.Ingested > 0 {
		util.InfoLog("")
		util.InfoLog("Next step:")
		util.InfoLog("  shc cluster --db %s", viper.GetString("db"))
	}

	return nil
}
