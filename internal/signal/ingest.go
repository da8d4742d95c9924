package signal

import (
	"context"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/franz/shelf-curator/internal/report"
	"github.com/franz/shelf-curator/internal/store"
	"github.com/franz/shelf-curator/internal/util"
)

// Ingestor writes collaborator-supplied records into the store and
// advances files with usable signals to analyzed.
type Ingestor struct {
	store    *store.Store
	logger   *report.EventLogger
	readTags bool
	progress bool
}

// Config holds ingestor configuration
type Config struct {
	Store  *store.Store
	Logger *report.EventLogger
	// ReadTags enriches records missing signals by reading the files
	// themselves. Off by default; ingestion normally trusts the
	// manifest.
	ReadTags bool
	// Progress renders a progress bar on stderr
	Progress bool
}

// New creates a new Ingestor
func New(cfg *Config) *Ingestor {
	return &Ingestor{
		store:    cfg.Store,
		logger:   cfg.Logger,
		readTags: cfg.ReadTags,
		progress: cfg.Progress,
	}
}

// Result summarizes an ingestion pass
type Result struct {
	Ingested int
	Rejected int
	Errors   []error
}

// Run ingests a batch of records. Each record is validated and written
// independently: one bad record never fails the batch. Re-ingesting a
// known path refreshes its signals without touching id or state.
func (i *Ingestor) Run(ctx context.Context, records []*Record) (*Result, error) {
	util.InfoLog("Ingesting %d records", len(records))

	result := &Result{}

	var bar *progressbar.ProgressBar
	if i.progress {
		bar = progressbar.NewOptions(len(records),
			progressbar.OptionSetDescription("Ingesting"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("records"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if bar != nil {
			bar.Add(1)
		}

		if i.readTags {
			if err := EnrichFromFile(rec); err != nil {
				util.WarnLog("Failed to enrich %s: %v", rec.Path, err)
			}
		}

		if err := rec.Validate(); err != nil {
			util.WarnLog("Rejected record: %v", err)
			result.Rejected++
			result.Errors = append(result.Errors, err)
			if i.logger != nil {
				i.logger.LogIngest(0, rec.Path, err)
			}
			continue
		}

		rec.EnsureID()

		file := i.toFile(rec)
		if err := i.store.InsertFile(file); err != nil {
			result.Errors = append(result.Errors, err)
			util.ErrorLog("Failed to store %s: %v", rec.Path, err)
			continue
		}

		// A freshly inserted file starts discovered; with its content
		// hash in hand it is immediately analyzable.
		if file.State == store.StateDiscovered {
			if err := i.store.ApplyTransition(file.ID, store.StateDiscovered, store.StateAnalyzed); err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
		}

		result.Ingested++
		if i.logger != nil {
			i.logger.LogIngest(file.ID, rec.Path, nil)
		}
	}

	if bar != nil {
		bar.Finish()
	}

	util.SuccessLog("Ingestion complete: %d ingested, %d rejected", result.Ingested, result.Rejected)
	return result, nil
}

// toFile maps a record to its store row, computing the normalized
// metadata forms used by the clustering signals.
func (i *Ingestor) toFile(rec *Record) *store.File {
	f := &store.File{
		FileKey:     rec.ID,
		SrcPath:     rec.Path,
		SizeBytes:   rec.SizeBytes,
		SHA256:      rec.SHA256,
		Fingerprint: rec.Fingerprint,
		Container:   rec.EffectiveContainer(),
		Codec:       rec.Codec,
		Lossless:    rec.Lossless,
		DurationMs:  rec.DurationMs,
		Artist:      rec.Artist,
		Title:       rec.Title,
		Album:       rec.Album,
		ArtistNorm:  NormalizeArtist(rec.Artist),
		TitleNorm:   NormalizeTitle(rec.Title),
		State:       store.StateDiscovered,
	}

	// Re-ingest of a known path keeps the stored state
	if existing, err := i.store.GetFileByPath(rec.Path); err == nil && existing != nil {
		f.State = existing.State
	}

	return f
}
