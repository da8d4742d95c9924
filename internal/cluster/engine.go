package cluster

import (
	"context"
	"fmt"

	"github.com/franz/shelf-curator/internal/rank"
	"github.com/franz/shelf-curator/internal/report"
	"github.com/franz/shelf-curator/internal/store"
	"github.com/franz/shelf-curator/internal/util"
)

// Clusterer runs a full clustering pass against the store: load,
// build groups, rank canonicals, write everything back wholesale.
type Clusterer struct {
	store      *store.Store
	logger     *report.EventLogger
	policy     Policy
	rankPolicy rank.Policy
}

// Config holds clusterer configuration
type Config struct {
	Store      *store.Store
	Logger     *report.EventLogger
	Policy     Policy
	RankPolicy rank.Policy
}

// New creates a new Clusterer
func New(cfg *Config) *Clusterer {
	policy := cfg.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}

	return &Clusterer{
		store:      cfg.Store,
		logger:     cfg.Logger,
		policy:     policy,
		rankPolicy: cfg.RankPolicy,
	}
}

// RunResult summarizes a clustering pass
type RunResult struct {
	FilesConsidered  int
	DuplicateGroups  int
	FilesGrouped     int
	SkippedNoSignals int
	Errors           []error
}

// Run performs duplicate detection clustering and canonical ranking.
// Clusters are recomputed wholesale, never incrementally patched:
// previous cluster keys may change across runs when membership or
// signals change, which is expected behavior.
func (c *Clusterer) Run(ctx context.Context) (*RunResult, error) {
	util.InfoLog("Starting clustering")

	analyzed, err := c.store.GetFilesByState(store.StateAnalyzed)
	if err != nil {
		return nil, fmt.Errorf("failed to load analyzed files: %w", err)
	}
	clustered, err := c.store.GetFilesByState(store.StateClustered)
	if err != nil {
		return nil, fmt.Errorf("failed to load clustered files: %w", err)
	}

	files := append(analyzed, clustered...)
	if len(files) == 0 {
		util.InfoLog("No files to cluster")
		return &RunResult{}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	util.InfoLog("Clustering %d files", len(files))

	result := Build(files, c.policy)

	runResult := &RunResult{
		FilesConsidered:  len(files),
		DuplicateGroups:  len(result.Groups),
		SkippedNoSignals: len(result.SkippedNoSignals),
	}

	for _, id := range result.SkippedNoSignals {
		util.WarnLog("File %d has no usable signals, excluded from clustering", id)
	}

	filesByID := make(map[int64]*store.File, len(files))
	for _, f := range files {
		filesByID[f.ID] = f
	}

	var clusters []*store.Cluster
	var members []*store.ClusterMember
	var edges []*store.ClusterEdge

	for _, group := range result.Groups {
		groupFiles := make([]*store.File, 0, len(group.Members))
		for _, id := range group.Members {
			if f, ok := filesByID[id]; ok {
				groupFiles = append(groupFiles, f)
			}
		}
		if len(groupFiles) < 2 {
			continue
		}

		ranked := rank.Rank(groupFiles, c.rankPolicy)

		hint := ""
		if head := ranked[0]; head.Artist != "" || head.Title != "" {
			hint = fmt.Sprintf("%s - %s", head.Artist, head.Title)
		}

		clusters = append(clusters, &store.Cluster{
			ClusterKey:  group.Key,
			Confidence:  group.Confidence,
			MemberCount: len(groupFiles),
			Hint:        hint,
		})

		for i, f := range ranked {
			members = append(members, &store.ClusterMember{
				ClusterKey: group.Key,
				FileID:     f.ID,
				Rank:       i,
				Preferred:  i == 0,
			})
			runResult.FilesGrouped++

			if c.logger != nil {
				c.logger.LogCluster(f.ID, f.SrcPath, group.Key, len(groupFiles))
				c.logger.LogRank(f.ID, f.SrcPath, group.Key, i == 0)
			}
		}

		for _, e := range group.Edges {
			edges = append(edges, &store.ClusterEdge{
				ClusterKey: group.Key,
				FileA:      e.FileA,
				FileB:      e.FileB,
				Signal:     string(e.Signal),
				Confidence: e.Confidence,
			})
		}
	}

	if err := c.store.ReplaceClusters(clusters, members, edges); err != nil {
		return nil, fmt.Errorf("failed to write clusters: %w", err)
	}

	// Move newly grouped analyzed files forward
	for _, m := range members {
		f := filesByID[m.FileID]
		if f == nil || f.State != store.StateAnalyzed {
			continue
		}
		if err := c.store.ApplyTransition(m.FileID, store.StateAnalyzed, store.StateClustered); err != nil {
			util.ErrorLog("Failed to transition file %d: %v", m.FileID, err)
			runResult.Errors = append(runResult.Errors, err)
		}
	}

	util.SuccessLog("Clustering complete: %d duplicate groups, %d files grouped, %d skipped",
		runResult.DuplicateGroups, runResult.FilesGrouped, runResult.SkippedNoSignals)

	return runResult, nil
}
