package plan

import (
	"context"
	"fmt"

	"github.com/franz/shelf-curator/internal/report"
	"github.com/franz/shelf-curator/internal/store"
	"github.com/franz/shelf-curator/internal/util"
)

// Planner runs a planning pass against the store: compute destination
// recommendations, build the action list from a fresh snapshot, and
// persist it. Preview mode builds without persisting anything.
type Planner struct {
	store  *store.Store
	logger *report.EventLogger
}

// Config holds planner configuration
type Config struct {
	Store  *store.Store
	Logger *report.EventLogger
}

// New creates a new Planner
func New(cfg *Config) *Planner {
	return &Planner{
		store:  cfg.Store,
		logger: cfg.Logger,
	}
}

// RunResult summarizes a planning pass
type RunResult struct {
	Actions         []*store.Action
	Inconsistencies []Inconsistency
	Recommended     int
}

// Preview computes the action list without mutating anything: no
// recommendations are written, no actions persisted, no transitions.
func (p *Planner) Preview(ctx context.Context, destRoot string, opts Options) (*RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := p.store.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot store: %w", err)
	}

	// Fold would-be recommendations into the snapshot copy so the
	// preview matches what Plan would persist.
	recommended := 0
	if destRoot != "" {
		for i := range snap.Files {
			f := &snap.Files[i]
			if rec, ok := p.recommendationFor(snap, f, destRoot); ok {
				f.RecommendedPath = rec
				recommended++
			}
		}
	}

	result := Build(snap, opts)
	return &RunResult{
		Actions:         result.Actions,
		Inconsistencies: result.Inconsistencies,
		Recommended:     recommended,
	}, nil
}

// Plan computes and persists the action list. Existing pending actions
// are replaced; actions that already left pending are immutable audit
// records and stay.
func (p *Planner) Plan(ctx context.Context, destRoot string, opts Options) (*RunResult, error) {
	util.InfoLog("Starting planning")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := p.store.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot store: %w", err)
	}

	// Phase 1: persist destination recommendations (planning owns
	// recommended_path)
	recommended := 0
	if destRoot != "" {
		for i := range snap.Files {
			f := &snap.Files[i]
			rec, ok := p.recommendationFor(snap, f, destRoot)
			if !ok || rec == f.RecommendedPath {
				continue
			}
			if err := p.store.SetRecommendedPath(f.ID, rec); err != nil {
				return nil, fmt.Errorf("failed to set recommendation for file %d: %w", f.ID, err)
			}
			recommended++
		}

		// Re-snapshot so the build sees what was persisted
		snap, err = p.store.GetSnapshot()
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot store: %w", err)
		}
	}

	// Phase 2: pure build over the snapshot
	result := Build(snap, opts)

	for _, inc := range result.Inconsistencies {
		util.WarnLog("Planning inconsistency for file %d: %s", inc.FileID, inc.Reason)
	}

	// Phase 3: persist the plan
	if err := p.store.ReplacePendingActions(result.Actions); err != nil {
		return nil, fmt.Errorf("failed to persist actions: %w", err)
	}

	for _, a := range result.Actions {
		if p.logger != nil {
			p.logger.LogPlan(a.FileID, a.SrcPath, a.DestPath, string(a.Kind), a.Reason)
		}

		f := snap.FileByID(a.FileID)
		if f == nil {
			continue
		}
		switch f.State {
		case store.StateAnalyzed, store.StateClustered:
			if err := p.store.ApplyTransition(f.ID, f.State, store.StatePlanned); err != nil {
				util.ErrorLog("Failed to transition file %d to planned: %v", f.ID, err)
			}
		}
	}

	util.SuccessLog("Planning complete: %d actions, %d inconsistencies",
		len(result.Actions), len(result.Inconsistencies))

	return &RunResult{
		Actions:         result.Actions,
		Inconsistencies: result.Inconsistencies,
		Recommended:     recommended,
	}, nil
}

// recommendationFor decides whether a file should get a destination
// recommendation: canonical cluster members and unique files, never
// duplicates or delete-marked files.
func (p *Planner) recommendationFor(snap *store.Snapshot, f *store.File, destRoot string) (string, bool) {
	switch f.State {
	case store.StateAnalyzed, store.StateClustered, store.StatePlanned:
	default:
		return "", false
	}

	if f.MarkDelete {
		return "", false
	}
	if f.ClusterKey != "" && !snap.Preferred[f.ID] {
		return "", false
	}

	return RecommendedPath(destRoot, f), true
}
