package plan

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/franz/shelf-curator/internal/store"
)

// Options are the operator decisions feeding a planning pass
type Options struct {
	// ArchiveDuplicates emits Archive actions for non-canonical cluster
	// members instead of leaving them in place.
	ArchiveDuplicates bool
	ArchiveRoot       string
	QuarantineRoot    string
	// PermanentDelete enables PermanentDelete actions for files already
	// in quarantine. Never inferred; set only by an explicit run flag.
	PermanentDelete bool
}

// Inconsistency reports contradictory snapshot data for one file.
// Planning for other files continues.
type Inconsistency struct {
	FileID int64
	Reason string
}

// Result is the outcome of one planning pass
type Result struct {
	Actions         []*store.Action
	Inconsistencies []Inconsistency
}

// Build computes the ordered action list from a snapshot. Pure
// function, no I/O: value-equal snapshots and options yield identical
// lists in both content and order.
//
// Ordering contract: actions sort by kind priority (PermanentDelete
// last) and then by target file id ascending.
func Build(snap *store.Snapshot, opts Options) *Result {
	result := &Result{}

	for i := range snap.Files {
		f := &snap.Files[i]

		switch f.State {
		case store.StateDeleted:
			if f.MarkDelete {
				result.Inconsistencies = append(result.Inconsistencies, Inconsistency{
					FileID: f.ID,
					Reason: "mark_delete set on a deleted file",
				})
			}
			continue
		case store.StateApplied:
			if f.MarkDelete {
				result.Inconsistencies = append(result.Inconsistencies, Inconsistency{
					FileID: f.ID,
					Reason: "mark_delete set on an applied file; unmark first",
				})
			}
			continue
		case store.StateQuarantined:
			// Quarantined files yield work only under the explicit
			// permanent-delete run flag.
			if opts.PermanentDelete {
				src := f.QuarantinedPath
				if src == "" {
					result.Inconsistencies = append(result.Inconsistencies, Inconsistency{
						FileID: f.ID,
						Reason: "quarantined file has no quarantined_path",
					})
					continue
				}
				result.Actions = append(result.Actions, &store.Action{
					FileID:  f.ID,
					Kind:    store.ActionPermanentDelete,
					SrcPath: src,
					Reason:  "confirmed permanent delete of quarantined file",
				})
			}
			continue
		case store.StateDiscovered:
			// Not yet analyzed; nothing can be planned
			continue
		}

		// Remaining states: analyzed, clustered, planned

		if f.MarkDelete {
			// Quarantine by default. PermanentDelete is never emitted
			// from the mark alone; it requires quarantined state plus
			// the run flag, handled above.
			result.Actions = append(result.Actions, &store.Action{
				FileID:   f.ID,
				Kind:     store.ActionQuarantine,
				SrcPath:  f.SrcPath,
				DestPath: MirrorPath(opts.QuarantineRoot, f.SrcPath),
				Reason:   "marked for delete; quarantined for recovery",
			})
			continue
		}

		if opts.ArchiveDuplicates && f.ClusterKey != "" && !snap.Preferred[f.ID] {
			result.Actions = append(result.Actions, &store.Action{
				FileID:   f.ID,
				Kind:     store.ActionArchive,
				SrcPath:  f.SrcPath,
				DestPath: MirrorPath(opts.ArchiveRoot, f.SrcPath),
				Reason:   fmt.Sprintf("duplicate of cluster %s canonical", f.ClusterKey),
			})
			continue
		}

		if f.RecommendedPath != "" && f.RecommendedPath != f.SrcPath {
			result.Actions = append(result.Actions, &store.Action{
				FileID:   f.ID,
				Kind:     store.ActionMove,
				SrcPath:  f.SrcPath,
				DestPath: f.RecommendedPath,
				Reason:   "relocate to recommended path",
			})
		}
	}

	sort.SliceStable(result.Actions, func(i, j int) bool {
		a, b := result.Actions[i], result.Actions[j]
		if pa, pb := store.KindPriority(a.Kind), store.KindPriority(b.Kind); pa != pb {
			return pa < pb
		}
		return a.FileID < b.FileID
	})

	return result
}

// MirrorPath places a source path under a root, mirroring the absolute
// source layout so restores are unambiguous.
func MirrorPath(root, srcPath string) string {
	trimmed := strings.TrimPrefix(srcPath, string(filepath.Separator))
	return filepath.Join(root, trimmed)
}
