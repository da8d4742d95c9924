package cluster

import (
	"crypto/sha1"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/franz/shelf-curator/internal/store"
)

// SignalType identifies which signal produced an edge
type SignalType string

const (
	SignalHash        SignalType = "hash"
	SignalFingerprint SignalType = "fingerprint"
	SignalMetadata    SignalType = "metadata"
)

// Policy holds the tunable clustering parameters. The determinism law
// only requires stability given a fixed policy, not specific values.
type Policy struct {
	FingerprintThreshold float64 // similarity above which an edge is drawn
	FingerprintWeight    float64 // confidence of a fingerprint edge
	MetadataWeight       float64 // confidence of a metadata edge
}

// DefaultPolicy returns the documented default weights
func DefaultPolicy() Policy {
	return Policy{
		FingerprintThreshold: 0.90,
		FingerprintWeight:    0.8,
		MetadataWeight:       0.4,
	}
}

// Edge is one piece of pairwise duplicate evidence. Undirected;
// FileA < FileB by construction.
type Edge struct {
	FileA      int64
	FileB      int64
	Signal     SignalType
	Confidence float64
}

// Group is one duplicate cluster: a maximal connected component of
// size >= 2. Key is content-derived from the sorted member ids, so
// identical data reproduces identical keys across runs.
type Group struct {
	Key        string
	Members    []int64
	Edges      []Edge
	Confidence float64
}

// Result is the outcome of one clustering pass
type Result struct {
	Groups []Group
	// SkippedNoSignals lists files excluded entirely because they carry
	// no usable signal. Reported, never fatal.
	SkippedNoSignals []int64
}

// Build groups files into duplicate clusters. Pure and deterministic:
// input is re-sorted by file id, edges are drawn from signal
// comparisons, and connected components are computed with union-find.
// Cluster confidence is the maximum edge confidence observed, never an
// average. Components of size 1 are not emitted.
func Build(files []*store.File, policy Policy) *Result {
	sorted := make([]*store.File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	result := &Result{}

	var candidates []*store.File
	for _, f := range sorted {
		if f.SHA256 == "" && f.Fingerprint == "" && metadataKey(f) == "" {
			result.SkippedNoSignals = append(result.SkippedNoSignals, f.ID)
			continue
		}
		candidates = append(candidates, f)
	}

	edges := buildEdges(candidates, policy)

	uf := newUnionFind()
	for _, f := range candidates {
		uf.add(f.ID)
	}
	for _, e := range edges {
		uf.union(e.FileA, e.FileB)
	}

	// Group members by component root
	components := make(map[int64][]int64)
	for _, f := range candidates {
		root := uf.find(f.ID)
		components[root] = append(components[root], f.ID)
	}

	roots := make([]int64, 0, len(components))
	for root := range components {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	for _, root := range roots {
		members := components[root]
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

		group := Group{
			Key:     GroupKey(members),
			Members: members,
		}

		for _, e := range edges {
			if uf.find(e.FileA) == root {
				group.Edges = append(group.Edges, e)
				if e.Confidence > group.Confidence {
					group.Confidence = e.Confidence
				}
			}
		}

		result.Groups = append(result.Groups, group)
	}

	return result
}

// buildEdges draws undirected evidence edges between candidate files.
// Hash and metadata equality groups are chained over consecutive ids,
// which yields the same connected components as the full pairwise set.
func buildEdges(files []*store.File, policy Policy) []Edge {
	var edges []Edge

	// Guaranteed edges: exact content-hash equality
	byHash := make(map[string][]int64)
	for _, f := range files {
		if f.SHA256 != "" {
			byHash[f.SHA256] = append(byHash[f.SHA256], f.ID)
		}
	}
	edges = append(edges, chainEdges(byHash, SignalHash, 1.0)...)

	// Weak edges: normalized metadata equality
	byMeta := make(map[string][]int64)
	for _, f := range files {
		if key := metadataKey(f); key != "" {
			byMeta[key] = append(byMeta[key], f.ID)
		}
	}
	edges = append(edges, chainEdges(byMeta, SignalMetadata, policy.MetadataWeight)...)

	// Probable edges: fingerprint similarity above threshold
	var withFp []*store.File
	for _, f := range files {
		if f.Fingerprint != "" {
			withFp = append(withFp, f)
		}
	}
	for i := 0; i < len(withFp); i++ {
		for j := i + 1; j < len(withFp); j++ {
			sim := FingerprintSimilarity(withFp[i].Fingerprint, withFp[j].Fingerprint)
			if sim >= policy.FingerprintThreshold {
				edges = append(edges, Edge{
					FileA:      withFp[i].ID,
					FileB:      withFp[j].ID,
					Signal:     SignalFingerprint,
					Confidence: policy.FingerprintWeight,
				})
			}
		}
	}

	return edges
}

// chainEdges connects each equality group over consecutive sorted ids
func chainEdges(groups map[string][]int64, signal SignalType, confidence float64) []Edge {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var edges []Edge
	for _, k := range keys {
		ids := groups[k]
		if len(ids) < 2 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for i := 1; i < len(ids); i++ {
			edges = append(edges, Edge{
				FileA:      ids[i-1],
				FileB:      ids[i],
				Signal:     signal,
				Confidence: confidence,
			})
		}
	}

	return edges
}

// metadataKey builds the weak-edge equality key:
// artist_norm|title_norm|duration bucket. Files missing any component
// are simply excluded from this edge type.
func metadataKey(f *store.File) string {
	if f.ArtistNorm == "" || f.TitleNorm == "" || f.DurationMs <= 0 {
		return ""
	}
	return fmt.Sprintf("%s|%s|%d", f.ArtistNorm, f.TitleNorm, bucketDuration(f.DurationMs))
}

// bucketDuration rounds duration to the nearest 3-second bucket so
// durations within ~1.5s land together.
func bucketDuration(durationMs int) int {
	if durationMs <= 0 {
		return 0
	}
	durationSec := float64(durationMs) / 1000.0
	return int(math.Round(durationSec/3.0) * 3.0)
}

// FingerprintSimilarity compares two opaque fingerprint strings as the
// byte-agreement ratio at equal offsets over the longer string. Crude
// but deterministic; the threshold is policy, not physics.
func FingerprintSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}

	shorter := len(a)
	if len(b) < shorter {
		shorter = len(b)
	}

	matches := 0
	for i := 0; i < shorter; i++ {
		if a[i] == b[i] {
			matches++
		}
	}

	return float64(matches) / float64(longer)
}

// GroupKey derives a stable cluster key from sorted member ids
func GroupKey(members []int64) string {
	parts := make([]string, len(members))
	for i, id := range members {
		parts[i] = fmt.Sprintf("%d", id)
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ",")))
	return fmt.Sprintf("%x", sum)
}
