package rank

import (
	"sort"

	"github.com/franz/shelf-curator/internal/store"
)

// Policy controls the comparator chain. The zero value is the default
// policy: lossless beats lossy, larger beats smaller, no container
// preference.
type Policy struct {
	PreferLossy    bool
	PreferSmallest bool
	// Containers is the operator's preference order; containers not in
	// the list rank after all listed ones, in their original relative
	// order.
	Containers []string
}

// Rank orders a cluster's members deterministically and returns a new
// slice; the head is the canonical candidate. The chain is total: ties
// fall through to the file id so output never depends on input order
// beyond the id ordering itself.
func Rank(members []*store.File, policy Policy) []*store.File {
	ranked := make([]*store.File, len(members))
	copy(ranked, members)

	sort.SliceStable(ranked, func(i, j int) bool {
		return Less(ranked[i], ranked[j], policy)
	})

	return ranked
}

// Less is the comparator chain: codec class, byte size, container
// preference, source path, file id. First difference wins.
func Less(a, b *store.File, policy Policy) bool {
	// 1. Lossless beats lossy (inverted under prefer_lossy)
	if a.Lossless != b.Lossless {
		if policy.PreferLossy {
			return !a.Lossless
		}
		return a.Lossless
	}

	// 2. Larger byte size, richer audio (inverted under prefer_smallest)
	if a.SizeBytes != b.SizeBytes {
		if policy.PreferSmallest {
			return a.SizeBytes < b.SizeBytes
		}
		return a.SizeBytes > b.SizeBytes
	}

	// 3. Operator container preference; unlisted containers rank last
	ra, rb := containerRank(a.Container, policy.Containers), containerRank(b.Container, policy.Containers)
	if ra != rb {
		return ra < rb
	}

	// 4. Lexicographically smaller source path
	if a.SrcPath != b.SrcPath {
		return a.SrcPath < b.SrcPath
	}

	// 5. File id, the final tiebreaker
	return a.ID < b.ID
}

func containerRank(container string, preferred []string) int {
	for i, c := range preferred {
		if c == container {
			return i
		}
	}
	return len(preferred)
}
