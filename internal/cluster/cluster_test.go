package cluster

import (
	"testing"

	"github.com/franz/shelf-curator/internal/store"
)

func testFile(id int64, sha, fp, artistNorm, titleNorm string, durationMs int) *store.File {
	return &store.File{
		ID:          id,
		SHA256:      sha,
		Fingerprint: fp,
		ArtistNorm:  artistNorm,
		TitleNorm:   titleNorm,
		DurationMs:  durationMs,
	}
}

func TestBuildHashGroups(t *testing.T) {
	files := []*store.File{
		testFile(1, "aaa", "", "", "", 0),
		testFile(2, "aaa", "", "", "", 0),
		testFile(3, "bbb", "", "", "", 0),
		testFile(4, "aaa", "", "", "", 0),
	}

	result := Build(files, DefaultPolicy())

	if len(result.Groups) != 1 {
		t.Fatalf("Expected 1 group, got %d", len(result.Groups))
	}

	group := result.Groups[0]
	if len(group.Members) != 3 {
		t.Errorf("Expected 3 members, got %d", len(group.Members))
	}
	for i, want := range []int64{1, 2, 4} {
		if group.Members[i] != want {
			t.Errorf("Member %d: expected file %d, got %d", i, want, group.Members[i])
		}
	}
	if group.Confidence != 1.0 {
		t.Errorf("Hash group confidence should be 1.0, got %v", group.Confidence)
	}
}

func TestBuildSingletonsDropped(t *testing.T) {
	files := []*store.File{
		testFile(1, "aaa", "", "", "", 0),
		testFile(2, "bbb", "", "", "", 0),
		testFile(3, "ccc", "", "", "", 0),
	}

	result := Build(files, DefaultPolicy())

	if len(result.Groups) != 0 {
		t.Errorf("Unique files should form no groups, got %d", len(result.Groups))
	}
}

func TestBuildSkipsFilesWithoutSignals(t *testing.T) {
	files := []*store.File{
		testFile(1, "aaa", "", "", "", 0),
		testFile(2, "aaa", "", "", "", 0),
		testFile(3, "", "", "", "", 0), // no usable signal
	}

	result := Build(files, DefaultPolicy())

	if len(result.SkippedNoSignals) != 1 || result.SkippedNoSignals[0] != 3 {
		t.Errorf("Expected file 3 skipped, got %v", result.SkippedNoSignals)
	}
	if len(result.Groups) != 1 {
		t.Fatalf("Expected 1 group, got %d", len(result.Groups))
	}
}

func TestBuildMetadataEdges(t *testing.T) {
	// Same normalized artist/title, durations within the same 3s bucket
	files := []*store.File{
		testFile(1, "aaa", "", "queen", "bohemian rhapsody", 354000),
		testFile(2, "bbb", "", "queen", "bohemian rhapsody", 355000),
		testFile(3, "ccc", "", "queen", "another one", 210000),
	}

	result := Build(files, DefaultPolicy())

	if len(result.Groups) != 1 {
		t.Fatalf("Expected 1 metadata group, got %d", len(result.Groups))
	}
	group := result.Groups[0]
	if len(group.Members) != 2 {
		t.Errorf("Expected 2 members, got %d", len(group.Members))
	}
	if group.Confidence != DefaultPolicy().MetadataWeight {
		t.Errorf("Metadata group confidence should be %v, got %v",
			DefaultPolicy().MetadataWeight, group.Confidence)
	}
}

func TestBuildTransitivity(t *testing.T) {
	// 1-2 share a hash, 2-3 share metadata: all three in one group
	files := []*store.File{
		testFile(1, "aaa", "", "", "", 0),
		testFile(2, "aaa", "", "artist", "title", 180000),
		testFile(3, "bbb", "", "artist", "title", 181000),
	}

	result := Build(files, DefaultPolicy())

	if len(result.Groups) != 1 {
		t.Fatalf("Expected transitive group, got %d groups", len(result.Groups))
	}
	if len(result.Groups[0].Members) != 3 {
		t.Errorf("Expected 3 members, got %d", len(result.Groups[0].Members))
	}
	// Mixed evidence: confidence is the strongest edge
	if result.Groups[0].Confidence != 1.0 {
		t.Errorf("Confidence should be max edge (1.0), got %v", result.Groups[0].Confidence)
	}
}

func TestBuildFingerprintEdges(t *testing.T) {
	// 18 of 20 bytes agree: similarity 0.9, at the threshold
	fpA := "AAAAAAAAAAAAAAAAAAXX"
	fpB := "AAAAAAAAAAAAAAAAAAYY"

	files := []*store.File{
		testFile(1, "aaa", fpA, "", "", 0),
		testFile(2, "bbb", fpB, "", "", 0),
	}

	result := Build(files, DefaultPolicy())

	if len(result.Groups) != 1 {
		t.Fatalf("Expected fingerprint group, got %d groups", len(result.Groups))
	}
	if result.Groups[0].Confidence != DefaultPolicy().FingerprintWeight {
		t.Errorf("Fingerprint confidence should be %v, got %v",
			DefaultPolicy().FingerprintWeight, result.Groups[0].Confidence)
	}
}

func TestBuildDeterministicAcrossInputOrder(t *testing.T) {
	forward := []*store.File{
		testFile(1, "aaa", "", "", "", 0),
		testFile(2, "aaa", "", "", "", 0),
		testFile(3, "bbb", "", "x", "y", 99000),
		testFile(4, "bbb", "", "", "", 0),
		testFile(5, "ccc", "", "x", "y", 100000),
	}
	reversed := make([]*store.File, len(forward))
	for i, f := range forward {
		reversed[len(forward)-1-i] = f
	}

	a := Build(forward, DefaultPolicy())
	b := Build(reversed, DefaultPolicy())

	if len(a.Groups) != len(b.Groups) {
		t.Fatalf("Group count differs by input order: %d vs %d", len(a.Groups), len(b.Groups))
	}
	for i := range a.Groups {
		if a.Groups[i].Key != b.Groups[i].Key {
			t.Errorf("Group %d key differs: %s vs %s", i, a.Groups[i].Key, b.Groups[i].Key)
		}
		if len(a.Groups[i].Members) != len(b.Groups[i].Members) {
			t.Errorf("Group %d member count differs", i)
			continue
		}
		for j := range a.Groups[i].Members {
			if a.Groups[i].Members[j] != b.Groups[i].Members[j] {
				t.Errorf("Group %d member %d differs: %d vs %d",
					i, j, a.Groups[i].Members[j], b.Groups[i].Members[j])
			}
		}
	}
}

func TestGroupKeyStable(t *testing.T) {
	key1 := GroupKey([]int64{3, 1, 2})
	key2 := GroupKey([]int64{1, 2, 3})

	if key1 != key2 {
		t.Errorf("Group key should not depend on member order: %s vs %s", key1, key2)
	}

	key3 := GroupKey([]int64{1, 2, 4})
	if key1 == key3 {
		t.Error("Different member sets should produce different keys")
	}
}

func TestFingerprintSimilarity(t *testing.T) {
	testCases := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"identical", "ABCD", "ABCD", 1.0},
		{"disjoint", "AAAA", "BBBB", 0.0},
		{"half", "AABB", "AACC", 0.5},
		{"different lengths", "AAAA", "AAAAAAAA", 0.5},
		{"one empty", "", "AAAA", 0.0},
		{"both empty", "", "", 0.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := FingerprintSimilarity(tc.a, tc.b)
			if got != tc.expected {
				t.Errorf("FingerprintSimilarity(%q, %q) = %v, expected %v",
					tc.a, tc.b, got, tc.expected)
			}
		})
	}
}

func TestUnionFindSmallerRootWins(t *testing.T) {
	uf := newUnionFind()
	for _, id := range []int64{1, 2, 3, 4} {
		uf.add(id)
	}

	uf.union(4, 3)
	uf.union(3, 2)
	uf.union(2, 1)

	for _, id := range []int64{1, 2, 3, 4} {
		if root := uf.find(id); root != 1 {
			t.Errorf("find(%d) = %d, expected root 1", id, root)
		}
	}
}

func TestBucketDuration(t *testing.T) {
	// 3s buckets: values within the same bucket must agree
	if bucketDuration(354000) != bucketDuration(355000) {
		t.Error("354s and 355s should share a bucket")
	}
	if bucketDuration(100000) == bucketDuration(110000) {
		t.Error("100s and 110s should not share a bucket")
	}
}
