package rank

import (
	"testing"

	"github.com/franz/shelf-curator/internal/store"
)

func TestRankLosslessBeatsLossy(t *testing.T) {
	mp3 := &store.File{ID: 1, Lossless: false, SizeBytes: 100 * 1024 * 1024}
	flac := &store.File{ID: 2, Lossless: true, SizeBytes: 10 * 1024 * 1024}

	ranked := Rank([]*store.File{mp3, flac}, Policy{})

	if ranked[0].ID != 2 {
		t.Errorf("Lossless should rank first, got file %d", ranked[0].ID)
	}
}

func TestRankLargerBeatsSmaller(t *testing.T) {
	small := &store.File{ID: 1, Lossless: true, SizeBytes: 10}
	large := &store.File{ID: 2, Lossless: true, SizeBytes: 20}

	ranked := Rank([]*store.File{small, large}, Policy{})

	if ranked[0].ID != 2 {
		t.Errorf("Larger file should rank first, got file %d", ranked[0].ID)
	}
}

func TestRankPreferLossy(t *testing.T) {
	mp3 := &store.File{ID: 1, Lossless: false}
	flac := &store.File{ID: 2, Lossless: true}

	ranked := Rank([]*store.File{flac, mp3}, Policy{PreferLossy: true})

	if ranked[0].ID != 1 {
		t.Errorf("prefer_lossy should rank lossy first, got file %d", ranked[0].ID)
	}
}

func TestRankPreferSmallest(t *testing.T) {
	small := &store.File{ID: 1, SizeBytes: 10}
	large := &store.File{ID: 2, SizeBytes: 20}

	ranked := Rank([]*store.File{large, small}, Policy{PreferSmallest: true})

	if ranked[0].ID != 1 {
		t.Errorf("prefer_smallest should rank smaller first, got file %d", ranked[0].ID)
	}
}

func TestRankContainerPreference(t *testing.T) {
	m4a := &store.File{ID: 1, Container: "m4a", SizeBytes: 10}
	mp3 := &store.File{ID: 2, Container: "mp3", SizeBytes: 10}
	ogg := &store.File{ID: 3, Container: "ogg", SizeBytes: 10}

	policy := Policy{Containers: []string{"mp3", "m4a"}}
	ranked := Rank([]*store.File{ogg, m4a, mp3}, policy)

	if ranked[0].ID != 2 || ranked[1].ID != 1 || ranked[2].ID != 3 {
		t.Errorf("Expected order [2 1 3], got [%d %d %d]",
			ranked[0].ID, ranked[1].ID, ranked[2].ID)
	}
}

func TestRankPathThenIDTiebreak(t *testing.T) {
	a := &store.File{ID: 2, SrcPath: "/music/a.mp3"}
	b := &store.File{ID: 1, SrcPath: "/music/b.mp3"}

	ranked := Rank([]*store.File{b, a}, Policy{})
	if ranked[0].ID != 2 {
		t.Errorf("Lexicographically smaller path should rank first, got file %d", ranked[0].ID)
	}

	// Identical paths fall through to file id
	c := &store.File{ID: 5, SrcPath: "/same"}
	d := &store.File{ID: 4, SrcPath: "/same"}
	ranked = Rank([]*store.File{c, d}, Policy{})
	if ranked[0].ID != 4 {
		t.Errorf("Smaller id should break the final tie, got file %d", ranked[0].ID)
	}
}

func TestRankFullChain(t *testing.T) {
	// flac 40MB, flac 30MB, mp3 12MB, mp3 12MB (path tiebreak)
	files := []*store.File{
		{ID: 1, Lossless: false, SizeBytes: 12 * 1024 * 1024, Container: "mp3", SrcPath: "/b.mp3"},
		{ID: 2, Lossless: true, SizeBytes: 30 * 1024 * 1024, Container: "flac", SrcPath: "/c.flac"},
		{ID: 3, Lossless: false, SizeBytes: 12 * 1024 * 1024, Container: "mp3", SrcPath: "/a.mp3"},
		{ID: 4, Lossless: true, SizeBytes: 40 * 1024 * 1024, Container: "flac", SrcPath: "/d.flac"},
	}

	ranked := Rank(files, Policy{})

	expected := []int64{4, 2, 3, 1}
	for i, want := range expected {
		if ranked[i].ID != want {
			t.Errorf("Position %d: expected file %d, got %d", i, want, ranked[i].ID)
		}
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	files := []*store.File{
		{ID: 1, SizeBytes: 1},
		{ID: 2, SizeBytes: 2},
	}

	Rank(files, Policy{})

	if files[0].ID != 1 || files[1].ID != 2 {
		t.Error("Rank must not reorder its input slice")
	}
}
