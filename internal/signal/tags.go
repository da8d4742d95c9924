package signal

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"github.com/dhowden/tag"
)

// losslessContainers are containers treated as lossless when the
// collaborator did not supply a codec verdict.
var losslessContainers = map[string]bool{
	"flac": true,
	"wav":  true,
	"aiff": true,
	"alac": true,
	"ape":  true,
	"wv":   true,
}

// EnrichFromFile fills a record's missing signals by reading the file
// itself. Convenience glue for operators running without an ingestion
// collaborator; records that already carry a signal keep it.
func EnrichFromFile(rec *Record) error {
	info, err := os.Stat(rec.Path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", rec.Path, err)
	}

	if rec.SizeBytes == 0 {
		rec.SizeBytes = info.Size()
	}

	if rec.SHA256 == "" {
		sum, err := HashFile(rec.Path)
		if err != nil {
			return err
		}
		rec.SHA256 = sum
	}

	if rec.Container == "" {
		rec.Container = rec.EffectiveContainer()
	}

	if !rec.Lossless && losslessContainers[rec.EffectiveContainer()] {
		rec.Lossless = true
	}

	if rec.Artist == "" && rec.Title == "" {
		readTags(rec)
	}

	return nil
}

// readTags pulls artist/title/album from embedded tags. Tag read
// failures are not errors: the record simply keeps whatever metadata
// the manifest carried.
func readTags(rec *Record) {
	f, err := os.Open(rec.Path)
	if err != nil {
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return
	}

	rec.Artist = m.Artist()
	rec.Title = m.Title()
	rec.Album = m.Album()
}

// HashFile computes the SHA256 content hash of a file
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
