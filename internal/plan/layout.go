package plan

import (
	"path/filepath"
	"strings"

	"github.com/franz/shelf-curator/internal/store"
)

// RecommendedPath computes the destination a file should live at:
// {dest}/{Artist}/{Album}/{Title}.{ext}. Deterministic; empty tags fall
// back to "Unknown Artist", "_Singles", and the source basename.
func RecommendedPath(destRoot string, f *store.File) string {
	artist := SanitizePathComponent(f.Artist)
	if artist == "" {
		artist = "Unknown Artist"
	}

	album := SanitizePathComponent(f.Album)
	if album == "" {
		album = "_Singles"
	}

	title := SanitizePathComponent(f.Title)
	if title == "" {
		base := filepath.Base(f.SrcPath)
		title = SanitizePathComponent(strings.TrimSuffix(base, filepath.Ext(base)))
		if title == "" {
			title = "Unknown"
		}
	}

	ext := strings.ToLower(filepath.Ext(f.SrcPath))
	return filepath.Join(destRoot, artist, album, title+ext)
}

// SanitizePathComponent removes illegal filesystem characters from one
// path component.
func SanitizePathComponent(s string) string {
	if s == "" {
		return ""
	}

	illegal := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	for _, char := range illegal {
		s = strings.ReplaceAll(s, char, "_")
	}

	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}

	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".")
	s = strings.TrimRight(s, "_")

	// Filesystem component length limits
	if len(s) > 200 {
		s = s[:200]
		s = strings.TrimRight(s, " _.")
	}

	return s
}
