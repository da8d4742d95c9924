package signal

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeArtist normalizes an artist name for comparison.
// NFC, lowercase, "Artist, The" rotation, punctuation strip, whitespace
// collapse. Normalized forms are stored at ingest so clustering never
// re-derives them.
func NormalizeArtist(artist string) string {
	if artist == "" {
		return ""
	}

	artist = norm.NFC.String(artist)
	artist = strings.ToLower(artist)
	artist = strings.TrimSpace(artist)

	// "artist, the" -> "the artist"
	if strings.HasSuffix(artist, ", the") {
		artist = "the " + strings.TrimSuffix(artist, ", the")
	}

	artist = removePunctuation(artist)
	return collapseWhitespace(artist)
}

// NormalizeTitle normalizes a title for comparison
func NormalizeTitle(title string) string {
	if title == "" {
		return ""
	}

	title = norm.NFC.String(title)
	title = strings.ToLower(title)
	title = strings.TrimSpace(title)

	// Drop bracketed qualifiers: "Song (2011 Remaster)" -> "song"
	if i := strings.IndexAny(title, "(["); i > 0 {
		title = strings.TrimSpace(title[:i])
	}

	title = removePunctuation(title)
	return collapseWhitespace(title)
}

func removePunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '&' || r == '+':
			b.WriteString(" and ")
		default:
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
