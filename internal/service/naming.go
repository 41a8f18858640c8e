package service

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"tunegrab/internal/core/domain"
)

const (
	maxNameRunes  = 100
	maxNameBytes  = 200
	fallbackName  = "audio"
	artifactExt   = ".mp3"
	unsafeInNames = `/\:*?"<>|`
)

// ArtifactName derives a safe file name for the delivered audio from
// untrusted metadata: "Artist - Title.mp3", or "Title.mp3" without an artist.
func ArtifactName(meta domain.Metadata) string {
	title := sanitize(meta.Title)
	artist := sanitize(meta.Artist)

	var base string
	switch {
	case title == "" && artist == "":
		base = fallbackName
	case artist == "" || strings.Contains(strings.ToLower(title), strings.ToLower(artist)):
		base = title
	case title == "":
		base = artist
	default:
		base = artist + " - " + title
	}
	base = truncateRunes(base, maxNameRunes)
	base = truncateBytes(base, maxNameBytes)
	base = strings.TrimRight(base, " .")
	if base == "" {
		base = fallbackName
	}
	return base + artifactExt
}

func sanitize(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var b strings.Builder
	space := false
	for _, r := range s {
		switch {
		case strings.ContainsRune(unsafeInNames, r):
			r = '_'
		case unicode.IsControl(r), unicode.IsSpace(r):
			r = ' '
		}
		if r == ' ' {
			if space {
				continue
			}
			space = true
		} else {
			space = false
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	return strings.TrimLeft(out, ".")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// truncateBytes cuts s to at most n bytes on a rune boundary.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
