package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunegrab/internal/core/domain"
)

func TestArtifactName(t *testing.T) {
	tests := []struct {
		name string
		meta domain.Metadata
		want string
	}{
		{"title and artist", domain.Metadata{Title: "Afternoon Tea", Artist: "Band"}, "Band - Afternoon Tea.mp3"},
		{"title only", domain.Metadata{Title: "Afternoon Tea"}, "Afternoon Tea.mp3"},
		{"artist already in title", domain.Metadata{Title: "Band - Afternoon Tea", Artist: "band"}, "Band - Afternoon Tea.mp3"},
		{"artist only", domain.Metadata{Artist: "Band"}, "Band.mp3"},
		{"empty", domain.Metadata{}, "audio.mp3"},
		{"only unsafe dots", domain.Metadata{Title: "..."}, "audio.mp3"},
		{"path traversal", domain.Metadata{Title: "../../etc/passwd"}, "_.._etc_passwd.mp3"},
		{"windows separators", domain.Metadata{Title: `a\b:c*d?e"f<g>h|i`}, "a_b_c_d_e_f_g_h_i.mp3"},
		{"whitespace collapsed", domain.Metadata{Title: "  lots \t of\n space  "}, "lots of space.mp3"},
		{"control chars", domain.Metadata{Title: "bell\x07ring"}, "bell ring.mp3"},
		{"trailing dot", domain.Metadata{Title: "Song."}, "Song.mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ArtifactName(tt.meta))
		})
	}
}

func TestArtifactName_CapsLength(t *testing.T) {
	name := ArtifactName(domain.Metadata{Title: strings.Repeat("ä", 300)})
	assert.Equal(t, maxNameRunes+len(artifactExt), utf8.RuneCountInString(name))
	assert.True(t, strings.HasSuffix(name, ".mp3"))

	cjk := ArtifactName(domain.Metadata{Title: strings.Repeat("日本語の歌", 20), Artist: "アーティスト"})
	assert.LessOrEqual(t, len(cjk), maxNameBytes+len(artifactExt))
	assert.LessOrEqual(t, len(cjk), 255)
	assert.True(t, utf8.ValidString(cjk))
	assert.True(t, strings.HasSuffix(cjk, ".mp3"))

	// a cut landing before a trailing dot run still trims it
	dotted := ArtifactName(domain.Metadata{Title: strings.Repeat("日", 66) + " .."})
	assert.Equal(t, strings.Repeat("日", 66)+".mp3", dotted)
}

func TestArtifactName_CreatableOnDisk(t *testing.T) {
	name := ArtifactName(domain.Metadata{Title: strings.Repeat("日本語の歌", 20), Artist: "アーティスト"})
	f, err := os.Create(filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestArtifactName_NeverContainsSeparators(t *testing.T) {
	inputs := []string{"/", "\\", "a/b\\c", "/abs/path", "..", "\x00/\x00"}
	for _, in := range inputs {
		name := ArtifactName(domain.Metadata{Title: in, Artist: in})
		assert.NotContains(t, name, "/")
		assert.NotContains(t, name, "\\")
		assert.False(t, strings.HasPrefix(name, "."), name)
	}
}
