package ffmpeg

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunegrab/internal/core/domain"
)

type recorder struct {
	args []string
	err  error
}

func (r *recorder) run(_ context.Context, args ...string) error {
	r.args = args
	return r.err
}

type stubCovers struct {
	err error
}

func (s stubCovers) Download(context.Context, string) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader("jpeg")), nil
}

func TestTranscoder(t *testing.T) {
	rec := &recorder{}
	tr := NewTranscoder(rec.run, "192k")

	out, err := tr.Transcode(context.Background(), "/w/source.webm", "/w")
	require.NoError(t, err)
	assert.Equal(t, "/w/transcoded.mp3", out)
	assert.Contains(t, strings.Join(rec.args, " "), "-i /w/source.webm -vn -codec:a libmp3lame -b:a 192k /w/transcoded.mp3")

	rec.err = errors.New("boom")
	_, err = tr.Transcode(context.Background(), "/w/source.webm", "/w")
	assert.Error(t, err)
}

func TestTagger_WithCover(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := &recorder{}
	tg := NewTagger(rec.run, fs, stubCovers{}, zerolog.Nop())

	meta := domain.Metadata{Title: "Afternoon Tea", Artist: "Band", ThumbnailURL: "https://i.ytimg.com/x.jpg"}
	require.NoError(t, tg.Tag(context.Background(), "/w/transcoded.mp3", "/w/Band - Afternoon Tea.mp3", meta))

	joined := strings.Join(rec.args, " ")
	assert.Contains(t, joined, "-i /w/cover.img")
	assert.Contains(t, joined, "attached_pic")
	assert.Contains(t, rec.args, "title=Afternoon Tea")
	assert.Contains(t, rec.args, "artist=Band")
	assert.Equal(t, "/w/Band - Afternoon Tea.mp3", rec.args[len(rec.args)-1])

	data, err := afero.ReadFile(fs, "/w/cover.img")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestTagger_CoverFailureIsNotFatal(t *testing.T) {
	rec := &recorder{}
	tg := NewTagger(rec.run, afero.NewMemMapFs(), stubCovers{err: errors.New("404")}, zerolog.Nop())

	meta := domain.Metadata{Title: "T", ThumbnailURL: "https://i.ytimg.com/x.jpg"}
	require.NoError(t, tg.Tag(context.Background(), "/w/in.mp3", "/w/T.mp3", meta))

	joined := strings.Join(rec.args, " ")
	assert.NotContains(t, joined, "cover.img")
	assert.Contains(t, joined, "-map 0:a -c:a copy")
	assert.NotContains(t, joined, "artist=")
}

func TestTagger_OutputDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := &recorder{}
	tg := NewTagger(rec.run, fs, nil, zerolog.Nop())

	require.NoError(t, tg.Tag(context.Background(), "/w/transcoded.mp3", "/w/out/transcoded.mp3", domain.Metadata{Title: "transcoded"}))
	ok, err := afero.DirExists(fs, "/w/out")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/w/out/transcoded.mp3", rec.args[len(rec.args)-1])

	rec.args = nil
	err = tg.Tag(context.Background(), "/w/transcoded.mp3", "/w/./transcoded.mp3", domain.Metadata{})
	assert.ErrorContains(t, err, "overwrite its input")
	assert.Nil(t, rec.args)
}
