package ytdlp

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	"tunegrab/internal/core/domain"
)

const sourceBase = "source"

// Fetcher implements ports.MediaFetcher by downloading the best audio stream.
type Fetcher struct {
	run Runner
	fs  afero.Fs
}

// NewFetcher creates a Fetcher. fs must be the filesystem yt-dlp writes to.
func NewFetcher(run Runner, fs afero.Fs) *Fetcher {
	return &Fetcher{run: run, fs: fs}
}

// Fetch downloads ref into workDir as source.<ext> and reads the metadata
// yt-dlp writes next to it.
func (f *Fetcher) Fetch(ctx context.Context, ref, workDir string) (string, domain.Metadata, error) {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", domain.Metadata{}, &domain.FetchError{Err: fmt.Errorf("unsupported source %q", ref)}
	}

	// -f bestaudio/best: audio-only stream when the site offers one
	// --write-info-json: metadata lands in source.info.json
	_, err = f.run(ctx,
		"-f", "bestaudio/best",
		"--no-playlist", "--no-warnings", "--no-progress",
		"--write-info-json",
		"-o", filepath.Join(workDir, sourceBase+".%(ext)s"),
		"--", ref,
	)
	if err != nil {
		return "", domain.Metadata{}, &domain.FetchError{Err: err}
	}

	meta, err := f.readInfo(filepath.Join(workDir, sourceBase+".info.json"))
	if err != nil {
		return "", domain.Metadata{}, &domain.FetchError{Err: err}
	}
	path, err := f.findMedia(workDir)
	if err != nil {
		return "", domain.Metadata{}, &domain.FetchError{Err: err}
	}
	return path, meta, nil
}

func (f *Fetcher) readInfo(path string) (domain.Metadata, error) {
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("read info json: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return domain.Metadata{}, fmt.Errorf("malformed info json %s", path)
	}
	info := gjson.ParseBytes(data)
	meta := domain.Metadata{
		Title:        firstString(info, "track", "title"),
		Artist:       firstString(info, "artist", "creator", "uploader", "channel"),
		ThumbnailURL: info.Get("thumbnail").String(),
	}
	if d := info.Get("duration"); d.Type == gjson.Number {
		secs := int(d.Float())
		meta.DurationSeconds = &secs
	}
	return meta, nil
}

// findMedia locates the downloaded stream among yt-dlp's outputs.
func (f *Fetcher) findMedia(workDir string) (string, error) {
	matches, err := afero.Glob(f.fs, filepath.Join(workDir, sourceBase+".*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		switch {
		case strings.HasSuffix(m, ".info.json"), strings.HasSuffix(m, ".part"), strings.HasSuffix(m, ".ytdl"):
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("no media file in %s", workDir)
}
