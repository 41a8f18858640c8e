// Package ffmpeg converts fetched sources to MP3 and writes their tags.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"tunegrab/internal/core/domain"
	"tunegrab/internal/core/ports"
)

// Runner executes ffmpeg with args.
type Runner func(ctx context.Context, args ...string) error

// ExecRunner runs the binary at binaryPath.
func ExecRunner(binaryPath string) Runner {
	return func(ctx context.Context, args ...string) error {
		cmd := exec.CommandContext(ctx, binaryPath, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil
	}
}

// Transcoder implements ports.Transcoder producing constant bitrate MP3.
type Transcoder struct {
	run     Runner
	bitrate string
}

// NewTranscoder creates a Transcoder. bitrate is an ffmpeg rate like "192k".
func NewTranscoder(run Runner, bitrate string) *Transcoder {
	return &Transcoder{run: run, bitrate: bitrate}
}

// Transcode writes workDir/transcoded.mp3 from src.
func (t *Transcoder) Transcode(ctx context.Context, src, workDir string) (string, error) {
	dst := filepath.Join(workDir, "transcoded.mp3")
	err := t.run(ctx,
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", src,
		"-vn", "-codec:a", "libmp3lame", "-b:a", t.bitrate,
		dst,
	)
	if err != nil {
		return "", err
	}
	return dst, nil
}

// Tagger implements ports.Tagger with ID3v2 tags and optional cover art.
type Tagger struct {
	run    Runner
	fs     afero.Fs
	covers ports.Downloader // may be nil
	logger zerolog.Logger
}

// NewTagger creates a Tagger. When covers is set, the thumbnail is embedded
// as front cover; failing to fetch it only drops the cover.
func NewTagger(run Runner, fs afero.Fs, covers ports.Downloader, logger zerolog.Logger) *Tagger {
	return &Tagger{run: run, fs: fs, covers: covers, logger: logger}
}

// Tag copies src to dst with meta written into its tags. The directory of
// dst is created when missing.
func (t *Tagger) Tag(ctx context.Context, src, dst string, meta domain.Metadata) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return fmt.Errorf("tag output %s would overwrite its input", dst)
	}
	if err := t.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", src}

	cover := t.fetchCover(ctx, meta.ThumbnailURL, filepath.Dir(dst))
	if cover != "" {
		args = append(args, "-i", cover, "-map", "0:a", "-map", "1:v",
			"-c:v", "mjpeg", "-disposition:v", "attached_pic",
			"-metadata:s:v", "title=Album cover", "-metadata:s:v", "comment=Cover (front)")
	} else {
		args = append(args, "-map", "0:a")
	}
	args = append(args, "-c:a", "copy", "-id3v2_version", "3")
	if meta.Title != "" {
		args = append(args, "-metadata", "title="+meta.Title)
	}
	if meta.Artist != "" {
		args = append(args, "-metadata", "artist="+meta.Artist)
	}
	args = append(args, dst)

	return t.run(ctx, args...)
}

func (t *Tagger) fetchCover(ctx context.Context, thumbURL, dir string) string {
	if t.covers == nil || thumbURL == "" {
		return ""
	}
	path := filepath.Join(dir, "cover.img")
	if err := t.saveCover(ctx, thumbURL, path); err != nil {
		t.logger.Warn().Err(err).Str("url", thumbURL).Msg("skipping cover art")
		return ""
	}
	return path
}

func (t *Tagger) saveCover(ctx context.Context, thumbURL, path string) error {
	body, err := t.covers.Download(ctx, thumbURL)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := t.fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cover file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("failed to write cover file: %w", err)
	}
	return nil
}
