// Package blobdelivery delivers finished audio into a gocloud.dev bucket.
package blobdelivery

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"tunegrab/internal/core/domain"
	"tunegrab/internal/core/ports"
)

// Channel implements ports.DeliveryChannel by uploading to a bucket and
// announcing the object through a Messenger.
type Channel struct {
	bucket *blob.Bucket
	prefix string
	fs     afero.Fs
	notify ports.Messenger
	logger zerolog.Logger
}

// Open opens the bucket at bucketURL (file://, mem://, ...).
func Open(ctx context.Context, bucketURL, prefix string, fs afero.Fs, notify ports.Messenger, logger zerolog.Logger) (*Channel, error) {
	if err := ensureLocalDir(fs, bucketURL); err != nil {
		return nil, err
	}
	bkt, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", bucketURL, err)
	}
	return New(bkt, prefix, fs, notify, logger), nil
}

// ensureLocalDir creates the directory behind a file:// bucket.
func ensureLocalDir(fs afero.Fs, bucketURL string) error {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return fmt.Errorf("invalid bucket url %s: %w", bucketURL, err)
	}
	if u.Scheme != "file" {
		return nil
	}
	dir := u.Path
	if u.Host == "." {
		dir = "." + dir
	}
	if err := fs.MkdirAll(filepath.FromSlash(dir), 0755); err != nil {
		return fmt.Errorf("failed to create bucket directory %s: %w", dir, err)
	}
	return nil
}

// New wraps an open bucket. notify may be nil.
func New(bucket *blob.Bucket, prefix string, fs afero.Fs, notify ports.Messenger, logger zerolog.Logger) *Channel {
	return &Channel{bucket: bucket, prefix: prefix, fs: fs, notify: notify, logger: logger}
}

// Key returns the object key the file at localPath is stored under.
func (c *Channel) Key(owner domain.OwnerID, localPath string) string {
	return path.Join(c.prefix, ownerSegment(owner), filepath.Base(localPath))
}

// ownerSegment escapes owner into a single key segment. Dot-only owners
// are percent-encoded so they cannot step out of the prefix.
func ownerSegment(owner domain.OwnerID) string {
	seg := url.PathEscape(string(owner))
	if seg != "" && strings.Trim(seg, ".") == "" {
		return strings.Repeat("%2E", len(seg))
	}
	return seg
}

// SendAudio uploads the file at localPath for owner.
func (c *Channel) SendAudio(ctx context.Context, owner domain.OwnerID, localPath string, meta domain.Metadata) error {
	if owner == "" {
		return &domain.DeliveryError{Err: fmt.Errorf("no owner for %s", filepath.Base(localPath))}
	}
	key := c.Key(owner, localPath)
	if err := c.upload(ctx, key, localPath, meta); err != nil {
		return &domain.DeliveryError{Err: err}
	}
	c.logger.Info().Str("owner", string(owner)).Str("key", key).Msg("audio delivered")

	// the object is stored; a lost announcement does not undo delivery
	if c.notify != nil {
		text := fmt.Sprintf("🎧 %s is ready: %s", meta.Title, key)
		if err := c.notify.SendText(ctx, owner, text); err != nil {
			c.logger.Warn().Err(err).Str("owner", string(owner)).Str("key", key).Msg("failed to announce delivery")
		}
	}
	return nil
}

func (c *Channel) upload(ctx context.Context, key, localPath string, meta domain.Metadata) error {
	f, err := c.fs.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	attrs := map[string]string{}
	if meta.Title != "" {
		attrs["title"] = meta.Title
	}
	if meta.Artist != "" {
		attrs["artist"] = meta.Artist
	}
	w, err := c.bucket.NewWriter(ctx, key, &blob.WriterOptions{
		ContentType: "audio/mpeg",
		Metadata:    attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to create object %s: %w", key, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to commit object %s: %w", key, err)
	}
	return nil
}

// Close closes the bucket.
func (c *Channel) Close() error {
	return c.bucket.Close()
}
