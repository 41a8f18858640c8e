package ports

import (
	"context"
	"io"

	"tunegrab/internal/core/domain"
)

// SearchGateway resolves a free-text query to ranked results.
type SearchGateway interface {
	// Search returns at most limit results. An empty result is not an error.
	Search(ctx context.Context, query string, limit int) ([]domain.ResultItem, error)
}

// MediaFetcher downloads a media source into a work directory.
type MediaFetcher interface {
	// Fetch stores the source referenced by ref inside workDir and returns
	// the local audio path along with its metadata.
	Fetch(ctx context.Context, ref, workDir string) (string, domain.Metadata, error)
}

// Transcoder converts a fetched source into a deliverable audio file.
type Transcoder interface {
	Transcode(ctx context.Context, src, workDir string) (string, error)
}

// Tagger writes metadata into the audio at src, producing dst.
type Tagger interface {
	Tag(ctx context.Context, src, dst string, meta domain.Metadata) error
}

// DeliveryChannel sends the final artifact back to its owner.
type DeliveryChannel interface {
	SendAudio(ctx context.Context, owner domain.OwnerID, path string, meta domain.Metadata) error
}

// Messenger sends text replies, optionally with selectable buttons.
type Messenger interface {
	SendText(ctx context.Context, owner domain.OwnerID, text string, buttons ...domain.Button) error
}

// Workspace hands out job-scoped ephemeral directories.
type Workspace interface {
	// Acquire creates the work directory for jobID and returns its path.
	Acquire(ctx context.Context, jobID string) (string, error)

	// Release removes the work directory for jobID and everything in it.
	Release(jobID string) error
}

// Downloader fetches a remote resource over HTTP.
type Downloader interface {
	// Download returns a ReadCloser that the caller must close.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// JobPublisher receives job state transitions.
type JobPublisher interface {
	PublishJob(evt domain.JobEvent) error
}

// ChatHandler receives inbound owner events from a transport.
type ChatHandler interface {
	OnStart(ctx context.Context, owner domain.OwnerID) error
	OnQuery(ctx context.Context, owner domain.OwnerID, text string) error
	OnCallback(ctx context.Context, owner domain.OwnerID, token string) error
}
