package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBody caps downloads; cover images are small.
const maxBody = 10 << 20

// HTTPDownloader implements ports.Downloader using standard HTTP.
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTPDownloader creates a new HTTPDownloader.
func NewHTTPDownloader() *HTTPDownloader {
	return &HTTPDownloader{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewHTTPDownloaderWithClient uses client for every request.
func NewHTTPDownloaderWithClient(client *http.Client) *HTTPDownloader {
	return &HTTPDownloader{client: client}
}

// Download fetches the resource at url. At most 10 MiB of the body is read.
func (d *HTTPDownloader) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return limitedBody{Reader: io.LimitReader(resp.Body, maxBody), Closer: resp.Body}, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}
