// Package apify searches YouTube through the Apify YouTube scraper actor.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tunegrab/internal/adapters/ytdlp"
	"tunegrab/internal/core/domain"
)

const (
	apifyBaseURL = "https://api.apify.com/v2"
	// streamers/youtube-scraper
	youtubeSearchActorID = "h7sDV53CddomktSi5"
)

// Searcher implements ports.SearchGateway using the Apify REST API.
type Searcher struct {
	apiToken     string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithBaseURL points the Searcher at another API root.
func WithBaseURL(u string) Option {
	return func(s *Searcher) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Searcher) { s.client = c }
}

// WithPollInterval sets how often run status is checked.
func WithPollInterval(d time.Duration) Option {
	return func(s *Searcher) { s.pollInterval = d }
}

// NewSearcher creates a Searcher for apiToken.
func NewSearcher(apiToken string, opts ...Option) (*Searcher, error) {
	if apiToken == "" {
		return nil, fmt.Errorf("APIFY_API_TOKEN environment variable not set")
	}
	s := &Searcher{
		apiToken:     apiToken,
		baseURL:      apifyBaseURL,
		client:       &http.Client{Timeout: 5 * time.Minute},
		pollInterval: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search runs the scraper actor for query and returns up to limit videos.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]domain.ResultItem, error) {
	runID, err := s.startActorRun(ctx, query, limit)
	if err != nil {
		return nil, &domain.SearchError{Query: query, Err: fmt.Errorf("failed to start actor run: %w", err)}
	}

	raw, err := s.waitAndGetResults(ctx, runID)
	if err != nil {
		return nil, &domain.SearchError{Query: query, Err: fmt.Errorf("failed to get results: %w", err)}
	}

	items, err := parseDatasetItems(raw, limit)
	if err != nil {
		return nil, &domain.SearchError{Query: query, Err: err}
	}
	return items, nil
}

func (s *Searcher) startActorRun(ctx context.Context, query string, limit int) (string, error) {
	url := fmt.Sprintf("%s/acts/%s/runs?token=%s", s.baseURL, youtubeSearchActorID, s.apiToken)

	body, err := json.Marshal(map[string]any{
		"searchQueries": []string{query},
		"maxResults":    limit,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("status %d, body: %s", resp.StatusCode, string(respBody))
	}

	id := gjson.GetBytes(respBody, "data.id").String()
	if id == "" {
		return "", fmt.Errorf("run id missing from response")
	}
	return id, nil
}

func (s *Searcher) waitAndGetResults(ctx context.Context, runID string) ([]byte, error) {
	statusURL := fmt.Sprintf("%s/actor-runs/%s?token=%s", s.baseURL, runID, s.apiToken)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}

		body, err := s.get(ctx, statusURL)
		if err != nil {
			return nil, err
		}

		switch status := gjson.GetBytes(body, "data.status").String(); status {
		case "SUCCEEDED":
			return s.getDatasetItems(ctx, gjson.GetBytes(body, "data.defaultDatasetId").String())
		case "FAILED", "ABORTED", "TIMED-OUT":
			return nil, fmt.Errorf("actor run failed with status: %s", status)
		}
	}
}

func (s *Searcher) getDatasetItems(ctx context.Context, datasetID string) ([]byte, error) {
	return s.get(ctx, fmt.Sprintf("%s/datasets/%s/items?token=%s", s.baseURL, datasetID, s.apiToken))
}

func (s *Searcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parseDatasetItems maps scraper records to results. Records without an id
// are skipped.
func parseDatasetItems(raw []byte, limit int) ([]domain.ResultItem, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("malformed dataset response")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsArray() {
		return nil, fmt.Errorf("dataset response is not a list")
	}

	items := make([]domain.ResultItem, 0, limit)
	root.ForEach(func(_, rec gjson.Result) bool {
		id := rec.Get("id").String()
		if id == "" {
			return true
		}
		title := strings.TrimSpace(rec.Get("title").String())
		if title == "" {
			title = "Unknown title"
		}
		ref := rec.Get("url").String()
		if ref == "" {
			ref = ytdlp.WatchURL(id)
		}
		items = append(items, domain.ResultItem{
			Index:           len(items),
			ExternalID:      id,
			Title:           title,
			Uploader:        rec.Get("channelName").String(),
			DurationSeconds: parseDuration(rec.Get("duration")),
			SourceRef:       ref,
		})
		return len(items) < limit
	})
	return items, nil
}

// parseDuration accepts seconds or "[h:]mm:ss".
func parseDuration(v gjson.Result) *int {
	if v.Type == gjson.Number {
		secs := int(v.Int())
		return &secs
	}
	s := strings.TrimSpace(v.String())
	if s == "" {
		return nil
	}
	total := 0
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil
		}
		total = total*60 + n
	}
	return &total
}
