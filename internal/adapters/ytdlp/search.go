package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tunegrab/internal/core/domain"
)

// Searcher implements ports.SearchGateway with yt-dlp's ytsearch extractor.
type Searcher struct {
	run     Runner
	timeout time.Duration
}

// NewSearcher creates a Searcher.
func NewSearcher(run Runner) *Searcher {
	return &Searcher{run: run, timeout: 30 * time.Second}
}

// Search runs a flat playlist search and returns up to limit results.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]domain.ResultItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// --flat-playlist: list entries without resolving formats
	// --dump-json: one JSON object per entry
	out, err := s.run(ctx,
		"--flat-playlist", "--dump-json", "--skip-download", "--no-warnings",
		fmt.Sprintf("ytsearch%d:%s", limit, query),
	)
	if err != nil {
		return nil, &domain.SearchError{Query: query, Err: err}
	}
	items, err := parseSearchOutput(out, limit)
	if err != nil {
		return nil, &domain.SearchError{Query: query, Err: err}
	}
	return items, nil
}

// parseSearchOutput reads JSON lines, skipping entries without an id.
func parseSearchOutput(out []byte, limit int) ([]domain.ResultItem, error) {
	items := make([]domain.ResultItem, 0, limit)
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			return nil, fmt.Errorf("malformed yt-dlp output: %.80s", line)
		}
		entry := gjson.ParseBytes(line)
		id := entry.Get("id").String()
		if id == "" {
			continue
		}
		title := strings.TrimSpace(entry.Get("title").String())
		if title == "" {
			title = "Unknown title"
		}
		item := domain.ResultItem{
			Index:      len(items),
			ExternalID: id,
			Title:      title,
			Uploader:   firstString(entry, "channel", "uploader"),
			SourceRef:  WatchURL(id),
		}
		if d := entry.Get("duration"); d.Exists() && d.Type == gjson.Number {
			secs := int(d.Float())
			item.DurationSeconds = &secs
		}
		items = append(items, item)
		if len(items) == limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read yt-dlp output: %w", err)
	}
	return items, nil
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := strings.TrimSpace(r.Get(p).String()); v != "" {
			return v
		}
	}
	return ""
}
