// Package ytdlp adapts the yt-dlp binary to the search and fetch ports.
package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner executes yt-dlp and returns its stdout.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

// ExecRunner runs the binary at binaryPath.
func ExecRunner(binaryPath string) Runner {
	return func(ctx context.Context, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, binaryPath, args...)

		var out bytes.Buffer
		var stderr bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
		}
		return out.Bytes(), nil
	}
}

// DefaultBinary returns a local yt-dlp.exe when present, otherwise the name
// configured (resolved through PATH).
func DefaultBinary(configured string) string {
	if _, err := os.Stat("yt-dlp.exe"); err == nil {
		return ".\\yt-dlp.exe"
	}
	if configured == "" {
		return "yt-dlp"
	}
	return configured
}

// WatchURL builds the canonical page URL for a video ID.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
