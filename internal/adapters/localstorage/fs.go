package localstorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"tunegrab/internal/core/domain"
)

// Workspace implements ports.Workspace on an afero filesystem.
type Workspace struct {
	fs      afero.Fs
	BaseDir string
}

// NewWorkspace creates a Workspace rooted at baseDir.
func NewWorkspace(fs afero.Fs, baseDir string) *Workspace {
	return &Workspace{fs: fs, BaseDir: baseDir}
}

// NewOsWorkspace creates a Workspace on the real filesystem.
func NewOsWorkspace(baseDir string) *Workspace {
	return NewWorkspace(afero.NewOsFs(), baseDir)
}

// Fs returns the underlying filesystem.
func (w *Workspace) Fs() afero.Fs { return w.fs }

// Acquire creates the job directory.
func (w *Workspace) Acquire(ctx context.Context, jobID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := w.JobPath(jobID)
	if exists, _ := afero.DirExists(w.fs, path); exists {
		return "", &domain.ResourceError{Op: "acquire", Path: path, Err: os.ErrExist}
	}
	if err := w.fs.MkdirAll(path, 0700); err != nil {
		return "", &domain.ResourceError{Op: "acquire", Path: path, Err: err}
	}
	return path, nil
}

// Release removes the job directory and everything in it.
func (w *Workspace) Release(jobID string) error {
	path := w.JobPath(jobID)
	if err := w.fs.RemoveAll(path); err != nil {
		return &domain.ResourceError{Op: "release", Path: path, Err: err}
	}
	return nil
}

// Exists reports whether the job directory is present.
func (w *Workspace) Exists(jobID string) bool {
	ok, _ := afero.DirExists(w.fs, w.JobPath(jobID))
	return ok
}

// Purge removes job directories left behind by a previous process.
func (w *Workspace) Purge() error {
	root := filepath.Join(w.BaseDir, "jobs")
	if err := w.fs.RemoveAll(root); err != nil {
		return fmt.Errorf("failed to purge %s: %w", root, err)
	}
	return nil
}

// JobPath returns the path for a job directory.
func (w *Workspace) JobPath(jobID string) string {
	return filepath.Join(w.BaseDir, "jobs", jobID)
}
