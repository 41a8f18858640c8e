package localstorage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunegrab/internal/core/domain"
)

func TestWorkspace_AcquireRelease(t *testing.T) {
	ws := NewWorkspace(afero.NewMemMapFs(), "/data")

	dir, err := ws.Acquire(context.Background(), "job1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "jobs", "job1"), dir)
	assert.True(t, ws.Exists("job1"))

	require.NoError(t, afero.WriteFile(ws.Fs(), filepath.Join(dir, "source.webm"), []byte("x"), 0644))

	require.NoError(t, ws.Release("job1"))
	assert.False(t, ws.Exists("job1"))

	// releasing twice is harmless
	require.NoError(t, ws.Release("job1"))
}

func TestWorkspace_AcquireTwiceFails(t *testing.T) {
	ws := NewWorkspace(afero.NewMemMapFs(), "/data")
	_, err := ws.Acquire(context.Background(), "job1")
	require.NoError(t, err)

	_, err = ws.Acquire(context.Background(), "job1")
	var resErr *domain.ResourceError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "acquire", resErr.Op)
}

func TestWorkspace_AcquireCanceled(t *testing.T) {
	ws := NewWorkspace(afero.NewMemMapFs(), "/data")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ws.Acquire(ctx, "job1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ws.Exists("job1"))
}

func TestWorkspace_ReleaseOnReadOnlyFs(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll("/data/jobs/job1", 0700))
	ws := NewWorkspace(afero.NewReadOnlyFs(base), "/data")

	err := ws.Release("job1")
	var resErr *domain.ResourceError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "release", resErr.Op)
}

func TestWorkspace_Purge(t *testing.T) {
	ws := NewWorkspace(afero.NewMemMapFs(), "/data")
	for _, id := range []string{"a", "b"} {
		_, err := ws.Acquire(context.Background(), id)
		require.NoError(t, err)
	}
	require.NoError(t, ws.Purge())
	assert.False(t, ws.Exists("a"))
	assert.False(t, ws.Exists("b"))
}
