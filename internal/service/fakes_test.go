package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"tunegrab/internal/adapters/localstorage"
	"tunegrab/internal/core/domain"
	"tunegrab/internal/events"
)

// fakeFetcher writes a source file into the work dir. When gate is set it
// waits for it; when honorCtx is set it gives up on cancellation.
type fakeFetcher struct {
	fs       afero.Fs
	meta     domain.Metadata
	err      error
	gate     chan struct{}
	honorCtx bool
	panics   bool
	started  chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref, workDir string) (string, domain.Metadata, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.panics {
		panic("extractor exploded")
	}
	if f.gate != nil {
		if f.honorCtx {
			select {
			case <-f.gate:
			case <-ctx.Done():
				return "", domain.Metadata{}, ctx.Err()
			}
		} else {
			<-f.gate
		}
	}
	if f.err != nil {
		return "", domain.Metadata{}, f.err
	}
	path := filepath.Join(workDir, "source.webm")
	if err := afero.WriteFile(f.fs, path, []byte("webm"), 0644); err != nil {
		return "", domain.Metadata{}, err
	}
	return path, f.meta, nil
}

type fakeTranscoder struct {
	fs  afero.Fs
	err error
}

func (t *fakeTranscoder) Transcode(_ context.Context, src, workDir string) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	dst := filepath.Join(workDir, "transcoded.mp3")
	return dst, afero.WriteFile(t.fs, dst, []byte("mp3"), 0644)
}

type fakeTagger struct {
	fs  afero.Fs
	err error
}

func (t *fakeTagger) Tag(_ context.Context, src, dst string, _ domain.Metadata) error {
	if t.err != nil {
		return t.err
	}
	// ffmpeg refuses to write over its input
	if filepath.Clean(src) == filepath.Clean(dst) {
		return errors.New("output file is the same as input")
	}
	if err := t.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return afero.WriteFile(t.fs, dst, []byte("tagged"), 0644)
}

type delivery struct {
	Owner    domain.OwnerID
	FileName string
	Meta     domain.Metadata
}

type fakeDelivery struct {
	fs  afero.Fs
	err error

	mu        sync.Mutex
	delivered []delivery
}

func (d *fakeDelivery) SendAudio(_ context.Context, owner domain.OwnerID, path string, meta domain.Metadata) error {
	if d.err != nil {
		return d.err
	}
	if ok, _ := afero.Exists(d.fs, path); !ok {
		return errors.New("artifact missing at delivery")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, delivery{Owner: owner, FileName: filepath.Base(path), Meta: meta})
	return nil
}

func (d *fakeDelivery) Delivered() []delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]delivery(nil), d.delivered...)
}

// harness wires an orchestrator to fakes sharing one in-memory filesystem.
type harness struct {
	fs         afero.Fs
	workspace  *localstorage.Workspace
	fetcher    *fakeFetcher
	transcoder *fakeTranscoder
	tagger     *fakeTagger
	delivery   *fakeDelivery
	bus        *events.Bus
	orch       *Orchestrator

	mu     sync.Mutex
	events []domain.JobEvent
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	h := &harness{
		fs:         fs,
		workspace:  localstorage.NewWorkspace(fs, "/data"),
		fetcher:    &fakeFetcher{fs: fs, meta: domain.Metadata{Title: "Afternoon/Tea", Artist: "Band"}},
		transcoder: &fakeTranscoder{fs: fs},
		tagger:     &fakeTagger{fs: fs},
		delivery:   &fakeDelivery{fs: fs},
		bus:        events.NewBus(zerolog.Nop()),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = h.bus.Close()
	})
	require.NoError(t, h.bus.SubscribeJobs(ctx, func(evt domain.JobEvent) {
		h.mu.Lock()
		h.events = append(h.events, evt)
		h.mu.Unlock()
	}))

	h.orch = NewOrchestrator(
		Pipeline{Fetcher: h.fetcher, Transcoder: h.transcoder, Tagger: h.tagger, Delivery: h.delivery},
		h.workspace, h.bus, timeout, zerolog.Nop(),
	)
	return h
}

func (h *harness) States(jobID string) []domain.JobState {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.JobState
	for _, evt := range h.events {
		if evt.JobID == jobID {
			out = append(out, evt.State)
		}
	}
	return out
}
