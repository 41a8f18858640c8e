package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tunegrab/internal/core/domain"
	"tunegrab/internal/core/ports"
)

// Pipeline groups the collaborators a job runs through.
type Pipeline struct {
	Fetcher    ports.MediaFetcher
	Transcoder ports.Transcoder
	Tagger     ports.Tagger
	Delivery   ports.DeliveryChannel
}

// JobHandle refers to a submitted job.
type JobHandle struct {
	JobID   string
	OwnerID domain.OwnerID

	job    *activeJob
	cancel context.CancelFunc
}

// Cancel stops the job. It still ends in Failed with its work directory
// released.
func (h *JobHandle) Cancel() {
	h.cancel()
}

// Done is closed once the job reached a terminal state and cleaned up.
func (h *JobHandle) Done() <-chan struct{} {
	return h.job.done
}

type activeJob struct {
	job      domain.DownloadJob
	done     chan struct{}
	artifact *domain.Artifact
	err      error
}

// Orchestrator runs download jobs, at most one per owner.
type Orchestrator struct {
	pipeline  Pipeline
	workspace ports.Workspace
	events    ports.JobPublisher
	logger    zerolog.Logger
	timeout   time.Duration
	now       func() time.Time

	baseCtx  context.Context
	stopAll  context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	active   map[domain.OwnerID]*activeJob
	shutdown bool
}

// NewOrchestrator creates a new Orchestrator. Each job must finish within
// timeout. events may be nil.
func NewOrchestrator(
	pipeline Pipeline,
	workspace ports.Workspace,
	events ports.JobPublisher,
	timeout time.Duration,
	logger zerolog.Logger,
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		pipeline:  pipeline,
		workspace: workspace,
		events:    events,
		logger:    logger,
		timeout:   timeout,
		now:       time.Now,
		baseCtx:   ctx,
		stopAll:   cancel,
		active:    make(map[domain.OwnerID]*activeJob),
	}
}

// artifactDir holds the final file inside a work dir, apart from the
// fetch and transcode intermediates.
const artifactDir = "out"

// errShutdown rejects submissions after Shutdown.
var errShutdown = errors.New("orchestrator is shutting down")

// Submit starts a job for item unless owner already has one running.
// It returns immediately; use Await to observe the outcome.
func (o *Orchestrator) Submit(ctx context.Context, owner domain.OwnerID, item domain.ResultItem) (*JobHandle, error) {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return nil, errShutdown
	}
	if cur, ok := o.active[owner]; ok {
		o.mu.Unlock()
		return nil, &domain.BusyError{Owner: owner, JobID: cur.job.ID}
	}

	jobID := uuid.New().String()
	aj := &activeJob{
		job: domain.DownloadJob{
			ID:        jobID,
			OwnerID:   owner,
			Item:      item,
			State:     domain.JobPending,
			StartedAt: o.now().UTC(),
		},
		done: make(chan struct{}),
	}
	// reserve the owner before touching the filesystem
	o.active[owner] = aj
	o.wg.Add(1)
	o.mu.Unlock()

	workDir, err := o.workspace.Acquire(ctx, jobID)
	if err != nil {
		o.mu.Lock()
		delete(o.active, owner)
		o.mu.Unlock()
		o.wg.Done()

		var resErr *domain.ResourceError
		if !errors.As(err, &resErr) {
			err = &domain.ResourceError{Op: "acquire", Path: jobID, Err: err}
		}
		o.logger.Error().Err(err).Str("job_id", jobID).Str("owner", string(owner)).Msg("failed to acquire work dir")
		return nil, err
	}
	aj.job.WorkDir = workDir

	jobCtx, cancel := context.WithTimeout(o.baseCtx, o.timeout)
	h := &JobHandle{JobID: jobID, OwnerID: owner, job: aj, cancel: cancel}

	o.logger.Info().
		Str("job_id", jobID).
		Str("owner", string(owner)).
		Str("source", item.SourceRef).
		Msg("job submitted")
	o.publish(aj.job, "")

	go func() {
		defer o.wg.Done()
		defer cancel()
		o.run(jobCtx, aj)
	}()
	return h, nil
}

// Await blocks until the job is terminal. It returns the delivered artifact
// or a *domain.PipelineError naming the failed stage. If ctx ends first,
// ctx.Err() is returned and the job keeps running.
func (o *Orchestrator) Await(ctx context.Context, h *JobHandle) (*domain.Artifact, error) {
	select {
	case <-h.job.done:
		return h.job.artifact, h.job.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Active returns the ID of owner's running job, if any.
func (o *Orchestrator) Active(owner domain.OwnerID) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if aj, ok := o.active[owner]; ok {
		return aj.job.ID, true
	}
	return "", false
}

// Shutdown cancels running jobs and waits for their cleanup or ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.shutdown = true
	o.mu.Unlock()
	o.stopAll()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drives aj through the pipeline and always finishes it.
func (o *Orchestrator) run(ctx context.Context, aj *activeJob) {
	job := &aj.job
	log := o.logger.With().Str("job_id", job.ID).Str("owner", string(job.OwnerID)).Logger()

	artifact, stage, err := o.execute(ctx, job, log)
	if err != nil {
		err = o.classify(ctx, job.ID, err)
		err = &domain.PipelineError{JobID: job.ID, Stage: stage, Err: err}
	}

	// the work dir goes before anyone learns the outcome
	if relErr := o.workspace.Release(job.ID); relErr != nil {
		log.Error().Err(relErr).Msg("failed to release work dir")
	}

	job.FinishedAt = o.now().UTC()
	if err != nil {
		job.State = domain.JobFailed
		job.Stage = stage
		job.Err = err
		log.Error().Err(err).Str("stage", string(stage)).Dur("elapsed", job.FinishedAt.Sub(job.StartedAt)).Msg("job failed")
		o.publish(*job, err.Error())
	} else {
		job.State = domain.JobDone
		log.Info().Str("file", artifact.FileName).Dur("elapsed", job.FinishedAt.Sub(job.StartedAt)).Msg("job completed")
		o.publish(*job, "")
	}

	o.mu.Lock()
	if o.active[job.OwnerID] == aj {
		delete(o.active, job.OwnerID)
	}
	o.mu.Unlock()

	aj.artifact, aj.err = artifact, err
	close(aj.done)
}

// execute runs the stages in order and returns the stage that failed.
func (o *Orchestrator) execute(ctx context.Context, job *domain.DownloadJob, log zerolog.Logger) (*domain.Artifact, domain.JobState, error) {
	var (
		source, transcoded, final string
		meta                      domain.Metadata
	)

	o.transition(job, domain.JobFetching, log)
	err := o.stage(ctx, func(ctx context.Context) error {
		var err error
		source, meta, err = o.pipeline.Fetcher.Fetch(ctx, job.Item.SourceRef, job.WorkDir)
		return asFetchError(err)
	})
	if err != nil {
		return nil, domain.JobFetching, err
	}
	if meta.Title == "" {
		meta.Title = job.Item.Title
	}

	o.transition(job, domain.JobTranscoding, log)
	err = o.stage(ctx, func(ctx context.Context) error {
		var err error
		transcoded, err = o.pipeline.Transcoder.Transcode(ctx, source, job.WorkDir)
		return asFetchError(err)
	})
	if err != nil {
		return nil, domain.JobTranscoding, err
	}

	o.transition(job, domain.JobTagging, log)
	name := ArtifactName(meta)
	final = filepath.Join(job.WorkDir, artifactDir, name)
	err = o.stage(ctx, func(ctx context.Context) error {
		return asFetchError(o.pipeline.Tagger.Tag(ctx, transcoded, final, meta))
	})
	if err != nil {
		return nil, domain.JobTagging, err
	}

	o.transition(job, domain.JobDelivering, log)
	err = o.stage(ctx, func(ctx context.Context) error {
		err := o.pipeline.Delivery.SendAudio(ctx, job.OwnerID, final, meta)
		var delErr *domain.DeliveryError
		if err != nil && !errors.As(err, &delErr) {
			err = &domain.DeliveryError{Err: err}
		}
		return err
	})
	if err != nil {
		return nil, domain.JobDelivering, err
	}

	return &domain.Artifact{
		JobID:       job.ID,
		FileName:    name,
		Metadata:    meta,
		DeliveredAt: o.now().UTC(),
	}, "", nil
}

// stage runs fn and stops waiting for it once ctx ends; an fn that ignores
// cancellation is abandoned.
func (o *Orchestrator) stage(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	errc := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errc <- &domain.FetchError{Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		errc <- fn(ctx)
	}()
	select {
	case err := <-errc:
		if err == nil && ctx.Err() != nil {
			// finished, but past the deadline
			return ctx.Err()
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classify turns deadline expiry into a TimeoutError.
func (o *Orchestrator) classify(ctx context.Context, jobID string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.TimeoutError{JobID: jobID, After: o.timeout}
	}
	return err
}

func (o *Orchestrator) transition(job *domain.DownloadJob, state domain.JobState, log zerolog.Logger) {
	job.State = state
	log.Debug().Str("state", string(state)).Msg("job transition")
	o.publish(*job, "")
}

func (o *Orchestrator) publish(job domain.DownloadJob, errMsg string) {
	if o.events == nil {
		return
	}
	evt := domain.JobEvent{
		JobID:   job.ID,
		OwnerID: job.OwnerID,
		State:   job.State,
		Stage:   job.Stage,
		Error:   errMsg,
		At:      o.now().UTC(),
	}
	if err := o.events.PublishJob(evt); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to publish job event")
	}
}

func asFetchError(err error) error {
	if err == nil {
		return nil
	}
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.FetchError{Err: err}
}
