package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"tunegrab/internal/adapters/apify"
	"tunegrab/internal/adapters/blobdelivery"
	"tunegrab/internal/adapters/downloader"
	"tunegrab/internal/adapters/ffmpeg"
	"tunegrab/internal/adapters/localstorage"
	"tunegrab/internal/adapters/ytdlp"
	"tunegrab/internal/config"
	"tunegrab/internal/core/domain"
	"tunegrab/internal/core/ports"
	"tunegrab/internal/events"
	"tunegrab/internal/logging"
	"tunegrab/internal/service"
	"tunegrab/internal/session"
)

const shutdownTimeout = 15 * time.Second

// app holds the wired session engine.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	sessions *session.Store
	bus      *events.Bus
	orch     *service.Orchestrator
	delivery *blobdelivery.Channel
	bot      *service.Bot
}

// loadConfig reads configuration and applies the global flags.
func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.Log.Level)
	logCfg.Pretty = cfg.Log.Pretty
	logCfg.Output = os.Stderr
	return cfg, logging.Init(logCfg), nil
}

// newApp wires every component. Replies go through messenger.
func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger, messenger ports.Messenger) (*app, error) {
	ws := localstorage.NewOsWorkspace(cfg.Download.WorkDir)
	if err := ws.Purge(); err != nil {
		logger.Warn().Err(err).Msg("failed to purge leftover work directories")
	}

	search, err := newSearch(cfg)
	if err != nil {
		return nil, err
	}

	delivery, err := blobdelivery.Open(ctx, cfg.Delivery.BucketURL, cfg.Delivery.Prefix, ws.Fs(), messenger, logger)
	if err != nil {
		return nil, err
	}

	ytRun := ytdlp.ExecRunner(ytdlp.DefaultBinary(cfg.Tools.YtDlp))
	ffRun := ffmpeg.ExecRunner(cfg.Tools.FFmpeg)
	pipeline := service.Pipeline{
		Fetcher:    ytdlp.NewFetcher(ytRun, ws.Fs()),
		Transcoder: ffmpeg.NewTranscoder(ffRun, cfg.Download.Bitrate),
		Tagger:     ffmpeg.NewTagger(ffRun, ws.Fs(), downloader.NewHTTPDownloader(), logger),
		Delivery:   delivery,
	}

	bus := events.NewBus(logger)
	sessions := session.NewStore(cfg.Session.TTL, session.WithLogger(logger))
	orch := service.NewOrchestrator(pipeline, ws, bus, cfg.Download.Timeout, logger)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		bus:      bus,
		orch:     orch,
		delivery: delivery,
		bot:      service.NewBot(search, sessions, orch, messenger, cfg.Search.Limit, logger),
	}

	if err := bus.SubscribeJobs(ctx, a.logJob); err != nil {
		a.close(context.Background())
		return nil, err
	}
	go sessions.Run(ctx, cfg.Session.SweepInterval)

	logger.Info().
		Str("provider", cfg.Search.Provider).
		Str("work_dir", cfg.Download.WorkDir).
		Str("bucket", cfg.Delivery.BucketURL).
		Msg("tunegrab ready")
	return a, nil
}

func newSearch(cfg config.Config) (ports.SearchGateway, error) {
	switch cfg.Search.Provider {
	case config.ProviderApify:
		return apify.NewSearcher(cfg.ApifyToken)
	case config.ProviderYtDlp:
		return ytdlp.NewSearcher(ytdlp.ExecRunner(ytdlp.DefaultBinary(cfg.Tools.YtDlp))), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Search.Provider)
	}
}

func (a *app) logJob(evt domain.JobEvent) {
	e := a.logger.Debug()
	if evt.State == domain.JobFailed {
		e = a.logger.Warn().Str("stage", string(evt.Stage)).Str("error", evt.Error)
	}
	e.Str("job_id", evt.JobID).Str("owner", string(evt.OwnerID)).Str("state", string(evt.State)).Msg("job event")
}

// close stops running jobs and releases resources.
func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := a.orch.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("jobs still running at shutdown")
	}
	a.bot.Wait()
	if err := a.bus.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close event bus")
	}
	if err := a.delivery.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close bucket")
	}
}
