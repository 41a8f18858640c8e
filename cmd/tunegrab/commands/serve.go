package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"tunegrab/internal/adapters/httpapi"
	"tunegrab/internal/core/domain"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search and download conversation over HTTP",
	Long: `Start an HTTP server. Owners post queries and button tokens and poll
their messages:

  POST /v1/owners/{owner}/start
  POST /v1/owners/{owner}/query     {"text": "..."}
  POST /v1/owners/{owner}/callback  {"token": "..."}
  GET  /v1/owners/{owner}/messages
  GET  /v1/owners/{owner}/job
  GET  /healthz`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides http.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.HTTPAddr = serveAddr
	}

	ctx, cancel := signalContext()
	defer cancel()

	outbox := httpapi.NewOutbox(0)
	a, err := newApp(ctx, cfg, logger, outbox)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.bus.SubscribeJobs(ctx, outbox.RecordJob); err != nil {
		return err
	}

	srv := httpapi.New(a.bot, outbox, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.HTTPAddr) }()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
		logger.Info().Msg("received interrupt signal, shutting down")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

func domainOwner(s string) domain.OwnerID {
	return domain.OwnerID(strings.TrimSpace(s))
}
