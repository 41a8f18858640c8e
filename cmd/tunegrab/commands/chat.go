package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"tunegrab/internal/adapters/console"
)

var (
	chatOwner   string
	chatNoColor bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Search and download songs from the terminal",
	Long: `Start an interactive session. Type a song name to search and the number
of a result to download it. Finished files are written to the configured bucket.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatOwner, "owner", "local", "Owner id used for this session")
	chatCmd.Flags().BoolVar(&chatNoColor, "no-color", false, "Disable colored output")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	term := console.New(domainOwner(chatOwner), os.Stdout, chatNoColor)
	a, err := newApp(ctx, cfg, logger, term)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	// stdin reads cannot be interrupted, so a signal ends the session
	// without waiting for the reader.
	done := make(chan error, 1)
	go func() { done <- term.Run(ctx, os.Stdin, a.bot) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		logger.Info().Msg("received interrupt signal, shutting down")
	}
	return err
}
