package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"tunegrab/internal/callback"
	"tunegrab/internal/core/domain"
	"tunegrab/internal/core/ports"
	"tunegrab/internal/session"
)

// Replies sent to owners.
const (
	MsgStart           = "🎵 Send me a song name to search."
	MsgEmptyQuery      = "❌ Please type a song name."
	MsgSearching       = "🔍 Searching..."
	MsgNoResults       = "⚠️ No results found."
	MsgSearchFailed    = "⚠️ Search failed. Please try again."
	MsgSelect          = "🎶 Select a song:"
	MsgInvalid         = "❌ Invalid selection."
	MsgExpired         = "⌛ This result list has expired. Send a new search."
	MsgBusy            = "⏳ A download is already in progress. Please wait for it to finish."
	MsgStartFailed     = "⚠️ Could not start the download. Please try again."
	MsgDownloadFailed  = "⚠️ Failed to download song."
	MsgDownloadTimeout = "⚠️ The download took too long and was stopped."
	MsgDeliveryFailed  = "⚠️ The song was downloaded but could not be sent."

	maxButtonLabel = 60
)

// Bot turns inbound owner events into searches, sessions and downloads.
type Bot struct {
	search    ports.SearchGateway
	sessions  *session.Store
	orch      *Orchestrator
	messenger ports.Messenger
	limit     int
	logger    zerolog.Logger

	wg sync.WaitGroup
}

// NewBot wires the session engine. limit bounds results per search.
func NewBot(
	search ports.SearchGateway,
	sessions *session.Store,
	orch *Orchestrator,
	messenger ports.Messenger,
	limit int,
	logger zerolog.Logger,
) *Bot {
	return &Bot{
		search:    search,
		sessions:  sessions,
		orch:      orch,
		messenger: messenger,
		limit:     limit,
		logger:    logger,
	}
}

// OnStart greets the owner.
func (b *Bot) OnStart(ctx context.Context, owner domain.OwnerID) error {
	return b.messenger.SendText(ctx, owner, MsgStart)
}

// OnQuery searches for text and offers the results for selection.
// The returned error is only set when a reply could not be sent.
func (b *Bot) OnQuery(ctx context.Context, owner domain.OwnerID, text string) error {
	query := strings.TrimSpace(text)
	if query == "" {
		return b.messenger.SendText(ctx, owner, MsgEmptyQuery)
	}
	if err := b.messenger.SendText(ctx, owner, MsgSearching); err != nil {
		return err
	}

	items, err := b.search.Search(ctx, query, b.limit)
	if err != nil {
		b.logger.Error().Err(err).Str("owner", string(owner)).Str("query", query).Msg("search failed")
		return b.messenger.SendText(ctx, owner, MsgSearchFailed)
	}
	if len(items) == 0 {
		// a new search always retires the previous list
		b.sessions.Invalidate(owner)
		return b.messenger.SendText(ctx, owner, MsgNoResults)
	}
	if len(items) > b.limit {
		items = items[:b.limit]
	}

	sess := b.sessions.Create(owner, query, items)
	buttons := make([]domain.Button, len(sess.Items))
	for i, it := range sess.Items {
		buttons[i] = domain.Button{
			Label: buttonLabel(it),
			Token: callback.Encode(callback.Pick(sess.ID, it.Index)),
		}
	}
	b.logger.Info().
		Str("owner", string(owner)).
		Str("session_id", sess.ID).
		Int("results", len(buttons)).
		Msg("search completed")
	return b.messenger.SendText(ctx, owner, MsgSelect, buttons...)
}

// OnCallback handles a button press carrying token.
func (b *Bot) OnCallback(ctx context.Context, owner domain.OwnerID, token string) error {
	action, err := callback.Decode(token)
	if err != nil {
		b.logger.Warn().Err(err).Str("owner", string(owner)).Msg("rejected callback")
		return b.messenger.SendText(ctx, owner, MsgInvalid)
	}

	var item domain.ResultItem
	switch action.Kind {
	case callback.KindRestart:
		b.sessions.Invalidate(owner)
		return b.messenger.SendText(ctx, owner, MsgStart)
	case callback.KindPick:
		item, err = b.sessions.Resolve(owner, action.SessionID, action.Index)
	case callback.KindDownload:
		item, err = b.sessions.ResolveRef(owner, action.SessionID, action.ResultRef)
	}
	if err != nil {
		b.logger.Info().Err(err).Str("owner", string(owner)).Msg("selection against stale session")
		return b.messenger.SendText(ctx, owner, MsgExpired)
	}

	handle, err := b.orch.Submit(ctx, owner, item)
	if err != nil {
		var busy *domain.BusyError
		if errors.As(err, &busy) {
			return b.messenger.SendText(ctx, owner, MsgBusy)
		}
		return b.messenger.SendText(ctx, owner, MsgStartFailed)
	}
	if err := b.messenger.SendText(ctx, owner, fmt.Sprintf("⬇️ Downloading %s...", item.Title)); err != nil {
		b.logger.Warn().Err(err).Str("owner", string(owner)).Msg("failed to announce download")
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.finish(handle, action.SessionID, item)
	}()
	return nil
}

// finish waits for a job and reports failures. Success is the delivered
// audio itself.
func (b *Bot) finish(h *JobHandle, sessionID string, item domain.ResultItem) {
	ctx := context.Background()
	_, err := b.orch.Await(ctx, h)
	if err == nil {
		b.sessions.InvalidateSession(h.OwnerID, sessionID)
		return
	}

	var (
		timeout  *domain.TimeoutError
		delivery *domain.DeliveryError
	)
	msg := MsgDownloadFailed
	switch {
	case errors.As(err, &timeout):
		msg = MsgDownloadTimeout
	case errors.As(err, &delivery):
		msg = MsgDeliveryFailed
	}
	buttons := []domain.Button{
		{Label: "🔁 Try again", Token: callback.Encode(callback.Download(sessionID, item.ExternalID))},
		{Label: "🔍 New search", Token: callback.Encode(callback.Restart())},
	}
	if sendErr := b.messenger.SendText(ctx, h.OwnerID, msg, buttons...); sendErr != nil {
		b.logger.Error().Err(sendErr).Str("job_id", h.JobID).Msg("failed to send failure notice")
	}
}

// Wait blocks until every download started by the bot has been reported.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func buttonLabel(it domain.ResultItem) string {
	title := it.Title
	if utf8.RuneCountInString(title) > maxButtonLabel {
		title = string([]rune(title)[:maxButtonLabel-1]) + "…"
	}
	if it.DurationSeconds == nil {
		return title
	}
	d := *it.DurationSeconds
	if d >= 3600 {
		return fmt.Sprintf("%s (%d:%02d:%02d)", title, d/3600, d%3600/60, d%60)
	}
	return fmt.Sprintf("%s (%d:%02d)", title, d/60, d%60)
}
