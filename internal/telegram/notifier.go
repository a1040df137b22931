package telegram

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/mailpool/internal/email"
	"github.com/mixelka/mailpool/internal/formatter"
	"github.com/mixelka/mailpool/internal/sender"
)

// Notifier relays engine events to the user's private chat. It is
// created before the bot so the schedulers can hold it; Bind attaches
// the API once the bot exists. Events before Bind are dropped.
type Notifier struct {
	api       atomic.Pointer[bot.Bot]
	formatter *formatter.TelegramFormatter
	logger    *slog.Logger
}

// NewNotifier creates an unbound notifier
func NewNotifier(f *formatter.TelegramFormatter, logger *slog.Logger) *Notifier {
	return &Notifier{
		formatter: f,
		logger:    logger.With("component", "notifier"),
	}
}

// Bind attaches the Telegram API
func (n *Notifier) Bind(api *bot.Bot) {
	n.api.Store(api)
}

// StreamStarted reports the first successful connect of an account
func (n *Notifier) StreamStarted(ctx context.Context, userID int64, accountEmail string) {
	n.send(ctx, userID, n.formatter.FormatStreamStarted(accountEmail))
}

// StreamError reports the first failure of an account's failure streak
func (n *Notifier) StreamError(ctx context.Context, userID int64, accountEmail, summary string) {
	n.send(ctx, userID, n.formatter.FormatStreamError(accountEmail, summary))
}

// MessageReceived relays one fetched message
func (n *Notifier) MessageReceived(ctx context.Context, userID int64, msg *email.FetchedMessage) {
	n.send(ctx, userID, n.formatter.FormatIncoming(msg))
}

// SendSucceeded reports one delivered campaign message
func (n *Notifier) SendSucceeded(ctx context.Context, userID int64, toEmail, subject, bodyForLog string) {
	n.send(ctx, userID, n.formatter.FormatSendOK(toEmail, subject, bodyForLog))
}

// SendFailed reports one failed campaign message
func (n *Notifier) SendFailed(ctx context.Context, userID int64, toEmail string) {
	n.send(ctx, userID, n.formatter.FormatSendFail(toEmail))
}

// CampaignFinished reports the closing campaign summary
func (n *Notifier) CampaignFinished(ctx context.Context, userID int64, st sender.Status) {
	n.send(ctx, userID, n.formatter.FormatCampaignFinished(st.Sent, st.Failed, st.Total, st.Cancelled))
}

// send delivers to the user's private chat, where the chat ID equals
// the user ID.
func (n *Notifier) send(ctx context.Context, userID int64, text string) {
	api := n.api.Load()
	if api == nil {
		n.logger.Warn("notification dropped, bot not bound yet", "user_id", userID)
		return
	}

	_, err := api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    userID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		n.logger.Error("failed to deliver notification", "user_id", userID, "error", err)
	}
}
