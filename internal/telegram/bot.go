package telegram

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/mailpool/internal/config"
	"github.com/mixelka/mailpool/internal/database"
	"github.com/mixelka/mailpool/internal/formatter"
	"github.com/mixelka/mailpool/internal/proxy"
	"github.com/mixelka/mailpool/internal/sender"
	"github.com/mixelka/mailpool/internal/state"
	appmodels "github.com/mixelka/mailpool/pkg/models"
)

// PollScheduler is the polling engine as seen from the bot
type PollScheduler interface {
	Start(ctx context.Context, userID int64) bool
	Stop(userID int64) bool
	Running(userID int64) bool
}

// SendScheduler is the campaign engine as seen from the bot
type SendScheduler interface {
	Start(ctx context.Context, userID int64, recipients []appmodels.Recipient) error
	Cancel(userID int64) bool
	Status(userID int64) (sender.Status, bool)
	SendDirect(ctx context.Context, userID int64, to, subject, body string) error
}

// Bot is the Telegram control surface of the pool
type Bot struct {
	bot       *bot.Bot
	db        *database.DB
	pool      *proxy.Pool
	tracker   *state.Tracker
	poller    PollScheduler
	sender    SendScheduler
	formatter *formatter.TelegramFormatter
	logger    *slog.Logger
	config    *config.Config
}

// BotDeps dependencies for creating a bot
type BotDeps struct {
	Config    *config.Config
	DB        *database.DB
	Pool      *proxy.Pool
	Tracker   *state.Tracker
	Poller    PollScheduler
	Sender    SendScheduler
	Notifier  *Notifier
	Formatter *formatter.TelegramFormatter
	Logger    *slog.Logger
}

// NewBot creates the Telegram bot and binds the notifier to it
func NewBot(deps BotDeps) (*Bot, error) {
	b := &Bot{
		db:        deps.DB,
		pool:      deps.Pool,
		tracker:   deps.Tracker,
		poller:    deps.Poller,
		sender:    deps.Sender,
		formatter: deps.Formatter,
		logger:    deps.Logger.With("component", "telegram_bot"),
		config:    deps.Config,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}

	tgBot, err := bot.New(deps.Config.TelegramToken, opts...)
	if err != nil {
		return nil, err
	}

	b.bot = tgBot
	deps.Notifier.Bind(tgBot)
	b.registerHandlers()

	return b, nil
}

// registerHandlers registers command handlers
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.handleHelp)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, b.handleHelp)

	// Command names are chosen so no registered pattern is a prefix of
	// another (except the /send* family, disambiguated in the handler)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/quickadd", bot.MatchTypePrefix, b.handleAddAccounts)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/accounts", bot.MatchTypePrefix, b.handleListAccounts)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/enable", bot.MatchTypePrefix, b.handleEnableAccount)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/disable", bot.MatchTypePrefix, b.handleDisableAccount)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/delaccount", bot.MatchTypePrefix, b.handleDeleteAccount)

	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/addproxy", bot.MatchTypePrefix, b.handleAddProxies)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/proxies", bot.MatchTypePrefix, b.handleListProxies)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/delproxy", bot.MatchTypePrefix, b.handleDeleteProxy)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/checkproxies", bot.MatchTypePrefix, b.handleCheckProxies)

	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/addsubject", bot.MatchTypePrefix, b.handleAddSubject)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/addtemplate", bot.MatchTypePrefix, b.handleAddTemplate)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/setdelay", bot.MatchTypePrefix, b.handleSetDelay)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/strict", bot.MatchTypePrefix, b.handleStrict)

	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/read", bot.MatchTypePrefix, b.handleRead)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/stopread", bot.MatchTypePrefix, b.handleStopRead)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, b.handleStatus)

	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/send", bot.MatchTypePrefix, b.handleSend)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancelsend", bot.MatchTypePrefix, b.handleCancelSend)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/sendstatus", bot.MatchTypePrefix, b.handleSendStatus)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/sendone", bot.MatchTypePrefix, b.handleSendOne)
}

// Start starts the bot
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("starting telegram bot")
	b.bot.Start(ctx)
}

// defaultHandler handles unknown messages
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	if update.Message.Text != "" && update.Message.Text[0] == '/' {
		b.logger.Debug("unknown command", "text", update.Message.Text)
	}
}

// sendMessage sends an HTML message to a chat
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		b.logger.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}

// handleHelp handles /start and /help
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	text := `<b>Mailpool Bot</b>

Пул почтовых аккаунтов: чтение входящих через verify-прокси и рассылка через send-прокси.

<b>Аккаунты:</b>
/quickadd — добавить аккаунты (строки <code>email:пароль</code> или <code>email:пароль:имя</code>)
/accounts — список
/enable id, /disable id, /delaccount id

<b>Прокси:</b>
/addproxy verify|send — строки <code>host:port</code> или <code>host:port:логин:пароль</code>
/proxies — список
/delproxy id
/checkproxies [verify|send] — проверить доступность

<b>Чтение:</b>
/read — запустить чтение входящих
/stopread — остановить
/status — статус по аккаунтам

<b>Рассылка:</b>
/addsubject текст — тема (SELLER/ITEM/OFFER подставляются)
/addtemplate текст — шаблон письма
/setdelay мин макс — пауза между письмами, сек
/strict on|off — запрет прямых подключений без прокси
/send — строки <code>email;продавец;товар</code>
/sendone — одно письмо: адрес, тема и текст с новых строк
/cancelsend, /sendstatus`

	b.sendMessage(ctx, msg.Chat.ID, text)
}
