package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/mailpool/internal/database"
	"github.com/mixelka/mailpool/internal/sender"
	appmodels "github.com/mixelka/mailpool/pkg/models"
)

// handleAddAccounts handles /quickadd: one account per line after the command
func (b *Bot) handleAddAccounts(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	userID := msg.From.ID

	lines := parseAccountLines(commandArgs(msg.Text))
	if len(lines) == 0 {
		b.sendMessage(ctx, msg.Chat.ID,
			"Использование:\n<code>/quickadd\nemail@gmail.com:пароль\nemail2@mail.ru:пароль:Имя</code>")
		return
	}

	// The message carries passwords, remove it right away
	b.deleteMessage(ctx, msg.Chat.ID, msg.ID)

	added := 0
	for _, line := range lines {
		account := &appmodels.Account{
			UserID:      userID,
			DisplayName: line.Name,
			Email:       line.Email,
			Password:    line.Password,
			Active:      true,
		}
		if err := b.db.CreateAccount(ctx, account); err != nil {
			if !errors.Is(err, database.ErrAlreadyExists) {
				b.logger.Error("failed to add account", "email", line.Email, "error", err)
			}
			continue
		}
		// Pre-existing unread mail must not flood the chat on the
		// first poll of a fresh account
		b.tracker.MarkFirstPass(userID, account.ID)
		added++
	}

	b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("Добавлено аккаунтов: %d из %d", added, len(lines)))

	// Adding accounts implies the user wants them read
	if added > 0 {
		b.poller.Start(ctx, userID)
	}
}

// handleListAccounts handles /accounts
func (b *Bot) handleListAccounts(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	accounts, err := b.db.ListAccounts(ctx, msg.From.ID)
	if err != nil {
		b.logger.Error("failed to list accounts", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Ошибка чтения списка аккаунтов")
		return
	}
	if len(accounts) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, "Аккаунтов нет. Добавьте через /quickadd")
		return
	}

	var sb strings.Builder
	sb.WriteString("<b>Аккаунты:</b>\n")
	for _, acc := range accounts {
		mark := "🟢"
		if !acc.Active {
			mark = "⚪️"
		}
		sb.WriteString(fmt.Sprintf("%s <code>%d</code> %s (%s)\n", mark, acc.ID, acc.Email, acc.DisplayName))
	}
	b.sendMessage(ctx, msg.Chat.ID, strings.TrimRight(sb.String(), "\n"))
}

// handleEnableAccount handles /enable id
func (b *Bot) handleEnableAccount(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.setAccountActive(ctx, update, true)
}

// handleDisableAccount handles /disable id
func (b *Bot) handleDisableAccount(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.setAccountActive(ctx, update, false)
}

func (b *Bot) setAccountActive(ctx context.Context, update *models.Update, active bool) {
	msg := update.Message
	userID := msg.From.ID

	acc, ok := b.ownedAccount(ctx, msg.Chat.ID, userID, commandArgs(msg.Text))
	if !ok {
		return
	}

	if err := b.db.SetAccountActive(ctx, acc.ID, active); err != nil {
		b.logger.Error("failed to toggle account", "account_id", acc.ID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Ошибка изменения аккаунта")
		return
	}

	if active {
		// Re-enabled accounts start with a clean slate and suppress
		// backlog accumulated while they were off
		b.tracker.Forget(userID, acc.ID)
		b.tracker.MarkFirstPass(userID, acc.ID)
		b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("Аккаунт %s включён", acc.Email))
	} else {
		b.tracker.Forget(userID, acc.ID)
		b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("Аккаунт %s выключен", acc.Email))
	}
}

// handleDeleteAccount handles /delaccount id
func (b *Bot) handleDeleteAccount(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	userID := msg.From.ID

	acc, ok := b.ownedAccount(ctx, msg.Chat.ID, userID, commandArgs(msg.Text))
	if !ok {
		return
	}

	if err := b.db.DeleteAccount(ctx, acc.ID); err != nil {
		b.logger.Error("failed to delete account", "account_id", acc.ID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Ошибка удаления аккаунта")
		return
	}
	b.tracker.Forget(userID, acc.ID)
	b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("Аккаунт %s удалён", acc.Email))
}

// ownedAccount resolves an account id argument and checks ownership
func (b *Bot) ownedAccount(ctx context.Context, chatID, userID int64, arg string) (*appmodels.Account, bool) {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		b.sendMessage(ctx, chatID, "Укажите id аккаунта из /accounts")
		return nil, false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		b.sendMessage(ctx, chatID, "Укажите id аккаунта из /accounts")
		return nil, false
	}

	acc, err := b.db.GetAccountByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		b.sendMessage(ctx, chatID, "Аккаунт не найден")
		return nil, false
	}
	if err != nil {
		b.logger.Error("failed to load account", "account_id", id, "error", err)
		b.sendMessage(ctx, chatID, "Ошибка чтения аккаунта")
		return nil, false
	}
	if acc.UserID != userID {
		b.sendMessage(ctx, chatID, "Аккаунт не найден")
		return nil, false
	}
	return acc, true
}

// handleAddProxies handles /addproxy kind: one proxy per line
func (b *Bot) handleAddProxies(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	userID := msg.From.ID

	args := commandArgs(msg.Text)
	fields := strings.Fields(args)
	usage := "Использование:\n<code>/addproxy verify\nhost:port\nhost:port:логин:пароль</code>"
	if len(fields) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, usage)
		return
	}

	kind := appmodels.ProxyKind(fields[0])
	if kind != appmodels.ProxyVerify && kind != appmodels.ProxySend {
		b.sendMessage(ctx, msg.Chat.ID, usage)
		return
	}

	body := strings.TrimSpace(strings.TrimPrefix(args, fields[0]))
	lines := parseProxyLines(body)
	if len(lines) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, usage)
		return
	}

	added := 0
	for _, line := range lines {
		prx := &appmodels.Proxy{
			UserID:   userID,
			Kind:     kind,
			Host:     line.Host,
			Port:     line.Port,
			Login:    line.Login,
			Password: line.Password,
			Healthy:  true,
		}
		if err := b.db.CreateProxy(ctx, prx); err != nil {
			b.logger.Error("failed to add proxy", "proxy", line.Host, "error", err)
			continue
		}
		added++
	}
	b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("Добавлено %s-прокси: %d из %d", kind, added, len(lines)))
}

// handleListProxies handles /proxies
func (b *Bot) handleListProxies(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	userID := msg.From.ID

	var sb strings.Builder
	for _, kind := range []appmodels.ProxyKind{appmodels.ProxyVerify, appmodels.ProxySend} {
		proxies, err := b.db.ListProxies(ctx, userID, kind)
		if err != nil {
			b.logger.Error("failed to list proxies", "kind", kind, "error", err)
			b.sendMessage(ctx, msg.Chat.ID, "Ошибка чтения списка прокси")
			return
		}
		sb.WriteString(fmt.Sprintf("<b>%s:</b>\n", kind))
		if len(proxies) == 0 {
			sb.WriteString("нет\n")
			continue
		}
		for _, prx := range proxies {
			mark := "🟢"
			if !prx.Healthy {
				mark = "🔴"
			}
			sb.WriteString(fmt.Sprintf("%s <code>%d</code> %s\n", mark, prx.ID, prx.Addr()))
		}
	}
	b.sendMessage(ctx, msg.Chat.ID, strings.TrimRight(sb.String(), "\n"))
}

// handleDeleteProxy handles /delproxy id
func (b *Bot) handleDeleteProxy(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	id, err := strconv.ParseInt(commandArgs(msg.Text), 10, 64)
	if err != nil {
		b.sendMessage(ctx, msg.Chat.ID, "Укажите id прокси из /proxies")
		return
	}
	if err := b.db.DeleteProxy(ctx, id); err != nil {
		b.logger.Error("failed to delete proxy", "proxy_id", id, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Ошибка удаления прокси")
		return
	}
	b.sendMessage(ctx, msg.Chat.ID, "Прокси удалён")
}

// handleCheckProxies handles /checkproxies [verify|send]
func (b *Bot) handleCheckProxies(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	userID := msg.From.ID

	kinds := []appmodels.ProxyKind{appmodels.ProxyVerify, appmodels.ProxySend}
	if arg := commandArgs(msg.Text); arg == string(appmodels.ProxyVerify) || arg == string(appmodels.ProxySend) {
		kinds = []appmodels.ProxyKind{appmodels.ProxyKind(arg)}
	}

	b.sendMessage(ctx, msg.Chat.ID, "Проверяю прокси...")
	for _, kind := range kinds {
		proxies, err := b.db.ListProxies(ctx, userID, kind)
		if err != nil {
			b.logger.Error("failed to list proxies", "kind", kind, "error", err)
			continue
		}
		bad, err := b.pool.CheckAll(ctx, userID, kind, b.config.ProbeTimeout, b.db.SetProxyHealthy)
		if err != nil {
			b.sendMessage(ctx, msg.Chat.ID, "Ошибка проверки прокси")
			continue
		}
		b.sendMessage(ctx, msg.Chat.ID, b.formatter.FormatProxyReport(kind, len(proxies), bad))
	}
}

// handleAddSubject handles /addsubject text
func (b *Bot) handleAddSubject(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	subject := commandArgs(msg.Text)
	if subject == "" {
		b.sendMessage(ctx, msg.Chat.ID, "Использование: <code>/addsubject Ist OFFER noch verfügbar?</code>")
		return
	}
	if err := b.db.AddSubject(ctx, msg.From.ID, subject); err != nil {
		b.logger.Error("failed to add subject", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Ошибка сохранения темы")
		return
	}
	b.sendMessage(ctx, msg.Chat.ID, "Тема добавлена")
}

// handleAddTemplate handles /addtemplate text (may span lines)
func (b *Bot) handleAddTemplate(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	template := commandArgs(msg.Text)
	if template == "" {
		b.sendMessage(ctx, msg.Chat.ID, "Использование: <code>/addtemplate Hi SELLER, ist OFFER noch verfügbar?</code>")
		return
	}
	if err := b.db.AddTemplate(ctx, msg.From.ID, template); err != nil {
		b.logger.Error("failed to add template", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Ошибка сохранения шаблона")
		return
	}
	b.sendMessage(ctx, msg.Chat.ID, "Шаблон добавлен")
}

// handleSetDelay handles /setdelay min max (seconds)
func (b *Bot) handleSetDelay(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	userID := msg.From.ID

	fields := strings.Fields(commandArgs(msg.Text))
	usage := "Использование: <code>/setdelay 20 40</code> (секунды)"
	if len(fields) != 2 {
		b.sendMessage(ctx, msg.Chat.ID, usage)
		return
	}
	min, err1 := strconv.Atoi(fields[0])
	max, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || min < 0 || max < min {
		b.sendMessage(ctx, msg.Chat.ID, usage)
		return
	}

	if err := b.db.SetSetting(ctx, userID, database.SettingSendDelayMin, strconv.Itoa(min)); err != nil {
		b.logger.Error("failed to save delay", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Ошибка сохранения настройки")
		return
	}
	if err := b.db.SetSetting(ctx, userID, database.SettingSendDelayMax, strconv.Itoa(max)); err != nil {
		b.logger.Error("failed to save delay", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Ошибка сохранения настройки")
		return
	}
	b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("Пауза между письмами: %d–%d сек", min, max))
}

// handleStrict handles /strict on|off
func (b *Bot) handleStrict(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	var value string
	switch commandArgs(msg.Text) {
	case "on":
		value = "1"
	case "off":
		value = "0"
	default:
		b.sendMessage(ctx, msg.Chat.ID, "Использование: <code>/strict on</code> или <code>/strict off</code>")
		return
	}
	if err := b.db.SetSetting(ctx, msg.From.ID, database.SettingVerifyStrict, value); err != nil {
		b.logger.Error("failed to save strict mode", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Ошибка сохранения настройки")
		return
	}
	if value == "1" {
		b.sendMessage(ctx, msg.Chat.ID, "Строгий режим включён: без verify-прокси подключений не будет")
	} else {
		b.sendMessage(ctx, msg.Chat.ID, "Строгий режим выключен: разрешён прямой фолбэк")
	}
}

// handleRead handles /read
func (b *Bot) handleRead(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	userID := msg.From.ID

	accounts, err := b.db.ListActiveAccounts(ctx, userID)
	if err != nil {
		b.logger.Error("failed to list accounts", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Ошибка чтения списка аккаунтов")
		return
	}
	if len(accounts) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, "Нет активных аккаунтов. Добавьте через /quickadd")
		return
	}

	if !b.poller.Start(ctx, userID) {
		b.sendMessage(ctx, msg.Chat.ID, "Чтение уже запущено")
		return
	}
	b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("Чтение запущено для %d аккаунтов 🚀", len(accounts)))
}

// handleStopRead handles /stopread
func (b *Bot) handleStopRead(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	if !b.poller.Stop(msg.From.ID) {
		b.sendMessage(ctx, msg.Chat.ID, "Чтение не запущено")
		return
	}
	b.sendMessage(ctx, msg.Chat.ID, "Чтение остановлено ⏹")
}

// handleStatus handles /status
func (b *Bot) handleStatus(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	userID := msg.From.ID

	accounts, err := b.db.ListActiveAccounts(ctx, userID)
	if err != nil {
		b.logger.Error("failed to list accounts", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Ошибка чтения списка аккаунтов")
		return
	}

	running := b.poller.Running(userID)
	states := b.tracker.Snapshot(userID)
	b.sendMessage(ctx, msg.Chat.ID, b.formatter.FormatPollStatus(running, accounts, states))
}

// handleSend handles /send: recipients follow the command, one per line
func (b *Bot) handleSend(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	userID := msg.From.ID

	// The /send* commands share a prefix, dispatch explicitly
	switch {
	case strings.HasPrefix(msg.Text, "/sendstatus"):
		b.handleSendStatus(ctx, tgBot, update)
		return
	case strings.HasPrefix(msg.Text, "/sendone"):
		b.handleSendOne(ctx, tgBot, update)
		return
	}

	recipients := parseRecipientLines(commandArgs(msg.Text))
	if len(recipients) == 0 {
		b.sendMessage(ctx, msg.Chat.ID,
			"Использование:\n<code>/send\nbuyer@mail.com;Продавец;Название товара</code>")
		return
	}

	err := b.sender.Start(ctx, userID, recipients)
	if errors.Is(err, sender.ErrCampaignRunning) {
		b.sendMessage(ctx, msg.Chat.ID, "Сендинг уже запущен")
		return
	}
	if err != nil {
		b.logger.Error("failed to start campaign", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Ошибка запуска сендинга")
		return
	}
	b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("Сендинг запущен: %d получателей 🚀", len(recipients)))
}

// handleCancelSend handles /cancelsend
func (b *Bot) handleCancelSend(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	if !b.sender.Cancel(msg.From.ID) {
		b.sendMessage(ctx, msg.Chat.ID, "Сендинг не запущен")
		return
	}
	b.sendMessage(ctx, msg.Chat.ID, "Останавливаю сендинг...")
}

// handleSendStatus handles /sendstatus
func (b *Bot) handleSendStatus(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	st, ok := b.sender.Status(msg.From.ID)
	if !ok {
		b.sendMessage(ctx, msg.Chat.ID, "Сендинг не запускался")
		return
	}
	b.sendMessage(ctx, msg.Chat.ID, b.formatter.FormatCampaignStatus(st.Running, st.Sent, st.Failed, st.Total))
}

// handleSendOne handles /sendone: recipient, subject and body on
// separate lines after the command
func (b *Bot) handleSendOne(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	usage := "Использование:\n<code>/sendone\nbuyer@mail.com\nТема\nТекст письма</code>"
	lines := strings.SplitN(commandArgs(msg.Text), "\n", 3)
	if len(lines) < 3 {
		b.sendMessage(ctx, msg.Chat.ID, usage)
		return
	}
	to := strings.TrimSpace(lines[0])
	subject := strings.TrimSpace(lines[1])
	body := lines[2]
	if !strings.Contains(to, "@") || subject == "" || strings.TrimSpace(body) == "" {
		b.sendMessage(ctx, msg.Chat.ID, usage)
		return
	}

	if err := b.sender.SendDirect(ctx, msg.From.ID, to, subject, body); err != nil {
		b.logger.Warn("direct send failed", "to", to, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, b.formatter.FormatSendFail(to))
		return
	}
	b.sendMessage(ctx, msg.Chat.ID, b.formatter.FormatSendOK(to, subject, body))
}

// deleteMessage removes a chat message, used for messages with secrets
func (b *Bot) deleteMessage(ctx context.Context, chatID int64, messageID int) {
	_, err := b.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil {
		b.logger.Warn("failed to delete message", "error", err)
	}
}
