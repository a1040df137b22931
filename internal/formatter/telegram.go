package formatter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mixelka/mailpool/internal/email"
	"github.com/mixelka/mailpool/internal/state"
	"github.com/mixelka/mailpool/pkg/models"
)

// Strips reply/forward prefixes when comparing subject and body lines
var replyPrefix = regexp.MustCompile(`(?i)^(re|fw|fwd)\s*:\s*`)

// TelegramFormatter renders notifications as Telegram HTML
type TelegramFormatter struct {
	maxLength int
}

// NewTelegramFormatter creates a Telegram formatter
func NewTelegramFormatter() *TelegramFormatter {
	return &TelegramFormatter{
		maxLength: 4000, // Leave room for markup
	}
}

// FormatIncoming renders a fetched mailbox message
func (f *TelegramFormatter) FormatIncoming(msg *email.FetchedMessage) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("⚡️ Получено сообщение на %s от %s\n",
		f.code(msg.AccountEmail), f.code(msg.FromEmail)))
	sb.WriteString(fmt.Sprintf("(%s &lt;%s&gt;)\n\n", f.code(msg.FromName), f.code(msg.FromEmail)))
	sb.WriteString(fmt.Sprintf("Тема:\n%s\n\n", f.code(msg.Subject)))

	body := f.truncate(msg.Body, f.maxLength-sb.Len()-50)
	sb.WriteString(fmt.Sprintf("Текст:\n%s", f.code(body)))

	return sb.String()
}

// FormatStreamStarted renders the one-time stream start notice
func (f *TelegramFormatter) FormatStreamStarted(accountEmail string) string {
	return fmt.Sprintf("Поток для %s запущен⚡", f.code(accountEmail))
}

// FormatStreamError renders the one-time stream failure notice
func (f *TelegramFormatter) FormatStreamError(accountEmail, summary string) string {
	return fmt.Sprintf("Ошибка подключения потока для %s: %s",
		f.code(accountEmail), f.code(f.truncate(summary, 180)))
}

// FormatSendOK renders a delivery confirmation. When the body opens with
// a line equal to the subject (modulo Re:/Fwd: prefixes), that line is
// dropped so the log does not repeat itself.
func (f *TelegramFormatter) FormatSendOK(toEmail, subject, body string) string {
	subjClean := replyPrefix.ReplaceAllString(strings.TrimSpace(subject), "")

	lines := strings.Split(body, "\n")
	if len(lines) > 0 {
		firstClean := replyPrefix.ReplaceAllString(strings.TrimSpace(lines[0]), "")
		if strings.EqualFold(firstClean, subjClean) {
			body = strings.TrimLeft(strings.Join(lines[1:], "\n"), "\n")
		}
	}

	var sb strings.Builder
	sb.WriteString("Сообщение " + f.code(subject))
	if body != "" {
		sb.WriteString("\n" + f.code(f.truncate(body, f.maxLength-sb.Len()-100)))
	}
	sb.WriteString(fmt.Sprintf("\nуспешно отправлено пользователю %s ⚡", f.code(toEmail)))
	return sb.String()
}

// FormatSendFail renders a delivery failure notice
func (f *TelegramFormatter) FormatSendFail(toEmail string) string {
	return fmt.Sprintf("Не удалось отправить пользователю %s", f.code(toEmail))
}

// FormatCampaignFinished renders the campaign closing summary
func (f *TelegramFormatter) FormatCampaignFinished(sent, failed, total int, cancelled bool) string {
	head := "Сендинг завершён ✅"
	if cancelled {
		head = "Сендинг остановлен ⏹"
	}
	return fmt.Sprintf("%s\nОтправлено: %d\nНе отправлено: %d\nВсего: %d", head, sent, failed, total)
}

// FormatCampaignStatus renders the live campaign counters
func (f *TelegramFormatter) FormatCampaignStatus(running bool, sent, failed, total int) string {
	st := "остановлен"
	if running {
		st = "идёт"
	}
	return fmt.Sprintf("Статус: %s\nОтправлено: %d\nНе отправлено: %d\nВсего: %d", st, sent, failed, total)
}

// FormatPollStatus renders the per-account reading status
func (f *TelegramFormatter) FormatPollStatus(running bool, accounts []*models.Account, states map[int64]state.AccountState) string {
	var sb strings.Builder
	if running {
		sb.WriteString("Чтение: запущено 🟢\n")
	} else {
		sb.WriteString("Чтение: остановлено 🔴\n")
	}

	if len(accounts) == 0 {
		sb.WriteString("Аккаунтов нет.")
		return sb.String()
	}

	for _, acc := range accounts {
		st, tracked := states[acc.ID]
		switch {
		case !tracked:
			sb.WriteString(fmt.Sprintf("⏳ %s — ожидает\n", f.code(acc.Email)))
		case st.Connected:
			sb.WriteString(fmt.Sprintf("🟢 %s\n", f.code(acc.Email)))
		default:
			line := fmt.Sprintf("🔴 %s", f.code(acc.Email))
			if st.LastError != "" {
				line += fmt.Sprintf(" — %s", f.code(f.truncate(st.LastError, 120)))
			}
			if !st.NextRetryAt.IsZero() {
				line += fmt.Sprintf(" (повтор в %s)", st.NextRetryAt.Format("15:04:05"))
			}
			sb.WriteString(line + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatProxyReport renders the result of a proxy health sweep
func (f *TelegramFormatter) FormatProxyReport(kind models.ProxyKind, total int, bad []*models.Proxy) string {
	label := "verify"
	if kind == models.ProxySend {
		label = "send"
	}
	if total == 0 {
		return fmt.Sprintf("Прокси (%s): не настроены.", label)
	}
	if len(bad) == 0 {
		return fmt.Sprintf("Прокси (%s): все %d рабочие ✅", label, total)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Прокси (%s): %d из %d не отвечают ⚠️\n", label, len(bad), total))
	for _, prx := range bad {
		sb.WriteString(fmt.Sprintf("🔴 %s\n", f.code(prx.Addr())))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (f *TelegramFormatter) code(s string) string {
	return "<code>" + f.escapeHTML(s) + "</code>"
}

// escapeHTML escapes HTML special characters for Telegram
func (f *TelegramFormatter) escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// truncate caps text at maxLen runes
func (f *TelegramFormatter) truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 100
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}
