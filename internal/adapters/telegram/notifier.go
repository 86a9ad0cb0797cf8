package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ai-news-digest/internal/domain"
	"ai-news-digest/internal/infra/metrics"
)

// Sender — часть tgbotapi.BotAPI, нужная для отправки сообщений.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier отправляет HTML-дайджесты в чат, разбивая их на части.
type Notifier struct {
	bot Sender
}

var _ domain.Notifier = (*Notifier)(nil)

// NewNotifier создаёт отправителя дайджестов.
func NewNotifier(bot Sender) *Notifier {
	return &Notifier{bot: bot}
}

// SendDigest отправляет text в chatID. Ошибка на любой части прерывает отправку.
func (n *Notifier) SendDigest(ctx context.Context, chatID int64, text string) error {
	parts := SplitMessage(text)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := NewHTMLMessage(chatID, part)
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_digest", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			return fmt.Errorf("send part %d/%d: %w", i+1, len(parts), err)
		}
	}
	return nil
}

// NewHTMLMessage создаёт сообщение с HTML-разметкой без превью ссылок.
func NewHTMLMessage(chatID int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return msg
}
