package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramLimit is the maximum length of one Telegram text message.
const telegramLimit = 4096

// Telegram posts escalations to a kitchen management chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot token against the Bot API.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	return newTelegram(token, tgbotapi.APIEndpoint, chatID)
}

func newTelegram(token, endpoint string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Send posts a plain-text summary. The Bot API client has no context support,
// so ctx is only checked before the call.
func (t *Telegram) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("notify: telegram: %w", err)
	}
	text := fmt.Sprintf("%s %s\n%s\nTo: %s\n\n%s", severityLabel(m.Severity), m.Subject, headline(m), m.To, m.Body)
	if r := []rune(text); len(r) > telegramLimit {
		text = string(r[:telegramLimit-1]) + "…"
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("notify: telegram: send: %w", err)
	}
	return nil
}
