package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// BotAPI abstracts the Telegram bot methods the notifier uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes alerts to a single Telegram chat
type TelegramNotifier struct {
	bot    BotAPI
	chatID int64
}

// NewTelegramNotifier creates a notifier around an existing bot client
func NewTelegramNotifier(bot BotAPI, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

// DialTelegram connects to the Telegram API with a bot token
func DialTelegram(token string, chatID int64) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	return NewTelegramNotifier(bot, chatID), nil
}

// Send implements Notifier. The bot client has no context support, so
// cancellation is only checked before sending.
func (t *TelegramNotifier) Send(ctx context.Context, alert types.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatAlert(alert))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram alert %s: %w", alert.ID, err)
	}
	return nil
}
