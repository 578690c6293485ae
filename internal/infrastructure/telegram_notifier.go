package infrastructure

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"tracker_suite/internal/interfaces"
)

// TelegramNotifier posts admin alerts to a single Telegram chat.
type TelegramNotifier struct {
	Bot    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier returns a Telegram notifier when a token and chat are configured,
// and a no-op notifier otherwise.
func NewNotifier(token string, chatID int64, log *zap.Logger) interfaces.Notifier {
	if token == "" || chatID == 0 {
		return NopNotifier{}
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Warn("telegram bot token issue, admin alerts disabled", zap.Error(err))
		return NopNotifier{}
	}
	log.Info("telegram admin alerts enabled", zap.String("bot", bot.Self.UserName))
	return &TelegramNotifier{Bot: bot, chatID: chatID}
}

func (t *TelegramNotifier) Notify(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.Bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) error { return nil }
