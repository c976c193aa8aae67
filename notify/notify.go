// Package notify pushes trading alerts to the operator.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gridscalper/logger"
)

// Notifier delivers operator-facing alerts. Implementations must never block
// trading on delivery failures.
type Notifier interface {
	Send(message string)
	Sendf(format string, args ...interface{})
}

// Telegram sends alerts to a single chat via a bot token.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram creates a Telegram notifier. The token is validated against the
// API during construction.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Infof("[Notify] Telegram notifier authorized as @%s", bot.Self.UserName)
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Send(message string) {
	msg := tgbotapi.NewMessage(t.chatID, message)
	if _, err := t.bot.Send(msg); err != nil {
		logger.Errorf("[Notify] Failed to send telegram message: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...interface{}) {
	t.Send(fmt.Sprintf(format, args...))
}

// LogNotifier writes alerts to the log only. Used when no Telegram
// credentials are configured.
type LogNotifier struct{}

func (LogNotifier) Send(message string) {
	logger.Infof("[Notify] %s", message)
}

func (LogNotifier) Sendf(format string, args ...interface{}) {
	logger.Infof("[Notify] "+format, args...)
}

// FromConfig returns a Telegram notifier when credentials are present,
// otherwise the log fallback.
func FromConfig(token string, chatID int64) Notifier {
	if token == "" || chatID == 0 {
		return LogNotifier{}
	}
	tg, err := NewTelegram(token, chatID)
	if err != nil {
		logger.Errorf("[Notify] Telegram disabled: %v", err)
		return LogNotifier{}
	}
	return tg
}
