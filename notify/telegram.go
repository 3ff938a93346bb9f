// Package notify sends trade notifications to a Telegram chat.
package notify

import (
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram pushes messages to a single configured chat. A nil *Telegram is
// valid and discards everything, so callers never need to branch on whether
// notifications are configured.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot token and returns a notifier bound to
// chatID.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log.Printf("[Telegram] Authorized as @%s", bot.Self.UserName)
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Send delivers one message. Delivery failures are logged and swallowed;
// a notification must never take the trading loop down with it.
func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil {
		return
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, msg)); err != nil {
		log.Printf("[Telegram] Send failed: %v", err)
	}
}
