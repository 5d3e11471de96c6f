// Package notify pages a human when the engine gives up, through a single
// NotifyFatal call. In this module its one caller is cmd/engine, which
// calls NotifyFatal when the engine fails to stop within its shutdown
// deadline; the engine, reconciler and clients do not call it.
//
// Grounded on bot/telegram.go's TelegramBot from the teacher repo, but
// trimmed hard: the teacher's bot also accepted pause/resume/stats
// commands and pushed NotifySignal/NotifyTrade/NotifyPnL/NotifyDailySummary
// updates. None of that belongs to an execution engine — operators watch
// dashboards for trade flow, they get paged only when the engine has
// stopped routing orders on its own.
package notify

import (
	"fmt"
	"os"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Notifier pages an operator when the engine can no longer make progress
// on its own.
type Notifier interface {
	NotifyFatal(reason string, err error)
}

// Noop discards every notification. It is the default when no Telegram
// credentials are configured, matching the teacher's pattern of letting
// the bot be absent in dev/test without the caller needing to branch.
type Noop struct{}

func (Noop) NotifyFatal(reason string, err error) {
	log.Error().Str("reason", reason).Err(err).Msg("notify: fatal (noop notifier, no sink configured)")
}

// Telegram pages a single chat over the Telegram Bot API.
type Telegram struct {
	mu     sync.Mutex
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramFromEnv builds a Telegram notifier from TELEGRAM_BOT_TOKEN
// and TELEGRAM_CHAT_ID. It returns Noop{} rather than an error when
// either is unset, so wiring it in cmd/engine never requires an
// environment-specific code path.
func NewTelegramFromEnv() Notifier {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	chatIDStr := os.Getenv("TELEGRAM_CHAT_ID")
	if token == "" || chatIDStr == "" {
		return Noop{}
	}

	var chatID int64
	if _, err := fmt.Sscanf(chatIDStr, "%d", &chatID); err != nil {
		log.Error().Err(err).Msg("notify: invalid TELEGRAM_CHAT_ID, falling back to noop notifier")
		return Noop{}
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Error().Err(err).Msg("notify: failed to start telegram bot, falling back to noop notifier")
		return Noop{}
	}

	return &Telegram{api: api, chatID: chatID}
}

// NotifyFatal sends a single markdown alert naming why the engine
// stopped.
func (t *Telegram) NotifyFatal(reason string, err error) {
	msg := fmt.Sprintf("🛑 *EXECUTION ENGINE STOPPED*\n\n*Reason:* %s", reason)
	if err != nil {
		msg += fmt.Sprintf("\n```\n%s\n```", err.Error())
	}
	t.send(msg)
}

func (t *Telegram) send(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := t.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("notify: failed to send telegram message")
	}
}
