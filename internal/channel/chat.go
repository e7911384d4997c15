package channel

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"notify-fanout/internal/ratelimit"
)

// ChatAdapter sends chat-bot messages over Telegram via
// go-telegram-bot-api/telegram-bot-api. Default per-second rate 25, default
// concurrency 5 per §4.4.3 — Telegram's bot API itself caps at roughly 30
// messages/second, so the default sits just under it.
type ChatAdapter struct {
	bot         *tgbotapi.BotAPI
	limiter     *ratelimit.MinTimeLimiter
	concurrency int
}

// NewChatAdapter dials the Telegram bot API once and reuses the *BotAPI
// client across every Send call, mirroring the teacher's single long-lived
// *redis.Client / *nats.Conn handles in internal/persistence and
// internal/queue/nats. ratePerSecond/concurrency of 0 fall back to §4.4.3's
// defaults (25/sec, 5 concurrent).
func NewChatAdapter(token string, ratePerSecond, concurrency int) (*ChatAdapter, error) {
	if ratePerSecond <= 0 {
		ratePerSecond = 25
	}
	if concurrency <= 0 {
		concurrency = 5
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, &InitError{msg: "telegram: " + err.Error()}
	}

	return &ChatAdapter{
		bot:         bot,
		limiter:     ratelimit.NewChannelLimiter(concurrency, ratePerSecond),
		concurrency: concurrency,
	}, nil
}

func (a *ChatAdapter) Send(recipients []string, metas []Meta, logger *zap.Logger) []Result {
	return Send(recipients, metas, a.limiter, a.sendOne, a.concurrency, logger)
}

func (a *ChatAdapter) sendOne(idx int, recipient string, meta Meta, logger *zap.Logger) Result {
	chat, ok := meta.(ChatMeta)
	if !ok {
		return Result{Status: StatusError, Recipient: recipient, Error: "Missing meta for recipient"}
	}

	if chat.Text == "" {
		return Result{Status: StatusError, Recipient: recipient, Error: "MISSING_TEXT"}
	}

	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return Result{Status: StatusError, Recipient: recipient, Error: "INVALID_CHAT_ID"}
	}

	parseMode := chat.ParseMode
	if parseMode == "" {
		parseMode = tgbotapi.ModeHTML
	}

	msg := tgbotapi.NewMessage(chatID, chat.Text)
	msg.ParseMode = parseMode
	applyPassthrough(&msg, chat.Passthrough)

	sent, err := a.bot.Send(msg)
	if err != nil {
		return Result{
			Status:    StatusError,
			Recipient: recipient,
			Error:     sanitizeErrorKey(telegramErrorCode(err), err.Error()),
		}
	}

	return Result{
		Status:    StatusSuccess,
		Recipient: recipient,
		Response:  map[string]any{"message_id": sent.MessageID, "chat_id": sent.Chat.ID},
	}
}

// applyPassthrough overlays the recognized §4.4.3 "passthrough formatting
// fields" onto msg: disable_notification, disable_web_page_preview, and
// reply_to_message_id. Unrecognized keys are ignored rather than rejected,
// since the meta contract allows arbitrary extra fields.
func applyPassthrough(msg *tgbotapi.MessageConfig, passthrough map[string]any) {
	if v, ok := passthrough["disable_notification"].(bool); ok {
		msg.DisableNotification = v
	}
	if v, ok := passthrough["disable_web_page_preview"].(bool); ok {
		msg.DisableWebPagePreview = v
	}
	if v, ok := passthrough["reply_to_message_id"]; ok {
		if id, ok := toInt(v); ok {
			msg.ReplyToMessageID = id
		}
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// telegramErrorCode pulls the numeric HTTP-ish status code off a
// tgbotapi.Error when the library returned one, otherwise falls back to a
// generic code, matching §4.4's "<status_code>:<description>" format.
func telegramErrorCode(err error) string {
	if tgErr, ok := err.(*tgbotapi.Error); ok {
		return strconv.Itoa(tgErr.Code)
	}
	return "TELEGRAM_ERROR"
}
