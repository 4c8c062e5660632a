package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"webuibot/internal/domain"
)

// Telegram caps messages at 4096 chars; stay under it with some margin.
const telegramMaxMsgLen = 4000

// Telegram implements domain.Channel for the Telegram Bot API using
// long polling.
type Telegram struct {
	token  string
	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger
}

type TelegramConfig struct {
	Token  string
	Logger *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:  cfg.Token,
		logger: cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is done.
// Text updates are published on the bus; replies arrive through the
// bus's outbound handler.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
		if err != nil {
			t.logger.Error("invalid chat id for telegram outbound", "chat_id", msg.ChatID, "err", err)
			return
		}
		if msg.Typing {
			if _, err := bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
				t.logger.Warn("typing action failed", "chat_id", chatID, "err", err)
			}
			return
		}
		t.sendMessage(chatID, msg.ReplyTo, msg.Text)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Stop is a no-op: polling stops when Start's context is cancelled, and
// StopReceivingUpdates must not run twice.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	msg, ok := fromUpdate(update)
	if !ok {
		return
	}
	t.logger.Debug("telegram update received",
		"chat_id", msg.ChatID,
		"sender", msg.SenderID,
		"command", msg.Command,
		"text_len", len(msg.Text),
	)
	t.bus.Publish(msg)
}

// fromUpdate maps a Telegram update onto an InboundMessage. The bool is
// false for updates the relay should never see: callback queries, edits,
// messages without a sender, and messages with no text after trimming.
func fromUpdate(update tgbotapi.Update) (domain.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return domain.InboundMessage{}, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return domain.InboundMessage{}, false
	}
	return domain.InboundMessage{
		Channel:   "telegram",
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		SenderID:  strconv.FormatInt(m.From.ID, 10),
		MessageID: m.MessageID,
		Text:      text,
		Command:   strings.ToLower(m.Command()),
		Timestamp: time.Unix(int64(m.Date), 0),
	}, true
}

// sendMessage delivers text, splitting past the Telegram size limit at
// newline boundaries where possible. Only the first chunk quotes the
// originating message.
func (t *Telegram) sendMessage(chatID int64, replyTo int, text string) {
	first := true
	for len(text) > 0 {
		chunk, rest := splitMessage(text)
		text = rest

		msg := tgbotapi.NewMessage(chatID, chunk)
		if first && replyTo != 0 {
			msg.ReplyToMessageID = replyTo
		}
		first = false

		if _, err := t.bot.Send(msg); err != nil {
			t.logger.Error("telegram send failed", "chat_id", chatID, "err", err)
			return
		}
	}
}

// splitMessage cuts one chunk off text. Oversized text is cut at the
// last newline inside the limit, unless that would waste more than half
// a message.
func splitMessage(text string) (chunk, rest string) {
	if len(text) <= telegramMaxMsgLen {
		return text, ""
	}
	cutAt := strings.LastIndex(text[:telegramMaxMsgLen], "\n")
	if cutAt < telegramMaxMsgLen/2 {
		cutAt = telegramMaxMsgLen
	}
	return text[:cutAt], text[cutAt:]
}
