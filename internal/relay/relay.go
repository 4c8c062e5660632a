// Package relay consumes inbound messages from the bus, routes them
// through an ordered dispatch table, and answers each one: recognized
// bot commands get the welcome text, everything else is forwarded to
// the inference provider.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"webuibot/internal/domain"
	"webuibot/internal/logging"
	"webuibot/internal/metrics"
)

// Apology is the only text users see when inference fails, whatever the
// underlying cause. Details stay in the logs.
const Apology = "Sorry, something went wrong. Please try again later."

// welcomeCommands are the bot commands answered with the welcome text.
// Unlisted commands fall through to inference like any other text.
var welcomeCommands = map[string]struct{}{
	"start": {},
	"help":  {},
}

// Relay wires the bus to the provider.
type Relay struct {
	provider   domain.Provider
	bus        domain.MessageBus
	welcome    string
	logger     *slog.Logger
	dispatcher *Dispatcher
}

type Config struct {
	Provider domain.Provider
	Bus      domain.MessageBus
	Welcome  string // reply for recognized commands, sent verbatim
	Logger   *slog.Logger
}

func New(cfg Config) *Relay {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Relay{
		provider:   cfg.Provider,
		bus:        cfg.Bus,
		welcome:    cfg.Welcome,
		logger:     cfg.Logger,
		dispatcher: NewDispatcher(),
	}
	r.dispatcher.Handle(isWelcomeCommand, r.handleCommand)
	r.dispatcher.Handle(func(domain.InboundMessage) bool { return true }, r.handleQuery)
	return r
}

func isWelcomeCommand(msg domain.InboundMessage) bool {
	_, ok := welcomeCommands[msg.Command]
	return ok
}

// Run consumes inbound messages until ctx is cancelled or the bus closes.
// Each message is dispatched in its own goroutine so one slow inference
// call never blocks the next user.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Info("relay started", "provider", r.provider.Name())

	inbound := r.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				r.logger.Info("inbound channel closed, relay stopping")
				return
			}
			go r.dispatch(ctx, msg)
		}
	}
}

func (r *Relay) dispatch(ctx context.Context, msg domain.InboundMessage) {
	metrics.ActiveDispatches.Inc()
	defer metrics.ActiveDispatches.Dec()
	metrics.MessagesTotal.Inc()

	if !r.dispatcher.Dispatch(ctx, msg) {
		r.logger.Warn("no handler matched message", "channel", msg.Channel, "chat_id", msg.ChatID)
	}
}

// handleCommand answers /start and /help with the welcome text. No
// inference call, no typing indicator.
func (r *Relay) handleCommand(ctx context.Context, msg domain.InboundMessage) {
	metrics.CommandsTotal.Inc()
	r.logger.Info("user started conversation",
		"command", msg.Command,
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"chat_id", msg.ChatID,
	)
	r.bus.SendOutbound(domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		ReplyTo: msg.MessageID,
		Text:    r.welcome,
	})
}

// handleQuery forwards the message text to the provider and replies with
// the generated text, or the apology when anything goes wrong.
func (r *Relay) handleQuery(ctx context.Context, msg domain.InboundMessage) {
	log := logging.WithMessageID(r.logger, uuid.NewString())
	log.Info("message received",
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"chat_id", msg.ChatID,
		"query", preview(msg.Text, 50),
	)

	// Typing feedback while the model works.
	r.bus.SendOutbound(domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Typing:  true,
	})

	start := time.Now()
	resp, err := r.provider.Chat(ctx, domain.ChatRequest{
		Query:    msg.Text,
		SenderID: msg.SenderID,
		ChatID:   msg.ChatID,
	})
	elapsed := time.Since(start)
	metrics.InferenceLatency.Observe(elapsed.Seconds())

	var text string
	if err != nil {
		metrics.FailuresTotal.Inc()
		log.Error("inference failed",
			"sender", msg.SenderID,
			"chat_id", msg.ChatID,
			"latency_ms", elapsed.Milliseconds(),
			"error", err,
		)
		text = Apology
	} else {
		metrics.RepliesTotal.Inc()
		log.Info("message processed",
			"latency_ms", resp.LatencyMs,
			"reply", preview(resp.Content, 100),
		)
		text = resp.Content
	}

	r.bus.SendOutbound(domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		ReplyTo: msg.MessageID,
		Text:    text,
	})
}

// preview shortens s for log output without splitting runes.
func preview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
