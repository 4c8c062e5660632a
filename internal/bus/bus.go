package bus

import (
	"log/slog"
	"sync"
	"time"

	"webuibot/internal/domain"
)

// publishWait bounds how long Publish blocks on a full inbound buffer
// before the message is dropped.
const publishWait = 5 * time.Second

const defaultBufferSize = 64

// InMemoryBus carries messages between channels and the relay inside one
// process. Inbound messages flow through a buffered Go channel; outbound
// replies go straight to the handler registered by the owning channel.
type InMemoryBus struct {
	inbound  chan domain.InboundMessage
	handlers map[string]func(domain.OutboundMessage)
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &InMemoryBus{
		inbound:  make(chan domain.InboundMessage, bufferSize),
		handlers: make(map[string]func(domain.OutboundMessage)),
		logger:   logger,
	}
}

// Publish enqueues an inbound message. On a full buffer it waits up to
// publishWait, then drops the message with an error log.
func (b *InMemoryBus) Publish(msg domain.InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("publish on closed bus", "channel", msg.Channel, "chat_id", msg.ChatID)
		return
	}

	select {
	case b.inbound <- msg:
	default:
		b.logger.Warn("inbound buffer full, waiting",
			"channel", msg.Channel,
			"chat_id", msg.ChatID,
		)
		timer := time.NewTimer(publishWait)
		defer timer.Stop()
		select {
		case b.inbound <- msg:
		case <-timer.C:
			b.logger.Error("message dropped, inbound buffer still full",
				"channel", msg.Channel,
				"chat_id", msg.ChatID,
				"waited", publishWait,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// SendOutbound delivers a reply to the channel that owns the chat. A
// reply for a channel with no registered handler is dropped with a log.
func (b *InMemoryBus) SendOutbound(msg domain.OutboundMessage) {
	b.mu.RLock()
	handler, ok := b.handlers[msg.Channel]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("dropping reply, no handler for channel",
			"channel", msg.Channel,
			"chat_id", msg.ChatID,
		)
		return
	}

	handler(msg)
}

func (b *InMemoryBus) OnOutbound(channelName string, handler func(domain.OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channelName] = handler
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
