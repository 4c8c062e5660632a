package domain

import "time"

type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string
	MessageID int
	Text      string
	Command   string // command name without the slash, empty for free text
	Timestamp time.Time
}

// IsCommand reports whether the message was sent as a slash command.
func (m InboundMessage) IsCommand() bool {
	return m.Command != ""
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	ReplyTo int // message ID to reply to (0 = plain send)
	Text    string
	Typing  bool // typing indicator only; Text is empty
}
