package domain

import "context"

// Provider is the interface the relay uses to reach an LLM backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
	Healthy(ctx context.Context) error
}

// ChatRequest carries a single user query. Sender and chat IDs are for
// logging only and never reach the backend.
type ChatRequest struct {
	Query    string
	SenderID string
	ChatID   string
}

type ChatResponse struct {
	Content   string
	LatencyMs int64 // time taken for this LLM call in milliseconds
}
