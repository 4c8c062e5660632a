package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"webuibot/internal/domain"
)

// inferenceTimeout caps one chat-completion round trip. Deliberately a
// constant: a user waiting longer than this has given up anyway.
const inferenceTimeout = 30 * time.Second

// OpenWebUI implements domain.Provider against an Open WebUI compatible
// chat-completion endpoint.
type OpenWebUI struct {
	endpoint     string
	authToken    string
	model        string
	collectionID string
	systemPrompt string
	client       *http.Client
	logger       *slog.Logger
}

type OpenWebUIConfig struct {
	Endpoint     string
	AuthToken    string
	Model        string
	CollectionID string // optional knowledge collection
	SystemPrompt string // optional, prepended as a system turn when set
	Logger       *slog.Logger
}

func NewOpenWebUI(cfg OpenWebUIConfig) *OpenWebUI {
	return NewOpenWebUIWithClient(cfg, SharedHTTPClient(inferenceTimeout))
}

// NewOpenWebUIWithClient is NewOpenWebUI with an injectable HTTP client.
func NewOpenWebUIWithClient(cfg OpenWebUIConfig, client *http.Client) *OpenWebUI {
	if client == nil {
		client = &http.Client{Timeout: inferenceTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenWebUI{
		endpoint:     cfg.Endpoint,
		authToken:    cfg.AuthToken,
		model:        cfg.Model,
		collectionID: cfg.CollectionID,
		systemPrompt: cfg.SystemPrompt,
		client:       client,
		logger:       cfg.Logger,
	}
}

func (o *OpenWebUI) Name() string { return "openwebui" }

// Healthy reports whether the endpoint answers HTTP at all. A bare chat
// endpoint has no status route, so any HTTP status counts as reachable
// and only transport failures are errors.
func (o *OpenWebUI) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "HEAD", o.endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+o.authToken)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("openwebui not reachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// owuiRequest matches the Open WebUI chat-completion request body.
type owuiRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []owuiMessage `json:"messages"`
	Files    []owuiFile    `json:"files,omitempty"`
}

type owuiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type owuiFile struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type owuiResponse struct {
	Choices []owuiChoice `json:"choices"`
}

// owuiChoice covers both response shapes seen in the wild: the
// chat-completion form (message.content) and the older completion form
// (text).
type owuiChoice struct {
	Message *owuiMessage `json:"message"`
	Text    string       `json:"text"`
}

func (c owuiChoice) content() string {
	if c.Message != nil && c.Message.Content != "" {
		return c.Message.Content
	}
	return c.Text
}

// Chat sends one query and returns the generated reply. Every failure is
// classified into the domain error taxonomy; the reply text is returned
// verbatim, never rewritten.
func (o *OpenWebUI) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	msgs := make([]owuiMessage, 0, 2)
	if o.systemPrompt != "" {
		msgs = append(msgs, owuiMessage{Role: "system", Content: o.systemPrompt})
	}
	msgs = append(msgs, owuiMessage{Role: "user", Content: req.Query})

	body := owuiRequest{
		Model:    o.model,
		Stream:   false,
		Messages: msgs,
	}
	if o.collectionID != "" {
		body.Files = []owuiFile{{Type: "collection", ID: o.collectionID}}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.authToken)

	o.logger.Debug("sending chat completion",
		"model", o.model,
		"query_len", len(req.Query),
		"sender", req.SenderID,
		"chat_id", req.ChatID,
	)

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &domain.StatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(respBody)),
		}
	}

	var out owuiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", domain.ErrMalformedResponse, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", domain.ErrMalformedResponse)
	}

	content := out.Choices[0].content()
	if content == "" {
		return nil, fmt.Errorf("%w: choice carries no reply text", domain.ErrMalformedResponse)
	}

	return &domain.ChatResponse{
		Content:   content,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// classifyTransportError maps http.Client failures onto the domain
// taxonomy. url.Error wraps both timeouts and dial failures, so the
// Timeout method decides between the two.
func classifyTransportError(err error) error {
	var ue *url.Error
	if (errors.As(err, &ue) && ue.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrConnection, err)
}
