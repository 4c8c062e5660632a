package relay

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"webuibot/internal/bus"
	"webuibot/internal/domain"
)

// mockProvider implements domain.Provider for testing. Chat calls are
// recorded under a mutex because dispatch runs on its own goroutine.
type mockProvider struct {
	mu    sync.Mutex
	reqs  []domain.ChatRequest
	resp  *domain.ChatResponse
	err   error
	delay time.Duration
}

func (m *mockProvider) Name() string                      { return "mock" }
func (m *mockProvider) Healthy(ctx context.Context) error { return nil }

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func (m *mockProvider) calls() []domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ChatRequest(nil), m.reqs...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// startRelay wires a relay to a fresh bus and collects everything sent
// to the "test" channel.
func startRelay(t *testing.T, p domain.Provider, welcome string) (*bus.InMemoryBus, <-chan domain.OutboundMessage) {
	t.Helper()
	b := bus.New(16, testLogger())
	out := make(chan domain.OutboundMessage, 16)
	b.OnOutbound("test", func(msg domain.OutboundMessage) { out <- msg })

	r := New(Config{Provider: p, Bus: b, Welcome: welcome, Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	t.Cleanup(func() {
		cancel()
		b.Close()
	})
	return b, out
}

func waitOutbound(t *testing.T, out <-chan domain.OutboundMessage) domain.OutboundMessage {
	t.Helper()
	select {
	case msg := <-out:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound message")
		return domain.OutboundMessage{}
	}
}

func inbound(command, text string) domain.InboundMessage {
	return domain.InboundMessage{
		Channel:   "test",
		ChatID:    "42",
		SenderID:  "7",
		MessageID: 100,
		Command:   command,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// --- Commands ---

func TestRelay_StartCommandGetsWelcome(t *testing.T) {
	p := &mockProvider{resp: &domain.ChatResponse{Content: "model reply"}}
	b, out := startRelay(t, p, "Welcome aboard!")

	b.Publish(inbound("start", "/start"))

	msg := waitOutbound(t, out)
	if msg.Typing {
		t.Fatal("commands must not trigger a typing indicator")
	}
	if msg.Text != "Welcome aboard!" {
		t.Fatalf("expected welcome text, got %q", msg.Text)
	}
	if msg.ReplyTo != 100 {
		t.Fatalf("expected reply to message 100, got %d", msg.ReplyTo)
	}
	if len(p.calls()) != 0 {
		t.Fatal("commands must not reach the provider")
	}
}

func TestRelay_HelpCommandGetsWelcome(t *testing.T) {
	p := &mockProvider{}
	b, out := startRelay(t, p, "Hi there!")

	b.Publish(inbound("help", "/help"))

	if msg := waitOutbound(t, out); msg.Text != "Hi there!" {
		t.Fatalf("expected welcome text, got %q", msg.Text)
	}
	if len(p.calls()) != 0 {
		t.Fatal("commands must not reach the provider")
	}
}

// --- Free text ---

func TestRelay_QueryForwardedToProvider(t *testing.T) {
	p := &mockProvider{resp: &domain.ChatResponse{Content: "42 is the answer", LatencyMs: 12}}
	b, out := startRelay(t, p, "welcome")

	b.Publish(inbound("", "what is the answer?"))

	typing := waitOutbound(t, out)
	if !typing.Typing {
		t.Fatalf("expected typing indicator first, got %+v", typing)
	}
	if typing.ChatID != "42" {
		t.Fatalf("typing indicator for wrong chat: %q", typing.ChatID)
	}

	reply := waitOutbound(t, out)
	if reply.Text != "42 is the answer" {
		t.Fatalf("reply must carry provider content verbatim, got %q", reply.Text)
	}
	if reply.ReplyTo != 100 {
		t.Fatalf("expected reply to message 100, got %d", reply.ReplyTo)
	}

	calls := p.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one provider call, got %d", len(calls))
	}
	if calls[0].Query != "what is the answer?" {
		t.Fatalf("provider got wrong query: %q", calls[0].Query)
	}
	if calls[0].SenderID != "7" || calls[0].ChatID != "42" {
		t.Fatalf("provider got wrong ids: %+v", calls[0])
	}
}

func TestRelay_UnrecognizedCommandForwardedRaw(t *testing.T) {
	p := &mockProvider{resp: &domain.ChatResponse{Content: "ok"}}
	b, out := startRelay(t, p, "welcome")

	b.Publish(inbound("weather", "/weather London tomorrow"))

	if msg := waitOutbound(t, out); !msg.Typing {
		t.Fatal("unrecognized commands take the inference path, typing included")
	}
	waitOutbound(t, out)

	calls := p.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one provider call, got %d", len(calls))
	}
	if calls[0].Query != "/weather London tomorrow" {
		t.Fatalf("expected raw text incl. slash, got %q", calls[0].Query)
	}
}

// --- Failures ---

func TestRelay_ProviderErrorYieldsApology(t *testing.T) {
	p := &mockProvider{err: errors.New("secret internal detail: token expired")}
	b, out := startRelay(t, p, "welcome")

	b.Publish(inbound("", "hello"))

	waitOutbound(t, out) // typing
	reply := waitOutbound(t, out)
	if reply.Text != "Sorry, something went wrong. Please try again later." {
		t.Fatalf("expected apology, got %q", reply.Text)
	}
	if strings.Contains(reply.Text, "secret") {
		t.Fatal("provider error detail must never reach the user")
	}
	if reply.ReplyTo != 100 {
		t.Fatalf("apology must still reply to the message, got %d", reply.ReplyTo)
	}
}

func TestRelay_ApologyConstant(t *testing.T) {
	if Apology != "Sorry, something went wrong. Please try again later." {
		t.Fatalf("apology text changed: %q", Apology)
	}
}

// --- Lifecycle ---

func TestRelay_SlowInferenceDoesNotBlockNextMessage(t *testing.T) {
	p := &mockProvider{resp: &domain.ChatResponse{Content: "done"}, delay: 300 * time.Millisecond}
	b, out := startRelay(t, p, "welcome")

	b.Publish(inbound("", "slow question"))
	b.Publish(inbound("start", "/start"))

	// The command answer must arrive while inference still sleeps.
	deadline := time.Now().Add(250 * time.Millisecond)
	for {
		select {
		case msg := <-out:
			if msg.Text == "welcome" {
				return
			}
		case <-time.After(time.Until(deadline)):
			t.Fatal("command reply blocked behind slow inference")
		}
	}
}

func TestRelay_StopsOnContextCancel(t *testing.T) {
	p := &mockProvider{}
	b := bus.New(4, testLogger())
	defer b.Close()
	r := New(Config{Provider: p, Bus: b, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop on context cancel")
	}
}

func TestRelay_StopsOnBusClose(t *testing.T) {
	p := &mockProvider{}
	b := bus.New(4, testLogger())
	r := New(Config{Provider: p, Bus: b, Logger: testLogger()})

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	b.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop when the bus closed")
	}
}
