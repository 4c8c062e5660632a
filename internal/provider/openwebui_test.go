package provider

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"webuibot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func replyWith(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}
}

// --- Request encoding ---

func TestOpenWebUI_Chat_RequestShape(t *testing.T) {
	var got owuiRequest
	var auth, contentType, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		replyWith("ok")(w, r)
	}))
	defer srv.Close()

	p := NewOpenWebUIWithClient(OpenWebUIConfig{
		Endpoint:     srv.URL,
		AuthToken:    "jwt-secret",
		Model:        "llama3",
		CollectionID: "col-1",
		SystemPrompt: "You are helpful.",
		Logger:       testLogger(),
	}, srv.Client())

	if _, err := p.Chat(context.Background(), domain.ChatRequest{Query: "hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != "POST" {
		t.Fatalf("expected POST, got %s", method)
	}
	if auth != "Bearer jwt-secret" {
		t.Fatalf("unexpected Authorization header: %q", auth)
	}
	if contentType != "application/json" {
		t.Fatalf("unexpected Content-Type: %q", contentType)
	}
	if got.Model != "llama3" {
		t.Fatalf("expected model llama3, got %q", got.Model)
	}
	if got.Stream {
		t.Fatal("stream must be false")
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != "You are helpful." {
		t.Fatalf("unexpected system turn: %+v", got.Messages[0])
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Content != "hello" {
		t.Fatalf("unexpected user turn: %+v", got.Messages[1])
	}
	if len(got.Files) != 1 || got.Files[0].Type != "collection" || got.Files[0].ID != "col-1" {
		t.Fatalf("unexpected files: %+v", got.Files)
	}
}

func TestOpenWebUI_Chat_NoSystemPromptNoCollection(t *testing.T) {
	var got owuiRequest
	var rawBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&buf); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.Unmarshal(buf, &got)
		json.Unmarshal(buf, &rawBody)
		replyWith("ok")(w, r)
	}))
	defer srv.Close()

	p := NewOpenWebUIWithClient(OpenWebUIConfig{
		Endpoint:  srv.URL,
		AuthToken: "t",
		Model:     "m",
		Logger:    testLogger(),
	}, srv.Client())

	if _, err := p.Chat(context.Background(), domain.ChatRequest{Query: "ping"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("expected single user turn, got %+v", got.Messages)
	}
	if _, present := rawBody["files"]; present {
		t.Fatal("files key must be omitted when no collection is configured")
	}
}

// --- Response handling ---

func TestOpenWebUI_Chat_ReturnsContentVerbatim(t *testing.T) {
	const reply = "  The answer\nhas two lines.  "
	srv := httptest.NewServer(replyWith(reply))
	defer srv.Close()

	p := NewOpenWebUIWithClient(OpenWebUIConfig{Endpoint: srv.URL, Logger: testLogger()}, srv.Client())
	resp, err := p.Chat(context.Background(), domain.ChatRequest{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != reply {
		t.Fatalf("content altered: %q", resp.Content)
	}
	if resp.LatencyMs < 0 {
		t.Fatalf("negative latency: %d", resp.LatencyMs)
	}
}

func TestOpenWebUI_Chat_TextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"text": "completion-style reply"}},
		})
	}))
	defer srv.Close()

	p := NewOpenWebUIWithClient(OpenWebUIConfig{Endpoint: srv.URL, Logger: testLogger()}, srv.Client())
	resp, err := p.Chat(context.Background(), domain.ChatRequest{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "completion-style reply" {
		t.Fatalf("expected text fallback, got %q", resp.Content)
	}
}

func TestOpenWebUI_Chat_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	p := NewOpenWebUIWithClient(OpenWebUIConfig{Endpoint: srv.URL, Logger: testLogger()}, srv.Client())
	_, err := p.Chat(context.Background(), domain.ChatRequest{Query: "q"})
	if !domain.IsMalformedResponse(err) {
		t.Fatalf("expected malformed-response error, got %v", err)
	}
}

func TestOpenWebUI_Chat_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	p := NewOpenWebUIWithClient(OpenWebUIConfig{Endpoint: srv.URL, Logger: testLogger()}, srv.Client())
	_, err := p.Chat(context.Background(), domain.ChatRequest{Query: "q"})
	if !domain.IsMalformedResponse(err) {
		t.Fatalf("expected malformed-response error, got %v", err)
	}
}

func TestOpenWebUI_Chat_UnrecognizedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"unexpected": "format"})
	}))
	defer srv.Close()

	p := NewOpenWebUIWithClient(OpenWebUIConfig{Endpoint: srv.URL, Logger: testLogger()}, srv.Client())
	_, err := p.Chat(context.Background(), domain.ChatRequest{Query: "q"})
	if !domain.IsMalformedResponse(err) {
		t.Fatalf("expected malformed-response error, got %v", err)
	}
}

func TestOpenWebUI_Chat_ChoiceWithoutText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": ""}}},
		})
	}))
	defer srv.Close()

	p := NewOpenWebUIWithClient(OpenWebUIConfig{Endpoint: srv.URL, Logger: testLogger()}, srv.Client())
	_, err := p.Chat(context.Background(), domain.ChatRequest{Query: "q"})
	if !domain.IsMalformedResponse(err) {
		t.Fatalf("expected malformed-response error, got %v", err)
	}
}

// --- Error classification ---

func TestOpenWebUI_Chat_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal failure", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOpenWebUIWithClient(OpenWebUIConfig{Endpoint: srv.URL, Logger: testLogger()}, srv.Client())
	_, err := p.Chat(context.Background(), domain.ChatRequest{Query: "q"})
	if code := domain.HTTPStatus(err); code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d (err: %v)", code, err)
	}
}

func TestOpenWebUI_Chat_HTTPErrorKeepsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOpenWebUIWithClient(OpenWebUIConfig{Endpoint: srv.URL, Logger: testLogger()}, srv.Client())
	_, err := p.Chat(context.Background(), domain.ChatRequest{Query: "q"})
	var se *domain.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Body != "model not found" {
		t.Fatalf("expected body preserved, got %q", se.Body)
	}
}

func TestOpenWebUI_Chat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		replyWith("late")(w, r)
	}))
	defer srv.Close()

	p := NewOpenWebUIWithClient(
		OpenWebUIConfig{Endpoint: srv.URL, Logger: testLogger()},
		&http.Client{Timeout: 50 * time.Millisecond},
	)
	_, err := p.Chat(context.Background(), domain.ChatRequest{Query: "q"})
	if !domain.IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestOpenWebUI_Chat_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(replyWith("never"))
	url := srv.URL
	srv.Close()

	p := NewOpenWebUIWithClient(OpenWebUIConfig{Endpoint: url, Logger: testLogger()}, nil)
	_, err := p.Chat(context.Background(), domain.ChatRequest{Query: "q"})
	if !domain.IsConnection(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

// --- Healthy ---

func TestOpenWebUI_Healthy_Reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chat endpoints commonly reject HEAD; reachable is what counts.
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	p := NewOpenWebUIWithClient(OpenWebUIConfig{Endpoint: srv.URL, Logger: testLogger()}, srv.Client())
	if err := p.Healthy(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
}

func TestOpenWebUI_Healthy_Unreachable(t *testing.T) {
	srv := httptest.NewServer(replyWith("never"))
	url := srv.URL
	srv.Close()

	p := NewOpenWebUIWithClient(OpenWebUIConfig{Endpoint: url, Logger: testLogger()}, nil)
	if err := p.Healthy(context.Background()); err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}

// --- Name ---

func TestOpenWebUI_Name(t *testing.T) {
	p := NewOpenWebUI(OpenWebUIConfig{})
	if p.Name() != "openwebui" {
		t.Fatalf("unexpected name: %s", p.Name())
	}
}
