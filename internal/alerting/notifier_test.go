package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestNotifier(url string) *TelegramNotifier {
	return NewTelegramNotifier(TelegramOptions{
		BotToken:  "token",
		ChatID:    "chat",
		BaseURL:   url,
		ParseMode: "Markdown",
		Timeout:   time.Second,
	}, testLogger())
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	if err := newTestNotifier(srv.URL).Notify(context.Background(), "*spread* `0.40`"); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if path != "/bottoken/sendMessage" {
		t.Fatalf("unexpected path %s", path)
	}
	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id mismatch: %#v", received)
	}
	if received["text"] != "*spread* `0.40`" {
		t.Fatalf("text mismatch: %q", received["text"])
	}
	if received["parse_mode"] != "Markdown" {
		t.Fatalf("parse_mode mismatch: %q", received["parse_mode"])
	}
}

func TestTelegramNotifierOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	if err := newTestNotifier(srv.URL).Notify(context.Background(), "x"); err == nil {
		t.Fatal("ok=false should fail")
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "can't parse entities"})
	}))
	defer srv.Close()

	err := newTestNotifier(srv.URL).Notify(context.Background(), "x")
	if err == nil {
		t.Fatal("HTTP 400 should fail")
	}
	if !strings.Contains(err.Error(), "can't parse entities") {
		t.Fatalf("description missing from error: %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	if err := n.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("LogNotifier should not fail: %v", err)
	}
	if !strings.Contains(buf.String(), `"text":"hello"`) {
		t.Fatalf("message not logged: %s", buf.String())
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
