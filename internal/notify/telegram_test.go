package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewNotifierDisabled(t *testing.T) {
	n := NewNotifier("", "")
	if n.Enabled() {
		t.Fatal("expected disabled notifier with empty credentials")
	}
}

func TestNewNotifierEnabled(t *testing.T) {
	n := NewNotifier("bot123", "chat456")
	if !n.Enabled() {
		t.Fatal("expected enabled notifier with credentials")
	}
}

func TestSendDisabled(t *testing.T) {
	n := NewNotifier("", "")
	if err := n.Send(context.Background(), "test"); err != nil {
		t.Fatalf("disabled send should succeed silently: %v", err)
	}
}

func testNotifier(handler http.HandlerFunc) (*Notifier, *httptest.Server) {
	server := httptest.NewServer(handler)
	n := &Notifier{
		botToken:   "test-token",
		chatID:     "test-chat",
		httpClient: server.Client(),
		enabled:    true,
		baseURL:    server.URL,
	}
	return n, server
}

func TestSendSuccess(t *testing.T) {
	var receivedChatID, receivedText string
	n, server := testNotifier(func(w http.ResponseWriter, r *http.Request) {
		receivedChatID = r.URL.Query().Get("chat_id")
		receivedText = r.URL.Query().Get("text")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]bool{"ok": true}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	defer server.Close()

	if err := n.Send(context.Background(), "hello world"); err != nil {
		t.Fatalf("send should succeed: %v", err)
	}
	if receivedChatID != "test-chat" {
		t.Errorf("expected chat_id=test-chat, got %s", receivedChatID)
	}
	if receivedText != "hello world" {
		t.Errorf("expected text=hello world, got %s", receivedText)
	}
}

func TestSendServerError(t *testing.T) {
	n, server := testNotifier(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(map[string]string{"description": "bad request"}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	defer server.Close()

	if err := n.Send(context.Background(), "test"); err == nil {
		t.Fatal("expected error for server error response")
	}
}

func TestNotifyEpochClosed(t *testing.T) {
	var receivedText string
	n, server := testNotifier(func(w http.ResponseWriter, r *http.Request) {
		receivedText = r.URL.Query().Get("text")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]bool{"ok": true}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	defer server.Close()

	if err := n.NotifyEpochClosed(context.Background(), 7, 3, false); err != nil {
		t.Fatalf("notify epoch closed: %v", err)
	}
	if !strings.Contains(receivedText, "submission period opened") {
		t.Errorf("unexpected text: %s", receivedText)
	}
}

func TestNotifyEpochExecutedDisabled(t *testing.T) {
	n := NewNotifier("", "")
	if err := n.NotifyEpochExecuted(context.Background(), 1, 1); err != nil {
		t.Fatalf("disabled notify should succeed: %v", err)
	}
}

func TestNotifyStaleValuationDisabled(t *testing.T) {
	n := NewNotifier("", "")
	if err := n.NotifyStaleValuation(context.Background(), 1); err != nil {
		t.Fatalf("disabled notify should succeed: %v", err)
	}
}
