package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{ChatID: 1}); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := New(Config{Token: "x"}); err == nil {
		t.Fatal("expected error for empty chat id")
	}
}

func TestSendText(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		path string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		_ = json.Unmarshal(b, &body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"group"},"text":"ok"}}`)
	}))
	defer srv.Close()

	n, err := New(Config{Token: "123:abc", ChatID: 42, ThreadID: 5, APIURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.SendText(context.Background(), "  daily digest  "); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("path = %q", path)
	}
	if body["text"] != "daily digest" {
		t.Fatalf("text = %v", body["text"])
	}
	if !strings.Contains(jsonString(body["chat_id"]), "42") {
		t.Fatalf("chat_id = %v", body["chat_id"])
	}
}

func TestSendTextSkipsEmptyAndCanceled(t *testing.T) {
	t.Parallel()
	n, err := New(Config{Token: "123:abc", ChatID: 42, APIURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.SendText(context.Background(), "   "); err != nil {
		t.Fatalf("empty text should be a no-op: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.SendText(ctx, "hello"); err == nil {
		t.Fatal("canceled context should fail fast")
	}
}

func jsonString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
