package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestDiscord_SendsFormattedReport(t *testing.T) {
	var mu sync.Mutex
	var received discordPayload
	done := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
		close(done)
	}))
	defer server.Close()

	d := NewDiscord(server.URL, time.Second, slog.New(slog.DiscardHandler))
	d.Report(context.Background(), errors.New("boom"), map[string]any{"stage": "insert_event"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook send")
	}

	mu.Lock()
	defer mu.Unlock()
	if received.Content == "" {
		t.Fatalf("expected non-empty report content")
	}
}

func TestDiscord_RateLimitsExcessSends(t *testing.T) {
	var mu sync.Mutex
	var count int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := NewDiscord(server.URL, time.Second, slog.New(slog.DiscardHandler))
	for i := 0; i < 20; i++ {
		d.Report(context.Background(), errors.New("boom"), nil)
	}

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	got := count
	mu.Unlock()

	if got >= 20 {
		t.Fatalf("expected the rate limiter to drop some reports, got %d sends out of 20", got)
	}
}

func TestFormatReport_TruncatesLongContent(t *testing.T) {
	fields := map[string]any{}
	longErr := errors.New(string(make([]byte, discordMaxMessageLength+100)))
	content := formatReport(longErr, fields)
	if len(content) > discordMaxMessageLength {
		t.Fatalf("expected content to be truncated to %d, got %d", discordMaxMessageLength, len(content))
	}
}
