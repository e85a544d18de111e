package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/vietddude/zerofail/internal/core/config"
)

func newTestAnthropic(t *testing.T, url string) *AnthropicAdapter {
	t.Helper()
	a, err := NewAnthropicAdapter(context.Background(), config.ProviderConfig{
		Name:         "claude",
		Kind:         "anthropic",
		URL:          url,
		APIKey:       "test-key",
		Model:        "claude-sonnet-4-20250514",
		MaxTokens:    1024,
		SystemPrompt: "Be concise.",
	})
	if err != nil {
		t.Fatalf("NewAnthropicAdapter: %v", err)
	}
	return a
}

func TestAnthropicAdapter_Invoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("expected path /v1/messages, got %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if body["model"] != "claude-sonnet-4-20250514" {
			t.Errorf("unexpected model %v", body["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg_01",
			"type":  "message",
			"role":  "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": []map[string]any{
				{"type": "text", "text": "Hello "},
				{"type": "text", "text": "world."},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 5, "output_tokens": 3},
		})
	}))
	defer server.Close()

	content, err := newTestAnthropic(t, server.URL).Invoke(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content.Text != "Hello world." {
		t.Errorf("Text = %q", content.Text)
	}
}

func TestAnthropicAdapter_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantKind   Kind
		errPayload string
	}{
		{"overloaded", 529, Transient, "overloaded_error"},
		{"rate limited", 429, Transient, "rate_limit_error"},
		{"invalid request", 400, Permanent, "invalid_request_error"},
		{"auth", 401, Permanent, "authentication_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"type":  "error",
					"error": map[string]any{"type": tt.errPayload, "message": "nope"},
				})
			}))
			defer server.Close()

			_, err := newTestAnthropic(t, server.URL).Invoke(context.Background(), "hi")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := Classify(err); got != tt.wantKind {
				t.Errorf("Classify = %s, want %s (%v)", got, tt.wantKind, err)
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("SDK retried internally: %d calls", n)
			}
		})
	}
}

func TestNewAnthropicAdapter_RequiresKey(t *testing.T) {
	_, err := NewAnthropicAdapter(context.Background(), config.ProviderConfig{Name: "claude"})
	if err == nil {
		t.Error("expected error without api key")
	}
}
