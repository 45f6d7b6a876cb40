package anthropic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wintermute-run/wintermute/internal/router"
	"github.com/wintermute-run/wintermute/pkg/models"
)

func TestCompleteSendsSystemAndMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "/messages") {
			t.Errorf("expected /messages path, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") == "" {
			t.Error("missing x-api-key header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant",
			"content": [{"type":"text","text":"hello there"}],
			"model": "claude-3-5-sonnet", "stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	a := NewWithBaseURL("test-key", "claude-3-5-sonnet", server.URL)
	resp, err := a.Complete(context.Background(), router.CompletionRequest{
		System:   "you are terse",
		Messages: []router.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hello there" {
		t.Fatalf("expected text %q, got %q", "hello there", resp.Text)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 3 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestNameReturnsAnthropic(t *testing.T) {
	a := New("key", "model")
	if a.Name() != "anthropic" {
		t.Fatalf("expected anthropic, got %s", a.Name())
	}
}
