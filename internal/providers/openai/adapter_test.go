package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/wintermute-run/wintermute/internal/router"
	"github.com/wintermute-run/wintermute/pkg/models"
)

func TestCompleteSendsChatMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/chat/completions") {
			t.Errorf("expected /chat/completions path, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "model": "gpt-4o",
			"choices": [{"index":0,"message":{"role":"assistant","content":"hi back"},"finish_reason":"stop"}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
		}`))
	}))
	defer server.Close()

	a := NewWithBaseURL("test-key", "gpt-4o", server.URL)
	resp, err := a.Complete(context.Background(), router.CompletionRequest{
		System:   "be brief",
		Messages: []router.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hi back" {
		t.Fatalf("expected text %q, got %q", "hi back", resp.Text)
	}
	if resp.Usage.InputTokens != 5 || resp.Usage.OutputTokens != 2 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestNameReturnsOpenAI(t *testing.T) {
	a := New("key", "model")
	if a.Name() != "openai" {
		t.Fatalf("expected openai, got %s", a.Name())
	}
}

func TestEmbedReturnsVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"object": "list",
			"data": [{"object":"embedding","embedding":[0.1,0.2,0.3],"index":0}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer server.Close()

	cfg := goopenai.DefaultConfig("test-key")
	cfg.BaseURL = server.URL
	e := &Embedder{client: goopenai.NewClientWithConfig(cfg), model: goopenai.SmallEmbedding3}
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3-dim vector, got %d", len(vec))
	}
}
