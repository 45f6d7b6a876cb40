package bedrock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wintermute-run/wintermute/internal/router"
	"github.com/wintermute-run/wintermute/pkg/models"
)

func TestCompleteInvokesModelAndParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"content": [{"text": "from bedrock"}],
			"usage": {"input_tokens": 8, "output_tokens": 4}
		}`))
	}))
	defer server.Close()

	a, err := NewWithEndpoint(context.Background(), "us-east-1", "anthropic.claude-3-sonnet", server.URL)
	if err != nil {
		t.Fatalf("NewWithEndpoint: %v", err)
	}

	resp, err := a.Complete(context.Background(), router.CompletionRequest{
		System:   "be terse",
		Messages: []router.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "from bedrock" {
		t.Fatalf("expected text %q, got %q", "from bedrock", resp.Text)
	}
	if resp.Usage.InputTokens != 8 || resp.Usage.OutputTokens != 4 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestNameReturnsBedrock(t *testing.T) {
	a := &Adapter{defaultModel: "anthropic.claude-3-sonnet"}
	if a.Name() != "bedrock" {
		t.Fatalf("expected bedrock, got %s", a.Name())
	}
}
