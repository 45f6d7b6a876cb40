package history

import (
	"context"
	"testing"

	"github.com/wintermute-run/wintermute/pkg/models"
)

func TestAppendAndLoadRoundTrip(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	entries := []models.TurnEntry{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "hi there"},
		{Role: models.RoleTool, Content: "result", ToolResults: []models.ToolResult{{ToolCallID: "tc-1", Content: "42"}}},
	}
	for _, e := range entries {
		if err := s.Append(ctx, "sess-1", e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	loaded, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(loaded))
	}
	for i, e := range loaded {
		if e.Content != entries[i].Content {
			t.Errorf("entry %d: expected content %q, got %q", i, entries[i].Content, e.Content)
		}
		if e.ID == "" {
			t.Errorf("entry %d: expected generated ID", i)
		}
		if e.CreatedAt.IsZero() {
			t.Errorf("entry %d: expected generated timestamp", i)
		}
	}
	if loaded[2].ToolResults[0].Content != "42" {
		t.Fatalf("expected tool result content to round-trip, got %+v", loaded[2].ToolResults)
	}
}

func TestLoadSessionsAreIsolated(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Append(ctx, "sess-a", models.TurnEntry{Role: models.RoleUser, Content: "a"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, "sess-b", models.TurnEntry{Role: models.RoleUser, Content: "b"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	a, err := s.Load(ctx, "sess-a")
	if err != nil {
		t.Fatalf("load a: %v", err)
	}
	if len(a) != 1 || a[0].Content != "a" {
		t.Fatalf("expected only sess-a's entry, got %+v", a)
	}
}

func TestAppendOrderPreserved(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if err := s.Append(ctx, "sess-1", models.TurnEntry{Role: role, Content: string(rune('a' + i))}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	loaded, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i, e := range loaded {
		want := string(rune('a' + i))
		if e.Content != want {
			t.Fatalf("entry %d out of order: expected %q, got %q", i, want, e.Content)
		}
	}
}
