package assembler

import (
	"context"
	"testing"

	"github.com/wintermute-run/wintermute/pkg/models"
)

type fakeMemory struct {
	results []models.MemorySearchResult
}

func (f fakeMemory) Search(ctx context.Context, query string, k int) ([]models.MemorySearchResult, error) {
	return f.results, nil
}

type fakeTools struct {
	core, dynamic []models.ToolDescriptor
}

func (f fakeTools) CoreDescriptors() []models.ToolDescriptor    { return f.core }
func (f fakeTools) DynamicDescriptors() []models.ToolDescriptor { return f.dynamic }

type fakeCompactor struct {
	called bool
}

func (f *fakeCompactor) Summarize(ctx context.Context, entries []models.TurnEntry, targetTokens int) (models.TurnEntry, error) {
	f.called = true
	return models.TurnEntry{Content: "summary", IsSummary: true}, nil
}

func TestBuildOrdersSystemBlocks(t *testing.T) {
	a := New(nil, fakeTools{}, nil, 0)
	req, err := a.Build(context.Background(), Documents{Identity: "id", Lessons: "lessons", Profile: "profile"}, nil, false, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"id", "lessons", "profile"}
	for i, w := range want {
		if req.SystemBlocks[i] != w {
			t.Fatalf("expected block %d to be %q, got %q", i, w, req.SystemBlocks[i])
		}
	}
}

func TestBuildInjectsFirstTurnMemoriesOnly(t *testing.T) {
	mem := fakeMemory{results: []models.MemorySearchResult{{Memory: &models.Memory{Content: "likes go"}}}}
	a := New(mem, fakeTools{}, nil, 0)

	first, _ := a.Build(context.Background(), Documents{}, nil, true, "hello", nil)
	found := false
	for _, b := range first.SystemBlocks {
		if b != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected first-turn memory block to be present")
	}

	later, _ := a.Build(context.Background(), Documents{}, nil, false, "hello", nil)
	if len(later.SystemBlocks) != 0 {
		t.Fatalf("expected no memory injection on non-first turn, got %v", later.SystemBlocks)
	}
}

func TestBuildCapsDynamicTools(t *testing.T) {
	dyn := make([]models.ToolDescriptor, 0, 30)
	for i := 0; i < 30; i++ {
		dyn = append(dyn, models.ToolDescriptor{Name: "t"})
	}
	a := New(nil, fakeTools{dynamic: dyn}, nil, 0)
	a.DynamicCap = 5
	req, _ := a.Build(context.Background(), Documents{}, nil, false, "", nil)
	if len(req.Tools) != 5 {
		t.Fatalf("expected dynamic tools capped at 5, got %d", len(req.Tools))
	}
}

func TestCompactionTriggersOverThreshold(t *testing.T) {
	compactor := &fakeCompactor{}
	a := New(nil, fakeTools{}, compactor, 100) // small limit to force the threshold

	var history []models.TurnEntry
	for i := 0; i < 50; i++ {
		history = append(history, models.TurnEntry{Content: "this is a reasonably long message to accumulate tokens"})
	}

	req, err := a.Build(context.Background(), Documents{}, history, false, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !compactor.called {
		t.Fatalf("expected compaction to be triggered over threshold")
	}
	if len(req.Messages) != 1 || !req.Messages[0].IsSummary {
		t.Fatalf("expected compacted history to be a single summary entry, got %+v", req.Messages)
	}
}

func TestRecoverFromOverflowKeepsSummaryAndRecent(t *testing.T) {
	history := []models.TurnEntry{{Content: "summary", IsSummary: true}}
	for i := 0; i < 20; i++ {
		history = append(history, models.TurnEntry{Content: "turn"})
	}
	recovered := RecoverFromOverflow(history, 5)
	if !recovered[0].IsSummary {
		t.Fatalf("expected summary entry preserved at front")
	}
	if len(recovered) != 6 {
		t.Fatalf("expected summary + 5 recent entries, got %d", len(recovered))
	}
}
