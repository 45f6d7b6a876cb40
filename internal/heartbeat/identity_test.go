package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wintermute-run/wintermute/pkg/models"
)

func TestIdentityRegenerateTitleCasesExecutorMode(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{mode: "container", core: 3, dyn: 2, budget: models.BudgetSummary{DailySpent: 10, DailyLimit: 100}}
	g := NewIdentityGenerator(dir, src, "")

	if err := g.Regenerate(context.Background()); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, IdentityFilename))
	if err != nil {
		t.Fatalf("read identity file: %v", err)
	}
	if !strings.Contains(string(data), "Executor mode: Container") {
		t.Fatalf("expected title-cased executor mode, got:\n%s", data)
	}
}

func TestIdentityRegeneratePrependsPersona(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{mode: "direct", budget: models.BudgetSummary{}}
	g := NewIdentityGenerator(dir, src, "# wintermute\n\nhand-authored vibe")

	if err := g.Regenerate(context.Background()); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, IdentityFilename))
	if err != nil {
		t.Fatalf("read identity file: %v", err)
	}
	if !strings.Contains(string(data), "hand-authored vibe") {
		t.Fatalf("expected persona block, got:\n%s", data)
	}
}
