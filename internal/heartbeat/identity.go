package heartbeat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// executorModeTitle title-cases the executor mode string ("container",
// "direct") for display in the generated identity document.
var executorModeTitle = cases.Title(language.Und)

// IdentityFilename is the generated system identity document's name, read
// by the context assembler and overwritten here on every regeneration.
const IdentityFilename = "IDENTITY.md"

// IdentityGenerator regenerates the system identity document: a markdown
// description of the running runtime, rebuilt from current observable
// state (tool count, budget, executor mode) rather than hand-edited.
type IdentityGenerator struct {
	path   string
	source SnapshotSource
	persona string // optional hand-authored name/vibe prefix, e.g. loaded from agent.Identity
}

// NewIdentityGenerator builds a generator that writes to
// filepath.Join(dir, IdentityFilename). persona, if non-empty, is a
// short hand-authored block (name, emoji, vibe) prepended verbatim above
// the generated state section.
func NewIdentityGenerator(dir string, source SnapshotSource, persona string) *IdentityGenerator {
	return &IdentityGenerator{
		path:    filepath.Join(dir, IdentityFilename),
		source:  source,
		persona: persona,
	}
}

// Regenerate composes and atomically writes the identity document.
// Satisfies the heartbeat.IdentityRegenerator interface.
func (g *IdentityGenerator) Regenerate(ctx context.Context) error {
	core, dynamic := g.source.ToolCounts()
	budget := g.source.BudgetToday()

	var b strings.Builder
	b.WriteString("# Identity\n\n")
	if g.persona != "" {
		b.WriteString(strings.TrimSpace(g.persona))
		b.WriteString("\n\n")
	}
	b.WriteString("## Current state\n\n")
	fmt.Fprintf(&b, "- Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Executor mode: %s\n", executorModeTitle.String(g.source.ExecutorMode()))
	fmt.Fprintf(&b, "- Tools: %d core, %d dynamic\n", core, dynamic)
	fmt.Fprintf(&b, "- Budget today: %d of %d spent (daily)\n", budget.DailySpent, budget.DailyLimit)
	if budget.Paused {
		b.WriteString("- Budget paused: further spend is blocked until reset\n")
	}
	if g.source.LastError() != "" {
		fmt.Fprintf(&b, "- Last error: %s\n", g.source.LastError())
	}
	b.WriteString("\nThis document is regenerated automatically and reflects live system state; edits here are overwritten on the next heartbeat tick.\n")

	return writeIdentityFile(g.path, b.String())
}

// ReadIdentity returns the current identity document's contents, or ""
// if none has been generated yet.
func ReadIdentity(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, IdentityFilename))
	if err != nil {
		return ""
	}
	return string(data)
}

func writeIdentityFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("heartbeat: create identity dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("heartbeat: write identity temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("heartbeat: rename identity into place: %w", err)
	}
	return nil
}
