// Package assembler builds the model request for each turn: identity
// document, lessons file, user profile, first-turn memories, conversation
// history with compaction, tool descriptors, and budget notes, in the
// fixed order the context assembler contract requires.
package assembler

import (
	"context"
	"fmt"

	ctxwindow "github.com/wintermute-run/wintermute/internal/context"
	"github.com/wintermute-run/wintermute/pkg/models"
)

// CompactionThresholdFrac triggers an out-of-band summarization call once
// the projected token count exceeds this fraction of the session limit.
const CompactionThresholdFrac = 0.60

// MemorySearcher is the read path into the memory store used for the
// first-turn memory injection.
type MemorySearcher interface {
	Search(ctx context.Context, query string, k int) ([]models.MemorySearchResult, error)
}

// ToolSnapshot is the read-only tool registry view the assembler ranks
// dynamic tools from.
type ToolSnapshot interface {
	CoreDescriptors() []models.ToolDescriptor
	DynamicDescriptors() []models.ToolDescriptor
}

// Compactor performs the out-of-band summarization call. Implemented by
// wiring a model-router completion call against a fixed summarization
// prompt.
type Compactor interface {
	Summarize(ctx context.Context, entries []models.TurnEntry, targetTokens int) (models.TurnEntry, error)
}

// Documents bundles the slow-changing text blocks the assembler includes
// verbatim: identity, lessons, and profile.
type Documents struct {
	Identity string
	Lessons  string
	Profile  string
}

// Assembler builds model requests per the fixed assembly order.
type Assembler struct {
	Memory       MemorySearcher
	Tools        ToolSnapshot
	Compactor    Compactor
	DynamicCap   int
	SessionLimit int
}

// New builds an Assembler with a default dynamic-tool cap of 20.
func New(memory MemorySearcher, tools ToolSnapshot, compactor Compactor, sessionLimit int) *Assembler {
	return &Assembler{
		Memory:       memory,
		Tools:        tools,
		Compactor:    compactor,
		DynamicCap:   20,
		SessionLimit: sessionLimit,
	}
}

// Request is the assembled model request.
type Request struct {
	SystemBlocks []string // identity, lessons, profile, budget notes, in order
	Messages     []models.TurnEntry
	Tools        []models.ToolDescriptor
}

// Build assembles one turn's model request. firstTurn selects whether
// step 4 (first-turn memory injection) applies. budgetNotes carries any
// threshold-crossing system notes due since the previous turn.
func (a *Assembler) Build(ctx context.Context, docs Documents, history []models.TurnEntry, firstTurn bool, firstUserMessage string, budgetNotes []string) (*Request, error) {
	req := &Request{}

	// 1. identity, 2. lessons, 3. profile.
	if docs.Identity != "" {
		req.SystemBlocks = append(req.SystemBlocks, docs.Identity)
	}
	if docs.Lessons != "" {
		req.SystemBlocks = append(req.SystemBlocks, docs.Lessons)
	}
	if docs.Profile != "" {
		req.SystemBlocks = append(req.SystemBlocks, docs.Profile)
	}

	// 4. first-turn memories only.
	if firstTurn && a.Memory != nil && firstUserMessage != "" {
		results, err := a.Memory.Search(ctx, firstUserMessage, 5)
		if err == nil && len(results) > 0 {
			note := "relevant memories:\n"
			for _, r := range results {
				note += fmt.Sprintf("- %s\n", r.Memory.Content)
			}
			req.SystemBlocks = append(req.SystemBlocks, note)
		}
	}

	// 5. conversation history, compacted if needed.
	compacted, err := a.compactIfNeeded(ctx, history)
	if err != nil {
		return nil, err
	}
	req.Messages = compacted

	// 6. tool descriptors: core always, dynamic capped.
	if a.Tools != nil {
		req.Tools = append(req.Tools, a.Tools.CoreDescriptors()...)
		dyn := a.Tools.DynamicDescriptors()
		if len(dyn) > a.DynamicCap {
			dyn = dyn[:a.DynamicCap]
		}
		req.Tools = append(req.Tools, dyn...)
	}

	// 7. budget threshold notes.
	req.SystemBlocks = append(req.SystemBlocks, budgetNotes...)

	return req, nil
}

func (a *Assembler) projectedTokens(history []models.TurnEntry) int {
	total := 0
	for _, e := range history {
		total += ctxwindow.EstimateTokens(e.Content)
	}
	return total
}

// compactIfNeeded issues the out-of-band compaction call when the
// projected token count exceeds the threshold fraction of the session
// limit. The produced summary replaces the summarized prefix as a single
// entry, per the single-front-summary open-question decision recorded in
// DESIGN.md.
func (a *Assembler) compactIfNeeded(ctx context.Context, history []models.TurnEntry) ([]models.TurnEntry, error) {
	if a.SessionLimit <= 0 || a.Compactor == nil {
		return history, nil
	}
	if float64(a.projectedTokens(history)) <= CompactionThresholdFrac*float64(a.SessionLimit) {
		return history, nil
	}

	// Re-summarize wholesale: find an existing front summary entry (if
	// any) and fold it, plus everything after it, back into one call.
	start := 0
	if len(history) > 0 && history[0].IsSummary {
		start = 1
	}
	toSummarize := history[start:]
	if len(toSummarize) == 0 {
		return history, nil
	}

	target := a.SessionLimit / 10
	summary, err := a.Compactor.Summarize(ctx, toSummarize, target)
	if err != nil {
		return history, fmt.Errorf("assembler: compaction call failed: %w", err)
	}
	summary.IsSummary = true
	return []models.TurnEntry{summary}, nil
}

// RecoverFromOverflow implements the retry path when the model returns a
// context-length error despite compaction: keep the summary entry (if
// present) plus the most recent N turns, dropping mid-range entries
// first.
func RecoverFromOverflow(history []models.TurnEntry, keepRecent int) []models.TurnEntry {
	if len(history) <= keepRecent {
		return history
	}

	var out []models.TurnEntry
	start := 0
	if history[0].IsSummary {
		out = append(out, history[0])
		start = 1
	}

	recentStart := len(history) - keepRecent
	if recentStart < start {
		recentStart = start
	}
	out = append(out, history[recentStart:]...)
	return out
}
