package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/wintermute-run/wintermute/internal/approval"
	"github.com/wintermute-run/wintermute/internal/session"
)

// consoleNotifier prints session-runtime notifications (pause messages,
// timeouts, final replies) to stdout. It stands in for an out-of-scope
// messaging-gateway adapter, consumed only through the Notifier interface.
type consoleNotifier struct{}

func (consoleNotifier) Notify(ctx context.Context, sessionID, text string) error {
	fmt.Printf("\nwintermute> %s\n\n> ", text)
	return nil
}

// pollApprovalPrompts periodically surfaces newly pending approvals for
// sessionID as a terminal prompt bearing the short-id callback payload,
// since the approval manager itself only stores records — the caller is
// responsible for the user-facing prompt.
func pollApprovalPrompts(ctx context.Context, mgr *approval.Manager, sessionID string) {
	seen := make(map[string]bool)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, rec := range mgr.PendingForSession(sessionID) {
				if seen[rec.ID] {
					continue
				}
				seen[rec.ID] = true
				fmt.Printf("\napproval required: a:%s (tool %q) — reply \"a:%s y\" or \"a:%s n\"\n> ", rec.ID, rec.ToolCall.Name, rec.ID, rec.ID)
			}
		}
	}
}

// runConsoleLoop reads lines from stdin until stdin closes or ctx is
// canceled. Ordinary lines are submitted as user-message events; lines of
// the form "a:<id> y|n" resolve a pending approval directly.
func runConsoleLoop(ctx context.Context, rt *session.Runtime, mgr *approval.Manager, userID string) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		text := scanner.Text()
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, "a:") {
			parts := strings.Fields(trimmed)
			if len(parts) < 2 {
				fmt.Print("> ")
				continue
			}
			id := strings.TrimPrefix(parts[0], "a:")
			approved := strings.EqualFold(parts[1], "y") || strings.EqualFold(parts[1], "yes")
			if err := mgr.Resolve(id, userID, approved); err != nil {
				fmt.Printf("could not resolve %s: %v\n", id, err)
			}
			fmt.Print("> ")
			continue
		}
		if err := rt.Submit(session.Event{Kind: session.EventUserMessage, Content: text}); err != nil {
			slog.Error("submit user message", "error", err)
		}
	}
}
