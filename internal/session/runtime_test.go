package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/wintermute-run/wintermute/internal/approval"
	"github.com/wintermute-run/wintermute/internal/assembler"
	"github.com/wintermute-run/wintermute/internal/budget"
	"github.com/wintermute-run/wintermute/internal/policy"
	"github.com/wintermute-run/wintermute/internal/redact"
	"github.com/wintermute-run/wintermute/internal/router"
	"github.com/wintermute-run/wintermute/pkg/models"
)

type fakeProvider struct {
	responses []router.CompletionResponse
	i         int
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Complete(ctx context.Context, req router.CompletionRequest) (router.CompletionResponse, error) {
	if f.i >= len(f.responses) {
		return router.CompletionResponse{}, nil
	}
	r := f.responses[f.i]
	f.i++
	return r, nil
}

type fakeExecutor struct {
	result models.ExecResult
	err    error
}

func (f *fakeExecutor) Execute(ctx context.Context, call models.ToolCall) (models.ExecResult, error) {
	return f.result, f.err
}

type fakeTools struct{}

func (fakeTools) CoreDescriptors() []models.ToolDescriptor    { return nil }
func (fakeTools) DynamicDescriptors() []models.ToolDescriptor { return nil }
func (fakeTools) Descriptor(name string) (models.ToolDescriptor, bool) {
	return models.ToolDescriptor{}, false
}
func (fakeTools) RecordExecution(name string, success bool, durationMs int64, errMsg string) {}

type fakeLedger struct{ snap policy.TrustLedgerSnapshot }

func (f fakeLedger) Snapshot() policy.TrustLedgerSnapshot { return f.snap }

func newTestRuntime(t *testing.T, provider router.Provider, exec Executor) (*Runtime, *models.Session) {
	t.Helper()
	sess := &models.Session{ID: "s1", PrincipalID: "u1", CreatedAt: time.Now()}
	asm := assembler.New(nil, fakeTools{}, nil, 0)
	r := router.New(provider)

	cfg := Config{
		Redactor:  redact.New(nil),
		Assembler: asm,
		Router:    r,
		Budget:    budget.NewSession(1_000_000, budget.NewDaily(10_000_000, time.Now().Add(24*time.Hour))),
		Tools:     fakeTools{},
		Executor:  exec,
		Ledger:    fakeLedger{},
		Variant:   policy.VariantContainer,
	}
	rt := New(sess, cfg)
	cfg.Approvals = approval.New(rt)
	rt.cfg.Approvals = cfg.Approvals
	return rt, sess
}

func TestHandleUserMessageFinalizesWithoutToolCalls(t *testing.T) {
	provider := &fakeProvider{responses: []router.CompletionResponse{
		{Text: "hello back"},
	}}
	rt, _ := newTestRuntime(t, provider, &fakeExecutor{})

	rt.handleUserMessage(context.Background(), "hi")

	if len(rt.history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(rt.history))
	}
	if rt.history[1].Content != "hello back" {
		t.Fatalf("unexpected assistant content: %q", rt.history[1].Content)
	}
}

func TestHandleUserMessageExecutesAllowedTool(t *testing.T) {
	provider := &fakeProvider{responses: []router.CompletionResponse{
		{ToolCalls: []models.ToolCall{{ID: "call1", Name: "echo", Input: json.RawMessage(`{}`)}}},
		{Text: "done"},
	}}
	rt, _ := newTestRuntime(t, provider, &fakeExecutor{result: models.ExecResult{ExitCode: 0, Stdout: "ok"}})

	rt.handleUserMessage(context.Background(), "run echo")

	foundToolResult := false
	for _, e := range rt.history {
		if e.Role == models.RoleTool {
			foundToolResult = true
			if e.ToolResults[0].Content != "ok" {
				t.Fatalf("expected scrubbed tool output %q, got %q", "ok", e.ToolResults[0].Content)
			}
		}
	}
	if !foundToolResult {
		t.Fatalf("expected a tool result entry in history")
	}
	if rt.history[len(rt.history)-1].Content != "done" {
		t.Fatalf("expected final assistant reply, got %q", rt.history[len(rt.history)-1].Content)
	}
}

func TestHandleUserMessageSuspendsOnRequireApproval(t *testing.T) {
	provider := &fakeProvider{responses: []router.CompletionResponse{
		{ToolCalls: []models.ToolCall{{ID: "call1", Name: "fetch_url", Input: json.RawMessage(`{"domain":"evil.example.com"}`)}}},
	}}
	rt, _ := newTestRuntime(t, provider, &fakeExecutor{})

	rt.handleUserMessage(context.Background(), "fetch something")

	if len(rt.awaiting) != 1 {
		t.Fatalf("expected one pending approval, got %d", len(rt.awaiting))
	}

	var recordID string
	for id := range rt.awaiting {
		recordID = id
	}

	found := false
	for _, e := range rt.history {
		for _, tr := range e.ToolResults {
			if tr.Pending {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected a pending tool result entry")
	}

	provider.responses = append(provider.responses, router.CompletionResponse{Text: "resumed"})
	rt.handleApprovalResolved(context.Background(), Event{
		Kind:       EventApprovalResolved,
		ApprovalID: recordID,
		Approved:   true,
		Outcome:    models.ToolCall{ID: "call1", Name: "fetch_url"},
	})

	if len(rt.awaiting) != 0 {
		t.Fatalf("expected approval to clear awaiting set")
	}
	if rt.history[len(rt.history)-1].Content != "resumed" {
		t.Fatalf("expected turn to resume after approval, got %q", rt.history[len(rt.history)-1].Content)
	}
}

func TestHandleUserMessageBlocksDenseCredential(t *testing.T) {
	provider := &fakeProvider{}
	rt, _ := newTestRuntime(t, provider, &fakeExecutor{})

	rt.handleUserMessage(context.Background(), "sk-abcdefghijklmnopqrstuvwxyz0123456789")

	if len(rt.history) != 0 {
		t.Fatalf("expected blocked message to leave no history, got %d entries", len(rt.history))
	}
}
