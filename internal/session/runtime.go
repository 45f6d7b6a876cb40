// Package session implements the per-session cooperative event loop: one
// logical task per conversation, single-threaded within itself, driving
// event intake, turn execution, tool-call fan-out, pause handling, and
// cancellation.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wintermute-run/wintermute/internal/approval"
	"github.com/wintermute-run/wintermute/internal/assembler"
	"github.com/wintermute-run/wintermute/internal/budget"
	"github.com/wintermute-run/wintermute/internal/policy"
	"github.com/wintermute-run/wintermute/internal/redact"
	"github.com/wintermute-run/wintermute/internal/router"
	"github.com/wintermute-run/wintermute/pkg/models"
)

// EventKind is the variant tag on the runtime's inbound event channel.
type EventKind string

const (
	EventUserMessage      EventKind = "user_message"
	EventApprovalResolved EventKind = "approval_resolved"
	EventCancel           EventKind = "cancel"
)

// Event is one entry on a session's event channel.
type Event struct {
	Kind       EventKind
	Content    string          // for EventUserMessage
	ApprovalID string          // for EventApprovalResolved
	Approved   bool            // for EventApprovalResolved
	Outcome    models.ToolCall // the call being resolved, for EventApprovalResolved
}

const eventQueueDepth = 32

// maxToolCallsPerTurn bounds tool-call fan-out within one model response,
// independent of any executor-level concurrency limits.
const maxToolCallsPerTurn = 16

// Executor runs one allowed tool call against the sandbox boundary.
type Executor interface {
	Execute(ctx context.Context, call models.ToolCall) (models.ExecResult, error)
}

// ToolRegistry is the read/write surface the runtime needs from the tool
// registry: descriptor snapshot plus health-counter updates.
type ToolRegistry interface {
	assembler.ToolSnapshot
	Descriptor(name string) (models.ToolDescriptor, bool)
	RecordExecution(name string, success bool, durationMs int64, errMsg string)
}

// TrustLedger is the policy gate's read-only view into allowlisted
// domains and pulled images, kept current by the egress filter and the
// container executor.
type TrustLedger interface {
	Snapshot() policy.TrustLedgerSnapshot
}

// HistoryStore persists the append-only conversation log. The runtime
// keeps an in-memory copy for the lifetime of the process and relies on
// this store only for durability across restarts.
type HistoryStore interface {
	Append(ctx context.Context, sessionID string, entry models.TurnEntry) error
	Load(ctx context.Context, sessionID string) ([]models.TurnEntry, error)
}

// Notifier delivers a message to the principal outside the model
// conversation loop (pause notices, renewal failures).
type Notifier interface {
	Notify(ctx context.Context, sessionID, text string) error
}

// Config bundles the runtime's collaborators, each grounded on its own
// component's contract.
type Config struct {
	Redactor     *redact.Redactor
	Assembler    *assembler.Assembler
	Router       *router.Router
	Budget       *budget.Session
	Approvals    *approval.Manager
	Tools        ToolRegistry
	Executor     Executor
	Ledger       TrustLedger
	History      HistoryStore
	Notifier     Notifier
	Variant      policy.ExecutorVariant
	Docs         assembler.Documents
	DefaultModel string
	DefaultSkill string
	Logger       *slog.Logger
}

// Runtime drives one session's conversation loop.
type Runtime struct {
	session *models.Session
	cfg     Config
	logger  *slog.Logger

	events chan Event

	mu            sync.Mutex
	history       []models.TurnEntry
	firstTurnDone bool

	// awaiting tracks tool calls currently pending approval for the
	// in-progress turn, keyed by approval record id. A turn suspends
	// (returns control to the event loop) while this is non-empty.
	awaiting map[string]pendingCall

	cancel context.CancelFunc
}

type pendingCall struct {
	call models.ToolCall
}

// New builds a Runtime for the given session. cfg.Budget and cfg.Approvals
// are expected to already be constructed per-session by the caller (the
// supervising process that owns session creation), since both carry
// per-session mutable state.
func New(sess *models.Session, cfg Config) *Runtime {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		session:  sess,
		cfg:      cfg,
		logger:   logger.With("session_id", sess.ID),
		events:   make(chan Event, eventQueueDepth),
		awaiting: make(map[string]pendingCall),
	}
}

// Submit enqueues an event for the session's loop. Returns an error if the
// session's event queue is full, signaling backpressure to the caller.
func (r *Runtime) Submit(ev Event) error {
	select {
	case r.events <- ev:
		return nil
	default:
		return fmt.Errorf("session %s: event queue full", r.session.ID)
	}
}

// Deliver implements approval.Deliverer, turning a resolved approval into
// an EventApprovalResolved event on this session's own queue.
func (r *Runtime) Deliver(ev approval.ResumeEvent) {
	_ = r.Submit(Event{
		Kind:       EventApprovalResolved,
		ApprovalID: ev.RecordID,
		Approved:   ev.Outcome == models.ApprovalOutcomeApproved,
		Outcome:    ev.ToolCall,
	})
}

// Run drives the event loop until ctx is canceled or a cancel event is
// received. Intended to be run in its own goroutine per session.
func (r *Runtime) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	for {
		select {
		case <-runCtx.Done():
			return
		case ev := <-r.events:
			if ev.Kind == EventCancel {
				return
			}
			r.handleEvent(runCtx, ev)
		}
	}
}

func (r *Runtime) handleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventUserMessage:
		r.handleUserMessage(ctx, ev.Content)
	case EventApprovalResolved:
		r.handleApprovalResolved(ctx, ev)
	}
}

// handleUserMessage implements steps 2-7 of the session loop for a fresh
// inbound message.
func (r *Runtime) handleUserMessage(ctx context.Context, raw string) {
	decision := r.cfg.Redactor.ScreenInbound(raw)
	if decision.Blocked {
		r.notify(ctx, "message withheld: looked like a credential. Place secrets in the credentials file instead.")
		return
	}

	if paused, reason := r.cfg.Budget.Paused(); paused {
		if !r.cfg.Budget.Renew() {
			r.notify(ctx, fmt.Sprintf("still paused (%s); daily budget is exhausted", reason))
			return
		}
	}

	entry := models.TurnEntry{
		ID:        uuid.NewString(),
		SessionID: r.session.ID,
		Role:      models.RoleUser,
		Direction: models.DirectionInbound,
		Content:   decision.Content,
		CreatedAt: time.Now(),
	}
	r.appendHistory(ctx, entry)

	r.runTurn(ctx)
}

// handleApprovalResolved implements the resumption path: the awaited tool
// call either executes (approved) or returns a denial result (rejected),
// the result is redacted and appended, and once every call from the
// triggering wave is resolved the turn continues (step 3 onward).
func (r *Runtime) handleApprovalResolved(ctx context.Context, ev Event) {
	r.mu.Lock()
	pc, ok := r.awaiting[ev.ApprovalID]
	if ok {
		delete(r.awaiting, ev.ApprovalID)
	}
	remaining := len(r.awaiting)
	r.mu.Unlock()
	if !ok {
		return
	}

	var result models.ToolResult
	if ev.Approved {
		result = r.runTool(ctx, pc.call)
	} else {
		result = models.ToolResult{ToolCallID: pc.call.ID, Content: "denied by user", IsError: true}
	}

	r.appendHistory(ctx, models.TurnEntry{
		ID:          uuid.NewString(),
		SessionID:   r.session.ID,
		Role:        models.RoleTool,
		Content:     result.Content,
		ToolResults: []models.ToolResult{result},
		CreatedAt:   time.Now(),
	})

	if remaining > 0 {
		return
	}
	r.runTurn(ctx)
}

// runTurn implements the tight steps-3-through-7 loop: assemble, complete,
// dispatch tool calls, append results, repeat until a plain assistant
// reply with no tool calls, or until tool calls are left pending approval
// (in which case the loop yields back to the event channel).
func (r *Runtime) runTurn(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		firstTurn := !r.firstTurnDone
		var firstUserMessage string
		r.mu.Lock()
		history := append([]models.TurnEntry(nil), r.history...)
		if firstTurn {
			for _, e := range history {
				if e.Role == models.RoleUser {
					firstUserMessage = e.Content
					break
				}
			}
		}
		r.mu.Unlock()

		budgetNotes := r.budgetNotes()

		req, err := r.cfg.Assembler.Build(ctx, r.cfg.Docs, history, firstTurn, firstUserMessage, budgetNotes)
		if err != nil {
			r.logger.Error("turn assembly failed", "error", err)
			r.notify(ctx, "internal error assembling the request; please retry")
			return
		}
		r.mu.Lock()
		r.firstTurnDone = true
		r.mu.Unlock()

		compReq := router.CompletionRequest{
			Model:    r.cfg.DefaultModel,
			System:   joinSystemBlocks(req.SystemBlocks),
			Messages: toRouterMessages(req.Messages),
			Tools:    req.Tools,
		}

		resp, err := r.cfg.Router.Complete(ctx, r.cfg.DefaultSkill, "", compReq)
		if err != nil {
			r.logger.Error("completion failed", "error", err)
			r.notify(ctx, "the model is unavailable right now; please try again shortly")
			return
		}

		if usage := resp.Usage; usage.InputTokens+usage.OutputTokens > 0 {
			r.accountUsage(ctx, usage)
		}

		if len(resp.ToolCalls) == 0 {
			r.appendHistory(ctx, models.TurnEntry{
				ID:        uuid.NewString(),
				SessionID: r.session.ID,
				Role:      models.RoleAssistant,
				Direction: models.DirectionOutbound,
				Content:   r.cfg.Redactor.Scrub(resp.Text),
				CreatedAt: time.Now(),
			})
			return
		}

		if resp.Text != "" {
			r.appendHistory(ctx, models.TurnEntry{
				ID:        uuid.NewString(),
				SessionID: r.session.ID,
				Role:      models.RoleAssistant,
				Direction: models.DirectionOutbound,
				Content:   r.cfg.Redactor.Scrub(resp.Text),
				ToolCalls: resp.ToolCalls,
				CreatedAt: time.Now(),
			})
		}

		calls := resp.ToolCalls
		if len(calls) > maxToolCallsPerTurn {
			calls = calls[:maxToolCallsPerTurn]
		}

		suspended := r.dispatchToolCalls(ctx, calls)
		if suspended {
			return
		}
		// All calls resolved synchronously (allow/deny); loop back to
		// step 3 and ask the model again with the fresh results.
	}
}

// dispatchToolCalls runs step 5: each call traverses the policy gate in
// the order the model emitted them. Returns true if the turn must suspend
// because one or more calls entered pending-approval.
func (r *Runtime) dispatchToolCalls(ctx context.Context, calls []models.ToolCall) bool {
	ledger := policy.TrustLedgerSnapshot{}
	if r.cfg.Ledger != nil {
		ledger = r.cfg.Ledger.Snapshot()
	}

	suspendedAny := false
	for _, call := range calls {
		inv := r.toInvocation(call)
		verdict := policy.Decide(inv, ledger, r.cfg.Variant)

		switch verdict.Decision {
		case policy.Deny:
			result := models.ToolResult{ToolCallID: call.ID, Content: fmt.Sprintf("denied: %s", verdict.Reason), IsError: true}
			r.appendHistory(ctx, toolResultEntry(r.session.ID, result))

		case policy.RequireApproval:
			record, err := r.cfg.Approvals.Request(r.session.ID, r.session.PrincipalID, call, verdict.Reason)
			if err != nil {
				result := models.ToolResult{ToolCallID: call.ID, Content: "could not register approval request", IsError: true}
				r.appendHistory(ctx, toolResultEntry(r.session.ID, result))
				continue
			}
			r.mu.Lock()
			r.awaiting[record.ID] = pendingCall{call: call}
			r.mu.Unlock()
			pending := models.ToolResult{ToolCallID: call.ID, Content: fmt.Sprintf("pending approval %s", record.ID), Pending: true}
			r.appendHistory(ctx, toolResultEntry(r.session.ID, pending))
			suspendedAny = true

		default: // Allow
			result := r.runTool(ctx, call)
			r.appendHistory(ctx, toolResultEntry(r.session.ID, result))
		}
	}
	return suspendedAny
}

func (r *Runtime) toInvocation(call models.ToolCall) policy.Invocation {
	inv := policy.Invocation{ToolName: call.Name}
	var args struct {
		Domain    string `json:"domain"`
		Image     string `json:"image"`
		Path      string `json:"path"`
		Pull      bool   `json:"pull_image"`
		Root      string `json:"sandbox_root"`
	}
	_ = json.Unmarshal(call.Input, &args)
	inv.OutboundDomain = args.Domain
	inv.Image = args.Image
	inv.ContainerImagePull = args.Pull
	if args.Path != "" && args.Root != "" {
		inv.OutsideSandboxRoot = !pathWithin(args.Root, args.Path)
	}
	inv.DestructivePath = isDestructivePattern(args.Path)
	return inv
}

// runTool executes one allowed call against the sandbox boundary, records
// the outcome in the tool's health block, and redacts the output before
// it is allowed back into history.
func (r *Runtime) runTool(ctx context.Context, call models.ToolCall) models.ToolResult {
	start := time.Now()
	res, err := r.cfg.Executor.Execute(ctx, call)
	duration := time.Since(start).Milliseconds()

	success := err == nil && res.ExitCode == 0
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	} else if res.ExitCode != 0 {
		errMsg = fmt.Sprintf("exit code %d", res.ExitCode)
	}
	if r.cfg.Tools != nil {
		r.cfg.Tools.RecordExecution(call.Name, success, duration, errMsg)
	}

	content := res.Stdout
	if !success {
		content = res.Stdout + res.Stderr
	}
	content = r.cfg.Redactor.Scrub(content)

	return models.ToolResult{
		ToolCallID: call.ID,
		Content:    content,
		IsError:    !success,
	}
}

func (r *Runtime) appendHistory(ctx context.Context, entry models.TurnEntry) {
	r.mu.Lock()
	r.history = append(r.history, entry)
	r.mu.Unlock()
	if r.cfg.History != nil {
		if err := r.cfg.History.Append(ctx, r.session.ID, entry); err != nil {
			r.logger.Error("history append failed", "error", err)
		}
	}
}

// accountUsage folds token usage into the budget tracker and, on
// threshold-crossing or exhaustion, notifies the principal.
func (r *Runtime) accountUsage(ctx context.Context, usage router.Usage) {
	outcome, frac := r.cfg.Budget.Add(uint64(usage.InputTokens + usage.OutputTokens))
	switch outcome {
	case budget.Warning:
		r.notify(ctx, fmt.Sprintf("budget notice: %.0f%% of session budget used", frac*100))
	case budget.SessionExhausted:
		r.notify(ctx, "session budget exhausted; paused until renewed")
	case budget.DailyExhausted:
		r.notify(ctx, "daily budget exhausted; paused")
	}
}

func (r *Runtime) budgetNotes() []string {
	paused, reason := r.cfg.Budget.Paused()
	if !paused {
		return nil
	}
	return []string{fmt.Sprintf("session is paused: %s", reason)}
}

func (r *Runtime) notify(ctx context.Context, text string) {
	if r.cfg.Notifier == nil {
		return
	}
	if err := r.cfg.Notifier.Notify(ctx, r.session.ID, text); err != nil {
		r.logger.Error("notify failed", "error", err)
	}
}

func toolResultEntry(sessionID string, result models.ToolResult) models.TurnEntry {
	return models.TurnEntry{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Role:        models.RoleTool,
		Content:     result.Content,
		ToolResults: []models.ToolResult{result},
		CreatedAt:   time.Now(),
	}
}

func toRouterMessages(entries []models.TurnEntry) []router.Message {
	out := make([]router.Message, 0, len(entries))
	for _, e := range entries {
		if e.Role == models.RoleSystem {
			continue
		}
		out = append(out, router.Message{Role: e.Role, Content: e.Content})
	}
	return out
}

func joinSystemBlocks(blocks []string) string {
	out := ""
	for i, b := range blocks {
		if i > 0 {
			out += "\n\n"
		}
		out += b
	}
	return out
}
