package models

import "time"

// AgentEvent is the unified event model for streaming and hooks: a single
// event stream that drives logging, plugins, and response chunk adapters.
//
//   - Single Type discriminator with optional payload pointers
//   - Monotonic Sequence for ordering guarantees across goroutines
type AgentEvent struct {
	Version int            `json:"version"`
	Type    AgentEventType `json:"type"`
	Time    time.Time      `json:"time"`

	Sequence uint64 `json:"seq"`

	RunID     string `json:"run_id,omitempty"`
	TurnIndex int    `json:"turn_index,omitempty"`
	IterIndex int    `json:"iter_index,omitempty"`

	// Exactly one payload should be non-nil for a given Type.
	Text     *TextEventPayload     `json:"text,omitempty"`
	Tool     *ToolEventPayload     `json:"tool,omitempty"`
	Stream   *StreamEventPayload   `json:"stream,omitempty"`
	Error    *ErrorEventPayload    `json:"error,omitempty"`
	Stats    *StatsEventPayload    `json:"stats,omitempty"`
	Context  *ContextEventPayload  `json:"context,omitempty"`
	Steering *SteeringEventPayload `json:"steering,omitempty"`
}

// AgentEventType identifies the kind of agent event.
type AgentEventType string

const (
	AgentEventRunStarted   AgentEventType = "run.started"
	AgentEventRunFinished  AgentEventType = "run.finished"
	AgentEventRunError     AgentEventType = "run.error"
	AgentEventRunCancelled AgentEventType = "run.cancelled"
	AgentEventRunTimedOut  AgentEventType = "run.timed_out"

	AgentEventTurnStarted  AgentEventType = "turn.started"
	AgentEventTurnFinished AgentEventType = "turn.finished"
	AgentEventIterStarted  AgentEventType = "iter.started"
	AgentEventIterFinished AgentEventType = "iter.finished"

	AgentEventModelDelta     AgentEventType = "model.delta"
	AgentEventModelCompleted AgentEventType = "model.completed"

	AgentEventToolStarted  AgentEventType = "tool.started"
	AgentEventToolStdout   AgentEventType = "tool.stdout"
	AgentEventToolStderr   AgentEventType = "tool.stderr"
	AgentEventToolFinished AgentEventType = "tool.finished"
	AgentEventToolTimedOut AgentEventType = "tool.timed_out"

	AgentEventContextPacked AgentEventType = "context.packed"

	AgentEventSteeringInjected AgentEventType = "steering.injected"
	AgentEventToolsSkipped     AgentEventType = "tools.skipped"
	AgentEventFollowUpQueued   AgentEventType = "followup.queued"
)

// TextEventPayload is generic human-readable text (logs, status messages).
type TextEventPayload struct {
	Text string `json:"text"`
}

// StreamEventPayload represents model streaming deltas and completion metadata.
type StreamEventPayload struct {
	Delta string `json:"delta,omitempty"`
	Final string `json:"final,omitempty"`

	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// ToolEventPayload describes tool calls and their streamed outputs. Args and
// Result are opaque bytes to avoid coupling to individual tool schemas.
type ToolEventPayload struct {
	CallID   string `json:"call_id,omitempty"`
	Name     string `json:"name,omitempty"`
	ArgsJSON []byte `json:"args_json,omitempty"`
	Chunk    string `json:"chunk,omitempty"`

	Success    bool          `json:"success,omitempty"`
	ResultJSON []byte        `json:"result_json,omitempty"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
}

// ErrorEventPayload standardizes errors for streaming and plugins.
type ErrorEventPayload struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retriable bool   `json:"retriable,omitempty"`

	// Err preserves the original error for errors.Is/errors.As; not serialized.
	Err error `json:"-"`
}

// StatsEventPayload carries run statistics as an event.
type StatsEventPayload struct {
	Run *RunStats `json:"run,omitempty"`
}

// RunStats is an aggregated summary of an agent run, derived from the event
// stream for observability.
type RunStats struct {
	RunID string `json:"run_id,omitempty"`

	StartedAt  time.Time     `json:"started_at,omitempty"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	WallTime   time.Duration `json:"wall_time,omitempty"`

	Turns int `json:"turns,omitempty"`
	Iters int `json:"iters,omitempty"`

	ToolCalls    int           `json:"tool_calls,omitempty"`
	ToolWallTime time.Duration `json:"tool_wall_time,omitempty"`
	ToolTimeouts int           `json:"tool_timeouts,omitempty"`

	ModelWallTime time.Duration `json:"model_wall_time,omitempty"`
	InputTokens   int           `json:"input_tokens,omitempty"`
	OutputTokens  int           `json:"output_tokens,omitempty"`

	ContextPacks int `json:"context_packs,omitempty"`
	DroppedItems int `json:"dropped_items,omitempty"`

	Cancelled     bool `json:"cancelled,omitempty"`
	TimedOut      bool `json:"timed_out,omitempty"`
	DroppedEvents int  `json:"dropped_events,omitempty"`

	Errors int `json:"errors,omitempty"`
}

// SteeringEventPayload describes steering and follow-up message events: a
// user message that interrupts an in-flight turn.
type SteeringEventPayload struct {
	Content      string   `json:"content,omitempty"`
	Count        int      `json:"count,omitempty"`
	SkippedTools []string `json:"skipped_tools,omitempty"`
	Priority     int      `json:"priority,omitempty"`
}

// ContextEventPayload explains why messages were included or dropped during
// context assembly packing.
type ContextEventPayload struct {
	BudgetChars    int `json:"budget_chars"`
	BudgetMessages int `json:"budget_messages"`
	UsedChars      int `json:"used_chars"`
	UsedMessages   int `json:"used_messages"`

	Candidates int `json:"candidates"`
	Included   int `json:"included"`
	Dropped    int `json:"dropped"`

	SummaryUsed  bool `json:"summary_used,omitempty"`
	SummaryChars int  `json:"summary_chars,omitempty"`

	Items []ContextPackItem `json:"items,omitempty"`
}

// ContextPackItem describes a single item in the context packing decision.
type ContextPackItem struct {
	ID       string            `json:"id,omitempty"`
	Kind     ContextItemKind   `json:"kind"`
	Chars    int               `json:"chars"`
	Included bool              `json:"included"`
	Reason   ContextPackReason `json:"reason,omitempty"`
}

// ContextItemKind categorizes context items.
type ContextItemKind string

const (
	ContextItemSystem   ContextItemKind = "system"
	ContextItemHistory  ContextItemKind = "history"
	ContextItemTool     ContextItemKind = "tool"
	ContextItemSummary  ContextItemKind = "summary"
	ContextItemIncoming ContextItemKind = "incoming"
)

// ContextPackReason explains a packing decision.
type ContextPackReason string

const (
	ContextReasonIncluded   ContextPackReason = "included"
	ContextReasonReserved   ContextPackReason = "reserved"
	ContextReasonOverBudget ContextPackReason = "over_budget"
	ContextReasonTooOld     ContextPackReason = "too_old"
	ContextReasonFiltered   ContextPackReason = "filtered"
)
