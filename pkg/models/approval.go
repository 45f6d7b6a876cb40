package models

import "time"

// ApprovalOutcome is the terminal state of an ApprovalRecord.
type ApprovalOutcome string

const (
	ApprovalOutcomePending  ApprovalOutcome = "pending"
	ApprovalOutcomeApproved ApprovalOutcome = "approved"
	ApprovalOutcomeDenied   ApprovalOutcome = "denied"
	ApprovalOutcomeExpired  ApprovalOutcome = "expired"
)

// ApprovalRecord correlates a paused tool invocation with the user decision
// that will eventually resolve it.
type ApprovalRecord struct {
	ID         string          `json:"id"` // 8-char base62
	SessionID  string          `json:"session_id"`
	ToolCall   ToolCall        `json:"tool_call"`
	Reason     string          `json:"reason,omitempty"`
	UserID     string          `json:"user_id"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	Used       bool            `json:"used"`
	Outcome    ApprovalOutcome `json:"outcome"`
	DecidedAt  time.Time       `json:"decided_at,omitempty"`
	DecidedBy  string          `json:"decided_by,omitempty"`
}

// Expired reports whether the record has passed its expiry at time t.
func (r *ApprovalRecord) Expired(t time.Time) bool {
	return r.Outcome == ApprovalOutcomePending && t.After(r.ExpiresAt)
}

// HealthSnapshot is the single document the heartbeat writes periodically
// and the supervisor (and status command) read.
type HealthSnapshot struct {
	Ts               time.Time     `json:"ts"`
	UptimeSecs       int64         `json:"uptime_secs"`
	LastHeartbeat    time.Time     `json:"last_heartbeat"`
	ExecutorMode     string        `json:"executor_mode"`
	ContainerAlive   bool          `json:"container_alive"`
	ActiveSessions   int           `json:"active_sessions"`
	MemoryStoreSize  int64         `json:"memory_store_size"`
	CoreToolCount    int           `json:"core_tool_count"`
	DynamicToolCount int           `json:"dynamic_tool_count"`
	BudgetToday      BudgetSummary `json:"budget_today"`
	LastError        string        `json:"last_error,omitempty"`
}

// BudgetSummary is the read-only view of budget state exposed in the
// health snapshot and to the status command.
type BudgetSummary struct {
	SessionSpent uint64 `json:"session_spent,omitempty"`
	SessionLimit uint64 `json:"session_limit,omitempty"`
	DailySpent   uint64 `json:"daily_spent"`
	DailyLimit   uint64 `json:"daily_limit"`
	Paused       bool   `json:"paused,omitempty"`
}
