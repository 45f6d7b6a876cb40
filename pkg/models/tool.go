package models

import (
	"encoding/json"
	"time"
)

// ToolHealth is the mutable health block carried alongside a descriptor.
// The tool registry and the supervisor are its only writers.
type ToolHealth struct {
	CreatedAt     time.Time `json:"created_at"`
	LastUsedAt    time.Time `json:"last_used_at,omitempty"`
	InvocationCnt int64     `json:"invocation_count"`
	SuccessCount  int64     `json:"success_count"`
	SuccessRate   float64   `json:"success_rate"`
	AvgDurationMs int64     `json:"avg_duration_ms"`
	LastError     string    `json:"last_error,omitempty"`
	Version       int       `json:"version"`
}

// Record folds one invocation outcome into the health block.
func (h *ToolHealth) Record(success bool, durationMs int64, errMsg string) {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	h.LastUsedAt = time.Now()
	h.InvocationCnt++
	if success {
		h.SuccessCount++
	} else {
		h.LastError = errMsg
	}
	h.SuccessRate = float64(h.SuccessCount) / float64(h.InvocationCnt)
	if h.InvocationCnt == 1 {
		h.AvgDurationMs = durationMs
	} else {
		// running average
		h.AvgDurationMs = h.AvgDurationMs + (durationMs-h.AvgDurationMs)/h.InvocationCnt
	}
}

// ToolDescriptor is the machine-readable contract for one tool. Core tools
// are compiled-in; dynamic tools originate from descriptor files under the
// tools directory and are kept current by the tool registry's filesystem
// watcher.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	TimeoutSecs int             `json:"timeout_secs,omitempty"`
	Dynamic     bool            `json:"-"`
	// ImplPath is the companion script invoked by the executor for
	// dynamic tools. Empty for compiled-in core tools.
	ImplPath string     `json:"-"`
	Meta     ToolHealth `json:"_meta"`
}

// ToolInvocationOutcome is the terminal state of a ToolInvocation.
type ToolInvocationOutcome string

const (
	OutcomeSuccess         ToolInvocationOutcome = "success"
	OutcomeError           ToolInvocationOutcome = "error"
	OutcomePendingApproval ToolInvocationOutcome = "pending_approval"
)

// ExecResult is the raw result of running a command inside the sandbox
// boundary, before it is wrapped into a ToolResult.
type ExecResult struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	WallTime time.Duration `json:"wall_time"`
}
