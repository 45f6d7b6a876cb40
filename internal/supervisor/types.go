// Package supervisor implements the watchdog process that runs alongside
// the agent: it tails logs, reads the health snapshot, correlates tool
// and task failures against recent git history, and applies a bounded set
// of remediations when a known failure pattern matches. Unmatched
// evidence falls back to a separately-budgeted model call; low-confidence
// verdicts are reported rather than acted on.
package supervisor

import "time"

// RemediationKind is one of the fixed set of actions the supervisor may
// take. No other action is available; an unmatched pattern with no safe
// remediation is reported, never guessed at.
type RemediationKind string

const (
	RemediationRevertCommit  RemediationKind = "revert_commit"
	RemediationQuarantine    RemediationKind = "quarantine_tool"
	RemediationRestartAgent  RemediationKind = "restart_agent"
	RemediationResetSandbox  RemediationKind = "reset_sandbox"
	RemediationDisableTask   RemediationKind = "disable_task"
	RemediationEditConfig    RemediationKind = "edit_config"
	RemediationUpdateBinary  RemediationKind = "update_binary"
	RemediationAlertOnly     RemediationKind = "alert_only"
	RemediationNotifyOnly    RemediationKind = "notify_only"
)

// Evidence is the packet assembled from the log tail, the health
// snapshot, tool health records, and recent git history for one
// diagnostic pass. Pattern matchers and, on fallback, the model both
// consume this same shape.
type Evidence struct {
	CollectedAt time.Time

	// Recent structured log lines, newest last.
	LogTail []string

	// SnapshotStale is true once the health snapshot hasn't been
	// refreshed within the stale threshold.
	SnapshotStale    bool
	SnapshotAgeSecs  float64
	LastHeartbeatErr string

	// ToolFailures maps a tool name to its current failure rate (0..1)
	// and whether its descriptor or implementation changed recently.
	ToolFailures map[string]ToolFailureInfo

	// RecentCommits are the tools-directory git log entries newer than
	// the last known-good point, oldest first.
	RecentCommits []CommitInfo

	// ContainerAlive mirrors the last health snapshot's executor state.
	ContainerAlive bool

	// TaskFailures maps a scheduled task ID to its consecutive failure
	// count since its last success.
	TaskFailures map[string]int

	// DailyBurn is the fraction of the daily budget spent so far today.
	DailyBurn float64
}

// ToolFailureInfo summarizes one tool's recent health for pattern
// matching.
type ToolFailureInfo struct {
	FailureRate   float64
	ChangedSince  bool // descriptor or implementation changed since last healthy window
	InvocationCnt int64
}

// CommitInfo is one git log entry in the tools (or config) repository.
type CommitInfo struct {
	Hash    string
	Message string
	At      time.Time
}

// Verdict is the outcome of matching Evidence against either a fixed
// pattern or the fallback model call.
type Verdict struct {
	Matched    bool
	Pattern    string
	Remediation RemediationKind
	Target      string // tool name, task ID, or commit hash, depending on Remediation
	Confidence  float64
	Reason      string
}

// FixRecord is one entry in the supervisor's persistent fix log: what was
// observed, what was tried, and whether it worked.
type FixRecord struct {
	Ts          time.Time       `json:"ts"`
	Pattern     string          `json:"pattern"`
	Remediation RemediationKind `json:"remediation"`
	Target      string          `json:"target,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Verified    bool            `json:"verified"`
	VerifyNote  string          `json:"verify_note,omitempty"`
}
