package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/wintermute-run/wintermute/internal/heartbeat"
	"github.com/wintermute-run/wintermute/internal/router"
	"github.com/wintermute-run/wintermute/pkg/models"
)

// StaleMultiple is how many missed heartbeat intervals mark the health
// snapshot stale enough to warrant a restart.
const StaleMultiple = 3

// logTailLines bounds how many recent log lines are folded into an
// Evidence packet.
const logTailLines = 200

// lowConfidenceThreshold is the minimum confidence a fallback model
// verdict needs before the supervisor will act on it rather than merely
// notifying.
const lowConfidenceThreshold = 0.6

// EvidenceSource supplies the parts of Evidence the supervisor cannot
// derive from the health snapshot or the log tail on its own: tool
// health, recent commits, task failure streaks, and today's budget burn.
type EvidenceSource interface {
	ToolFailures(ctx context.Context) (map[string]ToolFailureInfo, error)
	RecentCommits(ctx context.Context, limit int) ([]CommitInfo, error)
	TaskFailures(ctx context.Context) (map[string]int, error)
	DailyBurn(ctx context.Context) (float64, error)
}

// Config configures one Supervisor instance.
type Config struct {
	HealthSnapshotPath  string
	LogPath             string
	HeartbeatInterval   time.Duration
	PollInterval        time.Duration
	FixLogPath          string
	OracleSkill         string // passed to router.Complete as the skill override; empty uses RoleOracle
}

// Supervisor is the separate watchdog process. It never shares an
// address space with the agent: all coordination goes through the
// filesystem (health snapshot, log file, tools git repo) and OS signals,
// per the process-isolation invariant.
type Supervisor struct {
	cfg      Config
	evidence EvidenceSource
	actuator *Actuator
	oracle   *router.Router
	fixLog   *FixLog
	logger   *slog.Logger
}

// New builds a Supervisor. oracle may be nil, in which case unmatched
// patterns are reported as low-confidence rather than diagnosed by a
// model call.
func New(cfg Config, evidence EvidenceSource, actuator *Actuator, oracle *router.Router) *Supervisor {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = heartbeat.DefaultSnapshotInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = cfg.HeartbeatInterval
	}
	return &Supervisor{
		cfg:      cfg,
		evidence: evidence,
		actuator: actuator,
		oracle:   oracle,
		fixLog:   NewFixLog(cfg.FixLogPath),
		logger:   slog.Default().With("component", "supervisor"),
	}
}

// Run polls on cfg.PollInterval until ctx is canceled, performing one
// diagnostic pass per tick.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	ev, err := s.gatherEvidence(ctx)
	if err != nil {
		s.logger.Warn("evidence gathering failed", "error", err)
		return
	}

	if ev.SnapshotStale {
		s.logger.Warn("health snapshot stale, restarting agent", "age_secs", ev.SnapshotAgeSecs)
		s.applyAndLog(ctx, Verdict{
			Matched:     true,
			Pattern:     "snapshot_stale",
			Remediation: RemediationRestartAgent,
			Confidence:  1.0,
			Reason:      fmt.Sprintf("health snapshot unrefreshed for %.0fs (limit %.0fs)", ev.SnapshotAgeSecs, s.staleLimit().Seconds()),
		})
		return
	}

	verdict := MatchPatterns(ev)
	if !verdict.Matched {
		verdict = s.fallbackDiagnose(ctx, ev)
	}
	if !verdict.Matched {
		return
	}

	if verdict.Confidence < lowConfidenceThreshold {
		s.logger.Info("low-confidence diagnosis, notifying only", "pattern", verdict.Pattern, "reason", verdict.Reason)
		verdict.Remediation = RemediationNotifyOnly
	}

	s.applyAndLog(ctx, verdict)
}

func (s *Supervisor) staleLimit() time.Duration {
	return time.Duration(StaleMultiple) * s.cfg.HeartbeatInterval
}

func (s *Supervisor) gatherEvidence(ctx context.Context) (Evidence, error) {
	ev := Evidence{CollectedAt: time.Now()}

	snap, err := heartbeat.ReadSnapshot(s.cfg.HealthSnapshotPath)
	if err != nil {
		// No snapshot yet is itself evidence of staleness once the
		// agent has had time to write a first one; treat a read error
		// the same as an old snapshot rather than failing the tick.
		ev.SnapshotStale = true
		ev.SnapshotAgeSecs = s.staleLimit().Seconds()
	} else {
		age := time.Since(snap.LastHeartbeat)
		ev.SnapshotAgeSecs = age.Seconds()
		ev.SnapshotStale = age > s.staleLimit()
		ev.ContainerAlive = snap.ContainerAlive
		ev.LastHeartbeatErr = snap.LastError
	}

	ev.LogTail = tailLines(s.cfg.LogPath, logTailLines)

	if s.evidence != nil {
		if tf, err := s.evidence.ToolFailures(ctx); err == nil {
			ev.ToolFailures = tf
		}
		if commits, err := s.evidence.RecentCommits(ctx, 20); err == nil {
			ev.RecentCommits = commits
		}
		if tasks, err := s.evidence.TaskFailures(ctx); err == nil {
			ev.TaskFailures = tasks
		}
		if burn, err := s.evidence.DailyBurn(ctx); err == nil {
			ev.DailyBurn = burn
		}
	}

	return ev, nil
}

// fallbackDiagnose invokes a separately-budgeted model call with the
// evidence packet when no fixed pattern matched. Returns an unmatched
// Verdict if no oracle provider is configured, so the caller simply
// skips the tick rather than crashing.
func (s *Supervisor) fallbackDiagnose(ctx context.Context, ev Evidence) Verdict {
	if s.oracle == nil {
		return Verdict{}
	}

	packet, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		s.logger.Warn("evidence marshal failed", "error", err)
		return Verdict{}
	}

	resp, err := s.oracle.Complete(ctx, s.cfg.OracleSkill, router.RoleOracle, router.CompletionRequest{
		System: oraclePrompt,
		Messages: []router.Message{
			{Role: models.RoleUser, Content: string(packet)},
		},
		MaxTokens: 500,
	})
	if err != nil {
		s.logger.Warn("oracle diagnosis failed", "error", err)
		return Verdict{}
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(resp.Text), &verdict); err != nil {
		s.logger.Warn("oracle response not parseable as a verdict", "error", err, "text", resp.Text)
		return Verdict{}
	}
	verdict.Matched = true
	verdict.Pattern = "oracle:" + verdict.Pattern
	return verdict
}

const oraclePrompt = `You are the supervisor's diagnostic fallback. You receive an evidence ` +
	`packet describing log tail, health snapshot, tool failures, recent commits, task failures, ` +
	`and budget burn for one long-running agent process. Respond with a single JSON object matching ` +
	`{"pattern": string, "remediation": one of "revert_commit"|"quarantine_tool"|"restart_agent"|` +
	`"reset_sandbox"|"disable_task"|"edit_config"|"update_binary"|"alert_only"|"notify_only", ` +
	`"target": string, "confidence": number between 0 and 1, "reason": string}. ` +
	`If nothing in the evidence warrants action, return remediation "notify_only" with a low confidence.`

func (s *Supervisor) applyAndLog(ctx context.Context, v Verdict) {
	err := s.actuator.Apply(ctx, v)
	rec := FixRecord{
		Ts:          time.Now(),
		Pattern:     v.Pattern,
		Remediation: v.Remediation,
		Target:      v.Target,
		Reason:      v.Reason,
		Verified:    err == nil,
	}
	if err != nil {
		rec.VerifyNote = err.Error()
		s.logger.Error("remediation failed", "pattern", v.Pattern, "remediation", v.Remediation, "error", err)
	} else {
		s.logger.Info("remediation applied", "pattern", v.Pattern, "remediation", v.Remediation, "target", v.Target)
	}
	if logErr := s.fixLog.Append(rec); logErr != nil {
		s.logger.Warn("fix log append failed", "error", logErr)
	}
}

// tailLines returns up to n trailing lines of a JSON-lines log file.
// Missing files yield an empty tail rather than an error: a
// not-yet-created log is not itself evidence of a problem.
func tailLines(path string, n int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines
}
