package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/wintermute-run/wintermute/internal/tasks"
)

// ToolQuarantiner sidelines a tool's descriptor. toolregistry.Registry
// satisfies this directly.
type ToolQuarantiner interface {
	Quarantine(name string) error
}

// AgentRestarter stops and restarts the agent process.
type AgentRestarter interface {
	Restart(ctx context.Context) error
}

// SandboxResetter tears down and recreates the executor's sandbox
// container or VM.
type SandboxResetter interface {
	ResetSandbox(ctx context.Context) error
}

// ConfigEditor applies a targeted configuration change, e.g. disabling a
// misbehaving feature flag.
type ConfigEditor interface {
	EditConfig(ctx context.Context, key, value string) error
}

// BinaryUpdater installs a new agent binary, used both by the daily
// update check and as a remediation of last resort.
type BinaryUpdater interface {
	UpdateBinary(ctx context.Context) error
}

// Actuator applies RemediationKind verdicts against the concrete
// subsystems they target. Any dependency left nil makes its
// corresponding remediation a no-op that returns an error instead of
// silently succeeding, so a misconfigured supervisor fails loud rather
// than pretending to have fixed something.
type Actuator struct {
	Tools     ToolQuarantiner
	GitRepo   *git.Repository
	Tasks     tasks.Store
	Restarter AgentRestarter
	Sandbox   SandboxResetter
	Config    ConfigEditor
	Binaries  BinaryUpdater

	restartMu    sync.Mutex
	restartTimes []time.Time
}

// maxRestartsPerWindow and restartWindow bound the restart-agent
// remediation: if the agent needed restarting this many times within the
// window, the supervisor stops retrying and surfaces the condition
// instead of restarting again.
const (
	maxRestartsPerWindow = 3
	restartWindow        = 15 * time.Minute
)

// restartAllowed reports whether another restart-agent remediation may
// proceed, recording this attempt if so.
func (a *Actuator) restartAllowed(now time.Time) bool {
	a.restartMu.Lock()
	defer a.restartMu.Unlock()

	cutoff := now.Add(-restartWindow)
	kept := a.restartTimes[:0]
	for _, t := range a.restartTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	a.restartTimes = kept

	if len(a.restartTimes) >= maxRestartsPerWindow {
		return false
	}
	a.restartTimes = append(a.restartTimes, now)
	return true
}

// Apply dispatches a verdict to the matching remediation and reports
// whether it believes the fix took effect. Verification is deliberately
// shallow here (did the action return without error); richer
// verification belongs to the caller, which can re-read health state
// after a pause.
func (a *Actuator) Apply(ctx context.Context, v Verdict) error {
	switch v.Remediation {
	case RemediationQuarantine:
		if a.Tools == nil {
			return fmt.Errorf("supervisor: no tool registry wired for quarantine")
		}
		return a.Tools.Quarantine(v.Target)

	case RemediationRevertCommit:
		return a.revertCommit(v.Target)

	case RemediationRestartAgent:
		if a.Restarter == nil {
			return fmt.Errorf("supervisor: no restarter wired")
		}
		if !a.restartAllowed(time.Now()) {
			return fmt.Errorf("supervisor: agent restarted %d times in the last %s, giving up", maxRestartsPerWindow, restartWindow)
		}
		return a.Restarter.Restart(ctx)

	case RemediationResetSandbox:
		if a.Sandbox == nil {
			return fmt.Errorf("supervisor: no sandbox resetter wired")
		}
		return a.Sandbox.ResetSandbox(ctx)

	case RemediationDisableTask:
		return a.disableTask(ctx, v.Target)

	case RemediationEditConfig:
		if a.Config == nil {
			return fmt.Errorf("supervisor: no config editor wired")
		}
		return a.Config.EditConfig(ctx, v.Target, "")

	case RemediationUpdateBinary:
		if a.Binaries == nil {
			return fmt.Errorf("supervisor: no binary updater wired")
		}
		return a.Binaries.UpdateBinary(ctx)

	case RemediationAlertOnly, RemediationNotifyOnly, "":
		// Nothing to do; the caller surfaces v.Reason to an operator.
		return nil

	default:
		return fmt.Errorf("supervisor: unknown remediation kind %q", v.Remediation)
	}
}

// revertCommit hard-resets the wired repository to the parent of the
// named commit (or of HEAD, if target is empty), undoing the offending
// change. Used both for tool-descriptor reverts and setup-script
// reverts, since both live in version-controlled directories.
func (a *Actuator) revertCommit(target string) error {
	if a.GitRepo == nil {
		return fmt.Errorf("supervisor: no git repository wired for revert")
	}

	var bad plumbing.Hash
	if target != "" {
		bad = plumbing.NewHash(target)
	} else {
		head, err := a.GitRepo.Head()
		if err != nil {
			return fmt.Errorf("supervisor: resolve HEAD: %w", err)
		}
		bad = head.Hash()
	}

	commit, err := a.GitRepo.CommitObject(bad)
	if err != nil {
		return fmt.Errorf("supervisor: load commit %s: %w", bad, err)
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return fmt.Errorf("supervisor: commit %s has no parent to revert to: %w", bad, err)
	}

	wt, err := a.GitRepo.Worktree()
	if err != nil {
		return fmt.Errorf("supervisor: open worktree: %w", err)
	}
	return wt.Reset(&git.ResetOptions{Commit: parent.Hash, Mode: git.HardReset})
}

func (a *Actuator) disableTask(ctx context.Context, id string) error {
	if a.Tasks == nil {
		return fmt.Errorf("supervisor: no task store wired for disable")
	}
	task, err := a.Tasks.GetTask(ctx, id)
	if err != nil {
		return fmt.Errorf("supervisor: load task %s: %w", id, err)
	}
	task.Status = tasks.TaskStatusDisabled
	task.UpdatedAt = time.Now()
	return a.Tasks.UpdateTask(ctx, task)
}

// ProcessRestarter restarts the agent by sending SIGTERM, escalating to
// SIGKILL if the process hasn't exited within grace, then launching a
// fresh process from the recorded command line. Used when the agent
// isn't running under a platform service manager.
type ProcessRestarter struct {
	PID     int
	Command []string
	Grace   time.Duration
}

func (p *ProcessRestarter) Restart(ctx context.Context) error {
	grace := p.Grace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	proc, err := os.FindProcess(p.PID)
	if err == nil {
		_ = proc.Signal(os.Interrupt)
		deadline := time.Now().Add(grace)
		for time.Now().Before(deadline) && processAlive(proc) {
			time.Sleep(100 * time.Millisecond)
		}
		if processAlive(proc) {
			_ = proc.Kill()
		}
	}

	if len(p.Command) == 0 {
		return fmt.Errorf("supervisor: no command recorded to relaunch agent")
	}
	cmd := exec.CommandContext(context.Background(), p.Command[0], p.Command[1:]...)
	return cmd.Start()
}

// processAlive reports whether proc still exists by probing it with the
// null signal, the portable liveness check for a PID that may not be a
// child of this process.
func processAlive(proc *os.Process) bool {
	return proc.Signal(syscall.Signal(0)) == nil
}

// ServiceRestarter restarts the agent via the platform service manager
// (systemd/launchd/Task Scheduler) rather than direct signals.
type ServiceRestarter struct {
	Manager interface {
		Restart(env map[string]string) error
	}
	Env map[string]string
}

func (s *ServiceRestarter) Restart(ctx context.Context) error {
	if s.Manager == nil {
		return fmt.Errorf("supervisor: no service manager available on this platform")
	}
	return s.Manager.Restart(s.Env)
}
