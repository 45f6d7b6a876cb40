// Package main provides the wintermute-supervisor entry point: a
// separate watchdog process that lives outside the agent kernel's
// address space. It never imports internal/session or
// internal/agent — only the filesystem (health snapshot, log tail, tools
// git history) and OS-level process control reach across the boundary
// between the two binaries.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/wintermute-run/wintermute/internal/boundary"
	"github.com/wintermute-run/wintermute/internal/config"
	"github.com/wintermute-run/wintermute/internal/heartbeat"
	"github.com/wintermute-run/wintermute/internal/observability"
	"github.com/wintermute-run/wintermute/internal/restart"
	"github.com/wintermute-run/wintermute/internal/supervisor"
	"github.com/wintermute-run/wintermute/internal/toolregistry"
)

var (
	version = "dev"
	commit  = "none"
)

// restartRequestedExitCode tells the service manager to relaunch this
// process immediately. The supervisor uses it only after it has replaced
// its own binary on disk and confirmed the agent stayed healthy through
// the update.
const restartRequestedExitCode = 10

// updateCheckInterval is how often the daily self-update lifecycle is
// polled. It is far shorter than a day so MaybeUpdate's own internal
// bookkeeping (idle gating, one rollback per process) is what actually
// bounds how often an update is attempted, not this tick rate.
const updateCheckInterval = 6 * time.Hour

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := flag.String("root", defaultRootDir(), "runtime root directory (WINTERMUTE_ROOT)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, *root); err != nil {
		slog.Error("supervisor exited", "error", err)
		os.Exit(1)
	}
}

func defaultRootDir() string {
	if v := os.Getenv("WINTERMUTE_ROOT"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wintermute"
	}
	return home + "/.wintermute"
}

func run(ctx context.Context, root string) error {
	l := newLayout(root)

	cfg, err := config.Load(l.configPath())
	if err != nil {
		return fmt.Errorf("supervisor: load config: %w", err)
	}

	metrics := observability.NewMetrics()
	registry, err := toolregistry.New(l.scriptsDir(), nil, metrics)
	if err != nil {
		return fmt.Errorf("supervisor: open tool registry: %w", err)
	}
	defer registry.Close()
	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("supervisor: watch tool registry: %w", err)
	}

	repo, err := git.PlainOpen(l.scriptsDir())
	if err != nil {
		slog.Warn("tools directory has no git history yet", "error", err)
		repo = nil
	}

	evidence := newLiveEvidence(registry, repo, l.healthPath())

	containerCfg := boundary.ContainerConfig{
		Image:        cfg.Security.Executor.ContainerImage,
		WorkspaceDir: l.workspaceDir(),
		ToolsDir:     l.scriptsDir(),
		SetupScript:  l.setupScript(),
		PackageList:  l.packageList(),
	}

	agentBinaryPath := filepath.Join(filepath.Dir(mustExecutable()), "wintermute")
	healthOK := func(ctx context.Context) bool {
		ok, err := supervisorHealthOK(l.healthPath())
		return err == nil && ok
	}
	alwaysIdle := func() bool { return true } // no session-activity signal crosses the process boundary

	agentUpdateSource := newManifestUpdateSource(l.manifestPath(), "agent", version+"-"+commit)
	agentUpdater := supervisor.NewUpdater(agentBinaryPath, agentUpdateSource, alwaysIdle, healthOK)

	restarter := &supervisor.ProcessRestarter{
		PID:     readAgentPID(l.pidPath()),
		Command: []string{agentBinaryPath, "--root", root, "start"},
	}

	actuator := &supervisor.Actuator{
		Tools:     registry,
		Restarter: restarter,
		Sandbox:   sandboxResetter{containerCfg: containerCfg, workspaceRoot: l.workspaceDir()},
		Config:    newFileConfigEditor(l.configPath()),
		Binaries:  binaryUpdaterAdapter{updater: agentUpdater},
	}
	if repo != nil {
		actuator.GitRepo = repo
	}

	sup := supervisor.New(supervisor.Config{
		HealthSnapshotPath: l.healthPath(),
		LogPath:            l.agentLogPath(),
		FixLogPath:         l.fixLogPath(),
	}, evidence, actuator, nil)

	supervisorUpdateSource := newManifestUpdateSource(l.manifestPath(), "supervisor", version+"-"+commit)
	supervisorUpdater := supervisor.NewUpdater(mustExecutable(), supervisorUpdateSource, alwaysIdle, healthOK)

	go runUpdateLoop(ctx, root, agentUpdateSource, agentUpdater, restarter)
	go runSelfUpdateLoop(ctx, supervisorUpdateSource, supervisorUpdater)

	slog.Info("wintermute-supervisor started", "root", root, "version", version)
	sup.Run(ctx)
	return nil
}

func mustExecutable() string {
	path, err := os.Executable()
	if err != nil {
		return os.Args[0]
	}
	return path
}

// supervisorHealthOK reports whether the last health snapshot is both
// readable and fresh, used as the post-update rollback-watch signal.
func supervisorHealthOK(healthPath string) (bool, error) {
	snap, err := heartbeat.ReadSnapshot(healthPath)
	if err != nil {
		return false, err
	}
	fresh := time.Since(snap.LastHeartbeat) < supervisor.StaleMultiple*heartbeat.DefaultSnapshotInterval
	return fresh && snap.LastError == "", nil
}

// runUpdateLoop drives the agent binary's daily update check. A
// successful install needs the agent process relaunched before it takes
// effect, since MaybeUpdate only replaces the file on disk. The outcome
// is recorded in a restart sentinel so the next `wintermute start` can
// report what the supervisor did while it was down.
func runUpdateLoop(ctx context.Context, root string, source *manifestUpdateSource, updater *supervisor.Updater, restarter *supervisor.ProcessRestarter) {
	ticker := time.NewTicker(updateCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _, _, ok, err := source.Check(ctx)
			if err != nil {
				slog.Error("agent update check failed", "error", err)
				continue
			}
			if !ok {
				continue
			}
			if err := updater.MaybeUpdate(ctx); err != nil {
				slog.Error("agent self-update failed", "error", err)
				writeRestartSentinel(root, restart.StatusError, err)
				continue
			}
			if err := restarter.Restart(ctx); err != nil {
				slog.Error("agent restart after update failed", "error", err)
				writeRestartSentinel(root, restart.StatusError, err)
				continue
			}
			writeRestartSentinel(root, restart.StatusOK, nil)
		}
	}
}

// writeRestartSentinel leaves a record of an agent-update restart attempt
// for the agent process to pick up and log on its next startup.
func writeRestartSentinel(root string, status restart.RestartStatus, cause error) {
	payload := restart.SentinelPayload{
		Kind:   restart.KindUpdate,
		Status: status,
		Ts:     time.Now().Unix(),
	}
	if cause != nil {
		msg := cause.Error()
		payload.Message = &msg
	}
	if err := restart.WriteSentinel(root, payload); err != nil {
		slog.Error("write restart sentinel failed", "error", err)
	}
}

// runSelfUpdateLoop drives the supervisor's own daily update check. Only
// after the agent is confirmed healthy following the binary replacement
// does the supervisor exit with the distinguished restart-request code;
// the service manager is responsible for relaunching it from the freshly
// installed binary.
func runSelfUpdateLoop(ctx context.Context, source *manifestUpdateSource, updater *supervisor.Updater) {
	ticker := time.NewTicker(updateCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _, _, ok, err := source.Check(ctx)
			if err != nil {
				slog.Error("supervisor update check failed", "error", err)
				continue
			}
			if !ok {
				continue
			}
			if err := updater.MaybeUpdate(ctx); err != nil {
				slog.Error("supervisor self-update failed", "error", err)
				continue
			}
			slog.Info("supervisor self-update applied, requesting restart")
			os.Exit(restartRequestedExitCode)
		}
	}
}
