package main

import (
	"context"
	"fmt"
	"time"

	"github.com/wintermute-run/wintermute/internal/config"
	"github.com/wintermute-run/wintermute/internal/observability"
	"github.com/wintermute-run/wintermute/internal/router"
	"github.com/wintermute-run/wintermute/internal/tasks"
	"github.com/wintermute-run/wintermute/pkg/models"
)

// routerTaskExecutor implements tasks.Executor as a single completion call
// against the model router, bypassing the full session loop: scheduled
// tasks run unattended, so there is no console to surface an approval
// prompt to and no point assembling prior turn history for a prompt that
// starts its own thread of work each run.
type routerTaskExecutor struct {
	rt           *router.Router
	defaultModel string
}

func (e *routerTaskExecutor) Execute(ctx context.Context, task *tasks.ScheduledTask, exec *tasks.TaskExecution) (string, error) {
	system := task.Config.SystemPrompt
	if system == "" {
		system = fmt.Sprintf("You are executing the scheduled task %q unattended. Complete it and summarize what you did.", task.Name)
	}

	model := task.Config.Model
	if model == "" {
		model = e.defaultModel
	}

	timeout := task.Config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.rt.Complete(runCtx, "", router.RoleObserver, router.CompletionRequest{
		Model:  model,
		System: system,
		Messages: []router.Message{
			{Role: models.RoleUser, Content: task.Prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("scheduler: execute task %s: %w", task.ID, err)
	}
	return resp.Text, nil
}

// buildTaskScheduler wires the scheduled-task subsystem: an in-memory
// store (no distributed workers on a single-host kernel, so a
// Postgres-backed claim queue would buy nothing) and a scheduler that
// drives routerTaskExecutor off the heartbeat clock.
func buildTaskScheduler(cfg config.TasksConfig, rt *router.Router, defaultModel string, metrics *observability.Metrics) *tasks.Scheduler {
	store := tasks.NewMemoryStore()
	executor := &routerTaskExecutor{rt: rt, defaultModel: defaultModel}

	schedCfg := tasks.DefaultSchedulerConfig()
	if cfg.WorkerID != "" {
		schedCfg.WorkerID = cfg.WorkerID
	}
	if cfg.PollInterval > 0 {
		schedCfg.PollInterval = cfg.PollInterval
	}
	if cfg.AcquireInterval > 0 {
		schedCfg.AcquireInterval = cfg.AcquireInterval
	}
	if cfg.LockDuration > 0 {
		schedCfg.LockDuration = cfg.LockDuration
	}
	if cfg.MaxConcurrency > 0 {
		schedCfg.MaxConcurrency = cfg.MaxConcurrency
	}
	if cfg.CleanupInterval > 0 {
		schedCfg.CleanupInterval = cfg.CleanupInterval
	}
	if cfg.StaleTimeout > 0 {
		schedCfg.StaleTimeout = cfg.StaleTimeout
	}

	sched := tasks.NewScheduler(store, executor, schedCfg)
	sched.SetMetrics(metrics)
	return sched
}
