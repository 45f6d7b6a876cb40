package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/wintermute-run/wintermute/internal/heartbeat"
	"github.com/wintermute-run/wintermute/internal/supervisor"
	"github.com/wintermute-run/wintermute/internal/toolregistry"
)

// liveEvidence implements supervisor.EvidenceSource by reading the
// running agent's dynamic tool registry, the tools directory's git
// history, and the latest health snapshot. It holds no durable state of
// its own: every call re-reads the filesystem, matching the
// filesystem-only coordination contract between the two processes.
type liveEvidence struct {
	registry   *toolregistry.Registry
	repo       *git.Repository
	healthPath string
}

func newLiveEvidence(registry *toolregistry.Registry, repo *git.Repository, healthPath string) *liveEvidence {
	return &liveEvidence{registry: registry, repo: repo, healthPath: healthPath}
}

// toolChangeWindow bounds how recently a descriptor must have been
// touched for a failure spike to be attributed to that change, rather
// than to the tool's built-in flakiness.
const toolChangeWindow = 24 * time.Hour

func (e *liveEvidence) ToolFailures(ctx context.Context) (map[string]supervisor.ToolFailureInfo, error) {
	_ = ctx
	out := make(map[string]supervisor.ToolFailureInfo)
	for _, desc := range e.registry.DynamicDescriptors() {
		if desc.Meta.InvocationCnt == 0 {
			continue
		}
		out[desc.Name] = supervisor.ToolFailureInfo{
			FailureRate:   1 - desc.Meta.SuccessRate,
			ChangedSince:  time.Since(desc.Meta.CreatedAt) < toolChangeWindow,
			InvocationCnt: desc.Meta.InvocationCnt,
		}
	}
	return out, nil
}

func (e *liveEvidence) RecentCommits(ctx context.Context, limit int) ([]supervisor.CommitInfo, error) {
	_ = ctx
	if e.repo == nil {
		return nil, nil
	}
	head, err := e.repo.Head()
	if err != nil {
		return nil, err
	}
	iter, err := e.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []supervisor.CommitInfo
	for len(out) < limit {
		c, err := iter.Next()
		if err != nil {
			break
		}
		out = append(out, supervisor.CommitInfo{
			Hash:    c.Hash.String(),
			Message: c.Message,
			At:      c.Author.When,
		})
	}
	return out, nil
}

// TaskFailures is unimplemented in this composition: no scheduled-task
// store is wired into the kernel binary, so there is nothing to report.
func (e *liveEvidence) TaskFailures(ctx context.Context) (map[string]int, error) {
	return map[string]int{}, nil
}

func (e *liveEvidence) DailyBurn(ctx context.Context) (float64, error) {
	_ = ctx
	snap, err := heartbeat.ReadSnapshot(e.healthPath)
	if err != nil {
		return 0, err
	}
	if snap.BudgetToday.DailyLimit == 0 {
		return 0, nil
	}
	return float64(snap.BudgetToday.DailySpent) / float64(snap.BudgetToday.DailyLimit), nil
}

// readAgentPID reads the kernel process's recorded PID, used to build a
// ProcessRestarter. A missing or unparsable file yields 0, which every
// os.FindProcess call treats as not-found rather than crashing.
func readAgentPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}
	return pid
}
