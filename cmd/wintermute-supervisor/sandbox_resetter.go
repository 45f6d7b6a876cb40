package main

import (
	"context"

	"github.com/wintermute-run/wintermute/internal/boundary"
)

// sandboxResetter satisfies supervisor.SandboxResetter by re-probing the
// executor fresh each time: the supervisor runs in its own process, so it
// cannot reach into the agent's live *boundary.Executor and instead
// issues the same container lifecycle commands the agent would.
type sandboxResetter struct {
	containerCfg  boundary.ContainerConfig
	workspaceRoot string
}

func (r sandboxResetter) ResetSandbox(ctx context.Context) error {
	exec, err := boundary.Probe(ctx, r.containerCfg, r.workspaceRoot)
	if err != nil {
		return err
	}
	return exec.Reset(ctx)
}
