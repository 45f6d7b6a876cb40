package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wintermute-run/wintermute/internal/boundary"
	"github.com/wintermute-run/wintermute/internal/config"
)

func buildResetCmd(rootDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Destroy and recreate the sandbox container from scratch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd.Context(), *rootDir)
		},
	}
}

// runReset rebuilds the sandbox from its current image and setup script,
// independent of any running agent process. It does not touch memory,
// history, or the dynamic tool registry — only the disposable execution
// environment; the workspace directory and the dynamic tool registry
// survive every reset.
func runReset(ctx context.Context, root string) error {
	l := newLayout(root)
	cfg, err := config.Load(l.configPath())
	if err != nil {
		return fmt.Errorf("reset: load config: %w", err)
	}

	containerCfg := boundary.ContainerConfig{
		Image:        cfg.Security.Executor.ContainerImage,
		WorkspaceDir: l.workspaceDir(),
		ToolsDir:     l.scriptsDir(),
		SetupScript:  l.setupScript(),
		PackageList:  l.packageList(),
	}
	executor, err := boundary.Probe(ctx, containerCfg, l.workspaceDir())
	if err != nil {
		return fmt.Errorf("reset: probe executor: %w", err)
	}
	if err := executor.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	fmt.Printf("sandbox reset (%s executor)\n", executor.Variant())
	return nil
}
