package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wintermute-run/wintermute/internal/config"
	"github.com/wintermute-run/wintermute/internal/memorystore"
	"github.com/wintermute-run/wintermute/internal/observability"
	"github.com/wintermute-run/wintermute/internal/toolregistry"
	"github.com/wintermute-run/wintermute/internal/workspace"
	"github.com/wintermute-run/wintermute/pkg/models"
)

const defaultConfigYAML = `# config.toml - human-owned security policy.
# Despite the .toml name (kept for on-disk-layout compatibility), the
# content is YAML: the loader decodes it with gopkg.in/yaml.v3.
session:
  default_agent_id: main
  slack_scope: thread
  discord_scope: thread
workspace:
  path: workspace
llm:
  default_provider: anthropic
  providers:
    anthropic:
      model: claude-sonnet-4-20250514
budget:
  session_limit: 200000
  daily_limit: 2000000
security:
  egress:
    allowlist: []
    block_list: []
  executor:
    container_image: wintermute-sandbox:latest
    workspace_dir: workspace
    tools_dir: scripts
logging:
  level: info
  format: json
`

const defaultAgentTOML = `# agent.toml - agent-owned personality, schedules, and learning flags.
# Git-committed on change, alongside the rest of the runtime root.
name: wintermute
scheduled_tasks: []
learning:
  lessons_enabled: true
`

const defaultSetupScript = `#!/bin/sh
# setup.sh - system-package bootstrap for the sandbox container.
# Drawn from the tools directory on every container (re)creation so it is
# version-controlled alongside the tools it provisions.
set -e
apt-get update
apt-get install -y --no-install-recommends python3 python3-pip curl ca-certificates
`

const defaultPackageList = `# packages.txt - one pip package per line, installed on (re)creation.
requests
`

func buildInitCmd(rootDir *string) *cobra.Command {
	var force, interactive bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the runtime directory layout, seed files, build the sandbox image, and run migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), *rootDir, force, interactive)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing seed files")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "prompt for provider API keys and write them into .env")
	return cmd
}

// promptCredentials asks for each provider's API key with echo disabled on
// a real terminal, falling back to a visible line read otherwise (piped
// input, CI). Blank answers are skipped so an operator can leave a
// provider unconfigured.
func promptCredentials(reader *bufio.Reader) map[string]string {
	out := map[string]string{}
	for _, p := range []struct{ label, env string }{
		{"Anthropic API key", "ANTHROPIC_API_KEY"},
		{"OpenAI API key", "OPENAI_API_KEY"},
		{"Google API key", "GOOGLE_API_KEY"},
	} {
		if v := promptSecret(reader, p.label); v != "" {
			out[p.env] = v
		}
	}
	return out
}

// promptSecret prompts for a value without echoing it to the terminal,
// falling back to a plain line read when stdin isn't a TTY.
func promptSecret(reader *bufio.Reader, label string) string {
	fmt.Printf("%s (leave blank to skip): ", label)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		text, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(text))
		}
	}
	text, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func runInit(ctx context.Context, root string, force, interactive bool) error {
	l := newLayout(root)

	for _, dir := range []string{root, l.docsDir(), filepath.Dir(l.memoryDBPath()), l.logsDir(), l.flatlineDir(), l.flatlineUpdatesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("init: create %s: %w", dir, err)
		}
	}

	seedFiles := map[string]string{
		l.configPath():  defaultConfigYAML,
		l.agentPath():   defaultAgentTOML,
		l.setupScript(): defaultSetupScript,
		l.packageList(): defaultPackageList,
	}
	for path, content := range seedFiles {
		if err := writeIfAbsent(path, content, force); err != nil {
			return err
		}
	}
	if err := writeIfAbsent(l.envPath(), "# .env - credentials, never read inside the sandbox.\n# ANTHROPIC_API_KEY=\n# OPENAI_API_KEY=\n# GOOGLE_API_KEY=\n", force); err != nil {
		return err
	}
	if interactive {
		creds := promptCredentials(bufio.NewReader(os.Stdin))
		if err := appendCredentials(l.envPath(), creds); err != nil {
			return fmt.Errorf("init: write credentials: %w", err)
		}
	}
	if err := os.Chmod(l.setupScript(), 0o755); err != nil {
		return fmt.Errorf("init: chmod setup.sh: %w", err)
	}

	cfg, err := config.Load(l.configPath())
	if err != nil {
		return fmt.Errorf("init: loaded config is invalid: %w", err)
	}

	result, err := workspace.EnsureWorkspaceFiles(l.workspaceDir(), workspace.BootstrapFilesForConfig(cfg), force)
	if err != nil {
		return fmt.Errorf("init: seed workspace: %w", err)
	}
	fmt.Printf("workspace: %d created, %d skipped\n", len(result.Created), len(result.Skipped))

	// Run migrations: opening the memory store applies its schema.
	store, err := memorystore.Open(l.memoryDBPath())
	if err != nil {
		return fmt.Errorf("init: memory store migration: %w", err)
	}
	defer store.Close()

	// Seed the dynamic tool registry's directory with version control so
	// create_or_update has history from the first write.
	metrics := observability.NewMetrics()
	registry, err := toolregistry.New(l.scriptsDir(), coreToolDescriptors(), metrics)
	if err != nil {
		return fmt.Errorf("init: tool registry: %w", err)
	}
	registry.Close()

	fmt.Printf("initialized wintermute runtime at %s\n", root)
	fmt.Println("edit config.toml and .env, then run: wintermute start")
	_ = ctx
	return nil
}

// appendCredentials appends non-empty values to the .env file as
// NAME=value lines. Skipped entirely when creds is empty so a non-interactive
// init leaves the commented-out template untouched.
func appendCredentials(path string, creds map[string]string) error {
	if len(creds) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	for env, value := range creds {
		if _, err := fmt.Fprintf(f, "%s=%s\n", env, value); err != nil {
			return err
		}
	}
	return nil
}

func writeIfAbsent(path, content string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// coreToolDescriptors lists the compiled-in core tools the registry
// always includes, independent of the dynamic tools directory.
func coreToolDescriptors() []models.ToolDescriptor {
	descs := make([]models.ToolDescriptor, 0, len(coreTools(coreToolConfig{Workspace: "."})))
	for _, t := range coreTools(coreToolConfig{Workspace: "."}) {
		descs = append(descs, models.ToolDescriptor{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return descs
}
