// Package main provides the CLI entry point for the wintermute agent
// runtime kernel: the long-lived process that drives the perceive-act
// loop, the sandboxed executor, and the dynamic tool registry described
// in this repository's design.
//
// # Basic Usage
//
// Initialize a fresh install:
//
//	wintermute init
//
// Start the agent:
//
//	wintermute start --config config.toml
//
// Check runtime health:
//
//	wintermute status
//
// # Environment Variables
//
//   - WINTERMUTE_ROOT: root directory (default ~/.wintermute)
//   - WINTERMUTE_DEFAULT_PROVIDER: overrides the configured default model provider
//   - WINTERMUTE_LOG_LEVEL: overrides the configured log level
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY: picked up from the credentials file at startup
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCode is the sentinel error type a subcommand returns when it wants
// to exit with something other than 1 (10 signals the supervisor's
// self-update restart request; the contract stays uniform across both
// binaries so the service manager can treat either the agent or the
// supervisor the same way).
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit code %d", int(e)) }

func exitCodeFor(err error) int {
	var ec exitCode
	if e, ok := err.(exitCode); ok {
		ec = e
		return int(ec)
	}
	return 1
}

func buildRootCmd() *cobra.Command {
	var rootDir string

	root := &cobra.Command{
		Use:     "wintermute",
		Short:   "wintermute - a single-host, long-lived agent runtime kernel",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Long: `wintermute drives a large language model through an iterative
perceive-act loop, executes its tool calls inside an isolated sandbox, and
lets it persist new tools as first-class runtime capabilities.

A separate supervisor process (wintermute-supervisor) observes this
runtime via the filesystem and applies bounded, reversible remediations.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&rootDir, "root", defaultRootDir(), "runtime root directory (WINTERMUTE_ROOT)")

	root.AddCommand(
		buildInitCmd(&rootDir),
		buildStartCmd(&rootDir),
		buildStatusCmd(&rootDir),
		buildResetCmd(&rootDir),
		buildBackupCmd(&rootDir),
	)
	return root
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
