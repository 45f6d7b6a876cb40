// Package boundary implements the Executor: running an opaque command
// string against the sandbox's filesystem and network environment,
// enforcing timeouts, and capturing output. Two variants share one
// contract — a long-lived Docker container and a direct
// restricted-directory variant for hosts without a container runtime.
package boundary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	argsafety "github.com/wintermute-run/wintermute/internal/exec"
	execmgr "github.com/wintermute-run/wintermute/internal/tools/exec"
	"github.com/wintermute-run/wintermute/pkg/models"
)

// Variant names which boundary an Executor enforces, matching the policy
// gate's ExecutorVariant so a single probe result drives both.
type Variant string

const (
	VariantContainer Variant = "container"
	VariantDirect    Variant = "direct"
)

// Options configures one command invocation. Env entries are forbidden
// from carrying credentials by convention of the caller (the dispatcher
// never forwards credential-store values into a command's environment).
type Options struct {
	Timeout time.Duration
	WorkDir string
	Env     map[string]string
	Stdin   string
}

// Health reports an executor's boundary type and liveness, the shape a
// health_check operation returns.
type Health struct {
	Boundary      Variant
	Alive         bool
	LastResetTime time.Time
}

// Executor runs one command against the sandbox boundary. A nonzero exit
// or a timeout is a normal ExecResult, not an error; Execute returns an
// error only when the boundary itself has failed (container gone, mount
// lost) — a fault the caller reports upward rather than interprets.
type Executor interface {
	Execute(ctx context.Context, command string, opts Options) (models.ExecResult, error)
	HealthCheck(ctx context.Context) (Health, error)
	Reset(ctx context.Context) error
	Variant() Variant
}

// innerGrace is how long the inner, in-boundary timeout gets ahead of the
// outer context deadline so the common case — the command finishes on its
// own — reports a normal result rather than racing the outer cancellation.
const innerGrace = 2 * time.Second

// DirectExecutor runs commands on the host under a restricted working
// directory, with no network interposition. The policy gate compensates
// for the missing egress filter by forcing approval on destructive or
// out-of-root operations.
type DirectExecutor struct {
	manager *execmgr.Manager
	root    string
	logger  *slog.Logger
}

// NewDirectExecutor builds a DirectExecutor scoped to root.
func NewDirectExecutor(root string) *DirectExecutor {
	return &DirectExecutor{
		manager: execmgr.NewManager(root),
		root:    root,
		logger:  slog.Default().With("component", "boundary", "variant", VariantDirect),
	}
}

func (d *DirectExecutor) Execute(ctx context.Context, command string, opts Options) (models.ExecResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	res, err := d.manager.RunCommand(ctx, command, opts.WorkDir, opts.Env, opts.Stdin, timeout)
	if err != nil {
		return models.ExecResult{}, fmt.Errorf("boundary: direct execute: %w", err)
	}
	return models.ExecResult{
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		WallTime: res.Duration,
	}, nil
}

// HealthCheck always reports alive for the direct variant: there is no
// separate boundary process whose liveness could diverge from the agent's
// own.
func (d *DirectExecutor) HealthCheck(ctx context.Context) (Health, error) {
	return Health{Boundary: VariantDirect, Alive: true}, nil
}

// Reset is a no-op for the direct variant; there is no container to
// recreate.
func (d *DirectExecutor) Reset(ctx context.Context) error { return nil }

func (d *DirectExecutor) Variant() Variant { return VariantDirect }

// ContainerConfig configures the long-lived container a ContainerExecutor
// drives via the Docker CLI.
type ContainerConfig struct {
	Name          string
	Image         string
	WorkspaceDir  string
	ToolsDir      string
	SetupScript   string // path to setup.sh under ToolsDir, run on (re)creation
	PackageList   string // path to a package-list file under ToolsDir
	ProxyURL      string // HTTP/HTTPS proxy the container is forced through (egress filter)
	MemoryLimitMB int
	CPULimit      string // e.g. "1.0"
	PidsLimit     int
}

func (c *ContainerConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "wintermute-sandbox"
	}
	if c.Image == "" {
		c.Image = "wintermute/sandbox:base"
	}
	if c.MemoryLimitMB <= 0 {
		c.MemoryLimitMB = 1024
	}
	if c.CPULimit == "" {
		c.CPULimit = "1.0"
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = 256
	}
}

// ContainerExecutor drives a single pre-warmed, long-lived container: all
// capabilities dropped, capped process count/memory/CPU, only the
// workspace and tools directories bind-mounted, HTTP(S) forced through
// the egress filter.
type ContainerExecutor struct {
	cfg       ContainerConfig
	logger    *slog.Logger
	mu        sync.Mutex
	lastReset time.Time
}

// NewContainerExecutor creates and starts a container from cfg. The
// caller should treat a non-nil error as "container runtime unavailable"
// and fall back to NewDirectExecutor, mirroring spec's no-knob
// probe-then-fallback selection.
func NewContainerExecutor(ctx context.Context, cfg ContainerConfig) (*ContainerExecutor, error) {
	cfg.applyDefaults()
	c := &ContainerExecutor{
		cfg:    cfg,
		logger: slog.Default().With("component", "boundary", "variant", VariantContainer),
	}
	if err := c.create(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ContainerExecutor) create(ctx context.Context) error {
	_ = runDocker(ctx, "rm", "-f", c.cfg.Name) // best-effort, container may not exist

	args := []string{
		"run", "-d", "--name", c.cfg.Name,
		"--cap-drop", "ALL",
		"--pids-limit", fmt.Sprintf("%d", c.cfg.PidsLimit),
		"--memory", fmt.Sprintf("%dm", c.cfg.MemoryLimitMB),
		"--cpus", c.cfg.CPULimit,
	}
	if c.cfg.WorkspaceDir != "" {
		args = append(args, "-v", c.cfg.WorkspaceDir+":/workspace")
	}
	if c.cfg.ToolsDir != "" {
		args = append(args, "-v", c.cfg.ToolsDir+":/tools:ro")
	}
	if c.cfg.ProxyURL != "" {
		args = append(args, "-e", "HTTP_PROXY="+c.cfg.ProxyURL, "-e", "HTTPS_PROXY="+c.cfg.ProxyURL)
	}
	args = append(args, c.cfg.Image, "sleep", "infinity")

	if _, _, err := runDockerOutput(ctx, args...); err != nil {
		return fmt.Errorf("boundary: container create: %w", err)
	}

	c.mu.Lock()
	c.lastReset = time.Now()
	c.mu.Unlock()

	return c.bootstrap(ctx)
}

// bootstrap runs setup.sh and installs the package list from the tools
// directory, so both are version-controlled alongside the rest of the
// tools tree rather than baked into the image.
func (c *ContainerExecutor) bootstrap(ctx context.Context) error {
	if c.cfg.SetupScript != "" {
		if _, _, err := runDockerOutput(ctx, "exec", c.cfg.Name, "sh", "/tools/"+c.cfg.SetupScript); err != nil {
			c.logger.Warn("setup script failed", "error", err)
		}
	}
	if c.cfg.PackageList != "" {
		if _, _, err := runDockerOutput(ctx, "exec", c.cfg.Name, "sh", "-c",
			"xargs -a /tools/"+c.cfg.PackageList+" pip install --no-cache-dir"); err != nil {
			c.logger.Warn("package list install failed", "error", err)
		}
	}
	return nil
}

func (c *ContainerExecutor) Execute(ctx context.Context, command string, opts Options) (models.ExecResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	outerCtx, cancel := context.WithTimeout(ctx, timeout+innerGrace)
	defer cancel()

	wrapped := fmt.Sprintf("timeout -k 5 %ds sh -c %s", int(timeout.Seconds()), shellQuote(command))
	args := []string{"exec"}
	if opts.Stdin != "" {
		args = append(args, "-i")
	}
	for k, v := range opts.Env {
		// Unlike command, these become discrete argv elements docker
		// itself parses, not shell text, so reject anything that could
		// confuse that parse or smuggle a second flag rather than
		// quoting it.
		if _, err := argsafety.SanitizeArgument(k); err != nil {
			return models.ExecResult{}, fmt.Errorf("boundary: invalid env key %q: %w", k, err)
		}
		if _, err := argsafety.SanitizeArgument(v); err != nil {
			return models.ExecResult{}, fmt.Errorf("boundary: invalid env value for %q: %w", k, err)
		}
		args = append(args, "-e", k+"="+v)
	}
	if opts.WorkDir != "" {
		workDir, err := argsafety.SanitizeExecutableValue(opts.WorkDir)
		if err != nil {
			return models.ExecResult{}, fmt.Errorf("boundary: invalid workdir %q: %w", opts.WorkDir, err)
		}
		args = append(args, "-w", workDir)
	}
	args = append(args, c.cfg.Name, "sh", "-c", wrapped)

	start := time.Now()
	stdout, stderr, err := runDockerInput(outerCtx, opts.Stdin, args...)
	wall := time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return models.ExecResult{ExitCode: exitErr.ExitCode(), Stdout: stdout, Stderr: stderr, WallTime: wall}, nil
		}
		if outerCtx.Err() == context.DeadlineExceeded {
			return models.ExecResult{ExitCode: -1, Stdout: stdout, Stderr: stderr + "\nboundary: command timed out", WallTime: wall}, nil
		}
		// docker exec itself failed (container gone, daemon unreachable):
		// a boundary fault, reported upward rather than interpreted.
		return models.ExecResult{}, fmt.Errorf("boundary: container execute: %w", err)
	}
	return models.ExecResult{ExitCode: 0, Stdout: stdout, Stderr: stderr, WallTime: wall}, nil
}

func (c *ContainerExecutor) HealthCheck(ctx context.Context) (Health, error) {
	out, _, err := runDockerOutput(ctx, "inspect", "-f", "{{.State.Running}}", c.cfg.Name)
	c.mu.Lock()
	reset := c.lastReset
	c.mu.Unlock()
	if err != nil {
		return Health{Boundary: VariantContainer, Alive: false, LastResetTime: reset}, nil
	}
	return Health{Boundary: VariantContainer, Alive: strings.TrimSpace(out) == "true", LastResetTime: reset}, nil
}

// Reset destroys and recreates the container from the base image, then
// re-runs the tools-directory bootstrap. A boundary error here (runtime
// gone entirely) is fatal for the invocation that triggered it and is
// reported upward; the supervisor may retry via its own reset remediation.
func (c *ContainerExecutor) Reset(ctx context.Context) error {
	return c.create(ctx)
}

func (c *ContainerExecutor) Variant() Variant { return VariantContainer }

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func runDocker(ctx context.Context, args ...string) error {
	_, _, err := runDockerOutput(ctx, args...)
	return err
}

func runDockerOutput(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	return runDockerInput(ctx, "", args...)
}

func runDockerInput(ctx context.Context, stdin string, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// Probe tries the container runtime first and falls back to the direct
// variant if it is unavailable. There is no configuration knob for this;
// the system adapts.
func Probe(ctx context.Context, cfg ContainerConfig, workspaceRoot string) (Executor, error) {
	logger := slog.Default().With("component", "boundary")
	if err := runDocker(ctx, "info"); err != nil {
		logger.Warn("container runtime unavailable, falling back to direct executor", "error", err)
		return NewDirectExecutor(workspaceRoot), nil
	}
	exec, err := NewContainerExecutor(ctx, cfg)
	if err != nil {
		logger.Warn("container creation failed, falling back to direct executor", "error", err)
		return NewDirectExecutor(workspaceRoot), nil
	}
	return exec, nil
}
