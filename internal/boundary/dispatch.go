package boundary

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/wintermute-run/wintermute/internal/agent"
	"github.com/wintermute-run/wintermute/internal/toolschema"
	"github.com/wintermute-run/wintermute/pkg/models"
)

// Registry is the subset of the tool registry's contract the dispatcher
// needs to resolve a dynamic tool's implementation file.
type Registry interface {
	Descriptor(name string) (models.ToolDescriptor, bool)
}

// defaultTimeout applies when a dynamic tool descriptor carries no
// TimeoutSecs.
const defaultTimeout = 30 * time.Second

// interpreterFor picks the interpreter a dynamic tool's implementation
// file is run with, keyed on its extension. Anything unrecognized falls
// back to sh, matching a shell script being the least surprising default
// for a tool author who didn't pick a more specific extension.
func interpreterFor(implPath string) string {
	switch strings.ToLower(filepath.Ext(implPath)) {
	case ".py":
		return "python3"
	case ".js":
		return "node"
	default:
		return "sh"
	}
}

// Dispatcher implements session.Executor. A call either names one of the
// compiled-in core tools (files, memory search, vector memory, process
// control) and runs in-process, or names a dynamic tool and is shelled out
// to the boundary Executor as an interpreter invocation of its
// implementation file.
//
// Dispatcher never redacts output itself: session.Runtime's runTool
// already scrubs every ExecResult it receives, so redacting here would
// just do the work twice.
type Dispatcher struct {
	exec     Executor
	registry Registry
	core     map[string]agent.Tool
}

// NewDispatcher builds a Dispatcher over exec and registry, with core
// pre-keyed by Name().
func NewDispatcher(exec Executor, registry Registry, core ...agent.Tool) *Dispatcher {
	byName := make(map[string]agent.Tool, len(core))
	for _, t := range core {
		byName[t.Name()] = t
	}
	return &Dispatcher{exec: exec, registry: registry, core: byName}
}

// Execute satisfies session.Executor. Every call is validated against its
// descriptor's JSON Schema before it reaches the core handler or the
// executor boundary; a schema-invalid call never runs.
func (d *Dispatcher) Execute(ctx context.Context, call models.ToolCall) (models.ExecResult, error) {
	if tool, ok := d.core[call.Name]; ok {
		if err := toolschema.Validate(models.ToolDescriptor{Name: tool.Name(), Parameters: tool.Schema()}, call); err != nil {
			return models.ExecResult{}, err
		}
		return d.executeCore(ctx, tool, call)
	}
	if desc, ok := d.registry.Descriptor(call.Name); ok {
		if err := toolschema.Validate(desc, call); err != nil {
			return models.ExecResult{}, err
		}
	}
	return d.executeDynamic(ctx, call)
}

func (d *Dispatcher) executeCore(ctx context.Context, tool agent.Tool, call models.ToolCall) (models.ExecResult, error) {
	start := time.Now()
	res, err := tool.Execute(ctx, call.Input)
	wall := time.Since(start)
	if err != nil {
		return models.ExecResult{}, fmt.Errorf("boundary: core tool %q: %w", call.Name, err)
	}
	exitCode := 0
	if res.IsError {
		exitCode = 1
	}
	return models.ExecResult{ExitCode: exitCode, Stdout: res.Content, WallTime: wall}, nil
}

func (d *Dispatcher) executeDynamic(ctx context.Context, call models.ToolCall) (models.ExecResult, error) {
	desc, ok := d.registry.Descriptor(call.Name)
	if !ok {
		return models.ExecResult{}, fmt.Errorf("boundary: unknown tool %q", call.Name)
	}
	if desc.ImplPath == "" {
		return models.ExecResult{}, fmt.Errorf("boundary: tool %q has no implementation path", call.Name)
	}

	timeout := defaultTimeout
	if desc.TimeoutSecs > 0 {
		timeout = time.Duration(desc.TimeoutSecs) * time.Second
	}

	command := fmt.Sprintf("%s %s", interpreterFor(desc.ImplPath), shellQuote(desc.ImplPath))
	return d.exec.Execute(ctx, command, Options{
		Timeout: timeout,
		Stdin:   string(call.Input),
	})
}
