package main

import (
	"github.com/wintermute-run/wintermute/internal/agent"
	"github.com/wintermute-run/wintermute/internal/config"
	"github.com/wintermute-run/wintermute/internal/memory"
	"github.com/wintermute-run/wintermute/internal/tools/exec"
	"github.com/wintermute-run/wintermute/internal/tools/facts"
	"github.com/wintermute-run/wintermute/internal/tools/files"
	"github.com/wintermute-run/wintermute/internal/tools/memorysearch"
	"github.com/wintermute-run/wintermute/internal/tools/vectormemory"
)

// coreToolConfig bundles the paths and feature config the compiled-in core
// tools are scoped to. Core tools are always present in every model
// request, followed by up to the cap of dynamic tools.
type coreToolConfig struct {
	Workspace string
	Tools     config.ToolsConfig
	Session   config.SessionConfig
}

// coreTools builds the compiled-in tool set: file read/write/edit, process
// execution, fact extraction, and — when their backing stores are
// enabled in config — memory search and vector memory tools. Everything
// else a deployment wants stays in the dynamic registry: wiring every
// teacher tool package into the kernel CLI unconditionally would force a
// storage dependency (embeddings endpoint, vector backend) on installs
// that don't need it.
func coreTools(cfg coreToolConfig) []agent.Tool {
	fcfg := files.Config{Workspace: cfg.Workspace, MaxReadBytes: 256 * 1024}
	mgr := exec.NewManager(cfg.Workspace)
	tools := []agent.Tool{
		files.NewReadTool(fcfg),
		files.NewWriteTool(fcfg),
		files.NewEditTool(fcfg),
		exec.NewExecTool("exec", mgr),
		exec.NewProcessTool(mgr),
	}

	maxFacts := cfg.Tools.FactExtract.MaxFacts
	if maxFacts <= 0 {
		maxFacts = 10
	}
	if cfg.Tools.FactExtract.Enabled {
		tools = append(tools, facts.NewExtractTool(maxFacts))
	}

	if cfg.Tools.MemorySearch.Enabled {
		msCfg := &memorysearch.Config{
			Directory:     cfg.Tools.MemorySearch.Directory,
			MemoryFile:    cfg.Tools.MemorySearch.MemoryFile,
			WorkspacePath: cfg.Workspace,
			MaxResults:    cfg.Tools.MemorySearch.MaxResults,
			MaxSnippetLen: cfg.Tools.MemorySearch.MaxSnippetLen,
			Mode:          cfg.Tools.MemorySearch.Mode,
			Embeddings: memorysearch.EmbeddingsConfig{
				Provider: cfg.Tools.MemorySearch.Embeddings.Provider,
				APIKey:   cfg.Tools.MemorySearch.Embeddings.APIKey,
				BaseURL:  cfg.Tools.MemorySearch.Embeddings.BaseURL,
				Model:    cfg.Tools.MemorySearch.Embeddings.Model,
				CacheDir: cfg.Tools.MemorySearch.Embeddings.CacheDir,
				CacheTTL: cfg.Tools.MemorySearch.Embeddings.CacheTTL,
				Timeout:  cfg.Tools.MemorySearch.Embeddings.Timeout,
			},
		}
		tools = append(tools, memorysearch.NewMemorySearchTool(msCfg), memorysearch.NewMemoryGetTool(msCfg))
	}

	return tools
}

// vectorMemoryTools builds the vector-memory search/write tools when the
// backend is enabled, or nil otherwise. memory.NewManager returns a nil
// *Manager when disabled; kept as a separate step from coreTools rather
// than folded in so the typed-nil is never implicitly boxed into the
// Searcher/Indexer interfaces below an enabled check.
func vectorMemoryTools(memCfg *config.Config) ([]agent.Tool, error) {
	mgr, err := memory.NewManager(&memCfg.VectorMemory)
	if err != nil {
		return nil, err
	}
	if mgr == nil {
		return nil, nil
	}
	return []agent.Tool{
		vectormemory.NewSearchTool(mgr, &memCfg.VectorMemory),
		vectormemory.NewWriteTool(mgr, &memCfg.VectorMemory),
	}, nil
}
