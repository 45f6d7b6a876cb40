package main

import "path/filepath"

// layout resolves the on-disk paths under a runtime root.
type layout struct {
	root string
}

func newLayout(root string) layout { return layout{root: root} }

func (l layout) configPath() string      { return filepath.Join(l.root, "config.toml") }
func (l layout) agentPath() string       { return filepath.Join(l.root, "agent.toml") }
func (l layout) envPath() string         { return filepath.Join(l.root, ".env") }
func (l layout) identityPath() string    { return filepath.Join(l.root, "IDENTITY.md") }
func (l layout) lessonsPath() string     { return filepath.Join(l.root, "AGENTS.md") }
func (l layout) userProfilePath() string { return filepath.Join(l.root, "USER.md") }
func (l layout) docsDir() string         { return filepath.Join(l.root, "docs") }
func (l layout) memoryDBPath() string    { return filepath.Join(l.root, "data", "memory.db") }
func (l layout) workspaceDir() string    { return filepath.Join(l.root, "workspace") }
func (l layout) scriptsDir() string      { return filepath.Join(l.root, "scripts") }
func (l layout) setupScript() string     { return filepath.Join(l.scriptsDir(), "setup.sh") }
func (l layout) packageList() string     { return filepath.Join(l.scriptsDir(), "packages.txt") }
func (l layout) healthPath() string      { return filepath.Join(l.root, "health.json") }
func (l layout) logsDir() string         { return filepath.Join(l.root, "logs") }
func (l layout) agentLogPath() string    { return filepath.Join(l.logsDir(), "agent.jsonl") }
func (l layout) flatlineDir() string     { return filepath.Join(l.root, "flatline") }
func (l layout) flatlineStateDB() string { return filepath.Join(l.flatlineDir(), "state.db") }
func (l layout) flatlineUpdatesDir() string {
	return filepath.Join(l.flatlineDir(), "updates")
}
func (l layout) fixLogPath() string { return filepath.Join(l.flatlineDir(), "fixlog.json") }
func (l layout) pidPath() string    { return filepath.Join(l.root, "wintermute.pid") }
