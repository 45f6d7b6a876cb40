package main

import "path/filepath"

// layout mirrors the agent kernel's on-disk path conventions for the
// subset the supervisor reads and writes. Duplicated rather than shared
// across binaries, matching the sibling-binaries pattern of independent
// path helpers per command tree.
type layout struct {
	root string
}

func newLayout(root string) layout { return layout{root: root} }

func (l layout) configPath() string      { return filepath.Join(l.root, "config.toml") }
func (l layout) workspaceDir() string    { return filepath.Join(l.root, "workspace") }
func (l layout) scriptsDir() string      { return filepath.Join(l.root, "scripts") }
func (l layout) setupScript() string     { return filepath.Join(l.scriptsDir(), "setup.sh") }
func (l layout) packageList() string     { return filepath.Join(l.scriptsDir(), "packages.txt") }
func (l layout) healthPath() string      { return filepath.Join(l.root, "health.json") }
func (l layout) agentLogPath() string    { return filepath.Join(l.root, "logs", "agent.jsonl") }
func (l layout) pidPath() string         { return filepath.Join(l.root, "wintermute.pid") }
func (l layout) flatlineDir() string     { return filepath.Join(l.root, "flatline") }
func (l layout) fixLogPath() string      { return filepath.Join(l.flatlineDir(), "fixlog.json") }
func (l layout) manifestPath() string { return filepath.Join(l.flatlineDir(), "update-manifest.json") }
