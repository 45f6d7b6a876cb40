package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfigEditor applies a single dotted-path key edit to the runtime's
// config.toml (YAML content despite the name, per the on-disk layout
// convention). It round-trips through a generic map rather than
// config.Config so it can write a key the supervisor's remediation names
// without requiring every field to be exported for this narrow purpose.
type fileConfigEditor struct {
	path string
}

func newFileConfigEditor(path string) *fileConfigEditor {
	return &fileConfigEditor{path: path}
}

// EditConfig sets the dotted path (e.g. "llm.default_provider") to value
// and writes the file back. Intermediate maps are created as needed;
// existing non-map values at an intermediate segment are an error rather
// than silently overwritten.
func (e *fileConfigEditor) EditConfig(ctx context.Context, key, value string) error {
	_ = ctx
	raw, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("config editor: read %s: %w", e.path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("config editor: parse %s: %w", e.path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	segments := strings.Split(key, ".")
	if err := setNested(doc, segments, value); err != nil {
		return fmt.Errorf("config editor: set %s: %w", key, err)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config editor: marshal: %w", err)
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("config editor: write temp file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func setNested(doc map[string]any, segments []string, value string) error {
	if len(segments) == 0 {
		return fmt.Errorf("empty key")
	}
	if len(segments) == 1 {
		doc[segments[0]] = value
		return nil
	}
	child, ok := doc[segments[0]]
	if !ok {
		m := map[string]any{}
		doc[segments[0]] = m
		return setNested(m, segments[1:], value)
	}
	m, ok := child.(map[string]any)
	if !ok {
		return fmt.Errorf("%q is not a nested map", segments[0])
	}
	return setNested(m, segments[1:], value)
}
