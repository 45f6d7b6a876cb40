// Package toolregistry holds the current mapping from tool name to
// descriptor: compiled-in core descriptors plus every descriptor file
// discovered under a tracked directory. A filesystem watcher reloads the
// dynamic set when files change; readers never observe a partially-applied
// reload because snapshots are published atomically.
package toolregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/wintermute-run/wintermute/internal/observability"
	"github.com/wintermute-run/wintermute/pkg/models"
)

// descriptorSuffix is the on-disk extension for a tool descriptor file.
// The paired implementation file shares the base name with an
// implementation-specific extension (".py", ".sh", ...).
const descriptorSuffix = ".json"

// quarantineSuffix marks a descriptor the supervisor has quarantined after
// a failure-pattern match. Quarantined descriptors are parsed for display
// but excluded from Snapshot.
const quarantineSuffix = ".quarantined"

// nameRE enforces the ToolDescriptor.Name contract: alphanumeric plus
// underscore, no path components.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var (
	ErrInvalidName = errors.New("toolregistry: name must be alphanumeric plus underscore")
	ErrNotFound    = errors.New("toolregistry: descriptor not found")
)

// snapshot is the immutable published view. A reload builds a fresh
// snapshot and swaps the pointer; in-flight readers keep their own
// reference to the old complete map.
type snapshot struct {
	dynamic map[string]models.ToolDescriptor
}

// Registry watches dynamicDir for descriptor files and exposes the
// combination of compiled-in core descriptors and hot-reloaded dynamic
// ones. It implements the tool-registry contract consumed by the context
// assembler and the session runtime.
type Registry struct {
	dynamicDir string
	core       map[string]models.ToolDescriptor
	coreOrder  []string

	current atomic.Pointer[snapshot]

	repo    *git.Repository
	watcher *fsnotify.Watcher
	metrics *observability.Metrics
	logger  *slog.Logger

	done chan struct{}
}

// New creates a registry rooted at dynamicDir, seeding it with core (always
// present, never reloaded from disk) and loading the current contents of
// dynamicDir. dynamicDir is created and initialized as a git repository if
// it does not already contain one, so create_or_update has version-control
// history from the first write.
func New(dynamicDir string, core []models.ToolDescriptor, metrics *observability.Metrics) (*Registry, error) {
	if err := os.MkdirAll(dynamicDir, 0o755); err != nil {
		return nil, fmt.Errorf("toolregistry: create dynamic dir: %w", err)
	}

	repo, err := git.PlainOpen(dynamicDir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(dynamicDir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("toolregistry: open tools repository: %w", err)
	}

	r := &Registry{
		dynamicDir: dynamicDir,
		core:       make(map[string]models.ToolDescriptor, len(core)),
		repo:       repo,
		metrics:    metrics,
		logger:     slog.Default().With("component", "toolregistry"),
		done:       make(chan struct{}),
	}
	for _, d := range core {
		d.Dynamic = false
		r.core[d.Name] = d
		r.coreOrder = append(r.coreOrder, d.Name)
	}

	dyn, err := r.loadDynamic()
	if err != nil {
		return nil, err
	}
	r.current.Store(&snapshot{dynamic: dyn})
	return r, nil
}

// Start begins watching dynamicDir for changes until ctx is canceled.
// Reload failures are logged and do not tear down the watch loop; the last
// good snapshot remains published.
func (r *Registry) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("toolregistry: create watcher: %w", err)
	}
	if err := watcher.Add(r.dynamicDir); err != nil {
		watcher.Close()
		return fmt.Errorf("toolregistry: watch dynamic dir: %w", err)
	}
	r.watcher = watcher

	go r.watch(ctx)
	return nil
}

func (r *Registry) watch(ctx context.Context) {
	defer close(r.done)
	// Coalesce bursts of events (a create_or_update writes two files) into
	// a single reload per quiet period.
	var debounce *time.Timer
	reload := func() {
		dyn, err := r.loadDynamic()
		if err != nil {
			r.logger.Warn("tool descriptor reload failed", "error", err)
			return
		}
		r.current.Store(&snapshot{dynamic: dyn})
		r.logger.Info("tool descriptors reloaded", "count", len(dyn))
	}

	for {
		select {
		case <-ctx.Done():
			r.watcher.Close()
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, descriptorSuffix) && !strings.HasSuffix(ev.Name, quarantineSuffix) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, reload)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("tool descriptor watch error", "error", err)
		}
	}
}

// Close stops the filesystem watcher and waits for the watch loop to exit.
func (r *Registry) Close() {
	if r.watcher == nil {
		return
	}
	<-r.done
}

func (r *Registry) loadDynamic() (map[string]models.ToolDescriptor, error) {
	entries, err := os.ReadDir(r.dynamicDir)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: read dynamic dir: %w", err)
	}

	out := make(map[string]models.ToolDescriptor)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), descriptorSuffix) {
			continue
		}
		path := filepath.Join(r.dynamicDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			r.logger.Warn("failed to read tool descriptor", "path", path, "error", err)
			continue
		}
		var desc models.ToolDescriptor
		if err := json.Unmarshal(data, &desc); err != nil {
			r.logger.Warn("failed to parse tool descriptor", "path", path, "error", err)
			continue
		}
		if !nameRE.MatchString(desc.Name) {
			r.logger.Warn("tool descriptor has invalid name, skipping", "path", path, "name", desc.Name)
			continue
		}
		desc.Dynamic = true
		base := strings.TrimSuffix(entry.Name(), descriptorSuffix)
		if impl := findImplementation(r.dynamicDir, base); impl != "" {
			desc.ImplPath = impl
		}
		out[desc.Name] = desc
	}
	return out, nil
}

func findImplementation(dir, base string) string {
	matches, err := filepath.Glob(filepath.Join(dir, base+".*"))
	if err != nil {
		return ""
	}
	for _, m := range matches {
		if strings.HasSuffix(m, descriptorSuffix) || strings.HasSuffix(m, quarantineSuffix) {
			continue
		}
		return m
	}
	return ""
}

// Snapshot returns the currently published dynamic descriptor map. The
// caller must treat it as read-only; it reflects either the pre- or
// post-reload state in full, never a mix.
func (r *Registry) Snapshot() map[string]models.ToolDescriptor {
	return r.current.Load().dynamic
}

// CoreDescriptors returns the compiled-in descriptors in registration
// order.
func (r *Registry) CoreDescriptors() []models.ToolDescriptor {
	out := make([]models.ToolDescriptor, 0, len(r.coreOrder))
	for _, name := range r.coreOrder {
		out = append(out, r.core[name])
	}
	return out
}

// DynamicDescriptors returns the current dynamic descriptors in no
// particular order; callers that need ranking (recency, similarity) sort
// the result themselves.
func (r *Registry) DynamicDescriptors() []models.ToolDescriptor {
	snap := r.current.Load()
	out := make([]models.ToolDescriptor, 0, len(snap.dynamic))
	for _, d := range snap.dynamic {
		out = append(out, d)
	}
	return out
}

// Descriptor returns the descriptor for name, checking core tools first.
func (r *Registry) Descriptor(name string) (models.ToolDescriptor, bool) {
	if d, ok := r.core[name]; ok {
		return d, true
	}
	d, ok := r.current.Load().dynamic[name]
	return d, ok
}

// CreateOrUpdate validates name, writes the descriptor and implementation
// files atomically (temp file, then rename), and records a commit in the
// tools directory's version-control history. It then reloads and publishes
// a fresh snapshot synchronously, so callers observe the new tool
// immediately rather than waiting for the filesystem watcher to notice.
func (r *Registry) CreateOrUpdate(name string, descriptor models.ToolDescriptor, implementation []byte, implExt string) error {
	if !nameRE.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, exists := r.core[name]; exists {
		return fmt.Errorf("toolregistry: %q is a core tool and cannot be overridden", name)
	}
	if implExt == "" {
		implExt = ".py"
	}
	implExt = strings.TrimPrefix(implExt, ".")

	descriptor.Name = name
	descriptor.Dynamic = true
	if descriptor.Meta.CreatedAt.IsZero() {
		descriptor.Meta.CreatedAt = time.Now()
	}
	descriptor.Meta.Version++

	descPath := filepath.Join(r.dynamicDir, name+descriptorSuffix)
	implPath := filepath.Join(r.dynamicDir, name+"."+implExt)

	descJSON, err := json.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return fmt.Errorf("toolregistry: marshal descriptor: %w", err)
	}
	if err := atomicWrite(descPath, descJSON); err != nil {
		return err
	}
	if err := atomicWrite(implPath, implementation); err != nil {
		return err
	}

	action := "update"
	if descriptor.Meta.Version == 1 {
		action = "create"
	}
	if err := r.commit(fmt.Sprintf("%s tool %s", action, name), []string{
		name + descriptorSuffix, name + "." + implExt,
	}); err != nil {
		r.logger.Warn("failed to commit tool change", "tool", name, "error", err)
	}

	dyn, err := r.loadDynamic()
	if err != nil {
		return err
	}
	r.current.Store(&snapshot{dynamic: dyn})
	return nil
}

// RecordExecution folds one invocation outcome into name's health block,
// rewriting its descriptor file, and publishes the updated snapshot. Core
// tools track health in memory only (there is no descriptor file to
// rewrite); the update is still visible through Descriptor.
func (r *Registry) RecordExecution(name string, success bool, durationMs int64, errMsg string) {
	if r.metrics != nil {
		status := "success"
		if !success {
			status = "error"
		}
		r.metrics.RecordToolExecution(name, status, float64(durationMs)/1000)
	}

	if core, ok := r.core[name]; ok {
		core.Meta.Record(success, durationMs, errMsg)
		r.core[name] = core
		return
	}

	snap := r.current.Load()
	desc, ok := snap.dynamic[name]
	if !ok {
		return
	}
	desc.Meta.Record(success, durationMs, errMsg)

	descPath := filepath.Join(r.dynamicDir, name+descriptorSuffix)
	data, err := json.MarshalIndent(desc, "", "  ")
	if err == nil {
		if err := atomicWrite(descPath, data); err != nil {
			r.logger.Warn("failed to persist tool health", "tool", name, "error", err)
		}
	}

	next := make(map[string]models.ToolDescriptor, len(snap.dynamic))
	for k, v := range snap.dynamic {
		next[k] = v
	}
	next[name] = desc
	r.current.Store(&snapshot{dynamic: next})
}

// Quarantine renames name's descriptor file so it is excluded from the
// published snapshot while remaining on disk for inspection and restore.
// Used by the supervisor when a tool's recent health crosses a
// failing-after-change threshold.
func (r *Registry) Quarantine(name string) error {
	descPath := filepath.Join(r.dynamicDir, name+descriptorSuffix)
	if _, err := os.Stat(descPath); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	quarantinedPath := descPath + quarantineSuffix
	if err := os.Rename(descPath, quarantinedPath); err != nil {
		return fmt.Errorf("toolregistry: quarantine %s: %w", name, err)
	}

	dyn, err := r.loadDynamic()
	if err != nil {
		return err
	}
	r.current.Store(&snapshot{dynamic: dyn})
	return nil
}

// Restore reverses Quarantine.
func (r *Registry) Restore(name string) error {
	quarantinedPath := filepath.Join(r.dynamicDir, name+descriptorSuffix+quarantineSuffix)
	if _, err := os.Stat(quarantinedPath); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	descPath := strings.TrimSuffix(quarantinedPath, quarantineSuffix)
	if err := os.Rename(quarantinedPath, descPath); err != nil {
		return fmt.Errorf("toolregistry: restore %s: %w", name, err)
	}

	dyn, err := r.loadDynamic()
	if err != nil {
		return err
	}
	r.current.Store(&snapshot{dynamic: dyn})
	return nil
}

// commit stages paths (relative to dynamicDir) and records a commit in the
// tools directory's git history. A missing worktree (e.g. a bare-init edge
// case) is surfaced to the caller, who logs and continues: a failed commit
// never blocks a tool write from taking effect.
func (r *Registry) commit(message string, paths []string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("toolregistry: worktree: %w", err)
	}
	for _, p := range paths {
		if _, err := wt.Add(p); err != nil {
			return fmt.Errorf("toolregistry: git add %s: %w", p, err)
		}
	}
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "wintermute",
			Email: "wintermute@localhost",
			When:  time.Now(),
		},
	})
	if err != nil && !errors.Is(err, git.ErrEmptyCommit) {
		return fmt.Errorf("toolregistry: commit: %w", err)
	}
	return nil
}

// atomicWrite writes data to path by first writing to a sibling temp file
// and renaming it into place, so a reader never observes a partial write.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("toolregistry: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("toolregistry: rename %s: %w", tmp, err)
	}
	return nil
}
