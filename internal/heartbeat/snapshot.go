package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wintermute-run/wintermute/pkg/models"
)

// DefaultSnapshotInterval is the heartbeat tick period named in spec.
const DefaultSnapshotInterval = 60 * time.Second

// SnapshotSource supplies the observable state the heartbeat folds into
// each HealthSnapshot. Implementations read their own component's live
// state; the writer never reaches into another component's internals
// directly.
type SnapshotSource interface {
	ExecutorMode() string
	ContainerAlive() bool
	ActiveSessions() int
	MemoryStoreSize() int64
	ToolCounts() (core, dynamic int)
	BudgetToday() models.BudgetSummary
	LastError() string
}

// IdentityRegenerator regenerates the system identity document when
// observable state (tool count, budget, executor mode) has changed since
// the last tick. Implemented by internal/identity; the heartbeat only
// decides when to call it.
type IdentityRegenerator interface {
	Regenerate(ctx context.Context) error
}

// SnapshotWriter periodically composes and atomically publishes the
// HealthSnapshot document the supervisor and the status command read.
// Only one SnapshotWriter should run per agent process: the health
// snapshot file is single-writer, per the concurrency model.
type SnapshotWriter struct {
	path     string
	interval time.Duration
	source   SnapshotSource
	identity IdentityRegenerator
	started  time.Time
	logger   *slog.Logger

	mu          sync.Mutex
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	lastToolCnt int
}

// NewSnapshotWriter creates a writer that publishes to path every interval
// (DefaultSnapshotInterval if zero).
func NewSnapshotWriter(path string, interval time.Duration, source SnapshotSource, identity IdentityRegenerator) *SnapshotWriter {
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}
	return &SnapshotWriter{
		path:     path,
		interval: interval,
		source:   source,
		identity: identity,
		started:  time.Now(),
		logger:   slog.Default().With("component", "heartbeat"),
	}
}

// Start begins the periodic tick until ctx is canceled or Stop is called.
func (w *SnapshotWriter) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run(ctx)
}

func (w *SnapshotWriter) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// Stop halts the ticker and waits for the in-flight tick, if any, to
// finish.
func (w *SnapshotWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *SnapshotWriter) tick(ctx context.Context) {
	core, dynamic := w.source.ToolCounts()
	if w.identity != nil && core+dynamic != w.lastToolCnt {
		if err := w.identity.Regenerate(ctx); err != nil {
			w.logger.Warn("identity regeneration failed", "error", err)
		}
		w.lastToolCnt = core + dynamic
	}

	snap := models.HealthSnapshot{
		Ts:               time.Now(),
		UptimeSecs:       int64(time.Since(w.started).Seconds()),
		LastHeartbeat:    time.Now(),
		ExecutorMode:     w.source.ExecutorMode(),
		ContainerAlive:   w.source.ContainerAlive(),
		ActiveSessions:   w.source.ActiveSessions(),
		MemoryStoreSize:  w.source.MemoryStoreSize(),
		CoreToolCount:    core,
		DynamicToolCount: dynamic,
		BudgetToday:      w.source.BudgetToday(),
		LastError:        w.source.LastError(),
	}

	if err := WriteSnapshot(w.path, snap); err != nil {
		w.logger.Warn("health snapshot write failed", "error", err)
	}
}

// WriteSnapshot publishes snap to path atomically: write to a sibling temp
// file, then rename. A reader opening path at any point sees either the
// prior complete document or this one, never a partial write.
func WriteSnapshot(path string, snap models.HealthSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("heartbeat: marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("heartbeat: create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("heartbeat: write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("heartbeat: rename snapshot into place: %w", err)
	}
	return nil
}

// ReadSnapshot reads and parses the health snapshot at path. Callers
// (the supervisor, the status command) use this rather than reimplementing
// the read side of the atomicity contract.
func ReadSnapshot(path string) (models.HealthSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.HealthSnapshot{}, fmt.Errorf("heartbeat: read snapshot: %w", err)
	}
	var snap models.HealthSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.HealthSnapshot{}, fmt.Errorf("heartbeat: parse snapshot: %w", err)
	}
	return snap, nil
}
