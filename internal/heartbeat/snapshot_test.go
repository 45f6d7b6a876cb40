package heartbeat

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wintermute-run/wintermute/pkg/models"
)

type fakeSource struct {
	mode     string
	alive    bool
	sessions int
	memSize  int64
	core     int
	dyn      int
	budget   models.BudgetSummary
	lastErr  string
}

func (f *fakeSource) ExecutorMode() string           { return f.mode }
func (f *fakeSource) ContainerAlive() bool           { return f.alive }
func (f *fakeSource) ActiveSessions() int            { return f.sessions }
func (f *fakeSource) MemoryStoreSize() int64         { return f.memSize }
func (f *fakeSource) ToolCounts() (core, dynamic int) { return f.core, f.dyn }
func (f *fakeSource) BudgetToday() models.BudgetSummary { return f.budget }
func (f *fakeSource) LastError() string              { return f.lastErr }

type fakeIdentity struct {
	calls int
}

func (f *fakeIdentity) Regenerate(ctx context.Context) error {
	f.calls++
	return nil
}

func TestSnapshotWriterWritesOnStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "health.json")
	src := &fakeSource{mode: "sandboxed", alive: true, sessions: 2, core: 4, dyn: 1}
	id := &fakeIdentity{}

	w := NewSnapshotWriter(path, time.Hour, src, id)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	deadline := time.Now().Add(time.Second)
	var snap models.HealthSnapshot
	var err error
	for time.Now().Before(deadline) {
		snap, err = ReadSnapshot(path)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if snap.ExecutorMode != "sandboxed" || snap.CoreToolCount != 4 || snap.DynamicToolCount != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if id.calls != 1 {
		t.Fatalf("expected identity regeneration on first tick, got %d calls", id.calls)
	}
}

func TestSnapshotWriterStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "health.json")
	w := NewSnapshotWriter(path, 10*time.Millisecond, &fakeSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	w.Stop()
	w.Stop() // idempotent
}

func TestIdentityGeneratorWritesDocument(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{mode: "native", core: 3, dyn: 2, budget: models.BudgetSummary{DailySpent: 150, DailyLimit: 1000}}
	g := NewIdentityGenerator(dir, src, "**Name**: Wintermute")

	if err := g.Regenerate(context.Background()); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	content := ReadIdentity(dir)
	if content == "" {
		t.Fatal("expected identity content")
	}
	if !strings.Contains(content, "3 core, 2 dynamic") {
		t.Fatalf("expected tool counts in identity doc, got: %s", content)
	}
	if !strings.Contains(content, "native") {
		t.Fatalf("expected executor mode in identity doc, got: %s", content)
	}
}
