package toolregistry

import (
	"context"
	"testing"
	"time"

	"github.com/wintermute-run/wintermute/pkg/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := New(dir, []models.ToolDescriptor{{Name: "read_file", Description: "reads a file"}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNewSeedsCoreDescriptors(t *testing.T) {
	r := newTestRegistry(t)
	if got := r.CoreDescriptors(); len(got) != 1 || got[0].Name != "read_file" {
		t.Fatalf("unexpected core descriptors: %+v", got)
	}
	if len(r.DynamicDescriptors()) != 0 {
		t.Fatalf("expected no dynamic descriptors on empty dir")
	}
}

func TestCreateOrUpdateRejectsInvalidName(t *testing.T) {
	r := newTestRegistry(t)
	err := r.CreateOrUpdate("../escape", models.ToolDescriptor{}, []byte("x"), "py")
	if err == nil {
		t.Fatal("expected error for invalid name")
	}
}

func TestCreateOrUpdateRejectsCoreOverride(t *testing.T) {
	r := newTestRegistry(t)
	err := r.CreateOrUpdate("read_file", models.ToolDescriptor{}, []byte("x"), "py")
	if err == nil {
		t.Fatal("expected error overriding a core tool")
	}
}

func TestCreateOrUpdatePublishesAndPersists(t *testing.T) {
	r := newTestRegistry(t)
	err := r.CreateOrUpdate("summarize_pr", models.ToolDescriptor{
		Description: "summarizes a pull request",
		TimeoutSecs: 30,
	}, []byte("print('hi')"), "py")
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}

	desc, ok := r.Descriptor("summarize_pr")
	if !ok {
		t.Fatal("expected descriptor to be found")
	}
	if desc.ImplPath == "" {
		t.Fatal("expected implementation path to be populated")
	}
	if desc.Meta.Version != 1 {
		t.Fatalf("expected version 1, got %d", desc.Meta.Version)
	}

	dyn := r.DynamicDescriptors()
	if len(dyn) != 1 {
		t.Fatalf("expected one dynamic descriptor, got %d", len(dyn))
	}
}

func TestRecordExecutionUpdatesHealthAndPersists(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.CreateOrUpdate("flaky_tool", models.ToolDescriptor{Description: "sometimes fails"}, []byte("x"), "py"); err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}

	r.RecordExecution("flaky_tool", true, 120, "")
	r.RecordExecution("flaky_tool", false, 80, "boom")

	desc, ok := r.Descriptor("flaky_tool")
	if !ok {
		t.Fatal("expected descriptor")
	}
	if desc.Meta.InvocationCnt != 2 {
		t.Fatalf("expected 2 invocations, got %d", desc.Meta.InvocationCnt)
	}
	if desc.Meta.SuccessRate != 0.5 {
		t.Fatalf("expected success rate 0.5, got %v", desc.Meta.SuccessRate)
	}
	if desc.Meta.LastError != "boom" {
		t.Fatalf("expected last error recorded, got %q", desc.Meta.LastError)
	}
}

func TestRecordExecutionOnCoreToolTracksInMemory(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordExecution("read_file", true, 5, "")
	desc, ok := r.Descriptor("read_file")
	if !ok || desc.Meta.InvocationCnt != 1 {
		t.Fatalf("expected core tool health to update in memory: %+v", desc)
	}
}

func TestQuarantineAndRestore(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.CreateOrUpdate("risky_tool", models.ToolDescriptor{Description: "risky"}, []byte("x"), "py"); err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}

	if err := r.Quarantine("risky_tool"); err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if _, ok := r.Descriptor("risky_tool"); ok {
		t.Fatal("expected quarantined tool to be absent from snapshot")
	}

	if err := r.Restore("risky_tool"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, ok := r.Descriptor("risky_tool"); !ok {
		t.Fatal("expected restored tool to reappear")
	}
}

func TestWatcherReloadsOnExternalWrite(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Close()

	if err := r.CreateOrUpdate("watched_tool", models.ToolDescriptor{Description: "x"}, []byte("x"), "py"); err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := r.Descriptor("watched_tool"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected watcher to observe descriptor within deadline")
}
