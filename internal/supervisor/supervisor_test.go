package supervisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wintermute-run/wintermute/internal/heartbeat"
	"github.com/wintermute-run/wintermute/pkg/models"
)

type fakeEvidence struct {
	toolFailures map[string]ToolFailureInfo
	commits      []CommitInfo
	taskFailures map[string]int
	dailyBurn    float64
}

func (f *fakeEvidence) ToolFailures(ctx context.Context) (map[string]ToolFailureInfo, error) {
	return f.toolFailures, nil
}
func (f *fakeEvidence) RecentCommits(ctx context.Context, limit int) ([]CommitInfo, error) {
	return f.commits, nil
}
func (f *fakeEvidence) TaskFailures(ctx context.Context) (map[string]int, error) {
	return f.taskFailures, nil
}
func (f *fakeEvidence) DailyBurn(ctx context.Context) (float64, error) { return f.dailyBurn, nil }

func TestSupervisorTickAppliesMatchedPattern(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "health.json")
	if err := heartbeat.WriteSnapshot(snapPath, models.HealthSnapshot{
		LastHeartbeat:  time.Now(),
		ContainerAlive: true,
	}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	ev := &fakeEvidence{toolFailures: map[string]ToolFailureInfo{
		"flaky_tool": {FailureRate: 0.9, ChangedSince: true, InvocationCnt: 20},
	}}
	quarantiner := &fakeQuarantiner{}
	actuator := &Actuator{Tools: quarantiner}

	sup := New(Config{
		HealthSnapshotPath: snapPath,
		LogPath:            filepath.Join(dir, "agent.log"),
		HeartbeatInterval:  time.Minute,
		FixLogPath:         filepath.Join(dir, "fixes.json"),
	}, ev, actuator, nil)

	sup.tick(context.Background())

	if quarantiner.quarantined != "flaky_tool" {
		t.Fatalf("expected flaky_tool quarantined, got %q", quarantiner.quarantined)
	}

	records, err := sup.fixLog.All()
	if err != nil {
		t.Fatalf("fixLog.All: %v", err)
	}
	if len(records) != 1 || !records[0].Verified {
		t.Fatalf("expected one verified fix record, got %+v", records)
	}
}

func TestSupervisorTickRestartsOnStaleSnapshot(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "health.json")
	if err := heartbeat.WriteSnapshot(snapPath, models.HealthSnapshot{
		LastHeartbeat: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	restarted := false
	actuator := &Actuator{Restarter: restarterFunc(func(ctx context.Context) error {
		restarted = true
		return nil
	})}

	sup := New(Config{
		HealthSnapshotPath: snapPath,
		LogPath:            filepath.Join(dir, "agent.log"),
		HeartbeatInterval:  time.Minute,
		FixLogPath:         filepath.Join(dir, "fixes.json"),
	}, &fakeEvidence{}, actuator, nil)

	sup.tick(context.Background())

	if !restarted {
		t.Fatal("expected restart on stale snapshot")
	}
}

type restarterFunc func(ctx context.Context) error

func (f restarterFunc) Restart(ctx context.Context) error { return f(ctx) }
