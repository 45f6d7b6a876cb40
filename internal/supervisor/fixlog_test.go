package supervisor

import (
	"path/filepath"
	"testing"
	"time"
)

func TestFixLogAppendAndAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixes.json")
	log := NewFixLog(path)

	rec := FixRecord{
		Ts:          time.Now(),
		Pattern:     "tool_failure_after_change",
		Remediation: RemediationQuarantine,
		Target:      "flaky_tool",
		Verified:    true,
	}
	if err := log.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	records, err := log.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(records) != 1 || records[0].Target != "flaky_tool" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestFixLogAppendMultiplePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixes.json")
	log := NewFixLog(path)

	for i := 0; i < 3; i++ {
		if err := log.Append(FixRecord{Pattern: "p", Remediation: RemediationNotifyOnly}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	fresh := NewFixLog(path)
	records, err := fresh.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records across reopens, got %d", len(records))
	}
}

func TestFixLogAllOnMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	records, err := NewFixLog(path).All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if records != nil {
		t.Fatalf("expected nil records for missing file, got %+v", records)
	}
}
