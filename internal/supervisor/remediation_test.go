package supervisor

import (
	"context"
	"testing"
)

type fakeQuarantiner struct {
	quarantined string
}

func (f *fakeQuarantiner) Quarantine(name string) error {
	f.quarantined = name
	return nil
}

func TestActuatorApplyQuarantine(t *testing.T) {
	q := &fakeQuarantiner{}
	a := &Actuator{Tools: q}
	err := a.Apply(context.Background(), Verdict{Remediation: RemediationQuarantine, Target: "flaky_tool"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if q.quarantined != "flaky_tool" {
		t.Fatalf("expected flaky_tool quarantined, got %q", q.quarantined)
	}
}

func TestActuatorApplyQuarantineMissingDependency(t *testing.T) {
	a := &Actuator{}
	if err := a.Apply(context.Background(), Verdict{Remediation: RemediationQuarantine, Target: "x"}); err == nil {
		t.Fatal("expected error when no tool registry wired")
	}
}

func TestActuatorApplyAlertOnlyIsNoop(t *testing.T) {
	a := &Actuator{}
	if err := a.Apply(context.Background(), Verdict{Remediation: RemediationAlertOnly}); err != nil {
		t.Fatalf("expected alert_only to be a no-op, got %v", err)
	}
}

func TestActuatorApplyUnknownRemediation(t *testing.T) {
	a := &Actuator{}
	if err := a.Apply(context.Background(), Verdict{Remediation: "bogus"}); err == nil {
		t.Fatal("expected error for unknown remediation kind")
	}
}
