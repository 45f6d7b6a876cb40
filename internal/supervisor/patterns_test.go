package supervisor

import "testing"

func TestMatchToolFailureAfterChange(t *testing.T) {
	ev := Evidence{
		ToolFailures: map[string]ToolFailureInfo{
			"flaky_tool": {FailureRate: 0.8, ChangedSince: true, InvocationCnt: 10},
		},
	}
	v := MatchPatterns(ev)
	if !v.Matched || v.Remediation != RemediationQuarantine || v.Target != "flaky_tool" {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestMatchToolFailureIgnoresLowVolume(t *testing.T) {
	ev := Evidence{
		ToolFailures: map[string]ToolFailureInfo{
			"new_tool": {FailureRate: 1.0, ChangedSince: true, InvocationCnt: 1},
		},
	}
	if v := MatchPatterns(ev); v.Matched {
		t.Fatalf("expected no match for low invocation count, got %+v", v)
	}
}

func TestMatchSetupScriptBrokeContainer(t *testing.T) {
	ev := Evidence{
		ContainerAlive: false,
		RecentCommits: []CommitInfo{
			{Hash: "abc123", Message: "update setup script for python deps"},
		},
	}
	v := MatchPatterns(ev)
	if !v.Matched || v.Remediation != RemediationResetSandbox || v.Target != "abc123" {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestMatchTaskConsecutiveFailures(t *testing.T) {
	ev := Evidence{TaskFailures: map[string]int{"daily-digest": 4}}
	v := MatchPatterns(ev)
	if !v.Matched || v.Remediation != RemediationDisableTask || v.Target != "daily-digest" {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestMatchDailyBurnThreshold(t *testing.T) {
	ev := Evidence{DailyBurn: 0.95}
	v := MatchPatterns(ev)
	if !v.Matched || v.Remediation != RemediationAlertOnly {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestMatchPatternsNoMatch(t *testing.T) {
	ev := Evidence{ContainerAlive: true, DailyBurn: 0.1}
	if v := MatchPatterns(ev); v.Matched {
		t.Fatalf("expected no match, got %+v", v)
	}
}
