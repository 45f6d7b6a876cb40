package supervisor

import (
	"strconv"
	"strings"
)

// Fixed thresholds the pattern matchers apply. These are deliberately
// conservative: a false negative falls through to the model fallback,
// a false positive causes an unwanted but bounded, verified, logged
// remediation.
const (
	toolFailureRateThreshold   = 0.5
	toolMinInvocations         = 5
	taskConsecutiveFailureLim  = 3
	dailyBurnAlertThreshold    = 0.90
)

// MatchPatterns evaluates Evidence against the fixed set of named
// failure patterns, in priority order, and returns the first verdict
// that matches. Returns a zero Verdict (Matched == false) when nothing
// fires, signaling the caller to fall back to the model.
func MatchPatterns(ev Evidence) Verdict {
	if v, ok := matchToolFailureAfterChange(ev); ok {
		return v
	}
	if v, ok := matchSetupScriptBrokeContainer(ev); ok {
		return v
	}
	if v, ok := matchTaskConsecutiveFailures(ev); ok {
		return v
	}
	if v, ok := matchDailyBurnThreshold(ev); ok {
		return v
	}
	return Verdict{}
}

// matchToolFailureAfterChange: a tool whose descriptor or implementation
// changed recently and whose failure rate since then exceeds threshold.
// Remediation quarantines the tool and reverts the offending commit.
func matchToolFailureAfterChange(ev Evidence) (Verdict, bool) {
	for name, info := range ev.ToolFailures {
		if !info.ChangedSince {
			continue
		}
		if info.InvocationCnt < toolMinInvocations {
			continue
		}
		if info.FailureRate < toolFailureRateThreshold {
			continue
		}
		return Verdict{
			Matched:     true,
			Pattern:     "tool_failure_after_change",
			Remediation: RemediationQuarantine,
			Target:      name,
			Confidence:  1.0,
			Reason: name + " failure rate " +
				formatRate(info.FailureRate) + " since last change",
		}, true
	}
	return Verdict{}, false
}

// matchSetupScriptBrokeContainer: the most recent commit touched a setup
// script and the executor's container is no longer reporting alive.
// Remediation reverts that commit and resets the sandbox.
func matchSetupScriptBrokeContainer(ev Evidence) (Verdict, bool) {
	if ev.ContainerAlive {
		return Verdict{}, false
	}
	if len(ev.RecentCommits) == 0 {
		return Verdict{}, false
	}
	last := ev.RecentCommits[len(ev.RecentCommits)-1]
	if !touchesSetupScript(last.Message) {
		return Verdict{}, false
	}
	return Verdict{
		Matched:     true,
		Pattern:     "setup_script_broke_container",
		Remediation: RemediationResetSandbox,
		Target:      last.Hash,
		Confidence:  0.9,
		Reason:      "container unhealthy after setup script change in " + last.Hash,
	}, true
}

func touchesSetupScript(commitMessage string) bool {
	lower := strings.ToLower(commitMessage)
	return strings.Contains(lower, "setup") || strings.Contains(lower, "bootstrap") ||
		strings.Contains(lower, "dockerfile") || strings.Contains(lower, "install")
}

// matchTaskConsecutiveFailures: a scheduled task has failed its
// threshold number of consecutive runs. Remediation disables the task
// rather than retrying indefinitely.
func matchTaskConsecutiveFailures(ev Evidence) (Verdict, bool) {
	for id, count := range ev.TaskFailures {
		if count < taskConsecutiveFailureLim {
			continue
		}
		return Verdict{
			Matched:     true,
			Pattern:     "task_consecutive_failures",
			Remediation: RemediationDisableTask,
			Target:      id,
			Confidence:  1.0,
			Reason:      "task failed its last " + strconv.Itoa(count) + " runs",
		}, true
	}
	return Verdict{}, false
}

// matchDailyBurnThreshold: spend is approaching the daily limit. There is
// no safe automatic remediation for spend, so this pattern only alerts.
func matchDailyBurnThreshold(ev Evidence) (Verdict, bool) {
	if ev.DailyBurn < dailyBurnAlertThreshold {
		return Verdict{}, false
	}
	return Verdict{
		Matched:     true,
		Pattern:     "daily_burn_threshold",
		Remediation: RemediationAlertOnly,
		Confidence:  1.0,
		Reason:      "daily spend at " + formatRate(ev.DailyBurn) + " of limit",
	}, true
}

func formatRate(r float64) string {
	return strconv.Itoa(int(r*100)) + "%"
}
