package budget

import (
	"testing"
	"time"
)

func TestSessionWarningThreshold(t *testing.T) {
	daily := NewDaily(1_000_000, time.Now().Add(24*time.Hour))
	s := NewSession(1000, daily)

	outcome, frac := s.Add(700)
	if outcome != Warning || frac != 0.70 {
		t.Fatalf("expected warning at 70%%, got %v %v", outcome, frac)
	}

	// Adding more within the same bucket should not re-warn at the same threshold.
	outcome, _ = s.Add(10)
	if outcome == Warning {
		t.Fatalf("did not expect a repeat warning for the same threshold")
	}
}

func TestSessionExhaustedPausesNotKills(t *testing.T) {
	daily := NewDaily(1_000_000, time.Now().Add(24*time.Hour))
	s := NewSession(1000, daily)

	outcome, _ := s.Add(1001)
	if outcome != SessionExhausted {
		t.Fatalf("expected session-exhausted, got %v", outcome)
	}
	paused, reason := s.Paused()
	if !paused || reason == "" {
		t.Fatalf("expected session to be paused with a reason")
	}
}

func TestRenewClearsSessionWhenDailyOK(t *testing.T) {
	daily := NewDaily(1_000_000, time.Now().Add(24*time.Hour))
	s := NewSession(1000, daily)
	s.Add(1001)

	if !s.Renew() {
		t.Fatalf("expected renew to succeed when daily counter is under limit")
	}
	if s.Spent() != 0 {
		t.Fatalf("expected session counter cleared after renew")
	}
	paused, _ := s.Paused()
	if paused {
		t.Fatalf("expected pause cleared after renew")
	}
}

func TestRenewFailsWhenDailyExhausted(t *testing.T) {
	daily := NewDaily(100, time.Now().Add(24*time.Hour))
	s := NewSession(1000, daily)
	daily.Add(200)
	s.Add(50)

	if s.Renew() {
		t.Fatalf("expected renew to fail while daily counter is exhausted")
	}
}

func TestDailyResetIfNewDay(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	daily := NewDaily(100, past)
	daily.Add(50)

	if !daily.ResetIfNewDay(time.Now()) {
		t.Fatalf("expected reset to occur once boundary has passed")
	}
	if daily.Spent() != 0 {
		t.Fatalf("expected daily counter cleared after reset")
	}
	if daily.ResetIfNewDay(time.Now()) {
		t.Fatalf("expected no reset before the next boundary")
	}
}

func TestDailyAddReportsExhaustion(t *testing.T) {
	daily := NewDaily(100, time.Now().Add(time.Hour))
	if daily.Add(50) {
		t.Fatalf("did not expect exhaustion below limit")
	}
	if !daily.Add(60) {
		t.Fatalf("expected exhaustion once total exceeds limit")
	}
}
