// Package budget implements the atomic per-session and per-day token
// counters, threshold warnings, and the pause-and-renew lifecycle that
// protects against runaway turn loops without killing a live session.
package budget

import (
	"sync"
	"sync/atomic"
	"time"
)

// Outcome is the result of an add() pre-check.
type Outcome int

const (
	OK Outcome = iota
	Warning
	SessionExhausted
	DailyExhausted
)

// thresholds are fixed fractions of the session limit at which a warning
// system-note is due, per spec.
var thresholds = []float64{0.70, 0.85, 0.95}

// Daily is the process-wide counter shared across all sessions. Day
// boundary resets are driven externally (typically by the heartbeat) via
// ResetIfNewDay.
type Daily struct {
	spent   atomic.Uint64
	limit   uint64
	resetAt time.Time
	mu      sync.Mutex
}

// NewDaily builds the shared daily counter with the given limit and the
// next reset boundary.
func NewDaily(limit uint64, resetAt time.Time) *Daily {
	return &Daily{limit: limit, resetAt: resetAt}
}

// Add atomically folds n tokens into the daily counter and reports whether
// the daily limit has been exceeded.
func (d *Daily) Add(n uint64) bool {
	total := d.spent.Add(n)
	return total > d.limit
}

// Spent returns the current daily counter value.
func (d *Daily) Spent() uint64 { return d.spent.Load() }

// Limit returns the configured daily limit.
func (d *Daily) Limit() uint64 { return d.limit }

// Exhausted reports whether the daily counter is currently over limit.
func (d *Daily) Exhausted() bool { return d.spent.Load() > d.limit }

// ResetIfNewDay clears the daily counter when now has passed the stored
// reset boundary, advancing the boundary by 24h. Safe for concurrent use;
// only one caller performs the reset.
func (d *Daily) ResetIfNewDay(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if now.Before(d.resetAt) {
		return false
	}
	d.spent.Store(0)
	for !now.Before(d.resetAt) {
		d.resetAt = d.resetAt.Add(24 * time.Hour)
	}
	return true
}

// Session is the per-session budget object the session runtime owns.
// Session-exhausted pauses the session; it does not terminate it.
type Session struct {
	mu              sync.Mutex
	spent           uint64
	limit           uint64
	paused          bool
	pauseReason     string
	daily           *Daily
	crossedWarnings map[int]bool
}

// NewSession builds a per-session budget bound to the shared daily
// counter.
func NewSession(limit uint64, daily *Daily) *Session {
	return &Session{limit: limit, daily: daily, crossedWarnings: make(map[int]bool)}
}

// Add folds n tokens into both the session and daily counters atomically
// with respect to this session's own state (the daily counter has its own
// atomicity). Returns the most severe outcome produced by either counter,
// plus the warning fraction when applicable.
func (s *Session) Add(n uint64) (Outcome, float64) {
	dailyOver := s.daily.Add(n)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.spent += n

	if dailyOver {
		s.paused = true
		s.pauseReason = "daily budget exhausted"
		return DailyExhausted, 1.0
	}

	if s.spent > s.limit {
		s.paused = true
		s.pauseReason = "session budget exhausted"
		return SessionExhausted, 1.0
	}

	frac := float64(s.spent) / float64(s.limit)
	var crossed float64
	for i, t := range thresholds {
		if frac >= t && !s.crossedWarnings[i] {
			s.crossedWarnings[i] = true
			crossed = t
		}
	}
	if crossed > 0 {
		return Warning, crossed
	}
	return OK, frac
}

// Pause marks the session paused for the given reason (e.g. invoked
// directly by the session runtime on a provider error that should halt new
// work until the user re-engages).
func (s *Session) Pause(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.pauseReason = reason
}

// Paused reports whether the session is currently paused and why.
func (s *Session) Paused() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused, s.pauseReason
}

// Renew clears the session counter and pause flag if the daily counter is
// still under its limit; otherwise it fails and the session remains
// paused. This is the sole way a session-exhausted pause is lifted: on the
// next inbound user message, per spec.
func (s *Session) Renew() bool {
	if s.daily.Exhausted() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spent = 0
	s.paused = false
	s.pauseReason = ""
	s.crossedWarnings = make(map[int]bool)
	return true
}

// Spent returns the session's current counter value.
func (s *Session) Spent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spent
}

// Limit returns the session's configured limit.
func (s *Session) Limit() uint64 { return s.limit }
