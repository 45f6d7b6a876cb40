// Package approval implements the non-blocking approval protocol: a
// gated tool call is assigned a short correlation identifier, the
// originating session receives an immediate "pending" result, and a
// later user decision is delivered back to that session over its own
// event channel rather than by unblocking an awaiting call.
package approval

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/wintermute-run/wintermute/pkg/models"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewShortID allocates a random 8-character base62 identifier, per the
// ApprovalRecord contract.
func NewShortID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 8)
	for i, b := range buf {
		out[i] = base62Alphabet[int(b)%len(base62Alphabet)]
	}
	return string(out), nil
}

// DefaultTTL is the fixed expiry window for an approval record.
const DefaultTTL = 5 * time.Minute

var (
	ErrNotFound = errors.New("approval: record not found")
	ErrExpired  = errors.New("approval: record expired")
	ErrUsed     = errors.New("approval: record already used")
	ErrWrongUser = errors.New("approval: decision from a different user")
)

// ResumeEvent is delivered to the originating session's event channel once
// a pending approval has been decided. The session learns about the
// outcome through its ordinary inbox, the same path as new user messages;
// no separate synchronization primitive is introduced.
type ResumeEvent struct {
	SessionID string
	RecordID  string
	ToolCall  models.ToolCall
	Outcome   models.ApprovalOutcome
}

// Deliverer routes a ResumeEvent to the session it names. The session
// runtime implements this by pushing onto its own bounded event channel.
type Deliverer interface {
	Deliver(ResumeEvent)
}

// Manager owns the table of pending approvals. Holds are short,
// O(1)-per-operation critical sections behind a single mutex, per the
// concurrency model.
type Manager struct {
	mu      sync.Mutex
	records map[string]*models.ApprovalRecord
	deliver Deliverer
	now     func() time.Time
}

// New builds an approval Manager. deliver may be nil in tests that only
// exercise Request/Resolve bookkeeping.
func New(deliver Deliverer) *Manager {
	return &Manager{
		records: make(map[string]*models.ApprovalRecord),
		deliver: deliver,
		now:     time.Now,
	}
}

// Request allocates a short id, stores a pending record, and returns it.
// The caller is responsible for sending the user-facing prompt bearing the
// id as callback payload and for returning an immediate "pending" tool
// result to the model on the same turn.
func (m *Manager) Request(sessionID, userID string, call models.ToolCall, reason string) (*models.ApprovalRecord, error) {
	id, err := NewShortID()
	if err != nil {
		return nil, err
	}
	now := m.now()
	rec := &models.ApprovalRecord{
		ID:        id,
		SessionID: sessionID,
		ToolCall:  call,
		Reason:    reason,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(DefaultTTL),
		Outcome:   models.ApprovalOutcomePending,
	}

	m.mu.Lock()
	m.records[id] = rec
	m.mu.Unlock()
	return rec, nil
}

// Resolve verifies the identifier exists, is unexpired, has not been used,
// and matches the expected user, records the outcome, and delivers a
// resume event to the originating session. If the session has already
// ended, delivery is best-effort and the record still transitions
// (expiry is the silent-failure path for that race, handled separately by
// Sweep).
func (m *Manager) Resolve(id, userID string, approved bool) error {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	now := m.now()
	if rec.Expired(now) {
		rec.Outcome = models.ApprovalOutcomeExpired
		m.mu.Unlock()
		return ErrExpired
	}
	if rec.Used {
		m.mu.Unlock()
		return ErrUsed
	}
	if rec.UserID != "" && rec.UserID != userID {
		m.mu.Unlock()
		return ErrWrongUser
	}

	rec.Used = true
	rec.DecidedAt = now
	rec.DecidedBy = userID
	if approved {
		rec.Outcome = models.ApprovalOutcomeApproved
	} else {
		rec.Outcome = models.ApprovalOutcomeDenied
	}
	sessionID := rec.SessionID
	call := rec.ToolCall
	outcome := rec.Outcome
	m.mu.Unlock()

	if m.deliver != nil {
		m.deliver.Deliver(ResumeEvent{
			SessionID: sessionID,
			RecordID:  id,
			ToolCall:  call,
			Outcome:   outcome,
		})
	}
	return nil
}

// Get returns a copy of the record for inspection (e.g. by the status
// command), or nil if absent.
func (m *Manager) Get(id string) *models.ApprovalRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// Sweep expires any pending record past its TTL and removes resolved
// records older than retain. If a session ended before its approval was
// resolved, this is where the record silently expires, per spec.
func (m *Manager) Sweep(retain time.Duration) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.records {
		if rec.Outcome == models.ApprovalOutcomePending && rec.Expired(now) {
			rec.Outcome = models.ApprovalOutcomeExpired
		}
		if rec.Outcome != models.ApprovalOutcomePending && now.Sub(rec.CreatedAt) > retain {
			delete(m.records, id)
		}
	}
}

// PendingForSession lists a session's currently pending records, used when
// rendering an approval-timeout message if the session resumes after
// expiry.
func (m *Manager) PendingForSession(sessionID string) []*models.ApprovalRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ApprovalRecord
	for _, rec := range m.records {
		if rec.SessionID == sessionID && rec.Outcome == models.ApprovalOutcomePending {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out
}
