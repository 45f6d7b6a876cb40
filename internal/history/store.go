// Package history implements the durable, single-writer conversation
// history store backing session.Runtime's HistoryStore contract. Every
// write funnels through one goroutine reading a bounded channel, matching
// the memory store's single-writer discipline (spec: "all callers submit
// operations through a bounded channel, never through direct connections").
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/wintermute-run/wintermute/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS turn_entries (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	id TEXT NOT NULL,
	role TEXT NOT NULL,
	direction TEXT,
	content TEXT NOT NULL,
	token_count INTEGER,
	tool_calls TEXT,
	tool_results TEXT,
	is_summary INTEGER NOT NULL DEFAULT 0,
	metadata TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turn_entries_session ON turn_entries(session_id, seq);
`

type writeOp struct {
	sessionID string
	entry     models.TurnEntry
	done      chan error
}

// Store is the append-only, single-writer conversation history store.
type Store struct {
	db   *sql.DB
	ops  chan writeOp
	done chan struct{}
}

// Open opens (creating if needed) a history database at path and starts
// its writer actor. Use ":memory:" for an ephemeral, process-local store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	s := &Store{db: db, ops: make(chan writeOp, 64), done: make(chan struct{})}
	go s.writeLoop()
	return s, nil
}

func (s *Store) writeLoop() {
	for op := range s.ops {
		op.done <- s.insert(op.sessionID, op.entry)
	}
	close(s.done)
}

func (s *Store) insert(sessionID string, entry models.TurnEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	toolCalls, err := json.Marshal(entry.ToolCalls)
	if err != nil {
		return fmt.Errorf("history: marshal tool calls: %w", err)
	}
	toolResults, err := json.Marshal(entry.ToolResults)
	if err != nil {
		return fmt.Errorf("history: marshal tool results: %w", err)
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("history: marshal metadata: %w", err)
	}
	isSummary := 0
	if entry.IsSummary {
		isSummary = 1
	}
	_, err = s.db.Exec(
		`INSERT INTO turn_entries
			(session_id, id, role, direction, content, token_count, tool_calls, tool_results, is_summary, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, entry.ID, string(entry.Role), string(entry.Direction), entry.Content, entry.TokenCount,
		string(toolCalls), string(toolResults), isSummary, string(metadata), entry.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// Append queues entry on the single-writer actor and blocks until it has
// landed, so a nil return means the entry is durable. Satisfies
// session.HistoryStore.
func (s *Store) Append(ctx context.Context, sessionID string, entry models.TurnEntry) error {
	op := writeOp{sessionID: sessionID, entry: entry, done: make(chan error, 1)}
	select {
	case s.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-op.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load returns a session's full history in append order. Reads use their
// own connection and run concurrently with writes, observing whatever
// prefix has been committed.
func (s *Store) Load(ctx context.Context, sessionID string) ([]models.TurnEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, direction, content, token_count, tool_calls, tool_results, is_summary, metadata, created_at
		 FROM turn_entries WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("history: load %s: %w", sessionID, err)
	}
	defer rows.Close()

	var entries []models.TurnEntry
	for rows.Next() {
		var e models.TurnEntry
		var role, direction, toolCalls, toolResults, metadata, createdAt string
		var isSummary int
		if err := rows.Scan(&e.ID, &role, &direction, &e.Content, &e.TokenCount,
			&toolCalls, &toolResults, &isSummary, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan row: %w", err)
		}
		e.SessionID = sessionID
		e.Role = models.Role(role)
		e.Direction = models.Direction(direction)
		e.IsSummary = isSummary != 0
		if toolCalls != "" && toolCalls != "null" {
			if err := json.Unmarshal([]byte(toolCalls), &e.ToolCalls); err != nil {
				return nil, fmt.Errorf("history: unmarshal tool calls: %w", err)
			}
		}
		if toolResults != "" && toolResults != "null" {
			if err := json.Unmarshal([]byte(toolResults), &e.ToolResults); err != nil {
				return nil, fmt.Errorf("history: unmarshal tool results: %w", err)
			}
		}
		if metadata != "" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
				return nil, fmt.Errorf("history: unmarshal metadata: %w", err)
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close stops the writer actor and closes the underlying database handle.
func (s *Store) Close() error {
	close(s.ops)
	<-s.done
	return s.db.Close()
}
