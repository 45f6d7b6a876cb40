package models

import "time"

// MemoryEntry is a vector-indexed memory record: the unit the memory
// store's backends persist and search over. Distinct from Memory (the
// higher-level fact/procedure/episode/skill record with its status
// lifecycle) — a MemoryEntry is what actually lands in the embedding
// index, keyed to a session, channel, or agent scope.
type MemoryEntry struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`

	Content  string         `json:"content"`
	Metadata MemoryMetadata `json:"metadata"`

	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemoryMetadata carries provenance for one indexed entry.
type MemoryMetadata struct {
	Source string         `json:"source"` // "message", "document", "note"
	Role   string         `json:"role"`   // "user", "assistant"
	Tags   []string       `json:"tags"`
	Extra  map[string]any `json:"extra"`
}

// MemoryScope bounds a search or index operation to a session, channel,
// agent, or the whole store.
type MemoryScope string

const (
	ScopeSession MemoryScope = "session"
	ScopeChannel MemoryScope = "channel"
	ScopeAgent   MemoryScope = "agent"
	ScopeGlobal  MemoryScope = "global"
)

// SearchRequest parameterizes a vector/hybrid memory search.
type SearchRequest struct {
	Query     string         `json:"query"`
	Scope     MemoryScope    `json:"scope"`
	ScopeID   string         `json:"scope_id"`
	Limit     int            `json:"limit"`
	Threshold float32        `json:"threshold"`
	Filters   map[string]any `json:"filters"`
}

// SearchResult pairs one indexed entry with its retrieval score.
type SearchResult struct {
	Entry      *MemoryEntry `json:"entry"`
	Score      float32      `json:"score"`
	Highlights []string     `json:"highlights"`
}

// SearchResponse is the backend's answer to a SearchRequest.
type SearchResponse struct {
	Results    []*SearchResult `json:"results"`
	TotalCount int             `json:"total_count"`
	QueryTime  time.Duration   `json:"query_time"`
}
