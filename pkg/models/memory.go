package models

import "time"

// MemoryKind distinguishes the four record types the memory store holds.
type MemoryKind string

const (
	MemoryFact      MemoryKind = "fact"
	MemoryProcedure MemoryKind = "procedure"
	MemoryEpisode   MemoryKind = "episode"
	MemorySkill     MemoryKind = "skill"
)

// MemoryStatus is a node in the status graph pending -> active -> archived.
type MemoryStatus string

const (
	MemoryPending  MemoryStatus = "pending"
	MemoryActive   MemoryStatus = "active"
	MemoryArchived MemoryStatus = "archived"
)

// MemorySource records who asserted a memory.
type MemorySource string

const (
	MemorySourceUser     MemorySource = "user"
	MemorySourceObserver MemorySource = "observer"
	MemorySourceAgent    MemorySource = "agent"
)

// Memory is a single durable record in the memory store.
type Memory struct {
	ID        string       `json:"id"`
	Kind      MemoryKind   `json:"kind"`
	Content   string       `json:"content"`
	Embedding []float32    `json:"-"`
	Status    MemoryStatus `json:"status"`
	Source    MemorySource `json:"source"`

	// PromotedFrom holds the ids of the N consistent extractions that
	// justified a pending -> active promotion. Empty for memories that
	// entered directly as active (e.g. explicit user statements).
	PromotedFrom []string `json:"promoted_from,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemorySearchResult pairs a memory with its retrieval score. Score is a
// fused reciprocal-rank score when an embedder is configured, otherwise a
// normalized full-text rank.
type MemorySearchResult struct {
	Memory *Memory `json:"memory"`
	Score  float64 `json:"score"`
}

// TrustedDomain is one entry in the outbound trust ledger.
type TrustedDomain struct {
	Domain    string    `json:"domain"`
	Source    string    `json:"source"` // "config" or "user"
	CreatedAt time.Time `json:"created_at"`
}
