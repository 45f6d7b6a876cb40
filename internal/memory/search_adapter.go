package memory

import (
	"context"

	"github.com/wintermute-run/wintermute/pkg/models"
)

// TextSearcher adapts a Manager's vector-backend Search to the context
// assembler's simpler MemorySearcher contract (query, k) -> ranked
// memories. Scope defaults to global: the assembler's first-turn
// injection has no session/channel/agent to scope against yet.
type TextSearcher struct {
	Manager *Manager
	Scope   models.MemoryScope
}

// NewTextSearcher wraps m for assembler.MemorySearcher, scoping every
// query globally.
func NewTextSearcher(m *Manager) *TextSearcher {
	return &TextSearcher{Manager: m, Scope: models.ScopeGlobal}
}

// Search satisfies assembler.MemorySearcher.
func (t *TextSearcher) Search(ctx context.Context, query string, k int) ([]models.MemorySearchResult, error) {
	resp, err := t.Manager.Search(ctx, &models.SearchRequest{
		Query: query,
		Scope: t.Scope,
		Limit: k,
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.MemorySearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Entry == nil {
			continue
		}
		out = append(out, models.MemorySearchResult{
			Memory: &models.Memory{
				ID:        r.Entry.ID,
				Kind:      models.MemoryEpisode,
				Content:   r.Entry.Content,
				Status:    models.MemoryActive,
				Source:    models.MemorySourceAgent,
				CreatedAt: r.Entry.CreatedAt,
				UpdatedAt: r.Entry.UpdatedAt,
			},
			Score: float64(r.Score),
		})
	}
	return out, nil
}
