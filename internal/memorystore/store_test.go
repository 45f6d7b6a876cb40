package memorystore

import (
	"context"
	"testing"

	"github.com/wintermute-run/wintermute/pkg/models"
)

func TestSaveAndSearchRoundTrip(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	m := &models.Memory{Kind: models.MemoryFact, Content: "the deploy key rotates every quarter", Source: models.MemorySourceUser}
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	if m.ID == "" {
		t.Fatal("expected generated ID")
	}

	for k := 1; k <= 3; k++ {
		results, err := s.Search(ctx, "deploy key rotates", k)
		if err != nil {
			t.Fatalf("search k=%d: %v", k, err)
		}
		if len(results) == 0 {
			t.Fatalf("search k=%d: expected at least one result", k)
		}
		if results[0].Memory.ID != m.ID {
			t.Fatalf("search k=%d: expected memory %s in top results, got %+v", k, m.ID, results)
		}
	}
}

func TestSearchIsolatesUnrelatedContent(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Save(ctx, &models.Memory{Kind: models.MemoryFact, Content: "likes oat milk lattes", Source: models.MemorySourceUser}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, &models.Memory{Kind: models.MemoryProcedure, Content: "run migrations before deploying", Source: models.MemorySourceAgent}); err != nil {
		t.Fatalf("save: %v", err)
	}

	results, err := s.Search(ctx, "oat milk", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Memory.Content != "likes oat milk lattes" {
		t.Fatalf("expected exactly the oat milk memory, got %+v", results)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	m := &models.Memory{Kind: models.MemoryEpisode, Content: "extracted fact", Status: models.MemoryPending, Source: models.MemorySourceObserver}
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.UpdateStatus(ctx, m.ID, models.MemoryActive, []string{"ext-1", "ext-2", "ext-3"}); err != nil {
		t.Fatalf("promote pending->active: %v", err)
	}

	// archived -> active is illegal.
	if err := s.UpdateStatus(ctx, m.ID, models.MemoryArchived, nil); err != nil {
		t.Fatalf("active->archived: %v", err)
	}
	if err := s.UpdateStatus(ctx, m.ID, models.MemoryActive, nil); err == nil {
		t.Fatal("expected error reviving an archived memory")
	}
}

func TestUpdateStatusUnknownID(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.UpdateStatus(context.Background(), "does-not-exist", models.MemoryActive, nil); err == nil {
		t.Fatal("expected error for unknown memory id")
	}
}

func TestTrustDomainUpsertIsIdempotent(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.TrustDomain(ctx, "API.Example.ORG", "user"); err != nil {
		t.Fatalf("trust domain: %v", err)
	}
	if err := s.TrustDomain(ctx, "api.example.org", "config"); err != nil {
		t.Fatalf("re-trust domain: %v", err)
	}

	trusted, err := s.Trusted(ctx)
	if err != nil {
		t.Fatalf("trusted: %v", err)
	}
	if len(trusted) != 1 || !trusted["api.example.org"] {
		t.Fatalf("expected one lowercase domain entry, got %+v", trusted)
	}

	domains, err := s.TrustedDomains(ctx)
	if err != nil {
		t.Fatalf("trusted domains: %v", err)
	}
	if len(domains) != 1 || domains[0].Source != "config" {
		t.Fatalf("expected the refreshed source to win, got %+v", domains)
	}
}

type fakeEmbedder struct {
	vecs map[string][]float32
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestSearchFusesVectorSimilarityWhenEmbedderConfigured(t *testing.T) {
	embedder := fakeEmbedder{vecs: map[string][]float32{
		"database outage":                {1, 0, 0},
		"the database had an outage today": {1, 0, 0},
		"unrelated":                        {0, 1, 0},
	}}
	s, err := Open(":memory:", WithEmbedder(embedder))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	m := &models.Memory{
		Kind:      models.MemoryEpisode,
		Content:   "the database had an outage today",
		Embedding: []float32{1, 0, 0},
		Source:    models.MemorySourceObserver,
	}
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	other := &models.Memory{Kind: models.MemoryFact, Content: "unrelated", Embedding: []float32{0, 1, 0}, Source: models.MemorySourceUser}
	if err := s.Save(ctx, other); err != nil {
		t.Fatalf("save: %v", err)
	}

	results, err := s.Search(ctx, "database outage", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 || results[0].Memory.ID != m.ID {
		t.Fatalf("expected vector-similar memory ranked first, got %+v", results)
	}
}

type erroringEmbedder struct{}

func (erroringEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, context.DeadlineExceeded
}

func TestSearchDegradesToFTSWhenEmbedderFails(t *testing.T) {
	s, err := Open(":memory:", WithEmbedder(erroringEmbedder{}))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	m := &models.Memory{Kind: models.MemoryFact, Content: "graceful degradation works", Source: models.MemorySourceAgent}
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}

	results, err := s.Search(ctx, "graceful degradation", 5)
	if err != nil {
		t.Fatalf("search should degrade, not fail: %v", err)
	}
	if len(results) != 1 || results[0].Memory.ID != m.ID {
		t.Fatalf("expected fts-only fallback to still find the memory, got %+v", results)
	}
}
