package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wintermute-run/wintermute/internal/boundary"
	"github.com/wintermute-run/wintermute/internal/budget"
	"github.com/wintermute-run/wintermute/internal/compaction"
	"github.com/wintermute-run/wintermute/internal/memorystore"
	"github.com/wintermute-run/wintermute/internal/policy"
	"github.com/wintermute-run/wintermute/internal/router"
	"github.com/wintermute-run/wintermute/internal/toolregistry"
	"github.com/wintermute-run/wintermute/pkg/models"
)

// trustLedgerAdapter composes the policy gate's TrustLedgerSnapshot from
// the config-owned static lists and the memory store's durable trust
// ledger. Pulled container images are tracked in-process only: image
// pulls are not persisted anywhere else in this composition, so a process
// restart re-asks approval for the first pull of a previously-seen image.
type trustLedgerAdapter struct {
	store        *memorystore.Store
	staticAllow  map[string]bool
	blockList    map[string]bool
	pulledImages map[string]bool
}

func newTrustLedgerAdapter(store *memorystore.Store, allow, block []string) *trustLedgerAdapter {
	a := &trustLedgerAdapter{
		store:        store,
		staticAllow:  make(map[string]bool, len(allow)),
		blockList:    make(map[string]bool, len(block)),
		pulledImages: make(map[string]bool),
	}
	for _, d := range allow {
		a.staticAllow[strings.ToLower(strings.TrimSpace(d))] = true
	}
	for _, d := range block {
		a.blockList[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return a
}

func (a *trustLedgerAdapter) Snapshot() policy.TrustLedgerSnapshot {
	trusted, err := a.store.Trusted(context.Background())
	if err != nil {
		trusted = map[string]bool{}
	}
	return policy.TrustLedgerSnapshot{
		BlockList:       a.blockList,
		StaticAllowlist: a.staticAllow,
		Trusted:         trusted,
		PulledImages:    a.pulledImages,
	}
}

func (a *trustLedgerAdapter) markImagePulled(image string) { a.pulledImages[image] = true }

// IsTrusted satisfies egress.TrustLedger for the outbound proxy.
func (a *trustLedgerAdapter) IsTrusted(domain string) bool {
	trusted, err := a.store.Trusted(context.Background())
	if err != nil {
		return false
	}
	return trusted[strings.ToLower(domain)]
}

// routerCompactor adapts the model router into the assembler's Compactor
// contract: an out-of-band summarization pass bounded by a target token
// count. History too large to summarize in a single completion call is
// chunked and merged by internal/compaction's multi-stage summarizer
// rather than handed to the model as one oversized request.
type routerCompactor struct {
	rt    *router.Router
	skill string
}

func (c routerCompactor) Summarize(ctx context.Context, entries []models.TurnEntry, targetTokens int) (models.TurnEntry, error) {
	messages := make([]*compaction.Message, len(entries))
	for i, e := range entries {
		messages[i] = &compaction.Message{
			Role:      string(e.Role),
			Content:   e.Content,
			Timestamp: e.CreatedAt.Unix(),
		}
	}

	cfg := compaction.DefaultSummarizationConfig()
	cfg.ReserveTokens = targetTokens

	summary, err := compaction.SummarizeInStages(ctx, messages, c, cfg)
	if err != nil {
		return models.TurnEntry{}, err
	}
	return models.TurnEntry{
		Role:      models.RoleSystem,
		Content:   summary,
		IsSummary: true,
		CreatedAt: time.Now(),
	}, nil
}

// GenerateSummary implements compaction.Summarizer, the seam
// SummarizeInStages calls back into for each chunk and for the final
// merge pass.
func (c routerCompactor) GenerateSummary(ctx context.Context, messages []*compaction.Message, cfg *compaction.SummarizationConfig) (string, error) {
	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "[%s] %s\n", m.Role, m.Content)
	}
	instructions := "Summarize the following conversation preserving durable facts and decisions."
	if cfg.CustomInstructions != "" {
		instructions = cfg.CustomInstructions
	}
	req := router.CompletionRequest{
		System:    fmt.Sprintf("%s Limit the summary to at most %d tokens.", instructions, cfg.ReserveTokens),
		Messages:  []router.Message{{Role: models.RoleUser, Content: sb.String()}},
		MaxTokens: cfg.ReserveTokens,
	}
	resp, err := c.rt.Complete(ctx, c.skill, router.RoleObserver, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// runtimeState implements heartbeat.SnapshotSource: the small slice of
// observable state the periodic tick folds into each HealthSnapshot.
type runtimeState struct {
	started        time.Time
	executor       boundary.Executor
	registry       *toolregistry.Registry
	store          *memorystore.Store
	daily          *budget.Daily
	sessionLimit   uint64
	activeSessions atomic.Int64
	lastError      atomic.Value // string
}

func newRuntimeState(executor boundary.Executor, registry *toolregistry.Registry, store *memorystore.Store, daily *budget.Daily, sessionLimit uint64) *runtimeState {
	rs := &runtimeState{started: time.Now(), executor: executor, registry: registry, store: store, daily: daily, sessionLimit: sessionLimit}
	rs.lastError.Store("")
	return rs
}

func (rs *runtimeState) ExecutorMode() string { return string(rs.executor.Variant()) }

func (rs *runtimeState) ContainerAlive() bool {
	h, err := rs.executor.HealthCheck(context.Background())
	if err != nil {
		return false
	}
	return h.Alive
}

func (rs *runtimeState) ActiveSessions() int { return int(rs.activeSessions.Load()) }

func (rs *runtimeState) MemoryStoreSize() int64 {
	n, err := rs.store.Count(context.Background())
	if err != nil {
		return 0
	}
	return n
}

func (rs *runtimeState) ToolCounts() (core, dynamic int) {
	return len(rs.registry.CoreDescriptors()), len(rs.registry.DynamicDescriptors())
}

func (rs *runtimeState) BudgetToday() models.BudgetSummary {
	return models.BudgetSummary{
		SessionLimit: rs.sessionLimit,
		DailySpent:   rs.daily.Spent(),
		DailyLimit:   rs.daily.Limit(),
	}
}

func (rs *runtimeState) LastError() string {
	if v, ok := rs.lastError.Load().(string); ok {
		return v
	}
	return ""
}

func (rs *runtimeState) setLastError(err error) {
	if err != nil {
		rs.lastError.Store(err.Error())
	}
}
