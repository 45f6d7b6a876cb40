// Package memorystore implements the durable memory store: facts,
// procedures, episodes, and skills, plus the outbound trust ledger, backed
// by SQLite with an FTS5 index kept in sync by triggers and an optional
// vector-similarity pass fused with full-text rank via reciprocal-rank
// fusion. All writes are serialized through a single-writer actor reading
// a bounded channel, matching history.Store's discipline for the
// conversation log; reads use their own connections and run concurrently
// with writes.
package memorystore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/wintermute-run/wintermute/internal/backoff"
	"github.com/wintermute-run/wintermute/pkg/models"
)

// writeMaxAttempts bounds the writer actor's retries on one operation
// before the failure is treated as durable and handed to onFatal.
const writeMaxAttempts = 3

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	content TEXT NOT NULL,
	status TEXT NOT NULL,
	source TEXT NOT NULL,
	embedding BLOB,
	promoted_from TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	content, content='memories', content_rowid='rowid'
);
CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;
CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, content) VALUES('delete', old.rowid, old.content);
END;
CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, content) VALUES('delete', old.rowid, old.content);
	INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;
CREATE TABLE IF NOT EXISTS trust_domains (
	domain TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// rrfK is the reciprocal-rank-fusion damping constant, the usual default
// from the RRF literature (k=60): it keeps a rank-1 hit from dominating a
// fused score outright while still rewarding top placement in either list.
const rrfK = 60

// Embedder is the subset of embeddings.Provider the store needs for
// query-time vector similarity. A nil Embedder degrades Search to
// FTS-only ranking, per the documented open-question decision.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type writeOp struct {
	fn   func(*sql.DB) error
	done chan error
}

// Store is the memory store: SQLite-backed, single-writer for mutation,
// concurrent-reader for search.
type Store struct {
	db       *sql.DB
	embedder Embedder
	ops      chan writeOp
	done     chan struct{}
	logger   *slog.Logger
	onFatal  func(error)
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithEmbedder attaches an embedding provider for vector-similarity
// search. Omit it to run FTS-only.
func WithEmbedder(e Embedder) Option {
	return func(s *Store) { s.embedder = e }
}

// WithFatalHandler registers a callback invoked once a write operation has
// failed writeMaxAttempts times in a row. Callers typically treat this as
// process-fatal and let the supervisor restart the runtime.
func WithFatalHandler(fn func(error)) Option {
	return func(s *Store) { s.onFatal = fn }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens (creating if needed) a memory database at path and starts its
// writer actor. Use ":memory:" for an ephemeral, process-local store.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memorystore: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memorystore: init schema: %w", err)
	}
	s := &Store{
		db:     db,
		ops:    make(chan writeOp, 64),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "memorystore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.writeLoop()
	return s, nil
}

func (s *Store) writeLoop() {
	for op := range s.ops {
		result, err := backoff.RetryWithBackoff(context.Background(), backoff.DefaultPolicy(), writeMaxAttempts,
			func(attempt int) (struct{}, error) { return struct{}{}, op.fn(s.db) })
		_ = result
		if err != nil {
			s.logger.Error("memorystore: write failed after retries", "attempts", writeMaxAttempts, "error", err)
			if s.onFatal != nil {
				s.onFatal(fmt.Errorf("memorystore: durable write failure: %w", err))
			}
		}
		op.done <- err
	}
	close(s.done)
}

// submit enqueues fn on the single-writer actor and blocks until it has
// run, or ctx is canceled first.
func (s *Store) submit(ctx context.Context, fn func(*sql.DB) error) error {
	op := writeOp{fn: fn, done: make(chan error, 1)}
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

// Save inserts or replaces a memory record. A zero ID is assigned a new
// uuid; zero timestamps are stamped with the current time.
func (s *Store) Save(ctx context.Context, m *models.Memory) error {
	if m == nil {
		return fmt.Errorf("memorystore: nil memory")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.Status == "" {
		m.Status = models.MemoryActive
	}
	return s.submit(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO memories (id, kind, content, status, source, embedding, promoted_from, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				kind=excluded.kind, content=excluded.content, status=excluded.status,
				source=excluded.source, embedding=excluded.embedding,
				promoted_from=excluded.promoted_from, updated_at=excluded.updated_at`,
			m.ID, string(m.Kind), m.Content, string(m.Status), string(m.Source),
			encodeEmbedding(m.Embedding), strings.Join(m.PromotedFrom, ","),
			m.CreatedAt.Format(time.RFC3339Nano), m.UpdatedAt.Format(time.RFC3339Nano),
		)
		return err
	})
}

// validTransition enforces the status graph pending -> active -> archived.
// A no-op transition (same status) is always allowed.
func validTransition(from, to models.MemoryStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case models.MemoryPending:
		return to == models.MemoryActive
	case models.MemoryActive:
		return to == models.MemoryArchived
	default:
		return false
	}
}

// UpdateStatus transitions a memory's status, recording promotedFrom when
// promoting pending -> active. Returns an error for a record that does not
// exist or for an illegal transition.
func (s *Store) UpdateStatus(ctx context.Context, id string, newStatus models.MemoryStatus, promotedFrom []string) error {
	return s.submit(ctx, func(db *sql.DB) error {
		var current string
		if err := db.QueryRowContext(ctx, `SELECT status FROM memories WHERE id = ?`, id).Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("memorystore: memory %s not found", id)
			}
			return err
		}
		if !validTransition(models.MemoryStatus(current), newStatus) {
			return fmt.Errorf("memorystore: illegal status transition %s -> %s", current, newStatus)
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		if newStatus == models.MemoryActive && len(promotedFrom) > 0 {
			_, err := db.ExecContext(ctx,
				`UPDATE memories SET status = ?, promoted_from = ?, updated_at = ? WHERE id = ?`,
				string(newStatus), strings.Join(promotedFrom, ","), now, id)
			return err
		}
		_, err := db.ExecContext(ctx, `UPDATE memories SET status = ?, updated_at = ? WHERE id = ?`, string(newStatus), now, id)
		return err
	})
}

// TrustDomain records a domain's approval in the trust ledger. Upserting
// keeps a later call idempotent: re-approving an already-trusted domain
// does not error, it just refreshes the source/timestamp.
func (s *Store) TrustDomain(ctx context.Context, domain, source string) error {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return fmt.Errorf("memorystore: empty domain")
	}
	return s.submit(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO trust_domains (domain, source, created_at) VALUES (?, ?, ?)
			 ON CONFLICT(domain) DO UPDATE SET source=excluded.source, created_at=excluded.created_at`,
			domain, source, time.Now().UTC().Format(time.RFC3339Nano))
		return err
	})
}

// TrustedDomains returns every entry in the trust ledger.
func (s *Store) TrustedDomains(ctx context.Context) ([]models.TrustedDomain, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain, source, created_at FROM trust_domains ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("memorystore: list trust domains: %w", err)
	}
	defer rows.Close()

	var out []models.TrustedDomain
	for rows.Next() {
		var d models.TrustedDomain
		var createdAt string
		if err := rows.Scan(&d.Domain, &d.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("memorystore: scan trust domain: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			d.CreatedAt = ts
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Trusted returns the trust ledger as a lowercase domain set, ready to
// populate policy.TrustLedgerSnapshot.Trusted.
func (s *Store) Trusted(ctx context.Context) (map[string]bool, error) {
	domains, err := s.TrustedDomains(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(domains))
	for _, d := range domains {
		out[d.Domain] = true
	}
	return out, nil
}

// ftsRanked holds one full-text candidate and its 1-based rank.
type ftsRanked struct {
	id   string
	rank int
}

// Search returns the top-k memories for query, fusing full-text and
// (when an embedder is configured) vector-similarity rankings via
// reciprocal-rank fusion. An embedder that errors at query time degrades
// the search to FTS-only rather than failing the turn.
func (s *Store) Search(ctx context.Context, query string, k int) ([]models.MemorySearchResult, error) {
	if k <= 0 {
		k = 5
	}
	candidateLimit := k * 4
	if candidateLimit < 20 {
		candidateLimit = 20
	}

	ftsRanks, err := s.ftsSearch(ctx, query, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("memorystore: fts search: %w", err)
	}

	var vecRanks []ftsRanked
	if s.embedder != nil {
		vecRanks, err = s.vectorSearch(ctx, query, candidateLimit)
		if err != nil {
			s.logger.Warn("embedder unavailable, degrading to fts-only search", "error", err, "event", "memory_search_degraded")
			vecRanks = nil
		}
	}

	fused := fuse(ftsRanks, vecRanks)
	if len(fused) > k {
		fused = fused[:k]
	}

	out := make([]models.MemorySearchResult, 0, len(fused))
	for _, f := range fused {
		m, err := s.get(ctx, f.id)
		if err != nil {
			continue
		}
		out = append(out, models.MemorySearchResult{Memory: m, Score: f.score})
	}
	return out, nil
}

func (s *Store) ftsSearch(ctx context.Context, query string, limit int) ([]ftsRanked, error) {
	phrase := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id FROM memories_fts f
		 JOIN memories m ON m.rowid = f.rowid
		 WHERE memories_fts MATCH ?
		 ORDER BY bm25(memories_fts) LIMIT ?`, phrase, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ftsRanked
	rank := 1
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, ftsRanked{id: id, rank: rank})
		rank++
	}
	return out, rows.Err()
}

func (s *Store) vectorSearch(ctx context.Context, query string, limit int) ([]ftsRanked, error) {
	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM memories WHERE embedding IS NOT NULL AND status != ?`, string(models.MemoryArchived))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		id  string
		sim float64
	}
	var all []scored
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		vec := decodeEmbedding(blob)
		if len(vec) == 0 {
			continue
		}
		all = append(all, scored{id: id, sim: cosineSimilarity(qvec, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].sim > all[j].sim })
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]ftsRanked, len(all))
	for i, a := range all {
		out[i] = ftsRanked{id: a.id, rank: i + 1}
	}
	return out, nil
}

// fusedResult is one candidate's combined reciprocal-rank-fusion score.
type fusedResult struct {
	id    string
	score float64
}

// fuse combines two ranked lists with reciprocal-rank fusion, returning
// candidates sorted by descending fused score. A candidate present in
// only one list is scored from that list alone.
func fuse(a, b []ftsRanked) []fusedResult {
	scores := make(map[string]float64)
	order := make([]string, 0, len(a)+len(b))
	add := func(list []ftsRanked) {
		for _, r := range list {
			if _, seen := scores[r.id]; !seen {
				order = append(order, r.id)
			}
			scores[r.id] += 1.0 / float64(rrfK+r.rank)
		}
	}
	add(a)
	add(b)

	out := make([]fusedResult, 0, len(order))
	for _, id := range order {
		out = append(out, fusedResult{id: id, score: scores[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func (s *Store) get(ctx context.Context, id string) (*models.Memory, error) {
	var m models.Memory
	var kind, status, source, promoted, createdAt, updatedAt string
	var embedding []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, content, status, source, embedding, promoted_from, created_at, updated_at
		 FROM memories WHERE id = ?`, id,
	).Scan(&m.ID, &kind, &m.Content, &status, &source, &embedding, &promoted, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("memorystore: get %s: %w", id, err)
	}
	m.Kind = models.MemoryKind(kind)
	m.Status = models.MemoryStatus(status)
	m.Source = models.MemorySource(source)
	m.Embedding = decodeEmbedding(embedding)
	if promoted != "" {
		m.PromotedFrom = strings.Split(promoted, ",")
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		m.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		m.UpdatedAt = ts
	}
	return &m, nil
}

// Count returns the number of non-archived memory records, used by the
// health snapshot's memory_store_size field.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE status != ?`, string(models.MemoryArchived)).Scan(&n)
	return n, err
}

// Close stops the writer actor and closes the underlying database handle.
func (s *Store) Close() error {
	close(s.ops)
	<-s.done
	return s.db.Close()
}

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
