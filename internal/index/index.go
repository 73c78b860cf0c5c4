// Package index is a persisted embedding index over help-center articles.
//
// Vectors live in SQLite next to their documents and are compared by brute
// force. Distances are squared Euclidean: lower is closer and zero means
// identical vectors.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"

	"support-router/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	dimension  INTEGER NOT NULL,
	doc_count  INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS vectors (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	document   TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	embedding  TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// Embedder turns text into vectors. langchaingo's embeddings.Embedder
// satisfies it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Document is one entry to index.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Match is a query hit, nearest first.
type Match struct {
	ID       string
	Distance float64
	Metadata map[string]string
	Document string
}

type Index struct {
	db          *sql.DB
	embedder    Embedder
	collection  string
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

type Option func(*Index)

func WithCollection(name string) Option {
	return func(x *Index) {
		if name = strings.TrimSpace(name); name != "" {
			x.collection = name
		}
	}
}

// WithBatchSize sets how many documents go to the embedder per call.
func WithBatchSize(n int) Option {
	return func(x *Index) {
		if n > 0 {
			x.batchSize = n
		}
	}
}

// WithConcurrency bounds the number of embedding calls in flight during
// Reindex.
func WithConcurrency(n int) Option {
	return func(x *Index) {
		if n > 0 {
			x.concurrency = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(x *Index) {
		if l != nil {
			x.logger = l
		}
	}
}

// Open opens the index database at path.
func Open(path string, embedder Embedder, opts ...Option) (*Index, error) {
	if embedder == nil {
		return nil, errors.New("index: embedder must not be nil")
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index: init schema: %w", err)
	}
	x := &Index{
		db:          db,
		embedder:    embedder,
		collection:  "udahub_knowledge",
		batchSize:   16,
		concurrency: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

func (x *Index) Close() error {
	return x.db.Close()
}

// Collection returns the collection name this index reads and writes.
func (x *Index) Collection() string {
	return x.collection
}

// Reindex drops the collection and rebuilds it from docs. Every document is
// embedded before the store is touched, so a failing embedder leaves the
// previous collection intact; the swap itself is a single transaction.
func (x *Index) Reindex(ctx context.Context, docs []Document) (int, error) {
	seen := make(map[string]struct{}, len(docs))
	texts := make([]string, len(docs))
	for i, d := range docs {
		if strings.TrimSpace(d.ID) == "" {
			return 0, fmt.Errorf("index: document %d: %w: id is required", i, domain.ErrInvalidArgument)
		}
		if _, dup := seen[d.ID]; dup {
			return 0, fmt.Errorf("index: %w: duplicate document id %q", domain.ErrInvalidArgument, d.ID)
		}
		seen[d.ID] = struct{}{}
		texts[i] = d.Text
	}

	start := time.Now()
	vectors, err := x.embedAll(ctx, texts)
	if err != nil {
		return 0, err
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return 0, fmt.Errorf("index: %w: embedding %d has dimension %d, want %d",
				domain.ErrBackendUnavailable, i, len(v), dim)
		}
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("index: begin: %w: %v", domain.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE collection = ?`, x.collection); err != nil {
		return 0, fmt.Errorf("index: drop vectors: %w: %v", domain.ErrPersistence, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collections (name, dimension, doc_count, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET dimension = excluded.dimension, doc_count = excluded.doc_count, created_at = excluded.created_at`,
		x.collection, dim, len(docs), time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("index: create collection: %w: %v", domain.ErrPersistence, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vectors (collection, id, document, metadata, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("index: prepare insert: %w: %v", domain.ErrPersistence, err)
	}
	defer stmt.Close()

	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return 0, fmt.Errorf("index: marshal metadata for %q: %w", d.ID, err)
		}
		vec, err := json.Marshal(vectors[i])
		if err != nil {
			return 0, fmt.Errorf("index: marshal embedding for %q: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, x.collection, d.ID, d.Text, string(meta), string(vec)); err != nil {
			return 0, fmt.Errorf("index: insert %q: %w: %v", d.ID, domain.ErrPersistence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("index: commit: %w: %v", domain.ErrPersistence, err)
	}

	x.logger.Debug("index rebuilt",
		"collection", x.collection,
		"documents", len(docs),
		"dimension", dim,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return len(docs), nil
}

// embedAll embeds texts in batches with bounded parallelism, preserving order.
func (x *Index) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)

	for lo := 0; lo < len(texts); lo += x.batchSize {
		hi := min(lo+x.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := x.embedder.EmbedDocuments(gctx, texts[lo:hi])
			if err != nil {
				return fmt.Errorf("index: embed documents %d-%d: %w: %w", lo, hi-1, domain.ErrBackendUnavailable, err)
			}
			if len(vecs) != hi-lo {
				return fmt.Errorf("index: embed documents %d-%d: %w: got %d vectors",
					lo, hi-1, domain.ErrBackendUnavailable, len(vecs))
			}
			copy(out[lo:hi], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Query returns up to k documents nearest to text, ordered by ascending
// distance with ties broken by id. Querying a collection that was never
// built fails with domain.ErrNotFound; an empty collection yields no matches.
func (x *Index) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("index: %w: k must be positive, got %d", domain.ErrInvalidArgument, k)
	}

	rows, err := x.db.QueryContext(ctx,
		`SELECT c.dimension, v.id, v.document, v.metadata, v.embedding
		 FROM collections c LEFT JOIN vectors v ON v.collection = c.name
		 WHERE c.name = ?`, x.collection)
	if err != nil {
		return nil, fmt.Errorf("index: query: %w: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	type stored struct {
		match Match
		vec   []float32
	}
	var (
		found   bool
		dim     int
		entries []stored
	)
	for rows.Next() {
		var id, doc, meta, vec sql.NullString
		if err := rows.Scan(&dim, &id, &doc, &meta, &vec); err != nil {
			return nil, fmt.Errorf("index: scan: %w: %v", domain.ErrPersistence, err)
		}
		found = true
		if !id.Valid {
			continue
		}
		e := stored{match: Match{ID: id.String, Document: doc.String}}
		if err := json.Unmarshal([]byte(meta.String), &e.match.Metadata); err != nil {
			return nil, fmt.Errorf("index: decode metadata for %q: %w", id.String, err)
		}
		if err := json.Unmarshal([]byte(vec.String), &e.vec); err != nil {
			return nil, fmt.Errorf("index: decode embedding for %q: %w", id.String, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: query: %w: %v", domain.ErrPersistence, err)
	}
	if !found {
		return nil, fmt.Errorf("index: collection %q %w", x.collection, domain.ErrNotFound)
	}
	if len(entries) == 0 {
		return []Match{}, nil
	}

	q, err := x.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w: %w", domain.ErrBackendUnavailable, err)
	}
	if len(q) != dim {
		return nil, fmt.Errorf("index: query embedding has dimension %d, collection has %d: %w",
			len(q), dim, domain.ErrInvalidState)
	}

	for i := range entries {
		entries[i].match.Distance = squaredL2(q, entries[i].vec)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].match.Distance != entries[j].match.Distance {
			return entries[i].match.Distance < entries[j].match.Distance
		}
		return entries[i].match.ID < entries[j].match.ID
	})
	if len(entries) > k {
		entries = entries[:k]
	}

	out := make([]Match, len(entries))
	for i, e := range entries {
		out[i] = e.match
	}
	return out, nil
}

// Count returns the number of documents in the collection.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, `SELECT doc_count FROM collections WHERE name = ?`, x.collection).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("index: collection %q %w", x.collection, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("index: count: %w: %v", domain.ErrPersistence, err)
	}
	return n, nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
