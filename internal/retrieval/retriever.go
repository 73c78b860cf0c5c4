// Package retrieval scores knowledge-base matches and decides whether any
// of them is confident enough to answer from.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"support-router/internal/audit"
	"support-router/internal/domain"
	"support-router/internal/index"
)

const (
	DefaultTopK      = 3
	DefaultThreshold = 0.7
	maxLoggedQuery   = 100
)

// Index is the nearest-neighbour lookup the retriever scores.
type Index interface {
	Query(ctx context.Context, text string, k int) ([]index.Match, error)
}

type Retriever struct {
	idx       Index
	events    *audit.Emitter
	logger    *slog.Logger
	topK      int
	threshold float64
}

type Option func(*Retriever)

func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

func WithThreshold(t float64) Option {
	return func(r *Retriever) {
		if t >= 0 && t <= 1 {
			r.threshold = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(idx Index, events *audit.Emitter, opts ...Option) (*Retriever, error) {
	if idx == nil {
		return nil, errors.New("retrieval: index must not be nil")
	}
	r := &Retriever{
		idx:       idx,
		events:    events,
		logger:    slog.Default(),
		topK:      DefaultTopK,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Retriever) Threshold() float64 {
	return r.threshold
}

// Confidence maps a distance onto [0,1]: 1/(1+d) rounded to 4 decimals.
// Negative or NaN distances are treated as zero.
func Confidence(distance float64) float64 {
	if distance < 0 || math.IsNaN(distance) {
		distance = 0
	}
	return math.Round(1/(1+distance)*1e4) / 1e4
}

// Search returns up to topK results, nearest first. topK <= 0 uses the
// configured default.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]domain.RetrievalResult, error) {
	if topK <= 0 {
		topK = r.topK
	}
	start := time.Now()
	matches, err := r.idx.Query(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}

	results := make([]domain.RetrievalResult, 0, len(matches))
	for _, m := range matches {
		title := m.Metadata["title"]
		results = append(results, domain.RetrievalResult{
			ArticleID:  m.ID,
			Title:      title,
			Content:    strings.TrimPrefix(m.Document, title+"\n\n"),
			Tags:       m.Metadata["tags"],
			Confidence: Confidence(m.Distance),
		})
	}

	details := map[string]any{
		"query":          audit.Truncate(query, maxLoggedQuery),
		"results_count":  len(results),
		"top_confidence": nil,
	}
	if len(results) > 0 {
		details["top_confidence"] = results[0].Confidence
	}
	r.events.Emit(ctx, audit.Event{Agent: "knowledge", Action: "rag_search", Details: details})
	r.logger.Debug("knowledge search completed",
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

// SearchAboveThreshold returns every result along with whether at least one
// reaches the confidence threshold. Low-confidence results are kept.
func (r *Retriever) SearchAboveThreshold(ctx context.Context, query string, topK int) ([]domain.RetrievalResult, bool, error) {
	results, err := r.Search(ctx, query, topK)
	if err != nil {
		return nil, false, err
	}
	for _, res := range results {
		if res.Confidence >= r.threshold {
			return results, true, nil
		}
	}
	return results, false, nil
}

// Documents converts articles into index documents. The document text is the
// title and content separated by a blank line.
func Documents(articles []domain.Article) []index.Document {
	docs := make([]index.Document, 0, len(articles))
	for _, a := range articles {
		docs = append(docs, index.Document{
			ID:   a.ArticleID,
			Text: a.Title + "\n\n" + a.Content,
			Metadata: map[string]string{
				"article_id": a.ArticleID,
				"title":      a.Title,
				"tags":       a.Tags,
			},
		})
	}
	return docs
}
