package tools

import (
	"context"
	"strings"

	"support-router/internal/domain"
)

const (
	ToolSearchKnowledge = "search_knowledge"
	ToolGetArticle      = "get_article"
)

// Knowledge is the search_knowledge payload. Articles holds every result;
// HasConfidentMatch is advisory.
type Knowledge struct {
	Articles          []domain.RetrievalResult `json:"articles"`
	HasConfidentMatch bool                     `json:"has_confident_match"`
	Message           string                   `json:"message,omitempty"`
}

func (tb *Toolbox) SearchKnowledge(ctx context.Context, query string, topK int) Result[Knowledge] {
	query = strings.TrimSpace(query)
	if query == "" {
		return invalid[Knowledge](ToolSearchKnowledge, "A search query is required")
	}
	results, confident, err := tb.search.SearchAboveThreshold(ctx, query, topK)
	if err != nil {
		return fail[Knowledge](ctx, tb, ToolSearchKnowledge, err, "Knowledge base is not available: %v", err)
	}
	out := Knowledge{Articles: results, HasConfidentMatch: confident}
	switch {
	case len(results) == 0:
		out.Articles = []domain.RetrievalResult{}
		out.Message = "No matching articles found. Consider escalating to human support."
	case !confident:
		out.Message = "No high-confidence matches found. The results below may not fully address the customer's question. Consider escalating to human support."
	}
	return ok(ToolSearchKnowledge, out)
}

func (tb *Toolbox) GetArticle(ctx context.Context, articleID string) Result[domain.Article] {
	a, err := tb.support.Article(ctx, articleID)
	if err != nil {
		return fail[domain.Article](ctx, tb, ToolGetArticle, err, "Article %s not found", articleID)
	}
	return ok(ToolGetArticle, a)
}
