package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"support-router/internal/domain"
	"support-router/internal/tools"
)

// KnowledgeTools is the read-only tool set of the knowledge worker.
type KnowledgeTools interface {
	SearchKnowledge(ctx context.Context, query string, topK int) tools.Result[tools.Knowledge]
	GetArticle(ctx context.Context, articleID string) tools.Result[domain.Article]
}

// KnowledgeWorker answers from help articles when a confident match exists
// and otherwise recommends escalation.
type KnowledgeWorker struct {
	tools KnowledgeTools
}

func NewKnowledgeWorker(t KnowledgeTools) (*KnowledgeWorker, error) {
	if t == nil {
		return nil, errors.New("workers: knowledge tools must not be nil")
	}
	return &KnowledgeWorker{tools: t}, nil
}

func (w *KnowledgeWorker) Name() Name { return Knowledge }

func (w *KnowledgeWorker) Handle(ctx context.Context, c Case) Outcome {
	out := Outcome{Worker: Knowledge, UserID: c.UserID}

	search := w.tools.SearchKnowledge(ctx, c.Message, 0)
	out.ToolsUsed = append(out.ToolsUsed, search.Tool)
	if !search.OK() {
		out.NeedsEscalation = true
		out.Text = "I'm having trouble reaching our help center right now, so I recommend connecting with our human support team."
		return out
	}

	kb := search.Value
	if len(kb.Articles) == 0 {
		out.NeedsEscalation = true
		out.Text = "I couldn't find an answer to that in our help center. I recommend escalating this to our human support team, who can look into it for you."
		return out
	}
	if !kb.HasConfidentMatch {
		out.NeedsEscalation = true
		titles := make([]string, 0, len(kb.Articles))
		for _, a := range kb.Articles {
			titles = append(titles, fmt.Sprintf("%q (confidence %.2f)", a.Title, a.Confidence))
		}
		out.Text = "I couldn't find a definitive answer to your question. These articles might be related: " +
			strings.Join(titles, ", ") + ". I recommend escalating to our human support team for a precise answer."
		return out
	}

	top := kb.Articles[0]
	title, content := top.Title, top.Content
	article := w.tools.GetArticle(ctx, top.ArticleID)
	out.ToolsUsed = append(out.ToolsUsed, article.Tool)
	if article.OK() {
		title, content = article.Value.Title, article.Value.Content
	}

	out.Answered = true
	out.ArticlesUsed = []string{top.ArticleID}
	out.ResolutionType = domain.ResolutionKBArticle
	out.Summary = "Answered from article " + top.ArticleID
	out.Text = fmt.Sprintf("According to our help article %q: %s", title, strings.TrimSpace(content))
	return out
}
