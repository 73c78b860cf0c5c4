// Package embedder builds text embedders on top of langchaingo.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type Config struct {
	Provider   string
	Model      string
	OpenAIKey  string
	BaseURL    string
	OllamaHost string
}

// Embedder wraps a langchaingo embedder with count checks and timing logs.
type Embedder struct {
	model     embeddings.Embedder
	modelName string
	logger    *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		model embeddings.Embedder
		err   error
	)
	switch cfg.Provider {
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.OllamaHost != "" {
			opts = append(opts, ollama.WithServerURL(cfg.OllamaHost))
		}
		llm, ollamaErr := ollama.New(opts...)
		if ollamaErr != nil {
			return nil, fmt.Errorf("embedder: create ollama client: %w", ollamaErr)
		}
		model, err = embeddings.NewEmbedder(llm)

	case ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, errors.New("embedder: OpenAI API key required")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAIKey),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, openaiErr := openai.New(opts...)
		if openaiErr != nil {
			return nil, fmt.Errorf("embedder: create openai client: %w", openaiErr)
		}
		model, err = embeddings.NewEmbedder(llm)

	default:
		return nil, fmt.Errorf("embedder: unsupported provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("embedder: create %s embedder: %w", cfg.Provider, err)
	}
	return &Embedder{model: model, modelName: cfg.Model, logger: logger}, nil
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Warn("embedding failed", "model", e.modelName, "texts", len(texts), "error", err)
		return nil, fmt.Errorf("embedder: embed documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder: count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	e.logger.Debug("embedding complete", "model", e.modelName, "texts", len(texts), "duration_ms", time.Since(start).Milliseconds())
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.model.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Warn("query embedding failed", "model", e.modelName, "text_len", len(text), "error", err)
		return nil, fmt.Errorf("embedder: embed query: %w", err)
	}
	if len(v) == 0 {
		return nil, errors.New("embedder: no embedding returned")
	}
	return v, nil
}

func (e *Embedder) Model() string {
	return e.modelName
}
