// Package app is the composition root shared by the Lambda and CLI binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"support-router/internal/audit"
	"support-router/internal/classify"
	"support-router/internal/config"
	"support-router/internal/index"
	"support-router/internal/integrations/anthropic"
	"support-router/internal/integrations/embedder"
	"support-router/internal/integrations/kafka"
	"support-router/internal/integrations/openai"
	"support-router/internal/integrations/paramstore"
	"support-router/internal/integrations/postgres"
	"support-router/internal/repository"
	"support-router/internal/retrieval"
	"support-router/internal/router"
	"support-router/internal/session"
	"support-router/internal/store"
	"support-router/internal/tools"
	"support-router/internal/usecase"
	"support-router/internal/workers"
)

const (
	openAITokenKey    = "openai-token"
	anthropicTokenKey = "anthropic-token"
)

// KeySource resolves an API key on demand.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// App holds every long-lived component. Close releases them in reverse
// order of construction.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Customers *store.CustomerStore
	Support   *store.SupportStore
	Index     *index.Index
	Retriever *retrieval.Retriever
	Events    *audit.Emitter
	Tools     *tools.Toolbox
	Service   *usecase.SupportService

	closers []func() error
}

type options struct {
	embedder   index.Embedder
	backend    classify.Backend
	transcript session.Transcript
	sinks      []audit.Sink
}

type Option func(*options)

// WithEmbedder replaces the configured embedding backend.
func WithEmbedder(e index.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithBackend replaces the configured classification backend.
func WithBackend(b classify.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithTranscript replaces the configured session transcript.
func WithTranscript(t session.Transcript) Option {
	return func(o *options) { o.transcript = t }
}

// WithSinks adds audit sinks next to the configured ones.
func WithSinks(sinks ...audit.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// New opens the stores and index, builds the LLM backends and wires the
// support service. On error everything opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (a *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	cloud := &lazyAWS{}

	if a.Customers, err = store.OpenCustomerStore(cfg.Store.CustomerDBPath); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.onClose(a.Customers.Close)
	if a.Support, err = store.OpenSupportStore(cfg.Store.SupportDBPath, cfg.AccountID); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.onClose(a.Support.Close)

	if a.Events, err = a.buildEvents(ctx, cfg.Audit, o.sinks); err != nil {
		return nil, err
	}

	emb := o.embedder
	if emb == nil {
		if emb, err = buildEmbedder(ctx, cfg, cloud, logger); err != nil {
			return nil, err
		}
	}
	if a.Index, err = index.Open(cfg.Index.Path, emb,
		index.WithCollection(cfg.Index.Collection),
		index.WithBatchSize(cfg.Index.BatchSize),
		index.WithConcurrency(cfg.Index.Concurrency),
		index.WithLogger(logger),
	); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.onClose(a.Index.Close)

	if a.Retriever, err = retrieval.New(a.Index, a.Events,
		retrieval.WithTopK(cfg.Retrieval.TopK),
		retrieval.WithThreshold(cfg.Retrieval.Threshold),
		retrieval.WithLogger(logger),
	); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if a.Tools, err = tools.New(a.Customers, a.Support, a.Retriever, a.Events, logger); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	backend := o.backend
	if backend == nil {
		if backend, err = buildBackend(ctx, cfg.LLM, cloud); err != nil {
			return nil, err
		}
	}
	classifier, err := classify.New(backend, a.Support, a.Events,
		classify.WithMaxAttempts(cfg.LLM.MaxAttempts),
		classify.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	team, err := buildTeam(a.Tools)
	if err != nil {
		return nil, err
	}
	supervisor, err := router.NewSupervisor(classifier, team, a.Tools, a.Support, a.Events, logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	transcript := o.transcript
	if transcript == nil {
		if transcript, err = buildTranscript(ctx, cfg.Session, a.Support, cloud); err != nil {
			return nil, err
		}
	}
	sessions, err := session.NewManager(transcript, cfg.Session.HistoryLimit,
		session.WithIdleCache(cfg.Session.IdleSessions, cfg.Session.IdleTTL))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if a.Service, err = usecase.NewSupportService(supervisor, sessions, a.Support, cfg.Session.MaxMessageLen, cfg.Session.MaxTurns); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return a, nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases every component; it reports all failures.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Reindex rebuilds the embedding index from the support store's articles.
func (a *App) Reindex(ctx context.Context) (int, error) {
	articles, err := a.Support.Articles(ctx)
	if err != nil {
		return 0, fmt.Errorf("app: Reindex: %w", err)
	}
	n, err := a.Index.Reindex(ctx, retrieval.Documents(articles))
	if err != nil {
		return 0, fmt.Errorf("app: Reindex: %w", err)
	}
	a.Logger.Info("index rebuilt", "collection", a.Index.Collection(), "documents", n)
	return n, nil
}

// Seed loads a YAML fixture into both stores.
func (a *App) Seed(ctx context.Context, path string) (int, error) {
	f, err := store.LoadFixture(path)
	if err != nil {
		return 0, fmt.Errorf("app: Seed: %w", err)
	}
	if err := a.Customers.Seed(ctx, f); err != nil {
		return 0, fmt.Errorf("app: Seed: %w", err)
	}
	n, err := a.Support.SeedArticles(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("app: Seed: %w", err)
	}
	return n, nil
}

func (a *App) buildEvents(ctx context.Context, cfg config.AuditConfig, extra []audit.Sink) (*audit.Emitter, error) {
	sinks := []audit.Sink{audit.LogSink{Logger: a.Logger}}
	if len(cfg.KafkaBrokers) > 0 {
		p, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.onClose(p.Close)
		sinks = append(sinks, p)
	}
	if cfg.PostgresDSN != "" {
		pg, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.onClose(func() error { pg.Close(); return nil })
		sinks = append(sinks, pg)
	}
	sinks = append(sinks, extra...)
	return audit.NewEmitter(a.Logger, sinks...), nil
}

func buildTeam(tb *tools.Toolbox) ([]workers.Worker, error) {
	account, err := workers.NewAccountWorker(tb)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	action, err := workers.NewActionWorker(tb)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	knowledge, err := workers.NewKnowledgeWorker(tb)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return []workers.Worker{account, action, knowledge}, nil
}

func buildEmbedder(ctx context.Context, cfg config.Config, cloud *lazyAWS, logger *slog.Logger) (*embedder.Embedder, error) {
	ec := embedder.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.LLM.BaseURL,
		OllamaHost: cfg.Embedding.OllamaHost,
	}
	if ec.Provider == embedder.ProviderOpenAI {
		keys, err := keySource(ctx, cfg.LLM.ParamPrefix, openAITokenKey, cfg.LLM.OpenAIAPIKey, cloud)
		if err != nil {
			return nil, err
		}
		if ec.OpenAIKey, err = keys.APIKey(ctx); err != nil {
			return nil, fmt.Errorf("app: resolve embedding key: %w", err)
		}
	}
	e, err := embedder.New(ec, logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return e, nil
}

func buildBackend(ctx context.Context, cfg config.LLMConfig, cloud *lazyAWS) (classify.Backend, error) {
	switch cfg.Provider {
	case "anthropic":
		keys, err := keySource(ctx, cfg.ParamPrefix, anthropicTokenKey, cfg.AnthropicAPIKey, cloud)
		if err != nil {
			return nil, err
		}
		c, err := anthropic.NewClient(keys, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return c, nil
	default:
		keys, err := keySource(ctx, cfg.ParamPrefix, openAITokenKey, cfg.OpenAIAPIKey, cloud)
		if err != nil {
			return nil, err
		}
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err := openai.NewClient(keys, opts...)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		b, err := classify.NewOpenAIBackend(client, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return b, nil
	}
}

// keySource reads the key from SSM when a parameter prefix is configured and
// otherwise uses the static key.
func keySource(ctx context.Context, prefix, key, static string, cloud *lazyAWS) (KeySource, error) {
	if prefix == "" {
		return openai.StaticKey(static), nil
	}
	cfg, err := cloud.config(ctx)
	if err != nil {
		return nil, err
	}
	params, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	ts, err := paramstore.NewTokenSource(params, paramstore.TokenName(prefix, key))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return ts, nil
}

func buildTranscript(ctx context.Context, cfg config.SessionConfig, support *store.SupportStore, cloud *lazyAWS) (session.Transcript, error) {
	if cfg.Backend == "dynamodb" {
		awsCfg, err := cloud.config(ctx)
		if err != nil {
			return nil, err
		}
		c, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return c, nil
	}
	t, err := session.NewStoreTranscript(support)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return t, nil
}

// lazyAWS loads the default AWS configuration once, on first use.
type lazyAWS struct {
	once sync.Once
	cfg  aws.Config
	err  error
}

func (l *lazyAWS) config(ctx context.Context) (aws.Config, error) {
	l.once.Do(func() {
		l.cfg, l.err = awsconfig.LoadDefaultConfig(ctx)
		if l.err != nil {
			l.err = fmt.Errorf("app: load AWS config: %w", l.err)
		}
	})
	return l.cfg, l.err
}
