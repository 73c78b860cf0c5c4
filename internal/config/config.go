package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AccountID string          `yaml:"account_id"`
	Store     StoreConfig     `yaml:"store"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Session   SessionConfig   `yaml:"session"`
	Audit     AuditConfig     `yaml:"audit"`
	Log       LogConfig       `yaml:"log"`
}

type StoreConfig struct {
	CustomerDBPath string `yaml:"customer_db_path"`
	SupportDBPath  string `yaml:"support_db_path"`
}

type IndexConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	BatchSize  int    `yaml:"batch_size"`
	// Concurrency bounds parallel embedding batches during a reindex.
	Concurrency int    `yaml:"concurrency"`
	Schedule    string `yaml:"schedule"`
}

type RetrievalConfig struct {
	TopK      int     `yaml:"top_k"`
	Threshold float64 `yaml:"threshold"`
}

type LLMConfig struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	BaseURL         string `yaml:"base_url"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	ParamPrefix     string `yaml:"param_prefix"`
	MaxAttempts     int    `yaml:"max_attempts"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	OllamaHost string `yaml:"ollama_host"`
}

type SessionConfig struct {
	Backend       string `yaml:"backend"`
	Table         string `yaml:"table"`
	HistoryLimit  int    `yaml:"history_limit"`
	MaxMessageLen int    `yaml:"max_message_length"`
	MaxTurns      int    `yaml:"max_turns"`
	// IdleSessions and IdleTTL bound the released sessions kept in memory.
	IdleSessions int           `yaml:"idle_sessions"`
	IdleTTL      time.Duration `yaml:"idle_ttl"`
}

type AuditConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	PostgresDSN  string   `yaml:"postgres_dsn"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		AccountID: "cultpass",
		Store: StoreConfig{
			CustomerDBPath: "data/cultpass.db",
			SupportDBPath:  "data/udahub.db",
		},
		Index: IndexConfig{
			Path:        "data/index.db",
			Collection:  "udahub_knowledge",
			BatchSize:   16,
			Concurrency: 4,
		},
		Retrieval: RetrievalConfig{
			TopK:      3,
			Threshold: 0.7,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			MaxAttempts: 2,
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		Session: SessionConfig{
			Backend:       "sqlite",
			HistoryLimit:  20,
			MaxMessageLen: 2000,
			IdleSessions:  1024,
			IdleTTL:       30 * time.Minute,
		},
		Audit: AuditConfig{
			KafkaTopic: "support-audit",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load layers defaults, the YAML file and environment overrides, then
// validates the result. An empty path falls back to $CONFIG_PATH and then
// ./config.yaml; a missing default file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			path, explicit = envPath, true
		} else {
			path = "config.yaml"
		}
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envOverride(&cfg.AccountID, "SUPPORT_ACCOUNT_ID")
	envOverride(&cfg.Store.CustomerDBPath, "SUPPORT_CUSTOMER_DB")
	envOverride(&cfg.Store.SupportDBPath, "SUPPORT_SUPPORT_DB")
	envOverride(&cfg.Index.Path, "SUPPORT_INDEX_PATH")
	envOverride(&cfg.Index.Collection, "SUPPORT_INDEX_COLLECTION")
	envOverride(&cfg.Index.Schedule, "SUPPORT_INDEX_SCHEDULE")
	envOverride(&cfg.LLM.Provider, "SUPPORT_LLM_PROVIDER")
	envOverride(&cfg.LLM.Model, "SUPPORT_LLM_MODEL")
	envOverride(&cfg.LLM.BaseURL, "SUPPORT_LLM_BASE_URL")
	envOverride(&cfg.LLM.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLM.ParamPrefix, "SUPPORT_PARAM_PREFIX")
	envOverride(&cfg.Embedding.Provider, "SUPPORT_EMBEDDING_PROVIDER")
	envOverride(&cfg.Embedding.Model, "SUPPORT_EMBEDDING_MODEL")
	envOverride(&cfg.Embedding.OllamaHost, "OLLAMA_HOST")
	envOverride(&cfg.Session.Backend, "SUPPORT_SESSION_BACKEND")
	envOverride(&cfg.Session.Table, "SUPPORT_SESSION_TABLE")
	envOverride(&cfg.Audit.KafkaTopic, "SUPPORT_AUDIT_TOPIC")
	envOverride(&cfg.Audit.PostgresDSN, "SUPPORT_AUDIT_POSTGRES_DSN")
	envOverride(&cfg.Log.Level, "SUPPORT_LOG_LEVEL")
	envOverride(&cfg.Log.File, "SUPPORT_LOG_FILE")

	if brokers := os.Getenv("SUPPORT_AUDIT_KAFKA_BROKERS"); brokers != "" {
		cfg.Audit.KafkaBrokers = nil
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Audit.KafkaBrokers = append(cfg.Audit.KafkaBrokers, b)
			}
		}
	}

	return errors.Join(
		envOverrideInt(&cfg.Index.BatchSize, "SUPPORT_INDEX_BATCH_SIZE"),
		envOverrideInt(&cfg.Index.Concurrency, "SUPPORT_INDEX_CONCURRENCY"),
		envOverrideInt(&cfg.Retrieval.TopK, "SUPPORT_TOP_K"),
		envOverrideFloat(&cfg.Retrieval.Threshold, "SUPPORT_CONFIDENCE_THRESHOLD"),
		envOverrideInt(&cfg.LLM.MaxAttempts, "SUPPORT_LLM_MAX_ATTEMPTS"),
		envOverrideInt(&cfg.Session.HistoryLimit, "SUPPORT_HISTORY_LIMIT"),
		envOverrideInt(&cfg.Session.MaxMessageLen, "SUPPORT_MAX_MESSAGE_LENGTH"),
		envOverrideInt(&cfg.Session.MaxTurns, "SUPPORT_MAX_TURNS"),
		envOverrideInt(&cfg.Session.IdleSessions, "SUPPORT_IDLE_SESSIONS"),
		envOverrideDuration(&cfg.Session.IdleTTL, "SUPPORT_IDLE_TTL"),
	)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AccountID) == "" {
		errs = append(errs, errors.New("config: account_id must not be empty"))
	}
	if c.Retrieval.TopK < 1 {
		errs = append(errs, fmt.Errorf("config: retrieval.top_k must be >= 1, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		errs = append(errs, fmt.Errorf("config: retrieval.threshold must be between 0 and 1, got %v", c.Retrieval.Threshold))
	}
	if c.Index.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("config: index.batch_size must be >= 1, got %d", c.Index.BatchSize))
	}
	if c.Index.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("config: index.concurrency must be >= 1, got %d", c.Index.Concurrency))
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("config: llm.max_attempts must be >= 1, got %d", c.LLM.MaxAttempts))
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("config: llm.provider must be 'openai' or 'anthropic', got %q", c.LLM.Provider))
	}
	switch c.Embedding.Provider {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("config: embedding.provider must be 'openai' or 'ollama', got %q", c.Embedding.Provider))
	}
	switch c.Session.Backend {
	case "sqlite":
	case "dynamodb":
		if strings.TrimSpace(c.Session.Table) == "" {
			errs = append(errs, errors.New("config: session.table is required when session.backend=dynamodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: session.backend must be 'sqlite' or 'dynamodb', got %q", c.Session.Backend))
	}
	if c.Session.MaxMessageLen < 1 {
		errs = append(errs, fmt.Errorf("config: session.max_message_length must be >= 1, got %d", c.Session.MaxMessageLen))
	}
	if c.Session.IdleSessions < 1 {
		errs = append(errs, fmt.Errorf("config: session.idle_sessions must be >= 1, got %d", c.Session.IdleSessions))
	}
	if c.Session.IdleTTL <= 0 {
		errs = append(errs, fmt.Errorf("config: session.idle_ttl must be positive, got %s", c.Session.IdleTTL))
	}
	if c.Session.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("config: session.max_turns must be >= 0, got %d", c.Session.MaxTurns))
	}
	return errors.Join(errs...)
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	val := os.Getenv(envKey)
	if val == "" {
		return nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("config: invalid %s %q: %w", envKey, val, err)
	}
	*field = parsed
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	val := os.Getenv(envKey)
	if val == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("config: invalid %s %q: %w", envKey, val, err)
	}
	*field = parsed
	return nil
}

func envOverrideDuration(field *time.Duration, envKey string) error {
	val := os.Getenv(envKey)
	if val == "" {
		return nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("config: invalid %s %q: %w", envKey, val, err)
	}
	*field = parsed
	return nil
}
