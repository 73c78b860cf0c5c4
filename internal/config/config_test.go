package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"CONFIG_PATH", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OLLAMA_HOST"} {
		t.Setenv(key, "")
	}

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 3, cfg.Retrieval.TopK)
	require.InDelta(t, 0.7, cfg.Retrieval.Threshold, 1e-9)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
retrieval:
  top_k: 5
  threshold: 0.6
llm:
  provider: anthropic
  model: claude-3-5-haiku-latest
audit:
  kafka_brokers: ["a:9092"]
`)
	t.Setenv("SUPPORT_TOP_K", "4")
	t.Setenv("SUPPORT_AUDIT_KAFKA_BROKERS", "b:9092, c:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Retrieval.TopK)
	require.InDelta(t, 0.6, cfg.Retrieval.Threshold, 1e-9)
	require.Equal(t, "anthropic", cfg.LLM.Provider)
	require.Equal(t, "claude-3-5-haiku-latest", cfg.LLM.Model)
	require.Equal(t, []string{"b:9092", "c:9092"}, cfg.Audit.KafkaBrokers)
	require.Equal(t, "data/cultpass.db", cfg.Store.CustomerDBPath)
}

func TestLoad_SessionCacheAndIndexConcurrency(t *testing.T) {
	path := writeConfig(t, `
index:
  concurrency: 8
session:
  idle_sessions: 50
  idle_ttl: 5m
`)
	t.Setenv("SUPPORT_IDLE_TTL", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Index.Concurrency)
	require.Equal(t, 50, cfg.Session.IdleSessions)
	require.Equal(t, 90*time.Second, cfg.Session.IdleTTL)

	t.Setenv("SUPPORT_IDLE_TTL", "soon")
	_, err = Load(path)
	require.ErrorContains(t, err, "SUPPORT_IDLE_TTL")
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidEnvInt(t *testing.T) {
	path := writeConfig(t, "account_id: cultpass\n")
	t.Setenv("SUPPORT_MAX_TURNS", "many")
	_, err := Load(path)
	require.ErrorContains(t, err, "SUPPORT_MAX_TURNS")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Retrieval.Threshold = 1.5
	cfg.Session.Backend = "dynamodb"
	cfg.LLM.Provider = "bedrock"
	cfg.Index.Concurrency = 0
	cfg.Session.IdleTTL = 0

	err := cfg.Validate()
	require.ErrorContains(t, err, "retrieval.threshold")
	require.ErrorContains(t, err, "session.table")
	require.ErrorContains(t, err, "llm.provider")
	require.ErrorContains(t, err, "index.concurrency")
	require.ErrorContains(t, err, "session.idle_ttl")
}
