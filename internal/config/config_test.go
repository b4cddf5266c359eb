package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, time.Hour, cfg.Session.Timeout)
	assert.Equal(t, "memory", cfg.Vector.Provider)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
session:
  backend: redis
  timeout: 30m
  redis:
    addr: localhost:6379
vectorstore:
  provider: qdrant
  dimensions: 768
  qdrant:
    url: https://qdrant.example.com:6334
    collection: products
llm:
  chat_model: llama-3.3-70b-versatile
  temperature: 0.2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Session.Timeout)
	assert.Equal(t, "qdrant", cfg.Vector.Provider)
	assert.Equal(t, 768, cfg.Vector.Dimensions)
	require.NotNil(t, cfg.Vector.Qdrant)
	assert.Equal(t, "products", cfg.Vector.Qdrant.Collection)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-6)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VASTRA_ADDR", ":7777")
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("DATABASE_URL", "postgres://localhost/vastra")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, "gsk_test", cfg.LLM.APIKey)
	assert.Equal(t, "postgres://localhost/vastra", cfg.Catalog.DSN)
}

func TestValidateRejectsBadBackend(t *testing.T) {
	path := writeConfig(t, "session:\n  backend: etcd\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown session backend")
}

func TestValidateRedisNeedsAddr(t *testing.T) {
	path := writeConfig(t, "session:\n  backend: redis\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "no redis addr")
}

func TestValidateQdrantNeedsURL(t *testing.T) {
	path := writeConfig(t, "vectorstore:\n  provider: qdrant\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "no qdrant url")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
