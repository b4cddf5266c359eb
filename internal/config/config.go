// Package config loads service configuration from a YAML file with
// environment variable overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vastra-ai/vastra/pkg/vectorstore"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig       `yaml:"server"`
	LLM       LLMConfig          `yaml:"llm"`
	Session   SessionConfig      `yaml:"session"`
	Vector    vectorstore.Config `yaml:"vectorstore"`
	Catalog   CatalogConfig      `yaml:"catalog"`
	Retrieval RetrievalConfig    `yaml:"retrieval"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address (default ":8000").
	Addr string `yaml:"addr"`
	// Mode is the gin mode ("debug" or "release").
	Mode string `yaml:"mode"`
	// ShutdownTimeout bounds graceful drain on SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLMConfig holds chat provider settings. The API key is taken from
// GROQ_API_KEY when unset here.
type LLMConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	ChatModel         string        `yaml:"chat_model"`
	ExtractModel      string        `yaml:"extract_model"`
	Temperature       float32       `yaml:"temperature"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// SessionConfig selects the session store backend.
type SessionConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`
	// Timeout is the idle session lifetime.
	Timeout time.Duration `yaml:"timeout"`
	// SweepInterval is how often expired sessions are collected.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for the session store.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
	PoolSize int           `yaml:"pool_size"`
}

// CatalogConfig holds the relational catalog settings.
type CatalogConfig struct {
	// DSN is the Postgres connection string. Falls back to
	// DATABASE_URL. Empty disables the catalog endpoints.
	DSN string `yaml:"dsn"`
}

// RetrievalConfig tunes the semantic search pipeline.
type RetrievalConfig struct {
	// TopK is how many candidates the vector search returns.
	TopK int `yaml:"top_k"`
	// EmbeddingModel names the embedding model.
	EmbeddingModel string `yaml:"embedding_model"`
	// EmbeddingAPIKey authenticates the embeddings endpoint. Falls
	// back to OPENAI_API_KEY.
	EmbeddingAPIKey string `yaml:"embedding_api_key"`
	// ExtractPrompt overrides the attribute extraction system prompt.
	ExtractPrompt string `yaml:"extract_prompt"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			Mode:            "release",
			ShutdownTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			Backend:       "memory",
			Timeout:       time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Vector: vectorstore.Config{
			Provider:   "memory",
			Dimensions: 1536,
		},
		Retrieval: RetrievalConfig{
			TopK: 10,
		},
	}
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result. An empty path loads defaults
// and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("VASTRA_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("GROQ_API_KEY")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Session.Redis.Addr = v
	}
	if cfg.Catalog.DSN == "" {
		cfg.Catalog.DSN = os.Getenv("DATABASE_URL")
	}
	if cfg.Retrieval.EmbeddingAPIKey == "" {
		cfg.Retrieval.EmbeddingAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Vector.Qdrant != nil && cfg.Vector.Qdrant.APIKey == "" {
		cfg.Vector.Qdrant.APIKey = os.Getenv("QDRANT_API_KEY")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.Timeout <= 0 {
		cfg.Session.Timeout = time.Hour
	}
	if cfg.Session.SweepInterval <= 0 {
		cfg.Session.SweepInterval = 5 * time.Minute
	}
	if cfg.Vector.Provider == "" {
		cfg.Vector.Provider = "memory"
	}
	if cfg.Vector.Dimensions <= 0 {
		cfg.Vector.Dimensions = 1536
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 10
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}
	if c.Session.Backend == "redis" && c.Session.Redis.Addr == "" {
		return fmt.Errorf("config: session backend is redis but no redis addr set")
	}
	if c.Vector.Provider == "qdrant" && (c.Vector.Qdrant == nil || c.Vector.Qdrant.URL == "") {
		return fmt.Errorf("config: vector provider is qdrant but no qdrant url set")
	}
	return nil
}
