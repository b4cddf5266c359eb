package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/internal/llm"
)

// DefaultLangfuseURL is the hosted Langfuse ingestion endpoint.
const DefaultLangfuseURL = "https://cloud.langfuse.com"

// LangfuseConfig holds credentials for the Langfuse tracing backend.
// Missing keys disable the client.
type LangfuseConfig struct {
	BaseURL   string
	PublicKey string
	SecretKey string
}

// LangfuseConfigFromEnv reads LANGFUSE_BASE_URL, LANGFUSE_PUBLIC_KEY
// and LANGFUSE_SECRET_KEY.
func LangfuseConfigFromEnv() LangfuseConfig {
	base := os.Getenv("LANGFUSE_BASE_URL")
	if base == "" {
		base = DefaultLangfuseURL
	}
	return LangfuseConfig{
		BaseURL:   base,
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// LangfuseClient ships LLM generation events to Langfuse. Delivery is
// fire-and-forget: ingestion failures are logged, never surfaced to
// the request path.
type LangfuseClient struct {
	baseURL   string
	publicKey string
	secretKey string
	http      *http.Client
	log       *zap.Logger
}

// NewLangfuseClient builds a client, or nil when no credentials are
// configured so callers can skip wiring it.
func NewLangfuseClient(cfg LangfuseConfig, log *zap.Logger) *LangfuseClient {
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultLangfuseURL
	}
	return &LangfuseClient{
		baseURL:   base,
		publicKey: cfg.PublicKey,
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}
}

// generation is the Langfuse generation-create body.
type generation struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	StartTime     time.Time        `json:"startTime"`
	EndTime       time.Time        `json:"endTime"`
	Model         string           `json:"model"`
	Usage         *generationUsage `json:"usage,omitempty"`
	Level         string           `json:"level,omitempty"`
	StatusMessage string           `json:"statusMessage,omitempty"`
}

type generationUsage struct {
	PromptTokens     int    `json:"promptTokens,omitempty"`
	CompletionTokens int    `json:"completionTokens,omitempty"`
	TotalTokens      int    `json:"totalTokens,omitempty"`
	Unit             string `json:"unit,omitempty"`
}

// TrackCompletion implements the LLM client's tracker hook. Shipping
// happens on a detached goroutine so provider latency never includes
// the ingestion round trip.
func (c *LangfuseClient) TrackCompletion(_ context.Context, rec llm.CompletionRecord) {
	gen := generation{
		ID:        uuid.NewString(),
		Name:      rec.Purpose,
		StartTime: rec.Start,
		EndTime:   rec.End,
		Model:     rec.Model,
		Level:     "DEFAULT",
	}
	if rec.Err != nil {
		gen.Level = "ERROR"
		gen.StatusMessage = rec.Err.Error()
	}
	if rec.PromptTokens > 0 || rec.CompletionTokens > 0 {
		gen.Usage = &generationUsage{
			PromptTokens:     rec.PromptTokens,
			CompletionTokens: rec.CompletionTokens,
			TotalTokens:      rec.PromptTokens + rec.CompletionTokens,
			Unit:             "TOKENS",
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.send(ctx, "generation-create", gen); err != nil {
			c.log.Warn("langfuse ingestion failed", zap.Error(err))
		}
	}()
}

func (c *LangfuseClient) send(ctx context.Context, eventType string, body any) error {
	payload := map[string]any{
		"type": eventType,
		"body": body,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/public/ingestion", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.publicKey, c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("langfuse returned status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections.
func (c *LangfuseClient) Close() {
	c.http.CloseIdleConnections()
}
