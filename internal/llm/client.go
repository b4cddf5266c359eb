// Package llm wraps the hosted chat-completion provider used for
// constraint extraction, recommendation formatting, and follow-up
// generation. The provider speaks the OpenAI chat API; by default the
// client points at Groq's OpenAI-compatible endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultChatModel is the model used for conversational calls.
	DefaultChatModel = "llama-3.3-70b-versatile"
	// DefaultExtractModel is the smaller model used for attribute extraction.
	DefaultExtractModel = "llama-3.1-8b-instant"

	defaultMaxRetries = 3
	defaultRetryDelay = 3 * time.Second
)

// ChatClient is the subset of the OpenAI client the service uses.
// Extracted as an interface for testability.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds provider connection settings.
type Config struct {
	// APIKey authenticates against the provider.
	APIKey string
	// BaseURL is the OpenAI-compatible endpoint (default: Groq).
	BaseURL string
	// ChatModel is used for recommendation and follow-up calls.
	ChatModel string
	// ExtractModel is used for attribute/constraint extraction.
	ExtractModel string
	// Temperature controls sampling for chat calls.
	Temperature float32
	// MaxRetries bounds retries on transient provider errors.
	MaxRetries int
	// RetryDelay is the fixed sleep between retries.
	RetryDelay time.Duration
	// RequestsPerSecond throttles outbound calls (0 = unlimited).
	RequestsPerSecond float64
}

// NewChatClient builds the concrete OpenAI-compatible client.
func NewChatClient(cfg Config) ChatClient {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = base
	return openai.NewClientWithConfig(oc)
}

// CompletionRecord summarizes one provider call for observers.
type CompletionRecord struct {
	Purpose          string
	Model            string
	Start            time.Time
	End              time.Time
	PromptTokens     int
	CompletionTokens int
	Err              error
}

// Tracker receives a record of every provider call. Implementations
// must not block; slow sinks should hand off internally.
type Tracker interface {
	TrackCompletion(ctx context.Context, rec CompletionRecord)
}

// Trackers fans one record out to several trackers.
type Trackers []Tracker

func (ts Trackers) TrackCompletion(ctx context.Context, rec CompletionRecord) {
	for _, t := range ts {
		t.TrackCompletion(ctx, rec)
	}
}

// Client issues chat completions with bounded retry on transient
// provider errors and an optional request rate limit.
type Client struct {
	chat       ChatClient
	chatModel  string
	extract    string
	temp       float32
	maxRetries int
	retryDelay time.Duration
	limiter    *rate.Limiter
	tracker    Tracker
	log        *zap.Logger
}

// NewClient wraps a ChatClient with the retry and throttling policy.
func NewClient(chat ChatClient, cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	extract := cfg.ExtractModel
	if extract == "" {
		extract = DefaultExtractModel
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		chat:       chat,
		chatModel:  chatModel,
		extract:    extract,
		temp:       cfg.Temperature,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		limiter:    limiter,
		log:        log,
	}
}

// SetTracker attaches an observer for provider calls. Must be called
// before the client is shared across goroutines.
func (c *Client) SetTracker(t Tracker) {
	c.tracker = t
}

// Complete sends one system+user exchange and returns the reply text.
// No retries: callers that can degrade locally handle errors themselves.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, "chat", c.chatModel, system, user)
}

// Extract sends one system+user exchange to the extraction model,
// retrying on transient provider errors (connection, rate limit,
// server fault) with a fixed delay. Malformed output and client errors
// fail fast.
func (c *Client) Extract(ctx context.Context, system, user string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		text, err := c.complete(ctx, "extract", c.extract, system, user)
		if err == nil {
			return text, nil
		}
		if !IsRetryable(err) {
			return "", err
		}
		lastErr = err
		c.log.Warn("transient provider error",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", c.maxRetries),
			zap.Error(err))
		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	return "", fmt.Errorf("provider failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) complete(ctx context.Context, purpose, model, system, user string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	start := time.Now()
	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: c.temp,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("no choices in response")
	}

	if c.tracker != nil {
		c.tracker.TrackCompletion(ctx, CompletionRecord{
			Purpose:          purpose,
			Model:            model,
			Start:            start,
			End:              time.Now(),
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			Err:              err,
		})
	}

	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

// IsRetryable classifies a provider error as transient. Rate limits,
// server faults, and connection failures qualify; anything the
// provider rejected outright does not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	// Anything else is a transport-level failure (connection reset,
	// DNS, timeout) and worth another attempt.
	return true
}
