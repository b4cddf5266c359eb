package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/internal/llm"
)

type capturedEvent struct {
	authUser string
	authPass string
	payload  map[string]any
}

func langfuseStub(t *testing.T) (*httptest.Server, chan capturedEvent) {
	t.Helper()
	events := make(chan capturedEvent, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev capturedEvent
		ev.authUser, ev.authPass, _ = r.BasicAuth()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev.payload))
		events <- ev
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, events
}

func TestTrackCompletionShipsGeneration(t *testing.T) {
	srv, events := langfuseStub(t)

	client := NewLangfuseClient(LangfuseConfig{
		BaseURL:   srv.URL,
		PublicKey: "pk",
		SecretKey: "sk",
	}, zap.NewNop())
	require.NotNil(t, client)
	defer client.Close()

	start := time.Now().Add(-time.Second)
	client.TrackCompletion(context.Background(), llm.CompletionRecord{
		Purpose:          "extract",
		Model:            "llama-3.1-8b-instant",
		Start:            start,
		End:              time.Now(),
		PromptTokens:     120,
		CompletionTokens: 30,
	})

	select {
	case ev := <-events:
		assert.Equal(t, "pk", ev.authUser)
		assert.Equal(t, "sk", ev.authPass)
		assert.Equal(t, "generation-create", ev.payload["type"])

		body := ev.payload["body"].(map[string]any)
		assert.Equal(t, "extract", body["name"])
		assert.Equal(t, "llama-3.1-8b-instant", body["model"])
		assert.Equal(t, "DEFAULT", body["level"])
		usage := body["usage"].(map[string]any)
		assert.Equal(t, float64(150), usage["totalTokens"])
	case <-time.After(5 * time.Second):
		t.Fatal("no ingestion request received")
	}
}

func TestTrackCompletionMarksErrors(t *testing.T) {
	srv, events := langfuseStub(t)

	client := NewLangfuseClient(LangfuseConfig{
		BaseURL:   srv.URL,
		PublicKey: "pk",
		SecretKey: "sk",
	}, zap.NewNop())
	require.NotNil(t, client)
	defer client.Close()

	client.TrackCompletion(context.Background(), llm.CompletionRecord{
		Purpose: "chat",
		Model:   "llama-3.3-70b-versatile",
		Start:   time.Now(),
		End:     time.Now(),
		Err:     errors.New("rate limited"),
	})

	select {
	case ev := <-events:
		body := ev.payload["body"].(map[string]any)
		assert.Equal(t, "ERROR", body["level"])
		assert.Equal(t, "rate limited", body["statusMessage"])
		assert.Nil(t, body["usage"])
	case <-time.After(5 * time.Second):
		t.Fatal("no ingestion request received")
	}
}

func TestNewLangfuseClientWithoutCredentials(t *testing.T) {
	assert.Nil(t, NewLangfuseClient(LangfuseConfig{}, zap.NewNop()))
	assert.Nil(t, NewLangfuseClient(LangfuseConfig{PublicKey: "pk"}, zap.NewNop()))
}

func TestLangfuseConfigFromEnv(t *testing.T) {
	t.Setenv("LANGFUSE_BASE_URL", "")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk")

	cfg := LangfuseConfigFromEnv()
	assert.Equal(t, DefaultLangfuseURL, cfg.BaseURL)
	assert.Equal(t, "pk", cfg.PublicKey)
	assert.Equal(t, "sk", cfg.SecretKey)
}
