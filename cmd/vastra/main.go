package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/internal/catalog"
	"github.com/vastra-ai/vastra/internal/chat"
	"github.com/vastra-ai/vastra/internal/config"
	"github.com/vastra-ai/vastra/internal/followup"
	"github.com/vastra-ai/vastra/internal/llm"
	"github.com/vastra-ai/vastra/internal/memory"
	"github.com/vastra-ai/vastra/internal/observability"
	"github.com/vastra-ai/vastra/internal/rejection"
	"github.com/vastra-ai/vastra/internal/retrieval"
	"github.com/vastra-ai/vastra/internal/server"
	"github.com/vastra-ai/vastra/pkg/session"
	"github.com/vastra-ai/vastra/pkg/vectorstore"

	// Vector store drivers register themselves on import.
	_ "github.com/vastra-ai/vastra/pkg/vectorstore/memory"
	_ "github.com/vastra-ai/vastra/pkg/vectorstore/qdrant"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "vastra",
		Short:         "Conversational product search service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "Configuration file (YAML)")
	return cmd
}

func serve(cfg *config.Config) error {
	logger, err := newLogger(cfg.Server.Mode)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting vastra",
		zap.String("version", Version),
		zap.String("addr", cfg.Server.Addr),
		zap.String("session_backend", cfg.Session.Backend),
		zap.String("vector_provider", cfg.Vector.Provider))

	sessionStore, err := newSessionStore(cfg)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	sessions := session.NewManager(sessionStore, cfg.Session.Timeout, logger)
	defer func() { _ = sessions.Close() }()

	vecStore, err := vectorstore.New(cfg.Vector)
	if err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	defer func() { _ = vecStore.Close() }()

	llmCfg := llm.Config{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		ChatModel:         cfg.LLM.ChatModel,
		ExtractModel:      cfg.LLM.ExtractModel,
		Temperature:       cfg.LLM.Temperature,
		MaxRetries:        cfg.LLM.MaxRetries,
		RetryDelay:        cfg.LLM.RetryDelay,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	}
	llmClient := llm.NewClient(llm.NewChatClient(llmCfg), llmCfg, logger)

	embedClient := openai.NewClient(cfg.Retrieval.EmbeddingAPIKey)
	embedder := retrieval.NewOpenAIEmbedder(embedClient, cfg.Retrieval.EmbeddingModel)
	search := retrieval.NewService(vecStore, embedder, llmClient, cfg.Retrieval.ExtractPrompt, logger)

	mem := memory.NewManager(sessions, llmClient, logger)
	rejections := rejection.NewTracker(sessions, logger)
	followups := followup.NewGenerator(llmClient, logger)
	chatSvc := chat.NewService(search, sessions, mem, rejections, followups, llmClient, logger)
	chatSvc.SetRetrieveCount(cfg.Retrieval.TopK)

	var catalogStore catalog.Store
	if cfg.Catalog.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := catalog.NewPostgresStore(ctx, cfg.Catalog.DSN, logger)
		cancel()
		if err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		catalogStore = store
		defer store.Close()
	} else {
		logger.Warn("no catalog DSN configured, catalog endpoints disabled")
	}

	metrics := observability.New()

	trackers := llm.Trackers{metrics}
	if lf := observability.NewLangfuseClient(observability.LangfuseConfigFromEnv(), logger); lf != nil {
		logger.Info("langfuse tracing enabled")
		defer lf.Close()
		trackers = append(trackers, lf)
	}
	llmClient.SetTracker(trackers)
	chatSvc.SetObserver(metrics)

	srv := server.New(server.Options{
		Addr:     cfg.Server.Addr,
		Mode:     ginMode(cfg.Server.Mode),
		Sessions: sessions,
		Chat:     chatSvc,
		Search:   search,
		Catalog:  catalogStore,
		Metrics:  metrics,
		Log:      logger,
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepSessions(sweepCtx, sessions, metrics, cfg.Session.SweepInterval, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

// sweepSessions periodically drops expired sessions and refreshes the
// active session gauge.
func sweepSessions(ctx context.Context, sessions *session.Manager, metrics *observability.Metrics, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.Sweep(ctx)
			if err != nil {
				log.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				log.Info("swept expired sessions", zap.Int("removed", removed))
			}
			if count, err := sessions.Count(ctx); err == nil {
				metrics.ActiveSessions.Set(float64(count))
			}
		}
	}
}

func newSessionStore(cfg *config.Config) (session.Store, error) {
	if cfg.Session.Backend == "redis" {
		ttl := cfg.Session.Redis.TTL
		if ttl <= 0 {
			ttl = cfg.Session.Timeout
		}
		return session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
			Prefix:   cfg.Session.Redis.Prefix,
			TTL:      ttl,
			PoolSize: cfg.Session.Redis.PoolSize,
		})
	}
	return session.NewMemoryStore(), nil
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func ginMode(mode string) string {
	if mode == "debug" {
		return "debug"
	}
	return "release"
}
