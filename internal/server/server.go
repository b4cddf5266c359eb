// Package server exposes the HTTP API: conversational search, session
// administration, the catalog surface, and operational endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/internal/catalog"
	"github.com/vastra-ai/vastra/internal/chat"
	"github.com/vastra-ai/vastra/internal/observability"
	"github.com/vastra-ai/vastra/pkg/session"
)

// batchTimeout bounds recommended-product hydration per request.
const batchTimeout = 10 * time.Second

// Options configures the server. Catalog may be nil, which disables
// the catalog endpoints and product hydration.
type Options struct {
	Addr     string
	Mode     string
	Sessions *session.Manager
	Chat     *chat.Service
	Search   chat.Searcher
	Catalog  catalog.Store
	Metrics  *observability.Metrics
	Log      *zap.Logger
}

// Server wires the HTTP routes over the service layer.
type Server struct {
	sessions *session.Manager
	chat     *chat.Service
	search   chat.Searcher
	catalog  catalog.Store
	metrics  *observability.Metrics
	log      *zap.Logger

	engine *gin.Engine
	http   *http.Server
}

// New builds the router.
func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}

	s := &Server{
		sessions: opts.Sessions,
		chat:     opts.Chat,
		search:   opts.Search,
		catalog:  opts.Catalog,
		metrics:  opts.Metrics,
		log:      opts.Log,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if s.metrics != nil {
		engine.Use(s.metrics.GinMiddleware())
	}

	engine.GET("/health", s.handleHealth)
	engine.POST("/search", s.handleSearch)

	engine.POST("/session", s.handleCreateSession)
	engine.GET("/session/:id", s.handleGetSession)
	engine.DELETE("/session/:id", s.handleDeleteSession)
	engine.GET("/session/:id/stats", s.handleSessionStats)

	if s.catalog != nil {
		engine.GET("/products", s.handleListProducts)
		engine.GET("/products/:id", s.handleGetProduct)
		engine.POST("/products/batch", s.handleBatchProducts)
		engine.GET("/filters", s.handleFilters)
		engine.GET("/categories", s.handleCategories)
	}

	if s.metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	s.engine = engine
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the underlying router, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	services := gin.H{
		"sessions": s.sessions != nil,
		"chat":     s.chat != nil,
		"search":   s.search != nil,
		"catalog":  s.catalog != nil,
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"services": services,
	})
}
