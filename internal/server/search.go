package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/internal/catalog"
	"github.com/vastra-ai/vastra/internal/retrieval"
)

// SearchRequest is the /search request body. Stateless forces the
// legacy single-shot mode even when sessions are available.
type SearchRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id"`
	Stateless bool   `json:"stateless"`
}

// ProductResult is the compact product shape for chat display.
type ProductResult struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Price       string   `json:"price"`
	KeyFeatures []string `json:"key_features"`
}

// SearchResponse is the /search response body.
type SearchResponse struct {
	ResponseText        string            `json:"response_text"`
	Products            []ProductResult   `json:"products"`
	RecommendedProducts []catalog.Product `json:"recommended_products"`
	FollowUpQuestions   []string          `json:"follow_up_questions"`
	SessionID           string            `json:"session_id,omitempty"`
	Metadata            map[string]any    `json:"metadata"`
	Success             bool              `json:"success"`
	ErrorMessage        string            `json:"error_message,omitempty"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	conversational := s.chat != nil && !req.Stateless

	var (
		resp SearchResponse
		err  error
	)
	if conversational {
		resp, err = s.conversationalSearch(c.Request.Context(), req)
	} else {
		resp, err = s.statelessSearch(c.Request.Context(), req)
	}

	mode := "stateless"
	if conversational {
		mode = "conversational"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if s.metrics != nil {
		s.metrics.SearchTurns.WithLabelValues(mode, outcome).Inc()
	}

	if err != nil {
		s.log.Error("search failed", zap.String("mode", mode), zap.Error(err))
		c.JSON(http.StatusOK, SearchResponse{
			ResponseText:        "Something went wrong. Please try again.",
			Products:            []ProductResult{},
			RecommendedProducts: []catalog.Product{},
			FollowUpQuestions:   []string{},
			Metadata:            map[string]any{},
			Success:             false,
			ErrorMessage:        err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) conversationalSearch(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		state, err := s.sessions.Create(ctx)
		if err != nil {
			return SearchResponse{}, err
		}
		sessionID = state.ID
	}
	s.log.Info("conversational search", zap.String("session_id", sessionID))

	result := s.chat.Respond(ctx, sessionID, req.Query)

	recommended := s.hydrate(ctx, result.RecommendedProductIDs)

	metadata := result.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["recommended_count"] = len(recommended)
	metadata["mode"] = "conversational"
	if stats, err := s.sessions.Stats(ctx, sessionID); err == nil {
		metadata["session_stats"] = stats
	}

	return SearchResponse{
		ResponseText:        result.ResponseText,
		Products:            []ProductResult{},
		RecommendedProducts: recommended,
		FollowUpQuestions:   result.FollowUpQuestions,
		SessionID:           sessionID,
		Metadata:            metadata,
		Success:             true,
	}, nil
}

func (s *Server) statelessSearch(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	products, err := s.search.Search(ctx, req.Query, 5)
	if err != nil {
		return SearchResponse{}, err
	}

	formatted := make([]ProductResult, 0, len(products))
	ids := make([]string, 0, len(products))
	for _, p := range products {
		formatted = append(formatted, ProductResult{
			ID:          p.ID,
			Title:       productTitle(p),
			Price:       formatPrice(p.Metadata),
			KeyFeatures: extractKeyFeatures(p.Metadata),
		})
		if p.ID != "" {
			ids = append(ids, p.ID)
		}
	}

	recommended := s.hydrate(ctx, ids)

	return SearchResponse{
		ResponseText:        fmt.Sprintf("I found %d products matching your search.", len(products)),
		Products:            formatted,
		RecommendedProducts: recommended,
		FollowUpQuestions:   statelessFollowUps(products),
		Metadata: map[string]any{
			"total_results":     len(formatted),
			"recommended_count": len(recommended),
			"mode":              "stateless",
		},
		Success: true,
	}, nil
}

// hydrate resolves recommended product IDs against the catalog, under
// a hard timeout. Failures degrade to an empty list.
func (s *Server) hydrate(ctx context.Context, ids []string) []catalog.Product {
	if s.catalog == nil || len(ids) == 0 {
		return []catalog.Product{}
	}

	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	products, err := s.catalog.GetBatch(ctx, ids)
	if err != nil {
		s.log.Error("recommended product hydration failed", zap.Error(err))
		return []catalog.Product{}
	}
	return products
}

// statelessFollowUps mirrors the legacy heuristic: suggest exploring
// brands only when results span more than one.
func statelessFollowUps(products []retrieval.Result) []string {
	var questions []string

	brands := make(map[string]struct{})
	for _, p := range products {
		if b, ok := p.Metadata["brand"].(string); ok && b != "" {
			brands[b] = struct{}{}
		}
	}
	if len(brands) > 1 {
		questions = append(questions, "Would you like to explore other brands?")
	}

	questions = append(questions,
		"Would you like to apply filters like price or color?",
		"Do you want help choosing the best option?",
	)
	return questions[:2]
}

func productTitle(p retrieval.Result) string {
	var doc struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(p.Document), &doc); err == nil && doc.Title != "" {
		return doc.Title
	}
	return "Unknown Product"
}
