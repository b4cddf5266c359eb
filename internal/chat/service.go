// Package chat orchestrates a conversational product search turn:
// rejection detection, memory updates, retrieval, recommendation
// phrasing, and follow-up questions.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/internal/followup"
	"github.com/vastra-ai/vastra/internal/llm"
	"github.com/vastra-ai/vastra/internal/memory"
	"github.com/vastra-ai/vastra/internal/rejection"
	"github.com/vastra-ai/vastra/internal/retrieval"
	"github.com/vastra-ai/vastra/pkg/session"
)

const (
	// defaultRetrieveCount is how many candidates the vector search
	// returns before rejection filtering.
	defaultRetrieveCount = 10
	// showCount is how many products one response presents.
	showCount = 5
)

const recommendationPrompt = `You are a conversational product recommendation assistant.

RESPONSE FORMAT (JSON):
{
  "response_text": "Natural, conversational response highlighting the BEST match first",
  "recommended_product_ids": ["PRD148", "PRD72", "PRD66", "PRD45", "PRD89"]
}

RULES:
1. Include ALL retrieved products in recommended_product_ids
2. Sort by: in-stock first, then relevance
3. Be conversational and helpful (not robotic)
4. Mention stock status naturally
5. Highlight the #1 recommendation
6. Reference conversation context if relevant
7. Return ONLY valid JSON, no markdown`

// Searcher is the retrieval surface the orchestrator needs.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.Result, error)
}

// Completer is the LLM surface used for recommendation phrasing.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Observer receives counts of notable pipeline events.
type Observer interface {
	ObserveImplicitRejections(count int)
}

// Result is one conversational turn's outcome.
type Result struct {
	ResponseText          string         `json:"response_text"`
	RecommendedProductIDs []string       `json:"recommended_product_ids"`
	FollowUpQuestions     []string       `json:"follow_up_questions"`
	SessionID             string         `json:"session_id"`
	Metadata              map[string]any `json:"metadata"`
}

// Service runs the full conversational pipeline for one session turn.
type Service struct {
	search     Searcher
	sessions   *session.Manager
	memory     *memory.Manager
	rejections *rejection.Tracker
	followups  *followup.Generator
	llm        Completer
	retrieve   int
	observer   Observer
	log        *zap.Logger
}

// NewService wires the conversational agent together.
func NewService(
	search Searcher,
	sessions *session.Manager,
	mem *memory.Manager,
	rejections *rejection.Tracker,
	followups *followup.Generator,
	completer Completer,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		search:     search,
		sessions:   sessions,
		memory:     mem,
		rejections: rejections,
		followups:  followups,
		llm:        completer,
		retrieve:   defaultRetrieveCount,
		log:        log,
	}
}

// SetRetrieveCount overrides how many candidates are fetched per turn.
// Non-positive values are ignored.
func (s *Service) SetRetrieveCount(n int) {
	if n > 0 {
		s.retrieve = n
	}
}

// SetObserver attaches a sink for pipeline counters. Must be called
// before the service is shared across goroutines.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// Respond handles one user message. It never fails outright: any
// pipeline error degrades to an apology with generic follow-ups.
func (s *Service) Respond(ctx context.Context, sessionID, message string) Result {
	// Ordinals in the message refer to the most recently shown
	// products, in display order.
	shown := s.rejections.Shown(ctx, sessionID)
	recent := shown
	if len(recent) > showCount {
		recent = recent[len(recent)-showCount:]
	}

	if rejected := s.rejections.DetectImplicit(ctx, sessionID, message, recent); len(rejected) > 0 {
		s.rejections.MarkRejected(ctx, sessionID, rejected)
		if s.observer != nil {
			s.observer.ObserveImplicitRejections(len(rejected))
		}
		s.log.Info("detected implicit rejections",
			zap.String("session_id", sessionID),
			zap.Int("count", len(rejected)))
	}

	s.memory.AddUserTurn(ctx, sessionID, message)

	history := s.memory.History(ctx, sessionID)
	constraints := s.memory.ExtractConstraints(ctx, sessionID)

	products, err := s.search.Search(ctx, message, s.retrieve)
	if err != nil {
		s.log.Error("product search failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return s.fallback(sessionID)
	}

	products = s.filterRejected(ctx, sessionID, products)
	if len(products) > showCount {
		products = products[:showCount]
	}

	ids := make([]string, 0, len(products))
	for _, p := range products {
		if p.ID != "" {
			ids = append(ids, p.ID)
		}
	}
	s.rejections.MarkShown(ctx, sessionID, ids)

	recommendation := s.recommend(ctx, message, products, constraints)

	s.memory.AddAssistantTurn(ctx, sessionID, recommendation.ResponseText)

	followUps := s.followups.Generate(ctx, history, summarize(products), constraints, followup.DefaultMaxQuestions)

	return Result{
		ResponseText:          recommendation.ResponseText,
		RecommendedProductIDs: recommendation.RecommendedProductIDs,
		FollowUpQuestions:     followUps,
		SessionID:             sessionID,
		Metadata: map[string]any{
			"constraints":     constraints,
			"rejection_stats": s.rejections.Stats(ctx, sessionID),
		},
	}
}

func (s *Service) filterRejected(ctx context.Context, sessionID string, products []retrieval.Result) []retrieval.Result {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	kept := make(map[string]struct{}, len(ids))
	for _, id := range s.rejections.Filter(ctx, sessionID, ids) {
		kept[id] = struct{}{}
	}

	filtered := make([]retrieval.Result, 0, len(products))
	for _, p := range products {
		if _, ok := kept[p.ID]; ok {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

type recommendation struct {
	ResponseText          string   `json:"response_text"`
	RecommendedProductIDs []string `json:"recommended_product_ids"`
}

func (s *Service) recommend(ctx context.Context, query string, products []retrieval.Result, constraints map[string]any) recommendation {
	if len(products) == 0 {
		return recommendation{
			ResponseText: fmt.Sprintf("I couldn't find any products matching '%s'. Could you try different keywords?", query),
		}
	}

	lines := make([]string, 0, len(products))
	for i, p := range products {
		lines = append(lines, fmt.Sprintf("%d. %s - %s (%s, %s)",
			i+1, p.ID, productTitle(p), priceLabel(p.Metadata), stockLabel(p.Metadata)))
	}

	contextText := ""
	if len(constraints) > 0 {
		if data, err := json.Marshal(constraints); err == nil {
			contextText = "\nKnown preferences: " + string(data)
		}
	}

	userPrompt := fmt.Sprintf("User Query: %q%s\n\nRetrieved Products:\n%s\n\nGenerate recommendation response as JSON:",
		query, contextText, strings.Join(lines, "\n"))

	allIDs := make([]string, 0, len(products))
	for _, p := range products {
		if p.ID != "" {
			allIDs = append(allIDs, p.ID)
		}
	}
	fallback := recommendation{
		ResponseText:          fmt.Sprintf("I found %d products for you. Here are my top recommendations!", len(products)),
		RecommendedProductIDs: allIDs,
	}

	text, err := s.llm.Complete(ctx, recommendationPrompt, userPrompt)
	if err != nil {
		s.log.Error("recommendation generation failed", zap.Error(err))
		return fallback
	}

	raw, err := llm.ExtractObject(text)
	if err != nil {
		s.log.Warn("recommendation response had no JSON")
		return fallback
	}
	var rec recommendation
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.ResponseText == "" {
		s.log.Warn("recommendation response did not parse")
		return fallback
	}
	return rec
}

func (s *Service) fallback(sessionID string) Result {
	return Result{
		ResponseText: "I apologize, but I encountered an error processing your request. Could you please try rephrasing?",
		FollowUpQuestions: []string{
			"Would you like to try a different search?",
			"Can you provide more details about what you're looking for?",
		},
		SessionID: sessionID,
		Metadata:  map[string]any{},
	}
}

func summarize(products []retrieval.Result) []followup.Product {
	out := make([]followup.Product, 0, len(products))
	for _, p := range products {
		price, _ := toFloat(p.Metadata["price"])
		out = append(out, followup.Product{
			ID:    p.ID,
			Title: productTitle(p),
			Price: price,
		})
	}
	return out
}

// productTitle pulls the title out of the document JSON.
func productTitle(p retrieval.Result) string {
	var doc struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(p.Document), &doc); err == nil && doc.Title != "" {
		return doc.Title
	}
	return "Unknown Product"
}

func priceLabel(meta map[string]any) string {
	price, ok := toFloat(meta["price"])
	if !ok || price == 0 {
		return "Price not available"
	}
	return FormatPrice(price)
}

func stockLabel(meta map[string]any) string {
	raw, _ := meta["stock_status"].(string)
	return titleCase(strings.ReplaceAll(raw, "_", " "))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// FormatPrice renders a rupee amount with thousands separators.
func FormatPrice(price float64) string {
	n := int64(price)
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return "₹" + s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return "₹" + strings.Join(parts, ",")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
