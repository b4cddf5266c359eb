// Package retrieval performs semantic product search: it embeds the
// user query, extracts structured attribute filters with an LLM, and
// queries the vector store with both.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/internal/llm"
	"github.com/vastra-ai/vastra/pkg/vectorstore"
)

// DefaultExtractPrompt instructs the extraction model to emit vector
// store filters. Operators follow the usual comparison vocabulary
// ($eq, $gte, $lte, $gt, $lt).
const DefaultExtractPrompt = `You are a product attribute extraction assistant for a kids' clothing store.
Extract structured search filters from the user's query.

Supported keys: color, gender, brand, category, occasion, price, age.
- Scalar values for exact match: {"color": "pink", "gender": "girls"}
- Range values as operator objects: {"price": {"$lte": 2000}}, {"age": {"$gte": 4, "$lte": 8}}
- Use {"$eq": N} for an exact numeric match.

Return ONLY a valid JSON object. If no filters apply, return {}.
No markdown, no explanations.`

// Extractor is the LLM surface used for attribute extraction. It
// retries transient provider errors internally.
type Extractor interface {
	Extract(ctx context.Context, system, user string) (string, error)
}

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is one retrieved product.
type Result struct {
	ID       string         `json:"id"`
	Document string         `json:"document"`
	Metadata map[string]any `json:"metadata"`
	Distance float32        `json:"distance"`
}

// Service runs the retrieval pipeline.
type Service struct {
	store    vectorstore.Store
	embedder Embedder
	llm      Extractor
	prompt   string
	log      *zap.Logger
}

// NewService creates a retrieval service. An empty prompt selects
// DefaultExtractPrompt.
func NewService(store vectorstore.Store, embedder Embedder, extractor Extractor, prompt string, log *zap.Logger) *Service {
	if prompt == "" {
		prompt = DefaultExtractPrompt
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		embedder: embedder,
		llm:      extractor,
		prompt:   prompt,
		log:      log,
	}
}

// RewriteQuery normalizes the query before embedding. Kept as a seam
// for LLM-based query rewriting.
func (s *Service) RewriteQuery(query string) string {
	return strings.TrimSpace(query)
}

// ExtractAttributes asks the LLM for structured filters. Malformed
// JSON is an error, not a retry.
func (s *Service) ExtractAttributes(ctx context.Context, query string) (map[string]any, error) {
	text, err := s.llm.Extract(ctx, s.prompt, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: extract attributes: %w", err)
	}

	raw, err := llm.ExtractObject(text)
	if err != nil {
		return nil, fmt.Errorf("retrieval: invalid JSON from extraction: %w", err)
	}

	var attrs map[string]any
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, fmt.Errorf("retrieval: parse extracted attributes: %w", err)
	}
	return attrs, nil
}

// Search runs the full pipeline and returns up to topK products.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}

	rewritten := s.RewriteQuery(query)

	attrs, err := s.ExtractAttributes(ctx, query)
	if err != nil {
		return nil, err
	}
	s.log.Info("extracted filters", zap.Any("filters", attrs))

	filter := BuildFilter(attrs)

	embedding, err := s.embedder.Embed(ctx, rewritten)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	hits, err := s.store.Search(ctx, vectorstore.SearchQuery{
		Embedding: embedding,
		TopK:      topK,
		Filter:    filter,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector search: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			ID:       hit.Document.ID,
			Document: hit.Document.Content,
			Metadata: hit.Document.Metadata,
			Distance: hit.Distance,
		})
	}
	return results, nil
}

// BuildFilter converts extracted attributes into a vector store
// filter. Products carry age_min/age_max metadata, so an "age"
// attribute expands into conditions on both fields: a requested range
// must fall inside the product's range, and an exact age must fall
// between them.
func BuildFilter(attrs map[string]any) *vectorstore.Filter {
	var must []vectorstore.Condition

	for key, value := range attrs {
		if value == nil {
			continue
		}

		if key == "age" {
			must = append(must, ageConditions(value)...)
			continue
		}

		if ops, ok := value.(map[string]any); ok {
			if cond, ok := rangeCondition(key, ops); ok {
				must = append(must, cond)
			}
			continue
		}

		must = append(must, vectorstore.Eq(key, normalizeValue(value)))
	}

	if len(must) == 0 {
		return nil
	}
	return &vectorstore.Filter{Must: must}
}

func ageConditions(value any) []vectorstore.Condition {
	ops, ok := value.(map[string]any)
	if !ok {
		return nil
	}

	gte, hasGTE := numericOp(ops, "$gte")
	lte, hasLTE := numericOp(ops, "$lte")

	switch {
	case hasGTE && hasLTE:
		return []vectorstore.Condition{
			{Key: "age_max", Range: &vectorstore.Range{LTE: &lte}},
			{Key: "age_min", Range: &vectorstore.Range{GTE: &gte}},
		}
	default:
		if eq, ok := numericOp(ops, "$eq"); ok {
			return []vectorstore.Condition{
				{Key: "age_min", Range: &vectorstore.Range{LTE: &eq}},
				{Key: "age_max", Range: &vectorstore.Range{GTE: &eq}},
			}
		}
		if lt, ok := numericOp(ops, "$lt"); ok {
			return []vectorstore.Condition{{Key: "age_min", Range: &vectorstore.Range{LT: &lt}}}
		}
		if gt, ok := numericOp(ops, "$gt"); ok {
			return []vectorstore.Condition{{Key: "age_max", Range: &vectorstore.Range{GT: &gt}}}
		}
	}
	return nil
}

func rangeCondition(key string, ops map[string]any) (vectorstore.Condition, bool) {
	r := &vectorstore.Range{}
	found := false
	for op, raw := range ops {
		n, ok := toNumber(raw)
		if !ok {
			continue
		}
		v := n
		switch op {
		case "$gte":
			r.GTE = &v
		case "$lte":
			r.LTE = &v
		case "$gt":
			r.GT = &v
		case "$lt":
			r.LT = &v
		case "$eq":
			return vectorstore.Eq(key, v), true
		default:
			continue
		}
		found = true
	}
	return vectorstore.Condition{Key: key, Range: r}, found
}

func numericOp(ops map[string]any, op string) (float64, bool) {
	raw, ok := ops[op]
	if !ok {
		return 0, false
	}
	return toNumber(raw)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// normalizeValue mirrors the ingest pipeline: string attribute values
// are matched lowercase.
func normalizeValue(v any) any {
	if s, ok := v.(string); ok {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return v
}
