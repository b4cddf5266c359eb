// Package memory provides a brute-force in-memory vector store driver
// for tests and single-node development.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/vastra-ai/vastra/pkg/vectorstore"
)

func init() {
	vectorstore.Register("memory", New)
}

// Store holds documents in a map and searches with cosine similarity.
type Store struct {
	mu   sync.RWMutex
	docs map[string]vectorstore.Document
	dims int
}

// New creates an in-memory store from the driver config.
func New(cfg vectorstore.Config) (vectorstore.Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("memory: dimensions must be positive, got %d", cfg.Dimensions)
	}
	return &Store{
		docs: make(map[string]vectorstore.Document),
		dims: cfg.Dimensions,
	}, nil
}

// Upsert implements vectorstore.Store.
func (s *Store) Upsert(ctx context.Context, docs []vectorstore.Document) error {
	for i := range docs {
		if err := vectorstore.ValidateDocument(&docs[i]); err != nil {
			return fmt.Errorf("memory: %w", err)
		}
		if len(docs[i].Embedding) != s.dims {
			return fmt.Errorf("memory: document %s embedding has %d dims, want %d",
				docs[i].ID, len(docs[i].Embedding), s.dims)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.docs[doc.ID] = cloneDocument(doc)
	}
	return nil
}

// Search implements vectorstore.Store with a full scan.
func (s *Store) Search(ctx context.Context, query vectorstore.SearchQuery) ([]vectorstore.Result, error) {
	if err := vectorstore.ValidateSearchQuery(&query); err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	if len(query.Embedding) != s.dims {
		return nil, fmt.Errorf("memory: query embedding has %d dims, want %d", len(query.Embedding), s.dims)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]vectorstore.Result, 0, len(s.docs))
	for _, doc := range s.docs {
		if !matchesFilter(doc.Metadata, query.Filter) {
			continue
		}
		score := cosine(query.Embedding, doc.Embedding)
		results = append(results, vectorstore.Result{
			Document: cloneDocument(doc),
			Score:    score,
			Distance: 1 - score,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > query.TopK {
		results = results[:query.TopK]
	}
	return results, nil
}

// Get implements vectorstore.Store.
func (s *Store) Get(ctx context.Context, ids []string) ([]vectorstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]vectorstore.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			out = append(out, cloneDocument(doc))
		}
	}
	return out, nil
}

// Delete implements vectorstore.Store.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

// Close implements vectorstore.Store.
func (s *Store) Close() error { return nil }

func matchesFilter(meta map[string]any, f *vectorstore.Filter) bool {
	if f == nil {
		return true
	}
	for _, cond := range f.Must {
		if !matchesCondition(meta, cond) {
			return false
		}
	}
	for _, cond := range f.MustNot {
		if matchesCondition(meta, cond) {
			return false
		}
	}
	return true
}

func matchesCondition(meta map[string]any, cond vectorstore.Condition) bool {
	val, ok := meta[cond.Key]
	if !ok {
		return false
	}

	if cond.Range != nil {
		n, ok := toFloat(val)
		if !ok {
			return false
		}
		r := cond.Range
		if r.GTE != nil && n < *r.GTE {
			return false
		}
		if r.LTE != nil && n > *r.LTE {
			return false
		}
		if r.GT != nil && n <= *r.GT {
			return false
		}
		if r.LT != nil && n >= *r.LT {
			return false
		}
		return true
	}

	// Numeric equality tolerates int/float representation drift from
	// JSON round-trips.
	if want, ok := toFloat(cond.Equals); ok {
		if got, ok := toFloat(val); ok {
			return got == want
		}
		return false
	}
	return val == cond.Equals
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func cloneDocument(doc vectorstore.Document) vectorstore.Document {
	out := doc
	out.Embedding = append([]float32(nil), doc.Embedding...)
	if doc.Metadata != nil {
		out.Metadata = make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
