// Package vectorstore defines the interface for the product embedding
// index and the metadata filter model shared by its drivers.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Store is the interface for vector similarity search over product
// documents. Implementations must be safe for concurrent use.
type Store interface {
	// Upsert inserts or replaces documents by ID.
	Upsert(ctx context.Context, docs []Document) error

	// Search returns the documents most similar to the query vector,
	// restricted by the optional metadata filter.
	Search(ctx context.Context, query SearchQuery) ([]Result, error)

	// Get retrieves documents by ID. Unknown IDs are skipped.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by ID.
	Delete(ctx context.Context, ids []string) error

	// Close releases the underlying connection.
	Close() error
}

// Document is one indexed product: its searchable text, embedding,
// and structured attributes used for filtering.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchQuery defines one similarity search.
type SearchQuery struct {
	// Embedding is the query vector.
	Embedding []float32

	// TopK caps the number of results (default 10).
	TopK int

	// Filter restricts candidates by metadata. Nil means no filtering.
	Filter *Filter
}

// Result is one search hit. Score is cosine similarity (higher is more
// similar); Distance is 1 - Score.
type Result struct {
	Document Document
	Score    float32
	Distance float32
}

// Filter is a conjunction of metadata conditions. All Must conditions
// hold and no MustNot condition holds for a document to match.
type Filter struct {
	Must    []Condition
	MustNot []Condition
}

// Condition matches one metadata key, either by exact value or by
// numeric range. Exactly one of Equals and Range is set.
type Condition struct {
	Key    string
	Equals any
	Range  *Range
}

// Range bounds a numeric metadata value. Nil bounds are open.
type Range struct {
	GTE *float64
	LTE *float64
	GT  *float64
	LT  *float64
}

// Eq builds an exact-match condition.
func Eq(key string, value any) Condition {
	return Condition{Key: key, Equals: value}
}

// Between builds a closed-range condition; pass nil to leave a side open.
func Between(key string, gte, lte *float64) Condition {
	return Condition{Key: key, Range: &Range{GTE: gte, LTE: lte}}
}

// ValidateDocument rejects documents that cannot be indexed.
func ValidateDocument(doc *Document) error {
	if doc.ID == "" {
		return errors.New("document ID is required")
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("document %s has no embedding", doc.ID)
	}
	return nil
}

// ValidateSearchQuery rejects malformed queries and applies defaults.
func ValidateSearchQuery(q *SearchQuery) error {
	if len(q.Embedding) == 0 {
		return errors.New("query embedding is required")
	}
	if q.TopK <= 0 {
		q.TopK = 10
	}
	return nil
}
