// Package qdrant implements the vector store interface on a Qdrant
// collection. Product IDs are arbitrary strings, so points are keyed
// by a deterministic UUID derived from the ID and the original ID is
// kept in the payload.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/vastra-ai/vastra/pkg/vectorstore"
)

const (
	payloadID      = "id"
	payloadContent = "content"
)

func init() {
	vectorstore.Register("qdrant", func(cfg vectorstore.Config) (vectorstore.Store, error) {
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant: missing qdrant config section")
		}
		return New(*cfg.Qdrant)
	})
}

// Store implements vectorstore.Store for Qdrant.
type Store struct {
	client     *qdrant.Client
	collection string
}

// New connects to the Qdrant server described by cfg.
func New(cfg vectorstore.QdrantConfig) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant: url is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection is required")
	}

	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("qdrant: parse url: %w", err)
	}

	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("qdrant: invalid port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}

	return &Store{client: client, collection: cfg.Collection}, nil
}

// pointID maps an arbitrary string ID onto a stable UUID point ID.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// Upsert implements vectorstore.Store.
func (s *Store) Upsert(ctx context.Context, docs []vectorstore.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i := range docs {
		if err := vectorstore.ValidateDocument(&docs[i]); err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		payload := map[string]any{
			payloadID:      docs[i].ID,
			payloadContent: docs[i].Content,
		}
		for k, v := range docs[i].Metadata {
			payload[k] = v
		}
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(docs[i].ID),
			Vectors: qdrant.NewVectors(docs[i].Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert: %w", err)
	}
	return nil
}

// Search implements vectorstore.Store.
func (s *Store) Search(ctx context.Context, query vectorstore.SearchQuery) ([]vectorstore.Result, error) {
	if err := vectorstore.ValidateSearchQuery(&query); err != nil {
		return nil, fmt.Errorf("qdrant: %w", err)
	}

	limit := uint64(query.TopK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query.Embedding...),
		Limit:          &limit,
		Filter:         buildFilter(query.Filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	results := make([]vectorstore.Result, 0, len(points))
	for _, point := range points {
		results = append(results, vectorstore.Result{
			Document: docFromPayload(point.Payload),
			Score:    point.Score,
			Distance: 1 - point.Score,
		})
	}
	return results, nil
}

// Get implements vectorstore.Store.
func (s *Store) Get(ctx context.Context, ids []string) ([]vectorstore.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pids := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pids = append(pids, pointID(id))
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            pids,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: get: %w", err)
	}

	docs := make([]vectorstore.Document, 0, len(points))
	for _, point := range points {
		docs = append(docs, docFromPayload(point.Payload))
	}
	return docs, nil
}

// Delete implements vectorstore.Store.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pids := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pids = append(pids, pointID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(pids...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete: %w", err)
	}
	return nil
}

// Close implements vectorstore.Store.
func (s *Store) Close() error {
	return s.client.Close()
}

func buildFilter(f *vectorstore.Filter) *qdrant.Filter {
	if f == nil {
		return nil
	}

	must := make([]*qdrant.Condition, 0, len(f.Must))
	for _, cond := range f.Must {
		must = append(must, buildCondition(cond))
	}
	mustNot := make([]*qdrant.Condition, 0, len(f.MustNot))
	for _, cond := range f.MustNot {
		mustNot = append(mustNot, buildCondition(cond))
	}

	if len(must) == 0 && len(mustNot) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must, MustNot: mustNot}
}

func buildCondition(cond vectorstore.Condition) *qdrant.Condition {
	if cond.Range != nil {
		return qdrant.NewRange(cond.Key, &qdrant.Range{
			Gte: cond.Range.GTE,
			Lte: cond.Range.LTE,
			Gt:  cond.Range.GT,
			Lt:  cond.Range.LT,
		})
	}

	switch v := cond.Equals.(type) {
	case string:
		return qdrant.NewMatch(cond.Key, v)
	case bool:
		return qdrant.NewMatchBool(cond.Key, v)
	case int:
		return qdrant.NewMatchInt(cond.Key, int64(v))
	case int64:
		return qdrant.NewMatchInt(cond.Key, v)
	case float64:
		// Qdrant match has no double variant; floats that are whole
		// numbers match as integers, others as keywords.
		if v == float64(int64(v)) {
			return qdrant.NewMatchInt(cond.Key, int64(v))
		}
		return qdrant.NewMatch(cond.Key, strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return qdrant.NewMatch(cond.Key, fmt.Sprintf("%v", v))
	}
}

func docFromPayload(payload map[string]*qdrant.Value) vectorstore.Document {
	doc := vectorstore.Document{Metadata: make(map[string]any)}
	for k, v := range payload {
		switch k {
		case payloadID:
			doc.ID = v.GetStringValue()
		case payloadContent:
			doc.Content = v.GetStringValue()
		default:
			doc.Metadata[k] = extractValue(v)
		}
	}
	return doc
}

func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		items := val.ListValue.GetValues()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, extractValue(item))
		}
		return out
	default:
		return nil
	}
}

var _ vectorstore.Store = (*Store)(nil)
