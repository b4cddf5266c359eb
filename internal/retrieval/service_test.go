package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/internal/llm"
	"github.com/vastra-ai/vastra/pkg/vectorstore"
	"github.com/vastra-ai/vastra/pkg/vectorstore/memory"
)

type fixedEmbedder struct {
	vector []float32
}

func (f *fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vector, nil
}

func newTestService(t *testing.T, mock *llm.MockChatClient) *Service {
	t.Helper()

	store, err := memory.New(vectorstore.Config{Provider: "memory", Dimensions: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Upsert(context.Background(), []vectorstore.Document{
		{
			ID:        "PRD1",
			Content:   "pink cotton frock for girls",
			Embedding: []float32{1, 0, 0},
			Metadata:  map[string]any{"color": "pink", "price": 1500.0, "age_min": 4.0, "age_max": 8.0},
		},
		{
			ID:        "PRD2",
			Content:   "blue denim jacket for boys",
			Embedding: []float32{0.8, 0.2, 0},
			Metadata:  map[string]any{"color": "blue", "price": 2500.0, "age_min": 8.0, "age_max": 12.0},
		},
	}))

	client := llm.NewClient(mock, llm.Config{RetryDelay: time.Millisecond}, zap.NewNop())
	return NewService(store, &fixedEmbedder{vector: []float32{1, 0, 0}}, client, "", zap.NewNop())
}

func TestSearchAppliesExtractedFilters(t *testing.T) {
	mock := llm.NewMockChatClient(`{"color": "pink"}`)
	svc := newTestService(t, mock)

	results, err := svc.Search(context.Background(), "pink dress", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "PRD1", results[0].ID)
	assert.Equal(t, "pink cotton frock for girls", results[0].Document)
	assert.Equal(t, "pink", results[0].Metadata["color"])
}

func TestSearchNoFilters(t *testing.T) {
	mock := llm.NewMockChatClient(`{}`)
	svc := newTestService(t, mock)

	results, err := svc.Search(context.Background(), "something nice", 5)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchRetriesTransientExtractionErrors(t *testing.T) {
	mock := &llm.MockChatClient{}
	mock.EnqueueError(&openai.APIError{HTTPStatusCode: 503, Message: "overloaded"})
	mock.Enqueue(llm.TextResponse(`{}`), nil)
	svc := newTestService(t, mock)

	results, err := svc.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, mock.CallCount())
}

func TestExtractAttributesMalformedJSONFailsFast(t *testing.T) {
	mock := llm.NewMockChatClient("sorry, I cannot produce filters")
	svc := newTestService(t, mock)

	_, err := svc.ExtractAttributes(context.Background(), "pink dress")
	require.Error(t, err)
	assert.Equal(t, 1, mock.CallCount())
}

func TestBuildFilterScalarNormalization(t *testing.T) {
	f := BuildFilter(map[string]any{"color": "  Pink ", "gender": "Girls"})
	require.NotNil(t, f)
	require.Len(t, f.Must, 2)
	for _, cond := range f.Must {
		assert.Contains(t, []any{"pink", "girls"}, cond.Equals)
	}
}

func TestBuildFilterPriceRange(t *testing.T) {
	f := BuildFilter(map[string]any{"price": map[string]any{"$lte": 2000.0}})
	require.NotNil(t, f)
	require.Len(t, f.Must, 1)
	require.NotNil(t, f.Must[0].Range)
	assert.Equal(t, 2000.0, *f.Must[0].Range.LTE)
}

func TestBuildFilterAgeRangeExpansion(t *testing.T) {
	f := BuildFilter(map[string]any{"age": map[string]any{"$gte": 4.0, "$lte": 8.0}})
	require.NotNil(t, f)
	require.Len(t, f.Must, 2)

	byKey := map[string]vectorstore.Condition{}
	for _, cond := range f.Must {
		byKey[cond.Key] = cond
	}
	require.Contains(t, byKey, "age_max")
	require.Contains(t, byKey, "age_min")
	assert.Equal(t, 8.0, *byKey["age_max"].Range.LTE)
	assert.Equal(t, 4.0, *byKey["age_min"].Range.GTE)
}

func TestBuildFilterAgeExact(t *testing.T) {
	f := BuildFilter(map[string]any{"age": map[string]any{"$eq": 6.0}})
	require.NotNil(t, f)
	require.Len(t, f.Must, 2)

	byKey := map[string]vectorstore.Condition{}
	for _, cond := range f.Must {
		byKey[cond.Key] = cond
	}
	assert.Equal(t, 6.0, *byKey["age_min"].Range.LTE)
	assert.Equal(t, 6.0, *byKey["age_max"].Range.GTE)
}

func TestBuildFilterSkipsNilAndNonNumeric(t *testing.T) {
	f := BuildFilter(map[string]any{
		"color": nil,
		"price": map[string]any{"$lte": "cheap"},
		"age":   map[string]any{"$gte": nil, "$lte": 8.0},
	})
	assert.Nil(t, f)
}

func TestBuildFilterEmpty(t *testing.T) {
	assert.Nil(t, BuildFilter(nil))
	assert.Nil(t, BuildFilter(map[string]any{}))
}
