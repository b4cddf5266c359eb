package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/internal/catalog"
	"github.com/vastra-ai/vastra/internal/chat"
	"github.com/vastra-ai/vastra/internal/followup"
	"github.com/vastra-ai/vastra/internal/memory"
	"github.com/vastra-ai/vastra/internal/observability"
	"github.com/vastra-ai/vastra/internal/rejection"
	"github.com/vastra-ai/vastra/internal/retrieval"
	"github.com/vastra-ai/vastra/pkg/session"
)

type fakeSearcher struct {
	results []retrieval.Result
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ int) ([]retrieval.Result, error) {
	return f.results, f.err
}

type scriptedCompleter struct {
	reply string
}

func (s *scriptedCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	return s.reply, nil
}

type fakeCatalog struct {
	products   map[string]catalog.Product
	categories []catalog.Category
}

func (f *fakeCatalog) List(_ context.Context, params catalog.ListParams) (*catalog.ListResult, error) {
	if len(params.Filters) > 0 && params.CategoryID == nil {
		return nil, catalog.ErrBadFilter
	}
	var products []catalog.Product
	for _, p := range f.products {
		products = append(products, p)
	}
	return &catalog.ListResult{Products: products, Total: len(products), Page: 1, PageSize: 12}, nil
}

func (f *fakeCatalog) Get(_ context.Context, id string) (*catalog.ProductDetail, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &catalog.ProductDetail{Product: p}, nil
}

func (f *fakeCatalog) GetBatch(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) Filters(_ context.Context, categoryID int) (*catalog.FiltersResult, error) {
	if categoryID != 1 {
		return nil, catalog.ErrNotFound
	}
	return &catalog.FiltersResult{
		Category: catalog.Category{ID: 1, Name: "Dresses"},
		Filters: []catalog.FilterConfig{
			{AttributeName: "color", DataType: catalog.TypeEnum, FilterType: "multi_select"},
		},
	}, nil
}

func (f *fakeCatalog) Categories(_ context.Context) ([]catalog.Category, error) {
	return f.categories, nil
}

func (f *fakeCatalog) Ping(_ context.Context) error { return nil }
func (f *fakeCatalog) Close()                       {}

func searchDoc(id, title string, price float64) retrieval.Result {
	return retrieval.Result{
		ID:       id,
		Document: `{"title": "` + title + `"}`,
		Metadata: map[string]any{"price": price, "stock_status": "in_stock", "brand": "acme"},
	}
}

func newTestServer(t *testing.T) (*Server, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sm := session.NewManager(session.NewMemoryStore(), time.Hour, zap.NewNop())
	t.Cleanup(func() { _ = sm.Close() })

	searcher := &fakeSearcher{results: []retrieval.Result{
		searchDoc("PRD1", "Pink Frock", 1499),
		searchDoc("PRD2", "Rose Dress", 1899),
	}}

	mem := memory.NewManager(sm, &scriptedCompleter{reply: `{"color": "pink"}`}, zap.NewNop())
	tracker := rejection.NewTracker(sm, zap.NewNop())
	gen := followup.NewGenerator(&scriptedCompleter{reply: `["What's your budget?", "Any occasion?"]`}, zap.NewNop())
	rec := &scriptedCompleter{reply: `{"response_text": "The pink frock stands out!", "recommended_product_ids": ["PRD1", "PRD2"]}`}
	chatSvc := chat.NewService(searcher, sm, mem, tracker, gen, rec, zap.NewNop())

	cat := &fakeCatalog{
		products: map[string]catalog.Product{
			"PRD1": {ProductID: "PRD1", Title: "Pink Frock", Price: 1499, Currency: "INR"},
			"PRD2": {ProductID: "PRD2", Title: "Rose Dress", Price: 1899, Currency: "INR"},
		},
		categories: []catalog.Category{{ID: 1, Name: "Dresses"}},
	}

	srv := New(Options{
		Addr:     ":0",
		Sessions: sm,
		Chat:     chatSvc,
		Search:   searcher,
		Catalog:  cat,
		Metrics:  observability.New(),
		Log:      zap.NewNop(),
	})
	return srv, sm
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestSearchConversationalCreatesSession(t *testing.T) {
	srv, sm := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/search", gin.H{"query": "pink dress"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "The pink frock stands out!", resp.ResponseText)
	require.Len(t, resp.RecommendedProducts, 2)
	assert.Equal(t, "PRD1", resp.RecommendedProducts[0].ProductID)
	assert.Equal(t, []string{"What's your budget?", "Any occasion?"}, resp.FollowUpQuestions)

	state, err := sm.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Len(t, state.History, 2)
}

func TestSearchReusesSession(t *testing.T) {
	srv, sm := newTestServer(t)

	state, err := sm.Create(context.Background())
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/search", gin.H{"query": "pink dress", "session_id": state.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, state.ID, resp.SessionID)
}

func TestSearchStatelessMode(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/search", gin.H{"query": "pink dress", "stateless": true})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Empty(t, resp.SessionID)
	require.Len(t, resp.Products, 2)
	assert.Equal(t, "Pink Frock", resp.Products[0].Title)
	assert.Equal(t, "₹1,499", resp.Products[0].Price)
	assert.Len(t, resp.FollowUpQuestions, 2)
}

func TestSearchMissingQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/search", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchStatelessFailureSetsSuccessFalse(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.search = &fakeSearcher{err: context.DeadlineExceeded}

	rec := doJSON(t, srv, http.MethodPost, "/search", gin.H{"query": "x", "stateless": true})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.ErrorMessage)
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/session", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)

	rec = doJSON(t, srv, http.MethodGet, "/session/"+created.SessionID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/session/"+created.SessionID+"/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/session/"+created.SessionID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/session/"+created.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/session/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchProducts(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/products/batch", []string{"PRD1", "missing"})
	require.Equal(t, http.StatusOK, rec.Code)

	var products []catalog.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 1)
	assert.Equal(t, "PRD1", products[0].ProductID)
}

func TestGetProduct(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/products/PRD1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/products/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFiltersRequireCategoryID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/filters", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/filters?category_id=1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/filters?category_id=99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCategories(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Dresses")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/search", gin.H{"query": "pink dress", "stateless": true})
	rec := doJSON(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vastra_search_turns_total")
}

func TestFormatPriceWithDiscount(t *testing.T) {
	assert.Equal(t, "₹1,499 (25% off)", formatPrice(map[string]any{"price": 1499.0, "mrp": 1999.0}))
	assert.Equal(t, "₹1,499", formatPrice(map[string]any{"price": 1499.0}))
	assert.Equal(t, "Price not available", formatPrice(map[string]any{}))
}

func TestExtractKeyFeatures(t *testing.T) {
	features := extractKeyFeatures(map[string]any{
		"brand":        "acme kids",
		"stock_status": "in_stock",
		"color":        "pink",
		"size":         "m",
		"occasion":     "party",
	})
	assert.Len(t, features, 4)
	assert.Equal(t, "Brand: Acme Kids", features[0])
	assert.Equal(t, "Stock: In Stock", features[1])
}
