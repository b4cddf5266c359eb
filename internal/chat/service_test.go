package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/internal/followup"
	"github.com/vastra-ai/vastra/internal/memory"
	"github.com/vastra-ai/vastra/internal/rejection"
	"github.com/vastra-ai/vastra/internal/retrieval"
	"github.com/vastra-ai/vastra/pkg/session"
)

type fakeSearcher struct {
	results  []retrieval.Result
	err      error
	calls    int
	lastTopK int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, topK int) ([]retrieval.Result, error) {
	f.calls++
	f.lastTopK = topK
	return f.results, f.err
}

type scriptedCompleter struct {
	reply string
	err   error
}

func (s *scriptedCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	return s.reply, s.err
}

func product(id, title string, price float64) retrieval.Result {
	return retrieval.Result{
		ID:       id,
		Document: `{"title": "` + title + `"}`,
		Metadata: map[string]any{"price": price, "stock_status": "in_stock"},
	}
}

func newTestService(t *testing.T, searcher Searcher) (*Service, *session.Manager, string) {
	t.Helper()

	sm := session.NewManager(session.NewMemoryStore(), time.Hour, zap.NewNop())
	t.Cleanup(func() { _ = sm.Close() })

	state, err := sm.Create(context.Background())
	require.NoError(t, err)

	mem := memory.NewManager(sm, &scriptedCompleter{reply: `{"color": "pink"}`}, zap.NewNop())
	tracker := rejection.NewTracker(sm, zap.NewNop())
	gen := followup.NewGenerator(&scriptedCompleter{reply: `["What's your budget?", "Any occasion in mind?"]`}, zap.NewNop())
	rec := &scriptedCompleter{reply: `{"response_text": "The pink frock is a great pick!", "recommended_product_ids": ["PRD1", "PRD2"]}`}

	svc := NewService(searcher, sm, mem, tracker, gen, rec, zap.NewNop())
	return svc, sm, state.ID
}

func TestRespondFullTurn(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{results: []retrieval.Result{
		product("PRD1", "Pink Frock", 1499),
		product("PRD2", "Rose Dress", 1899),
	}}
	svc, sm, id := newTestService(t, searcher)

	res := svc.Respond(ctx, id, "pink dress for my daughter")

	assert.Equal(t, "The pink frock is a great pick!", res.ResponseText)
	assert.Equal(t, []string{"PRD1", "PRD2"}, res.RecommendedProductIDs)
	assert.Equal(t, []string{"What's your budget?", "Any occasion in mind?"}, res.FollowUpQuestions)
	assert.Equal(t, id, res.SessionID)

	state, err := sm.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, state.History, 2)
	assert.Equal(t, session.RoleUser, state.History[0].Role)
	assert.Equal(t, session.RoleAssistant, state.History[1].Role)
	assert.True(t, state.Shown.Has("PRD1"))
	assert.True(t, state.Shown.Has("PRD2"))
}

func TestRespondThreeTurnConversation(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{results: []retrieval.Result{
		product("PRD1", "Pink Frock", 1499),
		product("PRD2", "Rose Dress", 1899),
	}}
	svc, sm, id := newTestService(t, searcher)

	svc.Respond(ctx, id, "pink dress")
	svc.Respond(ctx, id, "these are too expensive")
	svc.Respond(ctx, id, "anything under 1000?")

	state, err := sm.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, state.History, 6)
	// "too expensive" rejects everything shown at that point.
	assert.True(t, state.Rejected.Has("PRD1"))
	assert.True(t, state.Rejected.Has("PRD2"))
}

func TestRespondFiltersRejectedFromResults(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{results: []retrieval.Result{
		product("PRD1", "Pink Frock", 1499),
		product("PRD2", "Rose Dress", 1899),
	}}
	svc, sm, id := newTestService(t, searcher)

	svc.Respond(ctx, id, "pink dress")
	svc.Respond(ctx, id, "not PRD1 please")

	state, err := sm.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, state.Rejected.Has("PRD1"))
	assert.False(t, state.Rejected.Has("PRD2"))
}

func TestRespondSearchFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{err: errors.New("vector store down")}
	svc, _, id := newTestService(t, searcher)

	res := svc.Respond(ctx, id, "pink dress")

	assert.Contains(t, res.ResponseText, "I apologize")
	assert.Empty(t, res.RecommendedProductIDs)
	assert.Len(t, res.FollowUpQuestions, 2)
	assert.Equal(t, id, res.SessionID)
}

func TestRespondNoResults(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{}
	svc, _, id := newTestService(t, searcher)

	res := svc.Respond(ctx, id, "unicorn spacesuit")

	assert.Contains(t, res.ResponseText, "couldn't find any products")
	assert.Empty(t, res.RecommendedProductIDs)
}

func TestRespondRecommendationFallback(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{results: []retrieval.Result{
		product("PRD1", "Pink Frock", 1499),
	}}
	svc, sm, id := newTestService(t, searcher)

	// Break only the recommendation completer.
	svc.llm = &scriptedCompleter{err: errors.New("provider down")}

	res := svc.Respond(ctx, id, "pink dress")
	assert.Contains(t, res.ResponseText, "I found 1 products")
	assert.Equal(t, []string{"PRD1"}, res.RecommendedProductIDs)

	state, err := sm.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, state.History, 2)
}

func TestRespondRetrieveCount(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{results: []retrieval.Result{
		product("PRD1", "Pink Frock", 1499),
	}}
	svc, _, id := newTestService(t, searcher)

	svc.Respond(ctx, id, "pink dress")
	assert.Equal(t, 10, searcher.lastTopK)

	svc.SetRetrieveCount(3)
	svc.Respond(ctx, id, "anything cheaper?")
	assert.Equal(t, 3, searcher.lastTopK)

	// Non-positive overrides are ignored.
	svc.SetRetrieveCount(0)
	svc.Respond(ctx, id, "show me more")
	assert.Equal(t, 3, searcher.lastTopK)
}

type countingObserver struct {
	implicit int
}

func (o *countingObserver) ObserveImplicitRejections(count int) {
	o.implicit += count
}

func TestRespondNotifiesObserverOnImplicitRejections(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{results: []retrieval.Result{
		product("PRD1", "Pink Frock", 1499),
		product("PRD2", "Rose Dress", 1899),
	}}
	svc, _, id := newTestService(t, searcher)

	obs := &countingObserver{}
	svc.SetObserver(obs)

	svc.Respond(ctx, id, "pink dress")
	assert.Equal(t, 0, obs.implicit)

	// "too expensive" rejects both shown products.
	svc.Respond(ctx, id, "these are too expensive")
	assert.Equal(t, 2, obs.implicit)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "₹999", FormatPrice(999))
	assert.Equal(t, "₹1,499", FormatPrice(1499))
	assert.Equal(t, "₹12,500", FormatPrice(12500))
	assert.Equal(t, "₹1,250,000", FormatPrice(1250000))
}
