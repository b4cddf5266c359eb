package followup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/pkg/session"
)

type scriptedCompleter struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
}

func (s *scriptedCompleter) Complete(_ context.Context, system, user string) (string, error) {
	s.lastSystem = system
	s.lastUser = user
	return s.reply, s.err
}

func TestGenerateParsesJSONArray(t *testing.T) {
	llm := &scriptedCompleter{reply: `["What's your budget?", "Any color preference?", "Is this for a party?"]`}
	g := NewGenerator(llm, zap.NewNop())

	got := g.Generate(context.Background(), nil, nil, nil, 4)
	assert.Equal(t, []string{"What's your budget?", "Any color preference?", "Is this for a party?"}, got)
}

func TestGenerateStripsFencesAndCaps(t *testing.T) {
	llm := &scriptedCompleter{reply: "```json\n[\"Q1?\", \"Q2?\", \"Q3?\", \"Q4?\", \"Q5?\"]\n```"}
	g := NewGenerator(llm, zap.NewNop())

	got := g.Generate(context.Background(), nil, nil, nil, 4)
	assert.Len(t, got, 4)
}

func TestGenerateManualExtraction(t *testing.T) {
	llm := &scriptedCompleter{reply: "Here are some ideas:\n1. What size do you need?\n2. Any brand preference?\nHope that helps!"}
	g := NewGenerator(llm, zap.NewNop())

	got := g.Generate(context.Background(), nil, nil, nil, 4)
	assert.Equal(t, []string{"What size do you need?", "Any brand preference?"}, got)
}

func TestGenerateFallbackOnError(t *testing.T) {
	llm := &scriptedCompleter{err: errors.New("provider down")}
	g := NewGenerator(llm, zap.NewNop())

	got := g.Generate(context.Background(), nil, nil, map[string]any{"color": "pink"}, 4)
	require.NotEmpty(t, got)
	assert.GreaterOrEqual(t, len(got), 2)
	assert.LessOrEqual(t, len(got), 4)
	for _, q := range got {
		assert.NotContains(t, strings.ToLower(q), "color")
	}
}

func TestGeneratePromptIncludesContext(t *testing.T) {
	llm := &scriptedCompleter{reply: `["Q1?", "Q2?"]`}
	g := NewGenerator(llm, zap.NewNop())

	history := []session.Turn{
		{Role: session.RoleUser, Content: "pink dress for birthday"},
		{Role: session.RoleAssistant, Content: "Here are some options."},
	}
	products := []Product{{ID: "PRD1", Title: "Pink Cotton Dress", Price: 1499}}
	constraints := map[string]any{"color": "pink"}

	g.Generate(context.Background(), history, products, constraints, 4)

	assert.Contains(t, llm.lastUser, "USER: pink dress for birthday")
	assert.Contains(t, llm.lastUser, "Pink Cotton Dress")
	assert.Contains(t, llm.lastUser, "₹1499")
	assert.Contains(t, llm.lastUser, `"color": "pink"`)
	assert.Contains(t, llm.lastUser, "DON'T ask about these")
}

func TestGeneratePromptWindowsHistory(t *testing.T) {
	llm := &scriptedCompleter{reply: `["Q1?", "Q2?"]`}
	g := NewGenerator(llm, zap.NewNop())

	var history []session.Turn
	for i := 0; i < 10; i++ {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		history = append(history, session.Turn{Role: role, Content: "turn"})
	}
	history[0].Content = "very old message"
	history[9].Content = "latest message"

	g.Generate(context.Background(), history, nil, nil, 4)

	assert.NotContains(t, llm.lastUser, "very old message")
	assert.Contains(t, llm.lastUser, "latest message")
}

func TestFallbackSkipsKnownConstraints(t *testing.T) {
	got := Fallback(map[string]any{
		"price":    map[string]any{"max": 2000},
		"occasion": "birthday",
		"color":    "pink",
	})
	assert.Equal(t, []string{"Are you looking for any specific brand?"}, got[:1])
	// Only one constraint question remains, so generics pad to at least 2.
	assert.GreaterOrEqual(t, len(got), 2)
}

func TestFallbackAllUnknown(t *testing.T) {
	got := Fallback(nil)
	assert.Equal(t, []string{
		"What's your budget range for this purchase?",
		"What occasion is this for?",
		"Do you have a preferred color?",
		"Are you looking for any specific brand?",
	}, got)
}
