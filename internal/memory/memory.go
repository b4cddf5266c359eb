// Package memory manages per-session conversation history and derives
// accumulated search constraints from it.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/internal/llm"
	"github.com/vastra-ai/vastra/pkg/session"
)

const constraintSystemPrompt = `You are a constraint extraction assistant.
Analyze the conversation history and extract ALL product search constraints mentioned.

Extract the following types of constraints:
1. **Price**: min/max price mentioned across all turns
2. **Color**: any color preferences or exclusions
3. **Brand**: preferred or excluded brands
4. **Category/Type**: product type narrowing (e.g., "casual" -> "party wear")
5. **Occasion**: birthday, wedding, casual, etc.
6. **Age/Size**: age group or size preferences
7. **Gender**: boys, girls, unisex
8. **Features**: specific features (sleeves, pockets, etc.)
9. **Exclusions**: things to avoid (e.g., "not red", "no party wear")

Return ONLY valid JSON in this format:
{
  "price": {"min": 1000, "max": 5000},
  "color": "pink",
  "excluded_colors": ["red", "black"],
  "brand": "H&M",
  "occasion": "birthday",
  "age_group": "2-3Y",
  "gender": "girls",
  "features": {"sleeve_type": "full_sleeve"},
  "exclusions": ["party wear", "sleeveless"]
}

If a constraint is not mentioned, omit it from the JSON.`

// Completer is the LLM surface this package needs.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Manager appends conversation turns to session state and extracts
// accumulated constraints with an LLM, caching the result per session.
type Manager struct {
	sessions *session.Manager
	llm      Completer
	log      *zap.Logger
}

// NewManager creates a conversation memory manager. llm may be nil, in
// which case constraint extraction always returns empty constraints.
func NewManager(sessions *session.Manager, llm Completer, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{sessions: sessions, llm: llm, log: log}
}

// AddUserTurn appends a user message to the session history. Unknown
// sessions are a logged no-op.
func (m *Manager) AddUserTurn(ctx context.Context, sessionID, message string) {
	m.addTurn(ctx, sessionID, session.Turn{Role: session.RoleUser, Content: message})
}

// AddAssistantTurn appends an assistant message to the session history.
func (m *Manager) AddAssistantTurn(ctx context.Context, sessionID, message string) {
	m.addTurn(ctx, sessionID, session.Turn{Role: session.RoleAssistant, Content: message})
}

func (m *Manager) addTurn(ctx context.Context, sessionID string, turn session.Turn) {
	state, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		m.log.Warn("cannot add turn to non-existent session", zap.String("session_id", sessionID))
		return
	}
	state.History = append(state.History, turn)
	if err := m.sessions.Update(ctx, sessionID, state); err != nil {
		m.log.Warn("persist turn", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// History returns the session's full conversation history, or nil for
// unknown sessions.
func (m *Manager) History(ctx context.Context, sessionID string) []session.Turn {
	state, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil
	}
	return state.History
}

// ExtractConstraints derives accumulated search constraints from the
// conversation. Cached constraints are returned without another LLM
// call; extraction failures degrade to empty constraints.
func (m *Manager) ExtractConstraints(ctx context.Context, sessionID string) map[string]any {
	if m.llm == nil {
		m.log.Warn("no LLM available for constraint extraction")
		return map[string]any{}
	}

	state, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return map[string]any{}
	}
	if len(state.History) == 0 {
		return map[string]any{}
	}
	if len(state.Constraints) > 0 {
		return state.Constraints
	}

	userPrompt := fmt.Sprintf("Conversation History:\n%s\n\nExtract all constraints as JSON:",
		formatHistory(state.History))

	text, err := m.llm.Complete(ctx, constraintSystemPrompt, userPrompt)
	if err != nil {
		m.log.Error("constraint extraction failed", zap.String("session_id", sessionID), zap.Error(err))
		return map[string]any{}
	}

	raw, err := llm.ExtractObject(text)
	if err != nil {
		m.log.Error("constraint extraction returned no JSON", zap.String("session_id", sessionID))
		return map[string]any{}
	}

	var constraints map[string]any
	if err := json.Unmarshal([]byte(raw), &constraints); err != nil {
		m.log.Error("parse extracted constraints", zap.String("session_id", sessionID), zap.Error(err))
		return map[string]any{}
	}

	state.Constraints = constraints
	if err := m.sessions.Update(ctx, sessionID, state); err != nil {
		m.log.Warn("cache constraints", zap.String("session_id", sessionID), zap.Error(err))
	}

	m.log.Info("extracted constraints",
		zap.String("session_id", sessionID),
		zap.Int("count", len(constraints)))
	return constraints
}

func formatHistory(history []session.Turn) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		lines = append(lines, strings.ToUpper(string(turn.Role))+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}
