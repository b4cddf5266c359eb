// Package followup generates context-aware follow-up questions that
// help the user narrow a product search.
package followup

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/internal/llm"
	"github.com/vastra-ai/vastra/pkg/session"
)

// DefaultMaxQuestions caps how many questions one response carries.
const DefaultMaxQuestions = 4

const systemPrompt = `You are a follow-up question generator for a product search assistant.

Your task is to generate 2-4 follow-up questions that help the user narrow down their search.

RULES:
1. **Don't repeat known constraints**: If we already know the color is pink, don't ask about color
2. **Progressive narrowing**: Ask questions that refine the search further
3. **Relevant to products shown**: Base questions on the current product results
4. **Natural and conversational**: Questions should feel helpful, not interrogative
5. **Actionable**: Each question should lead to a more specific search

QUESTION TYPES (in order of priority):
1. **Refinement**: Price range, specific features, size/age
2. **Alternatives**: Different colors, brands, styles
3. **Context**: Occasion, recipient, preferences
4. **Related**: Similar categories or complementary items

Return ONLY a JSON array of questions:
["Question 1?", "Question 2?", "Question 3?", "Question 4?"]

No markdown, no explanations, just the JSON array.`

// Product is the summary of one shown product the prompt includes.
type Product struct {
	ID    string
	Title string
	Price float64
}

// Generator produces follow-up questions from conversation context,
// with a deterministic fallback when the LLM is unavailable.
type Generator struct {
	llm Completer
	log *zap.Logger
}

// Completer is the LLM surface this package needs.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// NewGenerator creates a follow-up question generator.
func NewGenerator(llm Completer, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{llm: llm, log: log}
}

// Generate returns between 2 and maxQuestions follow-up questions.
// LLM failures fall back to generic questions about whichever
// constraints are still unknown.
func (g *Generator) Generate(
	ctx context.Context,
	history []session.Turn,
	products []Product,
	constraints map[string]any,
	maxQuestions int,
) []string {
	if maxQuestions <= 0 {
		maxQuestions = DefaultMaxQuestions
	}

	if g.llm == nil {
		return capQuestions(Fallback(constraints), maxQuestions)
	}

	text, err := g.llm.Complete(ctx, systemPrompt, buildUserPrompt(history, products, constraints))
	if err != nil {
		g.log.Error("follow-up generation failed", zap.Error(err))
		return capQuestions(Fallback(constraints), maxQuestions)
	}

	questions := parseQuestions(text)
	if len(questions) == 0 {
		g.log.Warn("follow-up generation produced no questions")
		return capQuestions(Fallback(constraints), maxQuestions)
	}
	return capQuestions(questions, maxQuestions)
}

func buildUserPrompt(history []session.Turn, products []Product, constraints map[string]any) string {
	// Last 3 exchanges (6 turns) keep the prompt focused.
	recent := history
	if len(recent) > 6 {
		recent = recent[len(recent)-6:]
	}
	historyLines := make([]string, 0, len(recent))
	for _, turn := range recent {
		historyLines = append(historyLines, strings.ToUpper(string(turn.Role))+": "+turn.Content)
	}

	shown := products
	if len(shown) > 5 {
		shown = shown[:5]
	}
	productLines := make([]string, 0, len(shown))
	for _, p := range shown {
		productLines = append(productLines, fmt.Sprintf("- %s (₹%.0f)", p.Title, p.Price))
	}

	constraintsText := "None"
	if len(constraints) > 0 {
		if data, err := json.MarshalIndent(constraints, "", "  "); err == nil {
			constraintsText = string(data)
		}
	}

	return fmt.Sprintf(`Recent Conversation:
%s

Products Shown:
%s

Known Constraints (DON'T ask about these):
%s

Generate 2-4 follow-up questions as JSON array:`,
		strings.Join(historyLines, "\n"),
		strings.Join(productLines, "\n"),
		constraintsText)
}

var listMarker = regexp.MustCompile(`^[\d\-\*•]+[\.\)]?\s*`)

func parseQuestions(text string) []string {
	raw, err := llm.ExtractArray(text)
	if err == nil {
		var items []string
		if json.Unmarshal([]byte(raw), &items) == nil {
			questions := make([]string, 0, len(items))
			for _, q := range items {
				if strings.TrimSpace(q) != "" {
					questions = append(questions, q)
				}
			}
			return questions
		}
	}

	// Fallback: pull out lines that read like questions.
	var questions []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(line, `"'`)
		if strings.HasSuffix(line, "?") {
			questions = append(questions, line)
		}
	}
	return capQuestions(questions, DefaultMaxQuestions)
}

// Fallback builds generic questions about constraints not yet known.
func Fallback(constraints map[string]any) []string {
	var questions []string

	if _, ok := constraints["price"]; !ok {
		questions = append(questions, "What's your budget range for this purchase?")
	}
	if _, ok := constraints["occasion"]; !ok {
		questions = append(questions, "What occasion is this for?")
	}
	if _, ok := constraints["color"]; !ok {
		questions = append(questions, "Do you have a preferred color?")
	}
	if _, ok := constraints["brand"]; !ok {
		questions = append(questions, "Are you looking for any specific brand?")
	}

	if len(questions) < 2 {
		questions = append(questions,
			"Would you like to see more options?",
			"Do you need help with size selection?",
		)
	}
	return capQuestions(questions, DefaultMaxQuestions)
}

func capQuestions(questions []string, max int) []string {
	if len(questions) > max {
		return questions[:max]
	}
	return questions
}
