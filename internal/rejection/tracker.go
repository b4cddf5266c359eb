// Package rejection tracks which products a session has seen and
// refused, and detects refusals implied by conversational phrasing.
package rejection

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/vastra-ai/vastra/pkg/session"
)

// Ordinal references pick out one product by display position.
var ordinalPatterns = []struct {
	re    *regexp.Regexp
	index int
}{
	{regexp.MustCompile(`\bnot\s+(?:the\s+)?first\b`), 0},
	{regexp.MustCompile(`\bnot\s+(?:the\s+)?second\b`), 1},
	{regexp.MustCompile(`\bnot\s+(?:the\s+)?third\b`), 2},
	{regexp.MustCompile(`\bnot\s+(?:the\s+)?fourth\b`), 3},
	{regexp.MustCompile(`\bnot\s+(?:the\s+)?fifth\b`), 4},
}

// Each phrase class rejects everything recently shown; within a class
// the first matching phrase wins.
var (
	dismissalPhrases = []*regexp.Regexp{
		regexp.MustCompile(`\bnot\s+these\b`),
		regexp.MustCompile(`\bshow\s+different\b`),
		regexp.MustCompile(`\bsomething\s+else\b`),
		regexp.MustCompile(`\bother\s+options\b`),
		regexp.MustCompile(`\bdifferent\s+ones\b`),
		regexp.MustCompile(`\bnot\s+interested\b`),
		regexp.MustCompile(`\bdon't\s+like\b`),
	}
	pricePhrases = []*regexp.Regexp{
		regexp.MustCompile(`\btoo\s+expensive\b`),
		regexp.MustCompile(`\btoo\s+costly\b`),
		regexp.MustCompile(`\bcheaper\b`),
		regexp.MustCompile(`\bless\s+expensive\b`),
		regexp.MustCompile(`\blower\s+price\b`),
	}
	stylePhrases = []*regexp.Regexp{
		regexp.MustCompile(`\bdifferent\s+color\b`),
		regexp.MustCompile(`\bother\s+colors?\b`),
		regexp.MustCompile(`\bnot\s+this\s+color\b`),
		regexp.MustCompile(`\bdifferent\s+style\b`),
	}
	// "not PRD123" or "except PRD123".
	explicitIDPattern = regexp.MustCompile(`(?i)\b(?:not|except)\s+(PRD\d+)\b`)
)

// Stats summarizes rejection activity for one session.
type Stats struct {
	ShownCount    int      `json:"shown_count"`
	RejectedCount int      `json:"rejected_count"`
	RejectionRate float64  `json:"rejection_rate"`
	RejectedIDs   []string `json:"rejected_product_ids"`
}

// Tracker records shown and rejected products in session state.
type Tracker struct {
	sessions *session.Manager
	log      *zap.Logger
}

// NewTracker creates a tracker over the given session manager.
func NewTracker(sessions *session.Manager, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{sessions: sessions, log: log}
}

// MarkShown records products as presented to the user. Unknown
// sessions are a logged no-op.
func (t *Tracker) MarkShown(ctx context.Context, sessionID string, productIDs []string) {
	state, err := t.sessions.Get(ctx, sessionID)
	if err != nil {
		t.log.Warn("cannot mark shown for non-existent session", zap.String("session_id", sessionID))
		return
	}
	state.Shown.Add(productIDs...)
	if err := t.sessions.Update(ctx, sessionID, state); err != nil {
		t.log.Warn("mark shown", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// MarkRejected records products the user refused.
func (t *Tracker) MarkRejected(ctx context.Context, sessionID string, productIDs []string) {
	if len(productIDs) == 0 {
		return
	}
	state, err := t.sessions.Get(ctx, sessionID)
	if err != nil {
		t.log.Warn("cannot mark rejected for non-existent session", zap.String("session_id", sessionID))
		return
	}
	state.Rejected.Add(productIDs...)
	if err := t.sessions.Update(ctx, sessionID, state); err != nil {
		t.log.Warn("mark rejected", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	t.log.Info("marked products rejected",
		zap.String("session_id", sessionID),
		zap.Int("count", len(productIDs)))
}

// DetectImplicit scans a user message for refusal phrasing and returns
// the product IDs it implies, in detection order without duplicates.
// recentlyShown is the display-ordered list the ordinals refer to.
func (t *Tracker) DetectImplicit(ctx context.Context, sessionID, message string, recentlyShown []string) []string {
	if _, err := t.sessions.Get(ctx, sessionID); err != nil {
		return nil
	}
	return Detect(message, recentlyShown)
}

// Detect is the session-independent core of implicit rejection
// detection.
func Detect(message string, recentlyShown []string) []string {
	lower := strings.ToLower(strings.TrimSpace(message))

	var rejected []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		rejected = append(rejected, id)
	}
	addAllRecent := func() {
		for _, id := range recentlyShown {
			add(id)
		}
	}

	for _, p := range ordinalPatterns {
		if p.re.MatchString(lower) && p.index < len(recentlyShown) {
			add(recentlyShown[p.index])
		}
	}

	for _, phrases := range [][]*regexp.Regexp{dismissalPhrases, pricePhrases, stylePhrases} {
		for _, phrase := range phrases {
			if phrase.MatchString(lower) {
				addAllRecent()
				break
			}
		}
	}

	for _, m := range explicitIDPattern.FindAllStringSubmatch(message, -1) {
		add(strings.ToUpper(m[1]))
	}

	return rejected
}

// Filter removes rejected products from the candidate list, preserving
// order. It is idempotent.
func (t *Tracker) Filter(ctx context.Context, sessionID string, productIDs []string) []string {
	state, err := t.sessions.Get(ctx, sessionID)
	if err != nil || len(state.Rejected) == 0 {
		return productIDs
	}

	filtered := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		if !state.Rejected.Has(id) {
			filtered = append(filtered, id)
		}
	}
	if removed := len(productIDs) - len(filtered); removed > 0 {
		t.log.Info("filtered rejected products",
			zap.String("session_id", sessionID),
			zap.Int("removed", removed))
	}
	return filtered
}

// Stats reports rejection counts for a session. Unknown sessions
// return zero stats.
func (t *Tracker) Stats(ctx context.Context, sessionID string) Stats {
	state, err := t.sessions.Get(ctx, sessionID)
	if err != nil {
		return Stats{}
	}

	stats := Stats{
		ShownCount:    len(state.Shown),
		RejectedCount: len(state.Rejected),
		RejectedIDs:   state.Rejected.Values(),
	}
	if stats.ShownCount > 0 {
		stats.RejectionRate = float64(stats.RejectedCount) / float64(stats.ShownCount)
	}
	return stats
}

// Shown returns the sorted set of products the session has seen.
func (t *Tracker) Shown(ctx context.Context, sessionID string) []string {
	state, err := t.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil
	}
	return state.Shown.Values()
}

// Rejected returns the sorted set of products the session refused.
func (t *Tracker) Rejected(ctx context.Context, sessionID string) []string {
	state, err := t.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil
	}
	return state.Rejected.Values()
}
