// Package session provides conversation session state for the Vastra
// product-search agent. A session tracks turn history, the products a
// user has been shown, the products they have rejected, and the
// constraints accumulated across the conversation.
package session

import (
	"encoding/json"
	"sort"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn written by the agent.
	RoleAssistant Role = "assistant"
)

// Turn is a single message within a session's history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// StringSet is an unordered set of strings that serializes as a sorted
// JSON array so session state round-trips through Redis cleanly.
type StringSet map[string]struct{}

// NewStringSet builds a set from the given values.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	s.Add(values...)
	return s
}

// Add inserts values into the set. Duplicate inserts are no-ops.
func (s StringSet) Add(values ...string) {
	for _, v := range values {
		s[v] = struct{}{}
	}
}

// Has reports whether v is in the set.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Values returns the set's members in sorted order.
func (s StringSet) Values() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON decodes the set from an array.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewStringSet(values...)
	return nil
}

// State holds everything the agent remembers about one conversation.
//
// State is a value that callers read with Manager.Get, mutate locally,
// and persist with Manager.Update. Two concurrent read-modify-write
// cycles on the same session resolve last-writer-wins; the manager
// does not provide atomicity across the cycle.
type State struct {
	// ID is the opaque session token.
	ID string `json:"id"`
	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`
	// LastUpdated is refreshed on every Update and drives expiry.
	LastUpdated time.Time `json:"last_updated"`
	// History is the ordered turn sequence.
	History []Turn `json:"history"`
	// Shown is the set of product IDs presented to the user so far.
	Shown StringSet `json:"shown_products"`
	// Rejected is the set of product IDs the user has declined.
	Rejected StringSet `json:"rejected_products"`
	// Constraints is the cached constraint mapping distilled from the
	// history. Values may be scalars, {min,max} ranges, or lists.
	Constraints map[string]any `json:"constraints"`
	// Metadata carries free-form per-session data.
	Metadata map[string]any `json:"metadata"`
}

func newState(id string, now time.Time) *State {
	return &State{
		ID:          id,
		CreatedAt:   now,
		LastUpdated: now,
		History:     make([]Turn, 0),
		Shown:       make(StringSet),
		Rejected:    make(StringSet),
		Constraints: make(map[string]any),
		Metadata:    make(map[string]any),
	}
}

// Clone returns a deep copy of the state. History, sets, and the
// constraint map are copied; constraint values themselves are shared.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	cp := &State{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		LastUpdated: s.LastUpdated,
		History:     make([]Turn, len(s.History)),
		Shown:       make(StringSet, len(s.Shown)),
		Rejected:    make(StringSet, len(s.Rejected)),
		Constraints: make(map[string]any, len(s.Constraints)),
		Metadata:    make(map[string]any, len(s.Metadata)),
	}
	copy(cp.History, s.History)
	for v := range s.Shown {
		cp.Shown[v] = struct{}{}
	}
	for v := range s.Rejected {
		cp.Rejected[v] = struct{}{}
	}
	for k, v := range s.Constraints {
		cp.Constraints[k] = v
	}
	for k, v := range s.Metadata {
		cp.Metadata[k] = v
	}
	return cp
}

// Stats summarizes a session for the admin surface.
type Stats struct {
	TurnCount       int     `json:"turn_count"`
	ShownCount      int     `json:"shown_count"`
	RejectedCount   int     `json:"rejected_count"`
	ConstraintCount int     `json:"constraint_count"`
	AgeSeconds      float64 `json:"age_seconds"`
}
