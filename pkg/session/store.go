package session

import (
	"context"
	"errors"
)

// Common errors for session storage.
var (
	// ErrNotFound is returned when a session doesn't exist or has expired.
	ErrNotFound = errors.New("session not found")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("session store is closed")
)

// Store abstracts session persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save creates or replaces a session's state.
	Save(ctx context.Context, state *State) error

	// Load retrieves a session's state by ID.
	// Returns ErrNotFound if the session doesn't exist.
	Load(ctx context.Context, id string) (*State, error)

	// Delete removes a session. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error

	// IDs returns the IDs of all stored sessions.
	IDs(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}
