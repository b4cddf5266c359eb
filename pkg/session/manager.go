package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTimeout is how long an idle session stays reachable.
const DefaultTimeout = time.Hour

// Manager owns session lifecycle: creation, lookup with lazy expiry,
// updates, deletion, and periodic sweeps of idle sessions.
// Manager is safe for concurrent use.
type Manager struct {
	store   Store
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// NewManager creates a session manager over the given store.
// A timeout of zero falls back to DefaultTimeout.
func NewManager(store Store, timeout time.Duration, log *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:   store,
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// Create generates a fresh session and returns its state.
func (m *Manager) Create(ctx context.Context) (*State, error) {
	state := newState(uuid.New().String(), m.now().UTC())
	if err := m.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	m.log.Info("created session", zap.String("session_id", state.ID))
	return state, nil
}

// Get returns the session if present and not expired. An expired
// session is evicted and reported as ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*State, error) {
	state, err := m.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.log.Warn("session not found", zap.String("session_id", id))
		}
		return nil, err
	}

	if m.expired(state) {
		m.log.Info("session expired", zap.String("session_id", id))
		if err := m.store.Delete(ctx, id); err != nil {
			m.log.Warn("evict expired session", zap.String("session_id", id), zap.Error(err))
		}
		return nil, ErrNotFound
	}
	return state, nil
}

// Update replaces the stored state and refreshes its last-updated
// timestamp. Updating an unknown session logs a warning and is a no-op.
func (m *Manager) Update(ctx context.Context, id string, state *State) error {
	if _, err := m.store.Load(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			m.log.Warn("cannot update non-existent session", zap.String("session_id", id))
			return nil
		}
		return fmt.Errorf("update session: %w", err)
	}

	state.LastUpdated = m.now().UTC()
	if err := m.store.Save(ctx, state); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Delete removes the session unconditionally.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.log.Info("deleted session", zap.String("session_id", id))
	return nil
}

// Sweep removes all sessions idle past the timeout and returns the
// number removed. Intended to run on a periodic ticker.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	ids, err := m.store.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}

	removed := 0
	for _, id := range ids {
		state, err := m.store.Load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return removed, fmt.Errorf("sweep sessions: %w", err)
		}
		if m.expired(state) {
			if err := m.store.Delete(ctx, id); err != nil {
				return removed, fmt.Errorf("sweep sessions: %w", err)
			}
			removed++
		}
	}

	if removed > 0 {
		m.log.Info("swept expired sessions", zap.Int("removed", removed))
	}
	return removed, nil
}

// Stats returns counts for the session, or ErrNotFound if it is gone.
func (m *Manager) Stats(ctx context.Context, id string) (Stats, error) {
	state, err := m.Get(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TurnCount:       len(state.History),
		ShownCount:      len(state.Shown),
		RejectedCount:   len(state.Rejected),
		ConstraintCount: len(state.Constraints),
		AgeSeconds:      m.now().UTC().Sub(state.CreatedAt).Seconds(),
	}, nil
}

// Count returns the number of stored sessions, expired or not.
func (m *Manager) Count(ctx context.Context) (int, error) {
	ids, err := m.store.IDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// IDs returns all stored session IDs.
func (m *Manager) IDs(ctx context.Context) ([]string, error) {
	return m.store.IDs(ctx)
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) expired(state *State) bool {
	return m.now().UTC().Sub(state.LastUpdated) > m.timeout
}
