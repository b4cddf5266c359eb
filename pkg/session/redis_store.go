package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis. It provides distributed
// session storage suitable for multi-node deployments; the key TTL
// doubles as a hard backstop for session expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all session keys (default: "vastra:session:").
	Prefix string
	// TTL is the key expiry duration (0 = never expire).
	TTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "vastra:session:"
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
	}, nil
}

// NewRedisStoreFromClient creates a Redis store from an existing
// client. This is useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "vastra:session:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisStore) stateKey(id string) string {
	return r.prefix + "state:" + id
}

func (r *RedisStore) indexKey() string {
	return r.prefix + "ids"
}

func (r *RedisStore) checkClosed() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save creates or replaces a session's state.
func (r *RedisStore) Save(ctx context.Context, state *State) error {
	if err := r.checkClosed(); err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.stateKey(state.ID), data, r.ttl)
	pipe.SAdd(ctx, r.indexKey(), state.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load retrieves a session's state by ID.
func (r *RedisStore) Load(ctx context.Context, id string) (*State, error) {
	if err := r.checkClosed(); err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, r.stateKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// Delete removes a session.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.checkClosed(); err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.stateKey(id))
	pipe.SRem(ctx, r.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// IDs returns the IDs of all stored sessions, pruning index entries
// whose state key has expired out from under them.
func (r *RedisStore) IDs(ctx context.Context) ([]string, error) {
	if err := r.checkClosed(); err != nil {
		return nil, err
	}

	members, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	ids := make([]string, 0, len(members))
	for _, id := range members {
		exists, err := r.client.Exists(ctx, r.stateKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("check session: %w", err)
		}
		if exists == 0 {
			r.client.SRem(ctx, r.indexKey(), id)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close releases the underlying Redis client.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

// Ping checks if the Redis connection is alive.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.checkClosed(); err != nil {
		return err
	}
	return r.client.Ping(ctx).Err()
}
