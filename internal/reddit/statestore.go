package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStateNotFound means the handshake state expired or never existed
var ErrStateNotFound = errors.New("reddit: oauth state not found or expired")

// PendingAuthState is the server-side half of an in-flight OAuth
// handshake, keyed by the random state token sent to the browser.
type PendingAuthState struct {
	ProjectID uint      `json:"project_id"`
	AccountID uint      `json:"account_id"` // Zero when linking a brand-new account
	CreatedAt time.Time `json:"created_at"`
}

// StateStore holds pending OAuth handshake states with a TTL so an
// abandoned handshake cleans itself up.
type StateStore interface {
	Put(ctx context.Context, state string, pending PendingAuthState, ttl time.Duration) error
	// Take retrieves and deletes the state, so a state token is usable
	// exactly once.
	Take(ctx context.Context, state string) (*PendingAuthState, error)
}

// RedisStateStore keeps handshake state in Redis, letting multiple
// processes share one handshake flow.
type RedisStateStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStateStore creates a Redis-backed state store
func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client, prefix: "oauth_state:"}
}

func (s *RedisStateStore) Put(ctx context.Context, state string, pending PendingAuthState, ttl time.Duration) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal auth state: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+state, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store auth state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Take(ctx context.Context, state string) (*PendingAuthState, error) {
	data, err := s.client.GetDel(ctx, s.prefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read auth state: %w", err)
	}

	var pending PendingAuthState
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auth state: %w", err)
	}
	return &pending, nil
}

// MemoryStateStore is the single-process fallback when Redis is not
// configured.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	pending   PendingAuthState
	expiresAt time.Time
}

// NewMemoryStateStore creates an in-memory state store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStateStore) Put(_ context.Context, state string, pending PendingAuthState, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
	s.entries[state] = memoryEntry{pending: pending, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStateStore) Take(_ context.Context, state string) (*PendingAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return nil, ErrStateNotFound
	}
	delete(s.entries, state)
	if time.Now().After(entry.expiresAt) {
		return nil, ErrStateNotFound
	}
	pending := entry.pending
	return &pending, nil
}
