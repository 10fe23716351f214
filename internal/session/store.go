// Package session stores dialogue sessions and conversation history and expires idle users.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"salonbot/internal/model"

	"github.com/redis/go-redis/v9"
)

// Store is the session persistence boundary. GetSession returns nil when the user has no session.
type Store interface {
	GetSession(ctx context.Context, userID int64) (*model.Session, error)
	PutSession(ctx context.Context, s *model.Session) error
	DeleteSession(ctx context.Context, userID int64) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]model.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]model.Session)}
}

func (m *MemoryStore) GetSession(_ context.Context, userID int64) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	return clone(&s), nil
}

func (m *MemoryStore) PutSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = *clone(s)
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// clone copies the session so callers never share the ambiguity slice.
func clone(s *model.Session) *model.Session {
	c := *s
	if s.Ambiguity != nil {
		a := *s.Ambiguity
		a.CandidateIDs = append([]int64(nil), s.Ambiguity.CandidateIDs...)
		c.Ambiguity = &a
	}
	return &c
}

// RedisStore keeps sessions as JSON values with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. ttl of zero keeps keys forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "salonbot:session:", ttl: ttl}
}

func (r *RedisStore) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

func (r *RedisStore) GetSession(ctx context.Context, userID int64) (*model.Session, error) {
	val, err := r.client.Get(ctx, r.key(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s model.Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("decode session %d: %w", userID, err)
	}
	return &s, nil
}

func (r *RedisStore) PutSession(ctx context.Context, s *model.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", s.UserID, err)
	}
	return r.client.Set(ctx, r.key(s.UserID), data, r.ttl).Err()
}

func (r *RedisStore) DeleteSession(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}
