package session

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"salonbot/internal/model"

	"github.com/redis/go-redis/v9"
)

// History keeps a sliding window of recent turns per user.
type History interface {
	Append(ctx context.Context, userID int64, turn model.Turn) error
	Recent(ctx context.Context, userID int64) ([]model.Turn, error)
	Clear(ctx context.Context, userID int64) error
}

// MemoryHistory keeps turns in process memory.
type MemoryHistory struct {
	limit int
	mu    sync.Mutex
	turns map[int64][]model.Turn
}

func NewMemoryHistory(limit int) *MemoryHistory {
	return &MemoryHistory{limit: limit, turns: make(map[int64][]model.Turn)}
}

func (h *MemoryHistory) Append(_ context.Context, userID int64, turn model.Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := append(h.turns[userID], turn)
	if len(turns) > h.limit {
		turns = append([]model.Turn(nil), turns[len(turns)-h.limit:]...)
	}
	h.turns[userID] = turns
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, userID int64) ([]model.Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.Turn(nil), h.turns[userID]...), nil
}

func (h *MemoryHistory) Clear(_ context.Context, userID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.turns, userID)
	return nil
}

// RedisHistory keeps turns in a capped Redis list.
type RedisHistory struct {
	client *redis.Client
	limit  int
	prefix string
}

func NewRedisHistory(client *redis.Client, limit int) *RedisHistory {
	return &RedisHistory{client: client, limit: limit, prefix: "salonbot:history:"}
}

func (h *RedisHistory) key(userID int64) string {
	return h.prefix + strconv.FormatInt(userID, 10)
}

func (h *RedisHistory) Append(ctx context.Context, userID int64, turn model.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	key := h.key(userID)
	pipe := h.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-h.limit), -1)
	_, err = pipe.Exec(ctx)
	return err
}

func (h *RedisHistory) Recent(ctx context.Context, userID int64) ([]model.Turn, error) {
	vals, err := h.client.LRange(ctx, h.key(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	turns := make([]model.Turn, 0, len(vals))
	for _, v := range vals {
		var t model.Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (h *RedisHistory) Clear(ctx context.Context, userID int64) error {
	return h.client.Del(ctx, h.key(userID)).Err()
}
