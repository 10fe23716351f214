// Package catalog resolves free-text service terms against the service catalog.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"salonbot/internal/model"

	"github.com/redis/go-redis/v9"
)

// Source is the read side of the service table.
type Source interface {
	SearchServices(ctx context.Context, term string) ([]model.Service, error)
	GetServiceByID(ctx context.Context, id int64) (*model.Service, error)
	GetServiceByName(ctx context.Context, name string) (*model.Service, error)
	ListActiveServices(ctx context.Context) ([]model.Service, error)
}

// Lookup reads the catalog with an optional Redis read-through cache.
type Lookup struct {
	source Source

	redis    *redis.Client
	cacheTTL time.Duration
	prefix   string
}

// NewLookup creates a lookup over source.
func NewLookup(source Source) *Lookup {
	return &Lookup{source: source, prefix: "salonbot:catalog:"}
}

// UseRedisCache configures optional Redis caching for search and list results.
func (l *Lookup) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	l.redis = redisClient
	l.cacheTTL = ttl
}

// Search returns active services whose name or description contains term, case-insensitively.
func (l *Lookup) Search(ctx context.Context, term string) ([]model.Service, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	key := "search:" + strings.ToLower(term)
	var out []model.Service
	if l.readCache(ctx, key, &out) {
		return out, nil
	}
	out, err := l.source.SearchServices(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("search catalog: %w", err)
	}
	l.writeCache(ctx, key, out)
	return out, nil
}

// GetByID returns an active service by id, or nil when it does not exist.
func (l *Lookup) GetByID(ctx context.Context, id int64) (*model.Service, error) {
	s, err := l.source.GetServiceByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get service %d: %w", id, err)
	}
	if s == nil || !s.Active {
		return nil, nil
	}
	return s, nil
}

// GetByName returns the active service whose name equals name, case-insensitively.
func (l *Lookup) GetByName(ctx context.Context, name string) (*model.Service, error) {
	s, err := l.source.GetServiceByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("get service %q: %w", name, err)
	}
	if s == nil || !s.Active {
		return nil, nil
	}
	return s, nil
}

// ListActive returns all active services.
func (l *Lookup) ListActive(ctx context.Context) ([]model.Service, error) {
	var out []model.Service
	if l.readCache(ctx, "active", &out) {
		return out, nil
	}
	out, err := l.source.ListActiveServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	l.writeCache(ctx, "active", out)
	return out, nil
}

// Invalidate drops cached results, e.g. after a catalog sync.
func (l *Lookup) Invalidate(ctx context.Context) error {
	if l.redis == nil {
		return nil
	}
	iter := l.redis.Scan(ctx, 0, l.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return l.redis.Del(ctx, keys...).Err()
}

func (l *Lookup) readCache(ctx context.Context, key string, out any) bool {
	if l.redis == nil || l.cacheTTL <= 0 {
		return false
	}
	val, err := l.redis.Get(ctx, l.prefix+key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (l *Lookup) writeCache(ctx context.Context, key string, v any) {
	if l.redis == nil || l.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = l.redis.Set(ctx, l.prefix+key, data, l.cacheTTL).Err()
}
