package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Cache stores serialized values under string keys
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	DeletePrefix(ctx context.Context, prefix string)
	Ping(ctx context.Context) error
	Close() error
}

// GetJSON decodes the value stored under key into T
func GetJSON[T any](ctx context.Context, c Cache, key string) (*T, bool) {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return nil, false
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("dropping undecodable cache entry", "key", key, "error", err)
		c.Delete(ctx, key)
		return nil, false
	}
	return &v, true
}

// SetJSON stores v under key as JSON
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to encode cache entry", "key", key, "error", err)
		return
	}
	c.Set(ctx, key, raw, ttl)
}

// Nop is a cache that stores nothing
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Nop) Set(context.Context, string, []byte, time.Duration) {}
func (Nop) Delete(context.Context, string) {}
func (Nop) DeletePrefix(context.Context, string) {}
func (Nop) Ping(context.Context) error { return nil }
func (Nop) Close() error { return nil }
