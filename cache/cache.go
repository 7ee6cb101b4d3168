// Package cache provides an optional, best-effort cache for embeddings and
// retrieval results. The cache is explicitly constructed and injected, a nil
// or failing cache never breaks a request, it only costs recomputation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

var (
	// ErrNotFound is returned by a Store when the key does not exist.
	ErrNotFound = errors.New("cache: key not found")
	// ErrUnavailable is returned by a Store when the backend cannot be
	// reached. Callers treat this as a miss.
	ErrUnavailable = errors.New("cache: unavailable")
)

// Store is the storage backend of a Cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// Cache wraps a Store with best-effort semantics. Unavailability is
// silently treated as a miss, any other error is logged at warn level and
// never surfaces to the caller.
type Cache struct {
	store  Store
	logger *slog.Logger
}

// New creates a Cache on top of the given store.
func New(store Store, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		logger: logger,
	}
}

// GetJSON looks up the key and unmarshals the value into v.
// It reports whether a usable value was found.
func (c *Cache) GetJSON(ctx context.Context, key string, v interface{}) bool {
	if c == nil || c.store == nil {
		return false
	}

	data, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
		return false
	} else if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return false
	}

	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

// SetJSON marshals v and stores it under the key with the given ttl.
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if c == nil || c.store == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache marshal failed", "key", key, "error", err)
		return
	}

	if err := c.store.Set(ctx, key, data, ttl); err != nil && !errors.Is(err, ErrUnavailable) {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// Delete removes the key from the cache.
func (c *Cache) Delete(ctx context.Context, key string) {
	if c == nil || c.store == nil {
		return
	}

	if err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrUnavailable) {
		c.logger.Warn("cache delete failed", "key", key, "error", err)
	}
}

// DeletePrefix removes all keys starting with the prefix.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) {
	if c == nil || c.store == nil {
		return
	}

	if err := c.store.DeletePrefix(ctx, prefix); err != nil && !errors.Is(err, ErrUnavailable) {
		c.logger.Warn("cache delete prefix failed", "prefix", prefix, "error", err)
	}
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}
