package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spherical/doc-ocr/internal/config"
	"github.com/spherical/doc-ocr/internal/domain"
)

// New builds the cache client selected by cfg.Driver.
func New(cfg config.CacheConfig) (Client, error) {
	switch cfg.Driver {
	case "", "none":
		return NopClient{}, nil
	case "memory":
		return NewMemoryClient(cfg.MaxEntries), nil
	case "redis":
		rc, err := NewRedisClient(RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, domain.CacheError("connect redis", err)
		}
		return rc, nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown cache driver %q", cfg.Driver), nil)
	}
}

// ResultCache stores finished document results keyed by content hash.
type ResultCache struct {
	client Client
	ttl    time.Duration
}

// NewResultCache wraps client. A non-positive ttl defaults to one hour.
func NewResultCache(client Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResultCache{client: client, ttl: ttl}
}

// Get returns the cached result or ErrCacheMiss. settings is the pipeline
// fingerprint the result must have been computed under.
func (c *ResultCache) Get(ctx context.Context, contentHash, engine string, format domain.OutputFormat, settings string) (*domain.DocumentResult, error) {
	key := ResultKey(contentHash, engine, string(format), settings)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var doc domain.DocumentResult
	if err := json.Unmarshal(data, &doc); err != nil {
		// A corrupt entry behaves like a miss.
		_ = c.client.Delete(ctx, key)
		return nil, ErrCacheMiss
	}
	return &doc, nil
}

// Put stores doc under its content hash and settings fingerprint.
func (c *ResultCache) Put(ctx context.Context, contentHash string, format domain.OutputFormat, settings string, doc *domain.DocumentResult) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return domain.CacheError("marshal result", err)
	}
	if err := c.client.Set(ctx, ResultKey(contentHash, doc.Engine, string(format), settings), data, c.ttl); err != nil {
		return domain.CacheError("store result", err)
	}
	return nil
}

// Invalidate drops every cached rendering of a document.
func (c *ResultCache) Invalidate(ctx context.Context, contentHash string) error {
	return c.client.DeleteByPrefix(ctx, CacheKey("result", contentHash)+":")
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Close releases the underlying client.
func (c *ResultCache) Close() error {
	return c.client.Close()
}
