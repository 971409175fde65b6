package core

import (
	"context"
	"time"
)

// Cache stores JSON-serializable values under string keys.
type Cache interface {
	// Get loads the value stored under key into dest. It reports false on a miss.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error
	// DeletePrefix drops every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// NopCache never stores anything.
type NopCache struct{}

var _ Cache = NopCache{}

func (NopCache) Get(context.Context, string, interface{}) (bool, error)        { return false, nil }
func (NopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (NopCache) DeletePrefix(context.Context, string) error                    { return nil }

// CatalogCachePrefix starts the keys of cached course data. Courses embed category and instructor
// names, so writes to those drop the prefix too.
const CatalogCachePrefix = "catalog:"

// InvalidatePrefix drops the entries under prefix. Failures are only logged.
func InvalidatePrefix(ctx context.Context, cache Cache, logger Logger, prefix string) {
	if err := cache.DeletePrefix(ctx, prefix); err != nil {
		logger.Error("invalidating cache "+prefix, err, ctx)
	}
}
