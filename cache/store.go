package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kmoai/kmoai/config"
)

// Fields used as the second half of a cache key.
const (
	FieldResponse = "response"
	FieldHistory  = "history"
	FieldAnswer   = "answer"
	FieldSources  = "sources"
)

// Store is a best-effort key-value store addressed by (namespace, field).
// A miss is reported as ok=false with a nil error.
type Store interface {
	Get(ctx context.Context, namespace, field string) (value string, ok bool, err error)
	Set(ctx context.Context, namespace, field, value string, ttl time.Duration) error
	Close() error
}

// NewStore builds the store selected by cfg.Store.
func NewStore(cfg config.CacheConfig) (Store, error) {
	switch strings.ToLower(cfg.Store) {
	case "redis":
		return NewRedisStore(cfg.Redis), nil
	case "memory":
		return NewMemoryStore(cfg.Capacity), nil
	default:
		return nil, fmt.Errorf("unsupported cache store: %s", cfg.Store)
	}
}
