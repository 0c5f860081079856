package retrieval

import (
	"context"
	"strings"
	"time"

	"github.com/kmoai/kmoai/cache"
	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/crag"
	"github.com/kmoai/kmoai/metrics"
)

// PassageSeparator joins passages before grounding.
const PassageSeparator = "\n\n"

// Grounding is the cache-then-evaluate step shared by unified search and
// every per-back-end tool. Cache failures are logged and treated as misses.
type Grounding struct {
	Cache     cache.Store
	Evaluator crag.Evaluator
	TTL       time.Duration
}

func (g *Grounding) lookup(ctx context.Context, query, field string) (string, bool) {
	if g.Cache == nil {
		return "", false
	}
	v, ok, err := g.Cache.Get(ctx, query, field)
	switch {
	case err != nil:
		logger.Warnf("retrieval: cache get %s failed: %v", field, err)
		metrics.IncCacheLookup(field, "error")
		return "", false
	case ok:
		metrics.IncCacheLookup(field, "hit")
		metrics.FromContext(ctx).AddCacheHit(field)
		return v, true
	default:
		metrics.IncCacheLookup(field, "miss")
		return "", false
	}
}

func (g *Grounding) groundAndStore(ctx context.Context, query, field string, passages []string) (string, error) {
	raw := strings.Join(passages, PassageSeparator)
	grounded := raw
	if g.Evaluator != nil {
		var err error
		if grounded, err = g.Evaluator.Evaluate(ctx, query, raw); err != nil {
			return "", err
		}
	}
	if g.Cache != nil {
		if err := g.Cache.Set(ctx, query, field, grounded, g.TTL); err != nil {
			logger.Warnf("retrieval: cache set %s failed: %v", field, err)
		}
	}
	return grounded, nil
}
