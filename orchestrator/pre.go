package orchestrator

import (
	"context"
	"errors"

	"github.com/kmoai/kmoai/cache"
	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/crag"
	"github.com/kmoai/kmoai/metrics"
)

var errUnifiedDisabled = errors.New("unified search is not enabled")

func (o *Orchestrator) extractIntent(ctx context.Context, query string) crag.Intent {
	if o.Intent == nil {
		return crag.Intent{Label: crag.LabelKnowledgeBase}
	}
	intent := o.Intent.Extract(ctx, query)
	logger.Debugf("pre: intent=%q keywords=%q", intent.Label, intent.Keywords)
	return intent
}

// PreContext returns a previously accepted answer for the same keywords as
// "[sources] answer", or "" when nothing is cached.
func (o *Orchestrator) PreContext(ctx context.Context, keywords string) string {
	if keywords == "" || o.Cache == nil {
		return ""
	}
	answer, ok, err := o.Cache.Get(ctx, keywords, cache.FieldAnswer)
	if err != nil {
		logger.Warnf("pre: cache lookup for %q: %v", keywords, err)
		return ""
	}
	if !ok {
		metrics.IncCacheLookup(cache.FieldAnswer, "miss")
		return ""
	}
	metrics.IncCacheLookup(cache.FieldAnswer, "hit")
	metrics.FromContext(ctx).AddCacheHit(cache.FieldAnswer)

	sources, _, err := o.Cache.Get(ctx, keywords, cache.FieldSources)
	if err != nil {
		logger.Warnf("pre: cache sources for %q: %v", keywords, err)
	}
	return "[" + sources + "] " + answer
}
