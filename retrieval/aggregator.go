package retrieval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kmoai/kmoai/cache"
	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/fusion"
	"github.com/kmoai/kmoai/metrics"
	"github.com/kmoai/kmoai/retriever"
)

// DefaultPoolWidth bounds concurrent back-end calls across all requests.
const DefaultPoolWidth = 6

// Aggregator fans one query out to every enabled back-end and merges the
// results into a single grounded context.
type Aggregator struct {
	*Grounding
	// Retrievers are queried in enablement order; merge order follows it.
	Retrievers []retriever.Retriever
	// Pool is shared by every request of the process.
	Pool *semaphore.Weighted
}

// NewAggregator creates an aggregator. A nil pool gets DefaultPoolWidth.
func NewAggregator(g *Grounding, pool *semaphore.Weighted, retrievers ...retriever.Retriever) *Aggregator {
	if pool == nil {
		pool = semaphore.NewWeighted(DefaultPoolWidth)
	}
	return &Aggregator{Grounding: g, Retrievers: retrievers, Pool: pool}
}

// Search returns the grounded unified context for query. A cached response
// short-circuits every back-end call and the grounding step.
func (a *Aggregator) Search(ctx context.Context, query string, filter string) (string, error) {
	if v, ok := a.lookup(ctx, query, cache.FieldResponse); ok {
		logger.Debugf("retrieval: unified cache hit for %q", query)
		return v, nil
	}

	results := a.fanOut(ctx, query, filter)
	merged := fusion.Interleave(fusion.Lists(results))
	metrics.ObserveFusion(len(results))
	metrics.FromContext(ctx).RecordFusion(len(merged))
	logger.Infof("retrieval: unified search retrievers=%d merged=%d", len(results), len(merged))

	return a.groundAndStore(ctx, query, cache.FieldResponse, merged)
}

// fanOut queries every retriever concurrently. It never cancels siblings:
// a failed or panicking back-end contributes an empty list.
func (a *Aggregator) fanOut(ctx context.Context, query, filter string) []fusion.RetrieverResult {
	results := make([]fusion.RetrieverResult, len(a.Retrievers))
	var g errgroup.Group
	for i, r := range a.Retrievers {
		i, r := i, r
		results[i].Retriever = r.Kind().String()
		g.Go(func() error {
			passages, err := a.searchOne(ctx, r, query, filter)
			if err != nil {
				logger.Warnf("retrieval: %s search failed for query %q: %v", r.Kind(), query, err)
				results[i].Err = err
				return nil
			}
			results[i].Passages = passages
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (a *Aggregator) searchOne(ctx context.Context, r retriever.Retriever, query, filter string) (passages []string, err error) {
	if err := a.Pool.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer a.Pool.Release(1)

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			passages, err = nil, fmt.Errorf("panic in %s retriever: %v", r.Kind(), p)
		}
		metrics.ObserveRetriever(r.Kind().String(), start, len(passages), err)
		metrics.FromContext(ctx).AddRetrieverStats(r.Kind().String(), time.Since(start), len(passages), err)
	}()
	return r.Search(ctx, query, filter)
}
