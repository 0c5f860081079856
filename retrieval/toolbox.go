package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/kmoai/kmoai/metrics"
	"github.com/kmoai/kmoai/retriever"
)

// Toolbox runs a single back-end with its own cache field. Unlike the
// Aggregator, back-end errors are returned to the caller.
type Toolbox struct {
	*Grounding
	byKind map[retriever.Kind]retriever.Retriever
}

func NewToolbox(g *Grounding, retrievers ...retriever.Retriever) *Toolbox {
	t := &Toolbox{Grounding: g, byKind: make(map[retriever.Kind]retriever.Retriever, len(retrievers))}
	for _, r := range retrievers {
		t.byKind[r.Kind()] = r
	}
	return t
}

// Has reports whether kind is enabled.
func (t *Toolbox) Has(kind retriever.Kind) bool {
	_, ok := t.byKind[kind]
	return ok
}

// Search returns the grounded context of one back-end for query.
func (t *Toolbox) Search(ctx context.Context, kind retriever.Kind, query string, filter string) (string, error) {
	r, ok := t.byKind[kind]
	if !ok {
		return "", fmt.Errorf("%s search is not enabled", kind)
	}
	field := kind.CacheField()
	if v, ok := t.lookup(ctx, query, field); ok {
		return v, nil
	}

	start := time.Now()
	passages, err := r.Search(ctx, query, filter)
	metrics.ObserveRetriever(kind.String(), start, len(passages), err)
	metrics.FromContext(ctx).AddRetrieverStats(kind.String(), time.Since(start), len(passages), err)
	if err != nil {
		return "", fmt.Errorf("%s search: %w", kind, err)
	}
	return t.groundAndStore(ctx, query, field, passages)
}
