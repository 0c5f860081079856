package memory

import (
	"context"
	"time"

	"github.com/kmoai/kmoai/cache"
	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/llm"
	"github.com/kmoai/kmoai/metrics"
)

// SummarizeRatio is the share of the budget above which history is summarized.
const SummarizeRatio = 0.85

// History keeps a per-session conversation transcript in the cache, bounded
// by Budget tokens. The transcript is a single string keyed by
// (sessionID, "history").
type History struct {
	Cache      cache.Store
	Tokenizer  llm.Tokenizer
	Summarizer Summarizer
	Budget     int
	TTL        time.Duration
}

// Load returns the stored transcript, or "" when there is none. Cache
// errors count as a miss.
func (h *History) Load(ctx context.Context, sessionID string) string {
	if h.Cache == nil || sessionID == "" {
		return ""
	}
	v, ok, err := h.Cache.Get(ctx, sessionID, cache.FieldHistory)
	if err != nil {
		logger.Warnf("memory: load history for %s failed: %v", sessionID, err)
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// Manage appends newTurn to prior, compacts the result to the budget and
// persists it. The returned transcript never exceeds Budget tokens.
func (h *History) Manage(ctx context.Context, prior, newTurn, sessionID string) (string, error) {
	hist := newTurn
	if prior != "" {
		hist = prior + "\n" + newTurn
	}

	count := llm.Count(h.Tokenizer, hist)
	if float64(count) > SummarizeRatio*float64(h.Budget) && h.Summarizer != nil {
		summary, err := h.Summarizer.Summarize(ctx, hist)
		if err != nil {
			logger.Warnf("memory: summarize failed, truncating instead: %v", err)
		} else {
			hist = llm.StripEndOfTurn(summary)
			metrics.IncHistorySummary()
			metrics.FromContext(ctx).MarkSummarized()
		}
		count = llm.Count(h.Tokenizer, hist)
	}
	if count > h.Budget {
		hist = llm.Tail(h.Tokenizer, hist, h.Budget)
	}

	if h.Cache != nil {
		if err := h.Cache.Set(ctx, sessionID, cache.FieldHistory, hist, h.TTL); err != nil {
			logger.Warnf("memory: persist history for %s failed: %v", sessionID, err)
			return hist, err
		}
	}
	return hist, nil
}
