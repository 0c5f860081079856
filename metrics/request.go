package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kmoai/kmoai/common/logger"
)

// RequestMetrics records one Run end to end. Retriever stats are added from
// the fan-out goroutines, so mutation goes through the methods.
type RequestMetrics struct {
	mu sync.Mutex

	PromptID  string    `json:"prompt_id"`
	Query     string    `json:"query"`
	Filter    string    `json:"filter,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Intent
	Intent   string `json:"intent,omitempty"`
	Keywords string `json:"keywords,omitempty"`
	ChitChat bool   `json:"chit_chat"`

	// Retrieval
	RetrieverMetrics map[string]RetrieverStats `json:"retriever_metrics"`
	CacheHits        []string                  `json:"cache_hits,omitempty"`
	FusionResults    int                       `json:"fusion_result_count"`

	// Control
	Rungs            []string `json:"rungs,omitempty"`
	AdequacyAttempts int      `json:"adequacy_attempts"`
	Adequate         bool     `json:"adequate"`
	Summarized       bool     `json:"history_summarized"`

	TotalLatencyMs int64  `json:"total_latency_ms"`
	Success        bool   `json:"success"`
	ErrorMsg       string `json:"error_msg,omitempty"`
}

// RetrieverStats 单个检索器的统计信息
type RetrieverStats struct {
	Kind        string `json:"kind"`
	Calls       int    `json:"calls"`
	LatencyMs   int64  `json:"latency_ms"`
	ResultCount int    `json:"result_count"`
	Errors      int    `json:"errors"`
}

// NewRequestMetrics 创建新的请求指标实例
func NewRequestMetrics(query, promptID, filter string) *RequestMetrics {
	return &RequestMetrics{
		PromptID:         promptID,
		Query:            query,
		Filter:           filter,
		Timestamp:        time.Now(),
		RetrieverMetrics: make(map[string]RetrieverStats),
	}
}

type ctxKey struct{}

// WithRequest attaches m to ctx.
func WithRequest(ctx context.Context, m *RequestMetrics) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

// FromContext returns the request metrics carried by ctx, or nil. All
// methods accept a nil receiver.
func FromContext(ctx context.Context) *RequestMetrics {
	m, _ := ctx.Value(ctxKey{}).(*RequestMetrics)
	return m
}

// Log 将指标以 JSON 格式输出到日志
func (m *RequestMetrics) Log() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalLatencyMs = time.Since(m.Timestamp).Milliseconds()
	if data, err := json.Marshal(m); err == nil {
		logger.Infof("[KMOAI_METRICS] %s", string(data))
	}
}

// AddRetrieverStats merges one back-end call into the per-kind totals.
func (m *RequestMetrics) AddRetrieverStats(kind string, latency time.Duration, results int, err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.RetrieverMetrics[kind]
	s.Kind = kind
	s.Calls++
	s.LatencyMs += latency.Milliseconds()
	s.ResultCount += results
	if err != nil {
		s.Errors++
	}
	m.RetrieverMetrics[kind] = s
}

// AddCacheHit records a cache field that short-circuited work.
func (m *RequestMetrics) AddCacheHit(field string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheHits = append(m.CacheHits, field)
}

// RecordFusion 记录融合信息
func (m *RequestMetrics) RecordFusion(results int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FusionResults = results
}

// RecordIntent 记录 Intent 匹配信息
func (m *RequestMetrics) RecordIntent(label, keywords string, chitChat bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Intent, m.Keywords, m.ChitChat = label, keywords, chitChat
}

// AddRung records a fallback rung attempt and its outcome.
func (m *RequestMetrics) AddRung(rung string, ok bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	outcome := rung + ":failure"
	if ok {
		outcome = rung + ":success"
	}
	m.Rungs = append(m.Rungs, outcome)
}

// RecordAdequacy records how many controller runs were needed.
func (m *RequestMetrics) RecordAdequacy(attempts int, adequate bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdequacyAttempts, m.Adequate = attempts, adequate
}

// MarkSummarized notes that history crossed the soft budget.
func (m *RequestMetrics) MarkSummarized() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Summarized = true
}

// Finish records the request outcome.
func (m *RequestMetrics) Finish(success bool, errMsg string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Success, m.ErrorMsg = success, errMsg
}
