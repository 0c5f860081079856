package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	retrieverLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kmoai_retriever_latency_ms",
		Help:    "Latency of retrieval back-end calls in milliseconds",
		Buckets: []float64{10, 25, 50, 75, 100, 150, 200, 300, 500, 800, 1200, 2000},
	}, []string{"kind"})

	retrieverResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kmoai_retriever_results",
		Help:    "Number of passages returned by a back-end",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	}, []string{"kind"})

	retrieverErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kmoai_retriever_errors_total",
		Help: "Failed back-end calls",
	}, []string{"kind"})

	fusionLists = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kmoai_fusion_input_lists",
		Help:    "Number of back-end lists interleaved per unified search",
		Buckets: []float64{0, 1, 2, 3, 4},
	})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kmoai_cache_lookups_total",
		Help: "Cache lookups by field and result (hit/miss/error)",
	}, []string{"field", "result"})

	fallbackRung = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kmoai_fallback_rung_total",
		Help: "Fallback chain rung attempts by outcome",
	}, []string{"rung", "outcome"})

	adequacyVerdict = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kmoai_adequacy_verdict_total",
		Help: "Answer quality check verdicts",
	}, []string{"verdict"})

	historySummaries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kmoai_history_summaries_total",
		Help: "Conversation histories summarized after crossing the soft budget",
	})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

// ObserveRetriever records latency and result size for a back-end kind.
func ObserveRetriever(kind string, start time.Time, results int, err error) {
	ensureRegistered()
	if err != nil {
		retrieverErrors.WithLabelValues(kind).Inc()
		return
	}
	retrieverLatency.WithLabelValues(kind).Observe(float64(time.Since(start).Milliseconds()))
	retrieverResults.WithLabelValues(kind).Observe(float64(results))
}

// ObserveFusion records how many lists were interleaved.
func ObserveFusion(n int) {
	ensureRegistered()
	fusionLists.Observe(float64(n))
}

// IncCacheLookup counts a cache lookup; result is hit, miss or error.
func IncCacheLookup(field, result string) {
	ensureRegistered()
	cacheLookups.WithLabelValues(field, result).Inc()
}

// IncFallbackRung counts one rung attempt; outcome is success or failure.
func IncFallbackRung(rung, outcome string) {
	ensureRegistered()
	fallbackRung.WithLabelValues(rung, outcome).Inc()
}

// IncAdequacyVerdict increments the verdict counter.
func IncAdequacyVerdict(v string) {
	ensureRegistered()
	adequacyVerdict.WithLabelValues(v).Inc()
}

// IncHistorySummary counts a history summarization.
func IncHistorySummary() {
	ensureRegistered()
	historySummaries.Inc()
}

// Collectors exposes all collectors for external registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		retrieverLatency, retrieverResults, retrieverErrors, fusionLists,
		cacheLookups, fallbackRung, adequacyVerdict, historySummaries,
	}
}

// Handler serves the default registry with every collector registered.
func Handler() http.Handler {
	ensureRegistered()
	return promhttp.Handler()
}
