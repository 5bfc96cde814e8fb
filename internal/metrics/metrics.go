// Package metrics provides the centralized Prometheus registry for the learning pipeline.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	TradesClosedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odin",
		Name:      "trades_closed_total",
		Help:      "Total number of pattern trades closed",
	}, []string{"outcome"})
	MemoriesInjectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odin",
		Name:      "memories_injected_total",
		Help:      "Total number of (pattern x channel) lesson deliveries",
	}, []string{"channel"})
	LearningEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odin",
		Name:      "learning_events_total",
		Help:      "Total number of learning events recorded",
	}, []string{"lesson_type"})
	InjectionFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odin",
		Name:      "injection_failures_total",
		Help:      "Total number of failed channel deliveries",
	}, []string{"channel"})
	PatternAlertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odin",
		Name:      "pattern_alerts_total",
		Help:      "Total number of pattern breakdown/hot alerts raised",
	}, []string{"kind"})
)

// Gauge metrics
var (
	ActivePatterns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "odin",
		Name:      "active_patterns",
		Help:      "Number of currently active patterns",
	})
	PatternsDeactivated = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "odin",
		Name:      "patterns_deactivated_last_run",
		Help:      "Patterns deactivated by the most recent weekly analysis",
	})
	ContextCacheHitRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "odin",
		Name:      "context_cache_hit_ratio",
		Help:      "Hit ratio of the tracker's pattern context cache",
	})
)

// Registry returns the process-wide registry, building it on first use.
func Registry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			TradesClosedTotal,
			MemoriesInjectedTotal,
			LearningEventsTotal,
			InjectionFailuresTotal,
			PatternAlertsTotal,
			ActivePatterns,
			PatternsDeactivated,
			ContextCacheHitRatio,
		)
	})
	return registry
}

// Serve exposes the registry on the configured port and path. Blocks, so
// callers run it in a goroutine.
func Serve(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
