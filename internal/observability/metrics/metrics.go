// README: Prometheus collectors for calculations, collaborator fallbacks, settings versions and offer transitions.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "quote_"

	ResultSuccess  = "success"
	ResultFallback = "fallback"
	ResultError    = "error"
)

var (
	registerOnce sync.Once
	registry     = prometheus.NewRegistry()

	costCalculations  *prometheus.CounterVec
	costLatency       *prometheus.HistogramVec
	skippedRates      *prometheus.CounterVec
	collaboratorCalls *prometheus.CounterVec
	settingsVersions  *prometheus.CounterVec
	offerTransitions  *prometheus.CounterVec
	offerConflicts    prometheus.Counter
)

// Init registers every collector. Safe to call more than once; Observe* helpers call it lazily.
func Init() {
	registerOnce.Do(func() {
		costCalculations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cost_calculations_total",
				Help: "Cost calculations by method and result",
			},
			[]string{"method", "result"},
		)
		costLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cost_calculation_seconds",
				Help:    "Cost calculation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		)
		skippedRates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "skipped_rates_total",
				Help: "Route segments skipped for a component because no rate was configured",
			},
			[]string{"component"},
		)
		collaboratorCalls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "collaborator_calls_total",
				Help: "External collaborator calls by collaborator and result (success, fallback, error)",
			},
			[]string{"collaborator", "result"},
		)
		settingsVersions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settings_versions_created_total",
				Help: "Cost settings versions activated by scope",
			},
			[]string{"scope"},
		)
		offerTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "offer_transitions_total",
				Help: "Offer status transitions",
			},
			[]string{"from", "to"},
		)
		offerConflicts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "offer_conflicts_total",
				Help: "Offer updates rejected by the optimistic revision check",
			},
		)

		registry.MustRegister(
			costCalculations,
			costLatency,
			skippedRates,
			collaboratorCalls,
			settingsVersions,
			offerTransitions,
			offerConflicts,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func ObserveCostCalculation(method, result string, elapsed time.Duration) {
	Init()
	costCalculations.WithLabelValues(method, result).Inc()
	costLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func ObserveSkippedRate(component string) {
	Init()
	skippedRates.WithLabelValues(component).Inc()
}

func ObserveCollaborator(name, result string) {
	Init()
	collaboratorCalls.WithLabelValues(name, result).Inc()
}

func ObserveSettingsVersion(scope string) {
	Init()
	settingsVersions.WithLabelValues(scope).Inc()
}

func ObserveOfferTransition(from, to string) {
	Init()
	offerTransitions.WithLabelValues(from, to).Inc()
}

func ObserveOfferConflict() {
	Init()
	offerConflicts.Inc()
}
