package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "civiclens"

	ResultSuccess = "success"
	ResultError   = "error"
	ResultTimeout = "timeout"

	RoleClassifier = "classifier"
	RoleEnricher   = "enricher"
)

var (
	once sync.Once

	// ProviderCallsTotal counts remote AI provider calls by outcome.
	ProviderCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "enrichment",
		Name:      "provider_calls_total",
		Help:      "Total number of AI provider calls, labeled by provider, role and result.",
	}, []string{"provider", "role", "result"})

	ProviderDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "enrichment",
		Name:      "provider_duration_seconds",
		Help:      "Duration of AI provider calls.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider", "role"})

	// FallbackTotal counts records persisted with a fallback, by kind.
	FallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "enrichment",
		Name:      "fallback_total",
		Help:      "Total number of fallback enrichment or classification results.",
	}, []string{"kind"})

	// BackgroundInFlight is the number of detached classifier calls running.
	BackgroundInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "enrichment",
		Name:      "background_in_flight",
		Help:      "Current number of detached classifier calls.",
	})

	ReportsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reports",
		Name:      "created_total",
		Help:      "Total number of reports created.",
	})

	StatusTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reports",
		Name:      "status_transitions_total",
		Help:      "Total number of status updates, labeled by target status.",
	}, []string{"status"})

	// StatsCacheTotal counts stats cache lookups by result (hit, miss, error).
	StatsCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "cache_lookups_total",
		Help:      "Total number of stats cache lookups, labeled by result.",
	}, []string{"result"})

	EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Total number of report events published to RabbitMQ, labeled by result.",
	}, []string{"result"})

	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "websocket_clients",
		Help:      "Current number of connected live feed clients.",
	})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "endpoint", "status"})

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "endpoint"})

	HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// Register registers all metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ProviderCallsTotal,
			ProviderDurationSeconds,
			FallbackTotal,
			BackgroundInFlight,
			ReportsCreatedTotal,
			StatusTransitionsTotal,
			StatsCacheTotal,
			EventsPublishedTotal,
			WebsocketClients,
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPRequestsInFlight,
		)
	})
}

// ObserveProviderCall records one provider call.
func ObserveProviderCall(provider, role, result string, d time.Duration) {
	ProviderCallsTotal.WithLabelValues(provider, role, result).Inc()
	ProviderDurationSeconds.WithLabelValues(provider, role).Observe(d.Seconds())
}

func RecordCacheLookup(result string) {
	StatsCacheTotal.WithLabelValues(result).Inc()
}

func RecordPublish(err error) {
	if err != nil {
		EventsPublishedTotal.WithLabelValues(ResultError).Inc()
		return
	}
	EventsPublishedTotal.WithLabelValues(ResultSuccess).Inc()
}
