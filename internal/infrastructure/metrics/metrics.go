package metrics

import (
	"time"

	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/breaker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pricecheck"

// Recorder exports resolver, provider and verification metrics. It
// satisfies application.Observer and provider.CallObserver.
type Recorder struct {
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	routeResults     *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	breakerOpen      *prometheus.GaugeVec
	outcomes         *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		providerRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Upstream provider calls by outcome",
			},
			[]string{"provider", "outcome"},
		),
		providerLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Upstream provider call latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),
		routeResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "price_route_results_total",
				Help:      "Price resolver route results (hit, miss, error)",
			},
			[]string{"route", "result"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "price_cache_lookups_total",
				Help:      "Price cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),
		breakerOpen: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_open",
				Help:      "1 while the provider's circuit is open or half-open",
			},
			[]string{"provider"},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verification_outcomes_total",
				Help:      "Verification passes by resulting status",
			},
			[]string{"status"},
		),
	}
}

func (r *Recorder) ProviderCall(provider, outcome string, took time.Duration) {
	r.providerRequests.WithLabelValues(provider, outcome).Inc()
	r.providerLatency.WithLabelValues(provider).Observe(took.Seconds())
}

func (r *Recorder) ProviderResult(route, result string) {
	r.routeResults.WithLabelValues(route, result).Inc()
}

func (r *Recorder) CacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(tier, result).Inc()
}

func (r *Recorder) VerificationOutcome(status domain.VerificationStatus) {
	r.outcomes.WithLabelValues(string(status)).Inc()
}

// BreakerStateChanged matches breaker.Settings.OnStateChange.
func (r *Recorder) BreakerStateChanged(name string, _, to breaker.State) {
	v := 0.0
	if to != breaker.StateClosed {
		v = 1
	}
	r.breakerOpen.WithLabelValues(name).Set(v)
}

// ProviderCallsCounter exposes one provider_requests_total series.
func (r *Recorder) ProviderCallsCounter(provider, outcome string) prometheus.Counter {
	return r.providerRequests.WithLabelValues(provider, outcome)
}

// BreakerGauge exposes one circuit_breaker_open series.
func (r *Recorder) BreakerGauge(provider string) prometheus.Gauge {
	return r.breakerOpen.WithLabelValues(provider)
}
