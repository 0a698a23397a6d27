package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Subscription Set Store metrics
	SubscriptionSetsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatchd_subscription_sets_total",
			Help: "Total number of registered subscription sets",
		},
	)

	SubscriptionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatchd_subscriptions_total",
			Help: "Total number of individual subscriptions across all sets",
		},
	)

	CombinedSetVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatchd_combined_set_version",
			Help: "Current version of the combined subscription set",
		},
	)

	CombinedSetRebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatchd_combined_set_rebuild_duration_seconds",
			Help:    "Time taken to rebuild the combined set and its indices",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Dispatch Core metrics
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatchd_events_dispatched_total",
			Help: "Total number of events accepted by dispatch(), by outcome",
		},
		[]string{"outcome"},
	)

	DispatchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatchd_dispatch_queue_depth",
			Help: "Current number of events waiting in the bounded dispatch queue",
		},
	)

	DispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatchd_dispatch_duration_seconds",
			Help:    "Time taken to resolve listeners and enqueue dispatch items for one event",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Delivery metrics
	DeliveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatchd_delivery_attempts_total",
			Help: "Total number of delivery attempts by result",
		},
		[]string{"result"},
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatchd_delivery_duration_seconds",
			Help:    "Time taken for one outbound delivery POST",
			Buckets: prometheus.DefBuckets,
		},
	)

	SubscriptionSetsEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatchd_subscription_sets_evicted_total",
			Help: "Total number of non-expiring sets removed for exceeding max_failures",
		},
	)

	// Durable queue metrics
	DurableQueueBacklog = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatchd_durable_queue_backlog",
			Help: "Number of uncommitted records pending in a durable queue",
		},
		[]string{"location"},
	)

	DurableQueueBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatchd_durable_queue_bytes",
			Help: "Approximate on-disk size of a durable queue's segments",
		},
		[]string{"location"},
	)

	// HTTP front end metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatchd_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatchd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(SubscriptionSetsTotal)
	prometheus.MustRegister(SubscriptionsTotal)
	prometheus.MustRegister(CombinedSetVersion)
	prometheus.MustRegister(CombinedSetRebuildDuration)
	prometheus.MustRegister(EventsDispatchedTotal)
	prometheus.MustRegister(DispatchQueueDepth)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(DeliveryAttemptsTotal)
	prometheus.MustRegister(DeliveryDuration)
	prometheus.MustRegister(SubscriptionSetsEvictedTotal)
	prometheus.MustRegister(DurableQueueBacklog)
	prometheus.MustRegister(DurableQueueBytes)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
