package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campaign_dispatch"

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	JobsFinalized     *prometheus.CounterVec
	RecipientOutcomes *prometheus.CounterVec
	DuplicatesRemoved *prometheus.CounterVec
	SubmitLatency     *prometheus.HistogramVec
	DispatchesQueued  prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
	HTTPLatency       *prometheus.HistogramVec
}

// New creates and registers all application metrics on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finalized_total",
			Help:      "Campaign jobs written with a terminal status",
		}, []string{"provider", "status"}),
		RecipientOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipient_outcomes_total",
			Help:      "Per-recipient send outcomes",
		}, []string{"provider", "status"}),
		DuplicatesRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_removed_total",
			Help:      "Contacts dropped by identity deduplication",
		}, []string{"provider"}),
		SubmitLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_submit_duration_seconds",
			Help:      "Duration of provider adapter submissions",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider", "result"}),
		DispatchesQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_queued_total",
			Help:      "Dispatch requests pushed to the queue",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "route", "status"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveJob records a finalized job and its recipient split
func (m *Metrics) ObserveJob(provider, status string, sent, failed, duplicates int) {
	if m == nil {
		return
	}
	m.JobsFinalized.WithLabelValues(provider, status).Inc()
	m.RecipientOutcomes.WithLabelValues(provider, "sent").Add(float64(sent))
	m.RecipientOutcomes.WithLabelValues(provider, "failed").Add(float64(failed))
	m.DuplicatesRemoved.WithLabelValues(provider).Add(float64(duplicates))
}

// ObserveSubmit records one adapter call
func (m *Metrics) ObserveSubmit(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SubmitLatency.WithLabelValues(provider, result).Observe(d.Seconds())
}

// ObserveQueued counts an enqueued dispatch
func (m *Metrics) ObserveQueued() {
	if m == nil {
		return
	}
	m.DispatchesQueued.Inc()
}

// ObserveHTTP records a served request
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(d.Seconds())
}
