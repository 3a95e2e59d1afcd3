package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	verifyDuration  prometheus.Histogram
	ticketsIssued   prometheus.Counter
	issuances       *prometheus.CounterVec
	codeCollisions  prometheus.Counter
	ticketsExpired  prometheus.Counter
	ticketsCancel   prometheus.Counter
	sweepRuns       *prometheus.CounterVec
	remindersSent   prometheus.Counter
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP error responses by error code",
		}, []string{"route", "method", "code"}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_verifications_total",
			Help: "Verification attempts by outcome",
		}, []string{"outcome", "mode"}),
		verifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ticket_verification_duration_seconds",
			Help:    "Verification latency including store round trips",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
		ticketsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets created by issuance",
		}),
		issuances: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_issuances_total",
			Help: "Issuance calls by result",
		}, []string{"result"}),
		codeCollisions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticket_code_collisions_total",
			Help: "Generated codes rejected as duplicates",
		}),
		ticketsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "tickets_expired_total",
			Help: "Tickets moved to expired by the sweeper",
		}),
		ticketsCancel: factory.NewCounter(prometheus.CounterOpts{
			Name: "tickets_cancelled_total",
			Help: "Tickets cancelled by sellers or refunds",
		}),
		sweepRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_sweep_runs_total",
			Help: "Expiry sweeps by result",
		}, []string{"result"}),
		remindersSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticket_reminders_sent_total",
			Help: "Event reminders published",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordVerification counts a scan. mode is "redeem" or "check".
func (m *Metrics) RecordVerification(outcome, mode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome, mode).Inc()
	m.verifyDuration.Observe(duration.Seconds())
}

// RecordIssuance counts an Issue call and the tickets it created.
func (m *Metrics) RecordIssuance(result string, created int) {
	if m == nil {
		return
	}
	m.issuances.WithLabelValues(result).Inc()
	if created > 0 {
		m.ticketsIssued.Add(float64(created))
	}
}

// RecordCodeCollision counts a rejected duplicate code.
func (m *Metrics) RecordCodeCollision() {
	if m == nil {
		return
	}
	m.codeCollisions.Inc()
}

// RecordSweep counts a sweep run and the tickets it expired.
func (m *Metrics) RecordSweep(result string, expired int) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(result).Inc()
	if expired > 0 {
		m.ticketsExpired.Add(float64(expired))
	}
}

// RecordReminders counts published reminders.
func (m *Metrics) RecordReminders(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.remindersSent.Add(float64(n))
}

// RecordCancellations counts tickets moved to cancelled.
func (m *Metrics) RecordCancellations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ticketsCancel.Add(float64(n))
}
