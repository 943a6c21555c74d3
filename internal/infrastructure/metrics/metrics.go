package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iho/goimport/internal/domain"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Process metrics
	ProcessesCreated *prometheus.CounterVec
	ProcessStatus    *prometheus.CounterVec
	StepDuration     *prometheus.HistogramVec
	StepErrors       *prometheus.CounterVec

	// Connector metrics
	TransactionsApplied *prometheus.CounterVec
	RateLookups         *prometheus.CounterVec

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
	EventErrors     prometheus.Counter

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Database metrics
	DBErrors *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics on the given registerer.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProcessesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goimport_processes_created_total",
				Help: "Total number of import processes created",
			},
			[]string{"handler"},
		),
		ProcessStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goimport_process_status_changes_total",
				Help: "Total number of process status changes by new status",
			},
			[]string{"status"},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goimport_step_duration_seconds",
				Help:    "Duration of import operations",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
			},
			[]string{"handler", "op"},
		),
		StepErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goimport_step_errors_total",
				Help: "Total number of failed import operations by error kind",
			},
			[]string{"handler", "op", "kind"},
		),

		TransactionsApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goimport_transactions_applied_total",
				Help: "Transactions handed to the ledger by execution result",
			},
			[]string{"result"},
		),
		RateLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goimport_rate_lookups_total",
				Help: "Rate lookups by cache result",
			},
			[]string{"result"},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goimport_events_published_total",
				Help: "Outbox events published by type",
			},
			[]string{"event_type"},
		),
		EventErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "goimport_event_errors_total",
			Help: "Outbox events that failed to publish",
		}),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goimport_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goimport_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		DBErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goimport_db_errors_total",
				Help: "Total database errors",
			},
			[]string{"operation"},
		),

		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goimport_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),
	}
}

func (m *Metrics) RecordProcessCreated(handler string) {
	m.ProcessesCreated.WithLabelValues(handler).Inc()
}

func (m *Metrics) RecordStep(handler string, op domain.ImportOp, duration time.Duration, err error) {
	m.StepDuration.WithLabelValues(handler, string(op)).Observe(duration.Seconds())
	if err != nil {
		m.StepErrors.WithLabelValues(handler, string(op), ErrorKind(err)).Inc()
	}
}

func (m *Metrics) RecordStatus(status domain.ProcessStatus) {
	m.ProcessStatus.WithLabelValues(string(status)).Inc()
}

// RecordApplied counts the transactions of an apply result.
func (m *Metrics) RecordApplied(results *domain.ApplyResults) {
	if results == nil {
		return
	}
	m.TransactionsApplied.WithLabelValues(string(domain.ExecutionCreated)).Add(float64(results.Created))
	m.TransactionsApplied.WithLabelValues(string(domain.ExecutionDuplicate)).Add(float64(results.Duplicates))
	m.TransactionsApplied.WithLabelValues(string(domain.ExecutionIgnored)).Add(float64(results.Ignored))
	m.TransactionsApplied.WithLabelValues(string(domain.ExecutionSkipped)).Add(float64(results.Skipped))
}

func (m *Metrics) RecordRateLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RateLookups.WithLabelValues(result).Inc()
}

// ErrorKind names the kind of a processing error for labels.
func ErrorKind(err error) string {
	if _, ok := domain.IsAskUI(err); ok {
		return "ask_ui"
	}
	kinds := []struct {
		err  error
		kind string
	}{
		{domain.ErrInvalidFile, "invalid_file"},
		{domain.ErrInvalidArgument, "invalid_argument"},
		{domain.ErrBadState, "bad_state"},
		{domain.ErrNotImplemented, "not_implemented"},
		{domain.ErrNotFound, "not_found"},
		{domain.ErrSystemError, "system_error"},
		{domain.ErrDatabaseError, "database_error"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "other"
}

// EventPublished counts an outbox publish attempt.
func (m *Metrics) EventPublished(eventType string, err error) {
	if err != nil {
		m.EventErrors.Inc()
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordHTTP records a served request.
func (m *Metrics) RecordHTTP(method, path string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
