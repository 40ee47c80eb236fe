package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the campaign service
type Metrics struct {
	// Job counters
	JobsStartedTotal   *prometheus.CounterVec
	JobsFinishedTotal  *prometheus.CounterVec
	JobDurationSeconds *prometheus.HistogramVec
	JobsRejectedTotal  *prometheus.CounterVec

	// Delivery counters
	DeliveriesTotal         *prometheus.CounterVec
	DeliveryDurationSeconds prometheus.Histogram
	DeliveryErrorsTotal     *prometheus.CounterVec
	DeliveriesUnrecorded    prometheus.Counter
	ClicksTotal             prometheus.Counter

	// Scheduler
	SchedulerTicksTotal *prometheus.CounterVec
	ScheduledFiresTotal *prometheus.CounterVec

	// State gauges
	CampaignsByStatus *prometheus.GaugeVec
	JobsByStatus      *prometheus.GaugeVec
	JobsRunning       prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		JobsStartedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splaro_jobs_started_total",
				Help: "Total number of campaign jobs started",
			},
			[]string{"mode"},
		),
		JobsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splaro_jobs_finished_total",
				Help: "Total number of campaign jobs that reached a terminal status",
			},
			[]string{"mode", "status"},
		),
		JobDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "splaro_job_duration_seconds",
				Help:    "Wall time from job start to finish",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 300, 900, 3600},
			},
			[]string{"mode"},
		),
		JobsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splaro_jobs_rejected_total",
				Help: "Total number of job requests refused before a job was created",
			},
			[]string{"reason"},
		),

		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splaro_deliveries_total",
				Help: "Total number of delivery attempts by outcome",
			},
			[]string{"status"},
		),
		DeliveryDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "splaro_delivery_duration_seconds",
				Help:    "Notifier call duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		DeliveryErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splaro_delivery_errors_total",
				Help: "Total number of failed delivery attempts by kind (temporary, permanent)",
			},
			[]string{"kind"},
		),
		DeliveriesUnrecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "splaro_deliveries_unrecorded_total",
				Help: "Total number of delivery attempts whose log entry could not be written",
			},
		),
		ClicksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "splaro_clicks_total",
				Help: "Total number of first clicks recorded on delivered messages",
			},
		),

		SchedulerTicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splaro_scheduler_ticks_total",
				Help: "Total number of scheduler ticks",
			},
			[]string{"result"},
		),
		ScheduledFiresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splaro_scheduled_fires_total",
				Help: "Total number of due campaigns handled by the scheduler",
			},
			[]string{"result"},
		),

		CampaignsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "splaro_campaigns",
				Help: "Number of campaigns per status",
			},
			[]string{"status"},
		),
		JobsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "splaro_jobs",
				Help: "Number of jobs per status",
			},
			[]string{"status"},
		),
		JobsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "splaro_jobs_running",
				Help: "Number of jobs executing in this process",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splaro_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "splaro_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splaro_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "splaro_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "splaro_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "splaro_storage_used_bytes",
				Help: "SQLite database file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.JobsStartedTotal,
		m.JobsFinishedTotal,
		m.JobDurationSeconds,
		m.JobsRejectedTotal,
		m.DeliveriesTotal,
		m.DeliveryDurationSeconds,
		m.DeliveryErrorsTotal,
		m.DeliveriesUnrecorded,
		m.ClicksTotal,
		m.SchedulerTicksTotal,
		m.ScheduledFiresTotal,
		m.CampaignsByStatus,
		m.JobsByStatus,
		m.JobsRunning,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncJobsStarted counts a job that began executing
func IncJobsStarted(mode string) {
	m := Global()
	if m != nil {
		m.JobsStartedTotal.WithLabelValues(mode).Inc()
		m.JobsRunning.Inc()
	}
}

// ObserveJobFinished counts a terminal job and records its duration
func ObserveJobFinished(mode, status string, seconds float64) {
	m := Global()
	if m != nil {
		m.JobsFinishedTotal.WithLabelValues(mode, status).Inc()
		m.JobDurationSeconds.WithLabelValues(mode).Observe(seconds)
		m.JobsRunning.Dec()
	}
}

// IncJobsRejected counts a job request refused up front
func IncJobsRejected(reason string) {
	m := Global()
	if m != nil {
		m.JobsRejectedTotal.WithLabelValues(reason).Inc()
	}
}

// ObserveDelivery counts one delivery attempt
func ObserveDelivery(status string, seconds float64) {
	m := Global()
	if m != nil {
		m.DeliveriesTotal.WithLabelValues(status).Inc()
		if seconds > 0 {
			m.DeliveryDurationSeconds.Observe(seconds)
		}
	}
}

// IncDeliveryErrors counts a failed attempt by whether the channel called it temporary
func IncDeliveryErrors(kind string) {
	m := Global()
	if m != nil {
		m.DeliveryErrorsTotal.WithLabelValues(kind).Inc()
	}
}

// IncDeliveriesUnrecorded counts an attempt lost to a failed log write
func IncDeliveriesUnrecorded() {
	m := Global()
	if m != nil {
		m.DeliveriesUnrecorded.Inc()
	}
}

// IncClicks counts a first click
func IncClicks() {
	m := Global()
	if m != nil {
		m.ClicksTotal.Inc()
	}
}

// IncSchedulerTicks counts a scheduler tick
func IncSchedulerTicks(result string) {
	m := Global()
	if m != nil {
		m.SchedulerTicksTotal.WithLabelValues(result).Inc()
	}
}

// IncScheduledFires counts a due campaign by what the scheduler did with it
func IncScheduledFires(result string) {
	m := Global()
	if m != nil {
		m.ScheduledFiresTotal.WithLabelValues(result).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
