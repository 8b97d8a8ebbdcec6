package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics surface used across the application. Callers get
// either the Prometheus-backed Metrics or NoopMetrics when disabled.
type Recorder interface {
	RecordInvoiceCreated(result string)
	RecordPaymentEvent(result string)
	RecordTokenMinted(success bool)
	RecordTokenValidation(result string)
	RecordDownload(result string)
	RecordRequestsExpired(count int64)
	RecordPaymentConfirmationLatency(d time.Duration)
}

// Result label values shared by the counters.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultDuplicate = "duplicate"
	ResultUnknown   = "unknown"
	ResultInvalid   = "invalid"
	ResultExpired   = "expired"
	ResultUsed      = "used"
	ResultMissing   = "missing"
)

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Flash lifecycle metrics
	InvoicesCreatedTotal  *prometheus.CounterVec
	PaymentEventsTotal    *prometheus.CounterVec
	TokensMintedTotal     *prometheus.CounterVec
	TokenValidationTotal  *prometheus.CounterVec
	DownloadsTotal        *prometheus.CounterVec
	RequestsExpiredTotal  prometheus.Counter
	PaymentConfirmLatency prometheus.Histogram

	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag. When disabled, a noop
// recorder is returned. Uses sync.Once so Prometheus collectors are only
// registered once per process.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

func initMetrics() *Metrics {
	return &Metrics{
		InvoicesCreatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tnaflasher_invoices_created_total",
				Help: "Total number of flash invoices created",
			},
			[]string{"result"}, // success, error
		),
		PaymentEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tnaflasher_payment_events_total",
				Help: "Total number of settlement events processed by the listener",
			},
			[]string{"result"}, // success, duplicate, unknown, error
		),
		TokensMintedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tnaflasher_tokens_minted_total",
				Help: "Total number of download tokens minted",
			},
			[]string{"result"},
		),
		TokenValidationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tnaflasher_token_validation_total",
				Help: "Total number of download token validations",
			},
			[]string{"result"}, // success, invalid, expired, used
		),
		DownloadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tnaflasher_downloads_total",
				Help: "Total number of firmware download attempts",
			},
			[]string{"result"}, // success, invalid, expired, used, missing
		),
		RequestsExpiredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tnaflasher_requests_expired_total",
				Help: "Total number of flash requests expired by the sweep",
			},
		),
		PaymentConfirmLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tnaflasher_payment_confirmation_seconds",
				Help:    "Time between invoice creation and settlement confirmation",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tnaflasher_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tnaflasher_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tnaflasher_http_requests_in_flight",
				Help: "Current number of in-flight HTTP requests",
			},
		),
	}
}

func (m *Metrics) RecordInvoiceCreated(result string) {
	m.InvoicesCreatedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordPaymentEvent(result string) {
	m.PaymentEventsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordTokenMinted(success bool) {
	result := ResultSuccess
	if !success {
		result = ResultError
	}
	m.TokensMintedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordTokenValidation(result string) {
	m.TokenValidationTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordDownload(result string) {
	m.DownloadsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRequestsExpired(count int64) {
	if count > 0 {
		m.RequestsExpiredTotal.Add(float64(count))
	}
}

func (m *Metrics) RecordPaymentConfirmationLatency(d time.Duration) {
	m.PaymentConfirmLatency.Observe(d.Seconds())
}
