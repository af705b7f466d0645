package monitoring

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsService interface {
	// HTTP metrics
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)

	// Ledger metrics
	RecordLedgerOperation(operation, status string, duration time.Duration)
	RecordCoinVolume(operation string, amount int64)

	// Auction metrics
	RecordAuctionOperation(operation, status string, duration time.Duration)
	IncrementActiveAuctions()
	DecrementActiveAuctions()
	RecordBidAmount(amount int64)
	RecordFeeCollected(amount int64)

	// Storage metrics
	RecordStorageOperation(operation string, duration time.Duration)
	IncrementStorageErrors(operation string)

	// System metrics
	RecordSystemMetrics()
}

type prometheusMetrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	ledgerOperationsTotal   *prometheus.CounterVec
	ledgerOperationDuration *prometheus.HistogramVec
	coinVolumeTotal         *prometheus.CounterVec

	auctionOperationsTotal   *prometheus.CounterVec
	auctionOperationDuration *prometheus.HistogramVec
	activeAuctionsGauge      prometheus.Gauge
	bidAmountHistogram       prometheus.Histogram
	feesCollectedTotal       prometheus.Counter

	storageOperationsTotal   *prometheus.CounterVec
	storageOperationDuration *prometheus.HistogramVec
	storageErrorsTotal       *prometheus.CounterVec

	memoryUsageGauge    prometheus.Gauge
	goroutineCountGauge prometheus.Gauge
	uptimeGauge         prometheus.Gauge

	startTime time.Time
}

func NewPrometheusMetrics() MetricsService {
	m := &prometheusMetrics{
		startTime: time.Now(),
	}
	m.initMetrics()
	return m
}

func (m *prometheusMetrics) initMetrics() {
	m.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "economy_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	m.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "economy_api_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	m.ledgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "economy_api_ledger_operations_total",
			Help: "Total number of coin ledger operations",
		},
		[]string{"operation", "status"},
	)

	m.ledgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "economy_api_ledger_operation_duration_seconds",
			Help:    "Coin ledger operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	m.coinVolumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "economy_api_coin_volume_total",
			Help: "Total coin volume moved per operation",
		},
		[]string{"operation"},
	)

	m.auctionOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "economy_api_auction_operations_total",
			Help: "Total number of auction operations",
		},
		[]string{"operation", "status"},
	)

	m.auctionOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "economy_api_auction_operation_duration_seconds",
			Help:    "Auction operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	m.activeAuctionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "economy_api_active_auctions",
			Help: "Number of currently active auctions",
		},
	)

	m.bidAmountHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "economy_api_bid_amount",
			Help:    "Accepted bid amounts",
			Buckets: prometheus.ExponentialBuckets(10, 4, 10),
		},
	)

	m.feesCollectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "economy_api_fees_collected_total",
			Help: "Total auction fees collected",
		},
	)

	m.storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "economy_api_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation"},
	)

	m.storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "economy_api_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	m.storageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "economy_api_storage_errors_total",
			Help: "Total number of storage errors",
		},
		[]string{"operation"},
	)

	m.memoryUsageGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "economy_api_memory_usage_bytes",
			Help: "Current memory usage in bytes",
		},
	)

	m.goroutineCountGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "economy_api_goroutines",
			Help: "Current number of goroutines",
		},
	)

	m.uptimeGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "economy_api_uptime_seconds",
			Help: "Service uptime in seconds",
		},
	)
}

func (m *prometheusMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, httpStatusLabel(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordLedgerOperation(operation, status string, duration time.Duration) {
	m.ledgerOperationsTotal.WithLabelValues(operation, status).Inc()
	m.ledgerOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordCoinVolume(operation string, amount int64) {
	m.coinVolumeTotal.WithLabelValues(operation).Add(float64(amount))
}

func (m *prometheusMetrics) RecordAuctionOperation(operation, status string, duration time.Duration) {
	m.auctionOperationsTotal.WithLabelValues(operation, status).Inc()
	m.auctionOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *prometheusMetrics) IncrementActiveAuctions() {
	m.activeAuctionsGauge.Inc()
}

func (m *prometheusMetrics) DecrementActiveAuctions() {
	m.activeAuctionsGauge.Dec()
}

func (m *prometheusMetrics) RecordBidAmount(amount int64) {
	m.bidAmountHistogram.Observe(float64(amount))
}

func (m *prometheusMetrics) RecordFeeCollected(amount int64) {
	m.feesCollectedTotal.Add(float64(amount))
}

func (m *prometheusMetrics) RecordStorageOperation(operation string, duration time.Duration) {
	m.storageOperationsTotal.WithLabelValues(operation).Inc()
	m.storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *prometheusMetrics) IncrementStorageErrors(operation string) {
	m.storageErrorsTotal.WithLabelValues(operation).Inc()
}

func (m *prometheusMetrics) RecordSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.memoryUsageGauge.Set(float64(memStats.Alloc))
	m.goroutineCountGauge.Set(float64(runtime.NumGoroutine()))
	m.uptimeGauge.Set(time.Since(m.startTime).Seconds())
}

func httpStatusLabel(statusCode int) string {
	switch {
	case statusCode < 300:
		return "2xx"
	case statusCode < 400:
		return "3xx"
	case statusCode < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// NoopMetrics discards every observation. Used in tests.
type NoopMetrics struct{}

func (NoopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
func (NoopMetrics) RecordLedgerOperation(string, string, time.Duration)  {}
func (NoopMetrics) RecordCoinVolume(string, int64)                       {}
func (NoopMetrics) RecordAuctionOperation(string, string, time.Duration) {}
func (NoopMetrics) IncrementActiveAuctions()                             {}
func (NoopMetrics) DecrementActiveAuctions()                             {}
func (NoopMetrics) RecordBidAmount(int64)                                {}
func (NoopMetrics) RecordFeeCollected(int64)                             {}
func (NoopMetrics) RecordStorageOperation(string, time.Duration)         {}
func (NoopMetrics) IncrementStorageErrors(string)                        {}
func (NoopMetrics) RecordSystemMetrics()                                 {}
