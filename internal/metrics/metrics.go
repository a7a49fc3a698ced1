package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Import metrics
	LastCommittedHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contractindexor_last_committed_height",
			Help: "The last block height committed by the importer",
		},
		[]string{"source"},
	)

	HeightsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractindexor_heights_processed_total",
			Help: "Total number of block heights processed",
		},
		[]string{"source"},
	)

	HeightProcessingTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contractindexor_height_processing_duration_seconds",
			Help:    "Time taken to process and commit one block height",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	ImportRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractindexor_import_retries_total",
			Help: "Total number of retried import cycles",
		},
		[]string{"source"},
	)

	ImportFatal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractindexor_import_fatal_total",
			Help: "Total number of times the importer entered the fatal state",
		},
		[]string{"source"},
	)

	// Contract domain metrics
	ContractEventsStaged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractindexor_contract_rows_staged_total",
			Help: "Total number of contract domain rows staged by the classifier",
		},
		[]string{"kind"},
	)

	SnapshotsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contractindexor_snapshots_written_total",
			Help: "Total number of contract snapshots written",
		},
	)

	CIS2EventsDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractindexor_cis2_events_decoded_total",
			Help: "Total number of CIS-2 events decoded by kind",
		},
		[]string{"kind"},
	)

	CIS2DecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contractindexor_cis2_decode_failures_total",
			Help: "Total number of malformed CIS-2 event logs dropped",
		},
	)

	UnresolvedAccounts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contractindexor_unresolved_accounts_total",
			Help: "Total number of balance updates dropped for unknown accounts",
		},
	)

	// Account cache metrics
	AccountCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractindexor_account_cache_lookups_total",
			Help: "Account id lookups by the tier that answered them",
		},
		[]string{"tier"},
	)

	// Notification metrics
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractindexor_notifications_published_total",
			Help: "Total number of balance-changed notifications published",
		},
		[]string{"backend"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractindexor_notifications_failed_total",
			Help: "Total number of balance-changed notifications that failed to publish",
		},
		[]string{"backend"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contractindexor_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractindexor_errors_total",
			Help: "Total number of errors by component and severity",
		},
		[]string{"component", "severity"},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contractindexor_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contractindexor_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contractindexor_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func LastCommittedHeightSet(source string, height uint64) {
	LastCommittedHeight.WithLabelValues(source).Set(float64(height))
}

func HeightsProcessedInc(source string) {
	HeightsProcessed.WithLabelValues(source).Inc()
}

func HeightProcessingTimeLog(source string, duration time.Duration) {
	HeightProcessingTime.WithLabelValues(source).Observe(duration.Seconds())
}

func ImportRetriesInc(source string) {
	ImportRetries.WithLabelValues(source).Inc()
}

func ImportFatalInc(source string) {
	ImportFatal.WithLabelValues(source).Inc()
}

func ContractRowsStagedAdd(kind string, count int) {
	ContractEventsStaged.WithLabelValues(kind).Add(float64(count))
}

func SnapshotsWrittenAdd(count int) {
	SnapshotsWritten.Add(float64(count))
}

func CIS2EventDecodedInc(kind string) {
	CIS2EventsDecoded.WithLabelValues(kind).Inc()
}

func CIS2DecodeFailureInc() {
	CIS2DecodeFailures.Inc()
}

func UnresolvedAccountsAdd(count int) {
	UnresolvedAccounts.Add(float64(count))
}

func AccountCacheLookupsAdd(tier string, count int) {
	AccountCacheLookups.WithLabelValues(tier).Add(float64(count))
}

func NotificationPublishedInc(backend string) {
	NotificationsPublished.WithLabelValues(backend).Inc()
}

func NotificationFailedInc(backend string) {
	NotificationsFailed.WithLabelValues(backend).Inc()
}

func ErrorsInc(component, severity string) {
	Errors.WithLabelValues(component, severity).Inc()
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())

	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
