package db

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Maintenance steps.
const (
	stepWALCheckpoint = "wal_checkpoint"
	stepOptimize      = "optimize"
	stepVacuum        = "vacuum"
)

var (
	maintenanceSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractindexor_maintenance_steps_total",
			Help: "Maintenance steps by step and outcome (success, error, skipped)",
		},
		[]string{"step", "outcome"},
	)

	maintenanceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contractindexor_maintenance_duration_seconds",
			Help:    "Duration of maintenance passes, including the wait for in-flight units of work",
			Buckets: prometheus.DefBuckets,
		},
	)

	maintenanceLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contractindexor_maintenance_last_run_timestamp",
			Help: "Unix timestamp of the last maintenance pass",
		},
	)

	dbSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contractindexor_db_size_bytes",
			Help: "Combined size of the database, WAL and shared memory files",
		},
	)

	dbFreeRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contractindexor_db_free_page_ratio",
			Help: "Share of free pages in the database file",
		},
	)
)

func maintenanceStepInc(step, outcome string) {
	maintenanceSteps.WithLabelValues(step, outcome).Inc()
}

func maintenancePassLog(duration time.Duration) {
	maintenanceDuration.Observe(duration.Seconds())
	maintenanceLastRun.Set(float64(time.Now().UTC().Unix()))
}

func dbSizeLog(sizeBytes int64, freeRatio float64) {
	dbSize.Set(float64(sizeBytes))
	dbFreeRatio.Set(freeRatio)
}
