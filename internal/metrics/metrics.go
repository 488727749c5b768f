// Package metrics holds the prometheus collectors shared by the store, engine and HTTP layers.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Current number of active HTTP requests",
		},
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of remote store operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "collection"},
	)

	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Total number of failed remote store operations",
		},
		[]string{"operation", "collection"},
	)

	// Engine Metrics
	TaskOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_operations_total",
			Help: "Total number of task mutations",
		},
		[]string{"operation", "result"}, // add/toggle/edit/delete/reset_time/import, ok/rollback
	)

	ResetsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daily_resets_applied_total",
			Help: "Total number of daily resets applied",
		},
		[]string{"trigger"}, // bootstrap, manual, periodic
	)

	MigrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legacy_migrations_total",
			Help: "Total number of legacy snapshot migrations",
		},
		[]string{"result"}, // migrated, skipped, failed
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions_total",
			Help: "Total number of open engine sessions",
		},
	)
)

// Middleware records request counts and durations by route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		ActiveRequests.Inc()
		defer ActiveRequests.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// TrackStoreOperation starts a timer for a store call; stop it with ObserveDuration.
func TrackStoreOperation(operation, collection string) *prometheus.Timer {
	return prometheus.NewTimer(StoreOperationDuration.WithLabelValues(operation, collection))
}

func TrackStoreError(operation, collection string) {
	StoreErrorsTotal.WithLabelValues(operation, collection).Inc()
}

func TrackTaskOperation(operation string, ok bool) {
	result := "ok"
	if !ok {
		result = "rollback"
	}
	TaskOperationsTotal.WithLabelValues(operation, result).Inc()
}

func TrackReset(trigger string) {
	ResetsApplied.WithLabelValues(trigger).Inc()
}

func TrackMigration(result string) {
	MigrationsTotal.WithLabelValues(result).Inc()
}

func SetActiveSessions(count int) {
	ActiveSessions.Set(float64(count))
}
