package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2001118301/bullying-detection-system/internal/ledger"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incident_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "incident_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ledgerAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incident_ledger_appends_total",
		Help: "Blocks appended to the ledger by action type.",
	}, []string{"action_type"})

	ledgerBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "incident_ledger_blocks",
		Help: "Current number of blocks in the ledger, genesis included.",
	})

	integrityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incident_ledger_integrity_checks_total",
		Help: "Periodic checks of the persisted chain by result.",
	}, []string{"result"})
)

// knownActions bounds the label set of ledgerAppendsTotal; free-form status
// labels are counted as "other".
var knownActions = map[string]bool{
	ledger.ActionGenesis:   true,
	ledger.ActionRegister:  true,
	ledger.ActionCreated:   true,
	ledger.ActionEscalated: true,
	ledger.ActionValidated: true,
	ledger.ActionRejected:  true,
}

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLedgerAppend is a ledger append hook that updates the ledger metrics.
func RecordLedgerAppend(b ledger.Block) {
	action := b.ActionType
	if !knownActions[action] {
		action = "other"
	}
	ledgerAppendsTotal.WithLabelValues(action).Inc()
	ledgerBlocks.Set(float64(b.Index + 1))
}

// SetLedgerBlocks sets the chain length gauge, used once after the ledger is opened.
func SetLedgerBlocks(n int) {
	ledgerBlocks.Set(float64(n))
}

// RecordIntegrityCheck counts one periodic integrity check.
func RecordIntegrityCheck(success bool) {
	result := "ok"
	if !success {
		result = "failed"
	}
	integrityChecksTotal.WithLabelValues(result).Inc()
}
