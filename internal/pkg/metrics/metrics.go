package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetroute",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleetroute",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleetroute",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Fleet-specific metrics
	PositionsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetroute",
		Subsystem: "tracking",
		Name:      "positions_ingested_total",
		Help:      "Total GPS positions accepted by the ingestion pipeline",
	}, []string{"source"})

	PositionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetroute",
		Subsystem: "tracking",
		Name:      "positions_rejected_total",
		Help:      "Total GPS positions rejected at validation",
	}, []string{"reason"})

	GeofenceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetroute",
		Subsystem: "tracking",
		Name:      "geofence_events_total",
		Help:      "Total geofence transitions emitted by the detector",
	}, []string{"type"})

	SequencingOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetroute",
		Subsystem: "routes",
		Name:      "sequencing_operations_total",
		Help:      "Total stop sequencing operations",
	}, []string{"op", "outcome"})

	RecomputesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetroute",
		Subsystem: "routes",
		Name:      "recomputes_applied_total",
		Help:      "Total distance recomputes applied to routes",
	})

	RecomputesStale = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetroute",
		Subsystem: "routes",
		Name:      "recomputes_stale_total",
		Help:      "Total distance recomputes discarded as superseded",
	})

	StopsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetroute",
		Subsystem: "routes",
		Name:      "stops_completed_total",
		Help:      "Total stops completed by detector-driven exits",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetroute",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetroute",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetroute",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetroute",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetroute",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetroute",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool metrics from pgx pool stats.
func UpdateDBPoolMetrics(stat interface{}) {
	// Accept pgxpool.Stat through a small interface so this package stays
	// free of a driver import.
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
