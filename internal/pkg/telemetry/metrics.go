package telemetry

// SLI metric names used for instrumentation.
const (
	// Latency
	MetricAPILatencyP50 = "api.latency.p50"
	MetricAPILatencyP95 = "api.latency.p95"
	MetricAPILatencyP99 = "api.latency.p99"

	// Throughput
	MetricRequestsPerSec = "api.requests_per_second"

	// Data freshness
	MetricPositionLatency = "tracking.position_latency"
	MetricMetricsStaleAge = "routes.metrics_stale_age_seconds"

	// Availability
	MetricUptime = "service.uptime_percentage"

	// Business
	MetricStopsCompleted   = "business.stops_completed"
	MetricRecomputesStale  = "business.recomputes_discarded"
	MetricGeofenceEnters   = "business.geofence_enters"
)
