package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/ibaiondo/fleetroute/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // Balance speed vs compression ratio
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 300 requests per minute per IP. Position ingest from
	// a busy fleet is chatty, so the limit sits well above read traffic.
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout — fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1 — 15s per-request timeout
	v1 := app.Group("/v1")
	v1.Post("/routes", timeout.NewWithContext(CreateRouteHandler(deps), 15*time.Second))
	v1.Get("/routes", timeout.NewWithContext(ListRoutesHandler(deps), 15*time.Second))
	v1.Get("/routes/:id", timeout.NewWithContext(GetRouteHandler(deps), 15*time.Second))
	v1.Get("/routes/:id/progress", timeout.NewWithContext(RouteProgressHandler(deps), 15*time.Second))
	v1.Get("/routes/:id/events", timeout.NewWithContext(RouteEventsHandler(deps), 15*time.Second))
	v1.Post("/routes/:id/reorder", timeout.NewWithContext(ReorderStopsHandler(deps), 15*time.Second))
	v1.Post("/routes/:id/stops", timeout.NewWithContext(InsertStopHandler(deps), 15*time.Second))
	v1.Delete("/routes/:id/stops/:stopId", timeout.NewWithContext(RemoveStopHandler(deps), 15*time.Second))
	v1.Post("/routes/:id/split", timeout.NewWithContext(SplitRouteHandler(deps), 15*time.Second))
	v1.Post("/routes/:id/merge", timeout.NewWithContext(MergeRoutesHandler(deps), 15*time.Second))
	v1.Post("/routes/:id/status", timeout.NewWithContext(ChangeRouteStatusHandler(deps), 15*time.Second))

	v1.Post("/positions", timeout.NewWithContext(IngestPositionHandler(deps), 15*time.Second))
	v1.Get("/vehicles/:id/positions/latest", timeout.NewWithContext(LatestPositionHandler(deps), 15*time.Second))
	v1.Get("/vehicles/:id/positions", timeout.NewWithContext(VehiclePositionsHandler(deps), 15*time.Second))

	v1.Get("/stops/:id/events", timeout.NewWithContext(StopEventsHandler(deps), 15*time.Second))
	v1.Get("/fleet/stats", timeout.NewWithContext(FleetStatsHandler(deps), 15*time.Second))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
