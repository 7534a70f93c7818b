package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on endpoint.
// Adds sensible defaults if not already set by the handler.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		// Only set on GET requests
		if c.Method() != "GET" {
			return err
		}

		// Don't override if already set
		if existing := c.Get("Cache-Control"); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		// Default cache times by endpoint pattern
		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10" // Very short for system checks

		case path == "/metrics":
			ttl = "no-cache" // Metrics are real-time

		case path == "/graphql":
			ttl = "private, max-age=0" // GraphQL varies wildly

		case strings.Contains(path, "/progress"):
			ttl = "public, max-age=5" // Progress changes with every position

		case strings.Contains(path, "/positions"):
			ttl = "no-cache" // Live vehicle data

		case strings.Contains(path, "/events"):
			ttl = "public, max-age=30" // Audit log grows, never rewrites

		case path == "/v1/fleet/stats":
			ttl = "public, max-age=60" // Fleet stats: 1 min

		case strings.HasPrefix(path, "/v1/routes"):
			ttl = "public, max-age=15" // Routes mutate under dispatchers

		case strings.HasPrefix(path, "/v1/"):
			ttl = "public, max-age=60" // Default for API endpoints
		}

		if ttl != "" {
			c.Set("Cache-Control", ttl)
		}

		return err
	}
}
