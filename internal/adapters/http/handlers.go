package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/usecases"
)

// CreateRouteHandler builds a new draft route with its initial stops.
func CreateRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in usecases.CreateRouteInput
		if err := c.BodyParser(&in); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		if in.Name == "" {
			return errBadRequest(c, "name is required")
		}

		route, err := deps.Routes.Create(c.Context(), in)
		if err != nil {
			return errDomain(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(route)
	}
}

// ListRoutesHandler returns all routes with offset/limit pagination.
func ListRoutesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		routes, err := deps.Routes.List(c.Context())
		if err != nil {
			return errDomain(c, err)
		}

		// Apply offset/limit pagination on the full list
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 50)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		total := len(routes)
		if offset >= total {
			routes = nil
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			routes = routes[offset:end]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: routes, Pagination: pg})
	}
}

// GetRouteHandler returns a single route with its ordered stops.
func GetRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "route id is required")
		}
		route, err := deps.Routes.GetByID(c.Context(), id)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(route)
	}
}

// RouteProgressHandler returns the derived progress view of a route.
func RouteProgressHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		progress, err := deps.Progress.Progress(c.Context(), id)
		if err != nil {
			return errDomain(c, err)
		}
		c.Set("Cache-Control", "public, max-age=5")
		return c.JSON(progress)
	}
}

type reorderRequest struct {
	Order []string `json:"order"`
}

// ReorderStopsHandler replaces the visit order of a route's pending stops.
// The order must contain exactly the route's current stop ids.
func ReorderStopsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req reorderRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		if len(req.Order) == 0 {
			return errBadRequest(c, "order is required")
		}

		route, err := deps.Sequencing.Reorder(c.Context(), c.Params("id"), req.Order)
		if err != nil {
			return errDomain(c, err)
		}
		deps.Progress.InvalidateCache(c.Context(), route.ID)
		return c.JSON(route)
	}
}

type insertStopRequest struct {
	Name        string                `json:"name"`
	Lat         float64               `json:"lat"`
	Lon         float64               `json:"lon"`
	Quantity    float64               `json:"quantity"`
	Method      domain.DeliveryMethod `json:"method"`
	AfterStopID string                `json:"after_stop_id"`
	Position    int                   `json:"position"`
	Nearest     bool                  `json:"nearest"`
}

// InsertStopHandler adds a stop to a route at the anchored position.
func InsertStopHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req insertStopRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}

		stop := domain.Stop{
			Name:     req.Name,
			Location: domain.GeoPoint{Lat: req.Lat, Lon: req.Lon},
			Quantity: req.Quantity,
			Method:   req.Method,
		}
		anchor := usecases.InsertAnchor{
			AfterStopID: req.AfterStopID,
			Position:    req.Position,
			Nearest:     req.Nearest,
		}

		route, err := deps.Sequencing.Insert(c.Context(), c.Params("id"), stop, anchor)
		if err != nil {
			return errDomain(c, err)
		}
		deps.Progress.InvalidateCache(c.Context(), route.ID)
		return c.Status(fiber.StatusCreated).JSON(route)
	}
}

// RemoveStopHandler deletes a stop; the remaining stops are renumbered.
func RemoveStopHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		route, err := deps.Sequencing.Remove(c.Context(), c.Params("id"), c.Params("stopId"))
		if err != nil {
			return errDomain(c, err)
		}
		deps.Progress.InvalidateCache(c.Context(), route.ID)
		return c.JSON(route)
	}
}

type splitRequest struct {
	AfterStopID string `json:"after_stop_id"`
	Name        string `json:"name"`
}

// SplitRouteHandler moves every stop after the named one onto a new draft
// route.
func SplitRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req splitRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		if req.AfterStopID == "" {
			return errBadRequest(c, "after_stop_id is required")
		}

		kept, moved, err := deps.Sequencing.Split(c.Context(), c.Params("id"), req.AfterStopID, req.Name)
		if err != nil {
			return errDomain(c, err)
		}
		deps.Progress.InvalidateCache(c.Context(), kept.ID)
		return c.JSON(fiber.Map{"route": kept, "new_route": moved})
	}
}

type mergeRequest struct {
	SecondaryRouteID string `json:"secondary_route_id"`
}

// MergeRoutesHandler appends the secondary route's stops onto this route
// and deletes the secondary.
func MergeRoutesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req mergeRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		if req.SecondaryRouteID == "" {
			return errBadRequest(c, "secondary_route_id is required")
		}

		route, err := deps.Sequencing.Merge(c.Context(), c.Params("id"), req.SecondaryRouteID)
		if err != nil {
			return errDomain(c, err)
		}
		deps.Progress.InvalidateCache(c.Context(), route.ID)
		return c.JSON(route)
	}
}

type statusRequest struct {
	Status domain.RouteStatus `json:"status"`
}

// ChangeRouteStatusHandler applies a lifecycle transition.
func ChangeRouteStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req statusRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		if req.Status == "" {
			return errBadRequest(c, "status is required")
		}

		route, err := deps.Routes.ChangeStatus(c.Context(), c.Params("id"), req.Status)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(route)
	}
}

// RouteEventsHandler lists geofence events recorded against a route.
func RouteEventsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 100)
		events, err := deps.Events.ListByRoute(c.Context(), c.Params("id"), limit)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(events)
	}
}

// StopEventsHandler lists geofence events recorded against a stop.
func StopEventsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 100)
		events, err := deps.Events.ListByStop(c.Context(), c.Params("id"), limit)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(events)
	}
}

type positionRequest struct {
	VehicleID  string    `json:"vehicle_id"`
	RouteID    string    `json:"route_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	RecordedAt time.Time `json:"recorded_at"`
	Speed      float64   `json:"speed"`
	Heading    float64   `json:"heading"`
	AccuracyM  float64   `json:"accuracy"`
}

// IngestPositionHandler accepts one GPS reading and runs geofence
// detection for the vehicle's active route.
func IngestPositionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req positionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		if req.RecordedAt.IsZero() {
			req.RecordedAt = time.Now()
		}

		result, err := deps.Ingest.Ingest(c.Context(), usecases.IngestInput{
			VehicleID:  req.VehicleID,
			RouteID:    req.RouteID,
			Lat:        req.Lat,
			Lon:        req.Lon,
			RecordedAt: req.RecordedAt,
			Speed:      req.Speed,
			Heading:    req.Heading,
			AccuracyM:  req.AccuracyM,
		})
		if err != nil {
			return errDomain(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(result)
	}
}

// LatestPositionHandler returns a vehicle's most recent position.
func LatestPositionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pos, err := deps.Positions.LatestByVehicle(c.Context(), c.Params("id"))
		if err != nil {
			return errDomain(c, err)
		}
		c.Set("Cache-Control", "no-cache")
		return c.JSON(pos)
	}
}

// VehiclePositionsHandler returns a vehicle's position trail.
func VehiclePositionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		since := time.Now().Add(-1 * time.Hour)
		if s := c.Query("since"); s != "" {
			parsed, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return errBadRequest(c, "since must be RFC 3339")
			}
			since = parsed
		}
		limit := c.QueryInt("limit", 500)

		positions, err := deps.Positions.ListByVehicle(c.Context(), c.Params("id"), since, limit)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(positions)
	}
}

// FleetStats holds row counts across the fleet tables.
type FleetStats struct {
	Routes         int    `json:"routes"`
	ActiveRoutes   int    `json:"active_routes"`
	Stops          int    `json:"stops"`
	Positions      int    `json:"positions"`
	GeofenceEvents int    `json:"geofence_events"`
	LastPosition   string `json:"last_position,omitempty"`
}

// FleetStatsHandler returns row counts from the fleet tables.
func FleetStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var stats FleetStats
		row := deps.DB.Pool.QueryRow(c.Context(), `
			SELECT
				(SELECT count(*) FROM routes),
				(SELECT count(*) FROM routes WHERE status = 'active'),
				(SELECT count(*) FROM stops),
				(SELECT count(*) FROM positions),
				(SELECT count(*) FROM geofence_events),
				COALESCE((SELECT max(received_at)::text FROM positions), '')
		`)
		if err := row.Scan(&stats.Routes, &stats.ActiveRoutes, &stats.Stops,
			&stats.Positions, &stats.GeofenceEvents, &stats.LastPosition); err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}
