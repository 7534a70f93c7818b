package usecases

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/ports"
)

// RecomputeService executes one metrics recompute against the Distance
// Provider and applies the result if the route's mutation version still
// matches. Last writer wins by version, not by arrival order: a stale
// result is discarded silently because a newer recompute is already queued
// for the topology that superseded it.
type RecomputeService struct {
	routes   ports.RouteRepository
	provider ports.DistanceProvider
}

// NewRecomputeService creates a new RecomputeService.
func NewRecomputeService(routes ports.RouteRepository, provider ports.DistanceProvider) *RecomputeService {
	return &RecomputeService{routes: routes, provider: provider}
}

// Recompute fetches metrics for the route's current topology and commits
// them under the version tag. Provider failures mark the route
// metrics_stale and are returned for the scheduler's retry/backoff policy.
// A StaleMutation error means the work is obsolete, not failed.
func (s *RecomputeService) Recompute(ctx context.Context, routeID string, version int64) error {
	route, err := s.routes.GetByID(ctx, routeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Route deleted (e.g. merged away) while queued.
			return nil
		}
		return err
	}
	if route.Version != version {
		return domain.ErrStaleMutation.WithRoute(routeID).WithVersion(route.Version)
	}

	waypoints := make([]domain.GeoPoint, 0, len(route.Stops)+1)
	for i := range route.Stops {
		waypoints = append(waypoints, route.Stops[i].Location)
	}
	if route.ReturnToOrigin && len(route.Stops) > 0 {
		waypoints = append(waypoints, route.Stops[0].Location)
	}

	if len(waypoints) < 2 {
		// Nothing to route; zero metrics are exact.
		_, err := s.routes.ApplyMetrics(ctx, routeID, version, domain.RouteMetrics{})
		return err
	}

	metrics, err := s.provider.ComputeRoute(ctx, waypoints)
	if err != nil {
		// Keep last-known totals, flagged stale; the scheduler retries.
		if staleErr := s.routes.MarkMetricsStale(ctx, routeID); staleErr != nil {
			slog.Error("mark metrics stale failed", "route_id", routeID, "error", staleErr)
		}
		return err
	}

	if _, err := s.routes.ApplyMetrics(ctx, routeID, version, *metrics); err != nil {
		return err
	}
	return nil
}
