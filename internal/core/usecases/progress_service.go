package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/ports"
	"github.com/ibaiondo/fleetroute/internal/pkg/geospatial"
)

// ProgressService derives the aggregate view of a route on demand:
// completed/pending counts, the next pending stop, and a straight-line ETA
// from the last known position at an assumed average speed. Routed ETAs
// would need a provider call per position; this estimator is deliberately
// cheap.
type ProgressService struct {
	routes      ports.RouteRepository
	positions   ports.PositionRepository
	cache       ports.CacheService
	avgSpeedKmh float64
}

// NewProgressService creates a ProgressService. avgSpeedKmh falls back to
// 60 when non-positive.
func NewProgressService(routes ports.RouteRepository, positions ports.PositionRepository, cache ports.CacheService, avgSpeedKmh float64) *ProgressService {
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = 60
	}
	return &ProgressService{routes: routes, positions: positions, cache: cache, avgSpeedKmh: avgSpeedKmh}
}

// Progress computes the current progress snapshot for a route.
func (s *ProgressService) Progress(ctx context.Context, routeID string) (*domain.RouteProgress, error) {
	cacheKey := "progress:" + routeID
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var p domain.RouteProgress
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
		}
	}

	route, err := s.routes.GetByID(ctx, routeID)
	if err != nil {
		return nil, err
	}

	p := &domain.RouteProgress{
		RouteID:      route.ID,
		Status:       route.Status,
		MetricsStale: route.MetricsStale,
	}
	for i := range route.Stops {
		if route.Stops[i].State == domain.StopCompleted {
			p.CompletedStops++
		} else {
			p.PendingStops++
		}
	}
	p.NextStop = route.NextPendingStop()

	if p.NextStop != nil && route.VehicleID != "" {
		if pos, err := s.positions.LatestByVehicle(ctx, route.VehicleID); err == nil && pos != nil {
			distKm := geospatial.Haversine(
				pos.Location.Lat, pos.Location.Lon,
				p.NextStop.Location.Lat, p.NextStop.Location.Lon,
			) / 1000
			p.DistanceToNextKm = &distKm

			eta := time.Now().Add(time.Duration(distKm / s.avgSpeedKmh * float64(time.Hour)))
			p.ETA = &eta
		}
	}

	// Progress is cheap but read-heavy on dispatcher dashboards; a few
	// seconds of staleness is acceptable.
	if s.cache != nil {
		if data, err := json.Marshal(p); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 5)
		}
	}

	return p, nil
}

// InvalidateCache drops the cached snapshot (called after edits).
func (s *ProgressService) InvalidateCache(ctx context.Context, routeID string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, fmt.Sprintf("progress:%s", routeID))
	}
}
