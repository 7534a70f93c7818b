package usecases

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/ports"
)

// CreateStopInput is one stop in a route build request.
type CreateStopInput struct {
	Name     string                `json:"name"`
	Lat      float64               `json:"lat"`
	Lon      float64               `json:"lon"`
	Quantity float64               `json:"quantity"`
	Method   domain.DeliveryMethod `json:"method"`
}

// CreateRouteInput is a route build request.
type CreateRouteInput struct {
	Name           string            `json:"name"`
	VehicleID      string            `json:"vehicle_id"`
	DriverID       string            `json:"driver_id"`
	ReturnToOrigin bool              `json:"return_to_origin"`
	Stops          []CreateStopInput `json:"stops"`
}

// RouteService handles route lifecycle: creation, lookup, and status
// transitions.
type RouteService struct {
	routes    ports.RouteRepository
	recompute ports.RecomputeScheduler
	publisher ports.EventPublisher
}

// NewRouteService creates a new RouteService.
func NewRouteService(routes ports.RouteRepository, recompute ports.RecomputeScheduler, publisher ports.EventPublisher) *RouteService {
	return &RouteService{routes: routes, recompute: recompute, publisher: publisher}
}

// Create builds a draft route with the given stops, numbered in input
// order, and enqueues an initial metrics recompute.
func (s *RouteService) Create(ctx context.Context, in CreateRouteInput) (*domain.Route, error) {
	now := time.Now()
	route := &domain.Route{
		ID:             uuid.NewString(),
		Name:           in.Name,
		Status:         domain.RouteDraft,
		VehicleID:      in.VehicleID,
		DriverID:       in.DriverID,
		ReturnToOrigin: in.ReturnToOrigin,
		MetricsStale:   true,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for i, si := range in.Stops {
		loc := domain.GeoPoint{Lat: si.Lat, Lon: si.Lon}
		if !loc.Valid() {
			return nil, domain.ErrInvalidCoordinates.WithRoute(route.ID)
		}
		if err := si.Method.Validate(); err != nil {
			return nil, err
		}
		route.Stops = append(route.Stops, domain.Stop{
			ID:             uuid.NewString(),
			RouteID:        route.ID,
			SequenceNumber: i + 1,
			Name:           si.Name,
			Location:       loc,
			State:          domain.StopPending,
			Quantity:       si.Quantity,
			Method:         si.Method,
			CreatedAt:      now,
		})
	}

	if err := s.routes.Create(ctx, route); err != nil {
		return nil, err
	}

	if s.recompute != nil && len(route.Stops) >= 2 {
		_ = s.recompute.Schedule(ctx, route.ID, route.Version)
	}
	return route, nil
}

// GetByID returns a route with its ordered stops.
func (s *RouteService) GetByID(ctx context.Context, id string) (*domain.Route, error) {
	return s.routes.GetByID(ctx, id)
}

// List returns all routes.
func (s *RouteService) List(ctx context.Context) ([]domain.Route, error) {
	return s.routes.List(ctx)
}

// ChangeStatus applies a lifecycle transition and broadcasts it. Illegal
// transitions fail with InvalidTransition.
func (s *RouteService) ChangeStatus(ctx context.Context, routeID string, next domain.RouteStatus) (*domain.Route, error) {
	route, err := s.routes.UpdateStatus(ctx, routeID, next)
	if err != nil {
		return nil, err
	}
	if s.publisher != nil {
		_ = s.publisher.PublishRouteStatus(ctx, routeID, route.Status)
	}
	return route, nil
}
