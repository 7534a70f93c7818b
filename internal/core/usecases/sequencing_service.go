package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/ports"
	"github.com/ibaiondo/fleetroute/internal/pkg/geospatial"
)

// InsertAnchor says where a new stop lands in the sequence. Exactly one of
// the three modes should be set; they are checked in the order AfterStopID,
// Position, Nearest.
type InsertAnchor struct {
	// AfterStopID inserts directly after the named stop.
	AfterStopID string
	// Position inserts at the given 1-based sequence number. Values past
	// the end append.
	Position int
	// Nearest inserts after the straight-line nearest existing stop. This
	// is a heuristic placement, not a route-optimality guarantee.
	Nearest bool
}

// SequencingService edits the stop sequence of a route: reorder, insert,
// remove, split, merge. Every operation commits through the store's choke
// point and returns immediately with the currently-known (possibly stale)
// distance metrics; a recompute is enqueued asynchronously, tagged with the
// route's new mutation version.
type SequencingService struct {
	routes    ports.RouteRepository
	recompute ports.RecomputeScheduler
}

// NewSequencingService creates a new SequencingService.
func NewSequencingService(routes ports.RouteRepository, recompute ports.RecomputeScheduler) *SequencingService {
	return &SequencingService{routes: routes, recompute: recompute}
}

// Reorder rearranges the route's stops to match order, a permutation of the
// current stop ids. Partial or inflated orders fail with IncompleteOrder.
func (s *SequencingService) Reorder(ctx context.Context, routeID string, order []string) (*domain.Route, error) {
	route, err := s.routes.MutateStops(ctx, routeID, func(r *domain.Route) ([]domain.Stop, error) {
		if r.Status == domain.RouteCompleted {
			return nil, domain.ErrRouteCompleted.WithRoute(r.ID)
		}

		if len(order) != len(r.Stops) {
			return nil, domain.ErrIncompleteOrder.WithRoute(r.ID)
		}
		byID := make(map[string]domain.Stop, len(r.Stops))
		for _, st := range r.Stops {
			byID[st.ID] = st
		}

		next := make([]domain.Stop, 0, len(order))
		for _, id := range order {
			st, ok := byID[id]
			if !ok {
				return nil, domain.ErrIncompleteOrder.WithRoute(r.ID).WithStop(id)
			}
			delete(byID, id) // catches duplicates in order
			next = append(next, st)
		}
		domain.Renumber(next, 1)
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	s.scheduleRecompute(ctx, route)
	return route, nil
}

// Insert adds a new stop at the anchored position and shifts subsequent
// stops by one.
func (s *SequencingService) Insert(ctx context.Context, routeID string, stop domain.Stop, anchor InsertAnchor) (*domain.Route, error) {
	if !stop.Location.Valid() {
		return nil, domain.ErrInvalidCoordinates.WithRoute(routeID)
	}
	if err := stop.Method.Validate(); err != nil {
		return nil, err
	}

	route, err := s.routes.MutateStops(ctx, routeID, func(r *domain.Route) ([]domain.Stop, error) {
		if r.Status == domain.RouteCompleted {
			return nil, domain.ErrRouteCompleted.WithRoute(r.ID)
		}

		idx, err := insertIndex(r, stop, anchor)
		if err != nil {
			return nil, err
		}

		st := stop
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		st.RouteID = r.ID
		st.State = domain.StopPending
		st.CreatedAt = time.Now()

		next := make([]domain.Stop, 0, len(r.Stops)+1)
		next = append(next, r.Stops[:idx]...)
		next = append(next, st)
		next = append(next, r.Stops[idx:]...)
		domain.Renumber(next, 1)
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	s.scheduleRecompute(ctx, route)
	return route, nil
}

// insertIndex resolves the anchor to a slice index in [0, len(stops)].
func insertIndex(r *domain.Route, stop domain.Stop, anchor InsertAnchor) (int, error) {
	switch {
	case anchor.AfterStopID != "":
		for i := range r.Stops {
			if r.Stops[i].ID == anchor.AfterStopID {
				return i + 1, nil
			}
		}
		return 0, domain.ErrNotFound.WithRoute(r.ID).WithStop(anchor.AfterStopID)

	case anchor.Position > 0:
		idx := anchor.Position - 1
		if idx > len(r.Stops) {
			idx = len(r.Stops)
		}
		return idx, nil

	case anchor.Nearest:
		if len(r.Stops) == 0 {
			return 0, nil
		}
		best, bestDist := 0, -1.0
		for i := range r.Stops {
			d := geospatial.Haversine(
				stop.Location.Lat, stop.Location.Lon,
				r.Stops[i].Location.Lat, r.Stops[i].Location.Lon,
			)
			if bestDist < 0 || d < bestDist {
				best, bestDist = i, d
			}
		}
		return best + 1, nil
	}
	// No anchor: append.
	return len(r.Stops), nil
}

// Remove deletes a stop and shifts subsequent stops down by one.
func (s *SequencingService) Remove(ctx context.Context, routeID, stopID string) (*domain.Route, error) {
	route, err := s.routes.MutateStops(ctx, routeID, func(r *domain.Route) ([]domain.Stop, error) {
		if r.Status == domain.RouteCompleted {
			return nil, domain.ErrRouteCompleted.WithRoute(r.ID)
		}

		idx := -1
		for i := range r.Stops {
			if r.Stops[i].ID == stopID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, domain.ErrNotFound.WithRoute(r.ID).WithStop(stopID)
		}

		next := make([]domain.Stop, 0, len(r.Stops)-1)
		next = append(next, r.Stops[:idx]...)
		next = append(next, r.Stops[idx+1:]...)
		domain.Renumber(next, 1)
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	s.scheduleRecompute(ctx, route)
	return route, nil
}

// Split moves every stop after afterStopID into a new draft route named
// newRouteName. Both halves are renumbered from 1. Splitting at the tail
// fails with CannotSplitAtTail; active and completed routes are rejected.
func (s *SequencingService) Split(ctx context.Context, routeID, afterStopID, newRouteName string) (*domain.Route, *domain.Route, error) {
	primary, moved, err := s.routes.Split(ctx, routeID, func(r *domain.Route) ([]domain.Stop, *domain.Route, error) {
		switch r.Status {
		case domain.RouteActive:
			return nil, nil, domain.ErrRouteActive.WithRoute(r.ID)
		case domain.RouteCompleted:
			return nil, nil, domain.ErrRouteCompleted.WithRoute(r.ID)
		}

		idx := -1
		for i := range r.Stops {
			if r.Stops[i].ID == afterStopID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, domain.ErrNotFound.WithRoute(r.ID).WithStop(afterStopID)
		}
		if idx == len(r.Stops)-1 {
			return nil, nil, domain.ErrCannotSplitAtTail.WithRoute(r.ID).WithStop(afterStopID)
		}

		now := time.Now()
		newRoute := &domain.Route{
			ID:             uuid.NewString(),
			Name:           newRouteName,
			Status:         domain.RouteDraft,
			ReturnToOrigin: r.ReturnToOrigin,
			MetricsStale:   true,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		keep := append([]domain.Stop(nil), r.Stops[:idx+1]...)
		domain.Renumber(keep, 1)

		tail := append([]domain.Stop(nil), r.Stops[idx+1:]...)
		for i := range tail {
			tail[i].RouteID = newRoute.ID
		}
		domain.Renumber(tail, 1)
		newRoute.Stops = tail

		return keep, newRoute, nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.scheduleRecompute(ctx, primary)
	s.scheduleRecompute(ctx, moved)
	return primary, moved, nil
}

// Merge appends the secondary route's stops (renumbered to continue the
// primary's sequence) to the primary and deletes the secondary. Either
// route being active or completed rejects the merge.
func (s *SequencingService) Merge(ctx context.Context, primaryID, secondaryID string) (*domain.Route, error) {
	route, err := s.routes.Merge(ctx, primaryID, secondaryID, func(primary, secondary *domain.Route) ([]domain.Stop, error) {
		for _, r := range []*domain.Route{primary, secondary} {
			switch r.Status {
			case domain.RouteActive:
				return nil, domain.ErrRouteActive.WithRoute(r.ID)
			case domain.RouteCompleted:
				return nil, domain.ErrRouteCompleted.WithRoute(r.ID)
			}
		}

		merged := append([]domain.Stop(nil), primary.Stops...)
		for _, st := range secondary.Stops {
			st.RouteID = primary.ID
			merged = append(merged, st)
		}
		domain.Renumber(merged, 1)
		return merged, nil
	})
	if err != nil {
		return nil, err
	}

	s.scheduleRecompute(ctx, route)
	return route, nil
}

// scheduleRecompute enqueues an async metrics recompute tagged with the
// route's current version. Enqueue failures are logged, never surfaced:
// topology correctness is decoupled from oracle availability, and the route
// already carries metrics_stale.
func (s *SequencingService) scheduleRecompute(ctx context.Context, route *domain.Route) {
	if s.recompute == nil || route == nil {
		return
	}
	if err := s.recompute.Schedule(ctx, route.ID, route.Version); err != nil {
		slog.Warn("recompute enqueue failed",
			"route_id", route.ID, "version", route.Version, "error", err)
	}
}
