// Package memory provides in-process implementations of the repository
// ports. The route store is the reference implementation of the mutation
// choke point semantics; it backs the unit tests and local development
// without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/ports"
)

// RouteStore implements ports.RouteRepository with a mutex-guarded map.
// All writes funnel through commit, which validates the contiguous-sequence
// invariant and bumps the mutation version on topology changes.
type RouteStore struct {
	mu     sync.RWMutex
	routes map[string]*domain.Route
}

// NewRouteStore creates an empty RouteStore.
func NewRouteStore() *RouteStore {
	return &RouteStore{routes: make(map[string]*domain.Route)}
}

func cloneRoute(r *domain.Route) *domain.Route {
	c := *r
	c.Stops = append([]domain.Stop(nil), r.Stops...)
	return &c
}

// commit validates and installs a new stop list on a route held under the
// store lock. Returns the route unchanged on violation.
func commit(r *domain.Route, stops []domain.Stop) error {
	domain.SortBySequence(stops)
	if err := domain.ValidateSequence(stops); err != nil {
		var de *domain.Error
		if e, ok := err.(*domain.Error); ok {
			de = e.WithRoute(r.ID)
		} else {
			de = domain.ErrInvalidSequence.WithRoute(r.ID)
		}
		return de
	}
	if domain.TopologyChanged(r.Stops, stops) {
		r.Version++
		r.MetricsStale = true
	}
	r.Stops = stops
	r.UpdatedAt = time.Now()
	return nil
}

// Create stores a new route after validating its stop sequence.
func (s *RouteStore) Create(ctx context.Context, route *domain.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := domain.ValidateSequence(route.Stops); err != nil {
		return err
	}
	c := cloneRoute(route)
	domain.SortBySequence(c.Stops)
	s.routes[c.ID] = c
	return nil
}

// GetByID returns a copy of the route.
func (s *RouteStore) GetByID(ctx context.Context, id string) (*domain.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.routes[id]
	if !ok {
		return nil, domain.ErrNotFound.WithRoute(id)
	}
	return cloneRoute(r), nil
}

// List returns all routes ordered by creation time.
func (s *RouteStore) List(ctx context.Context) ([]domain.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Route, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, *cloneRoute(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MutateStops applies fn to one route under the store lock.
func (s *RouteStore) MutateStops(ctx context.Context, routeID string, fn ports.StopsMutator) (*domain.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[routeID]
	if !ok {
		return nil, domain.ErrNotFound.WithRoute(routeID)
	}

	working := cloneRoute(r)
	stops, err := fn(working)
	if err != nil {
		return nil, err
	}
	if err := commit(working, stops); err != nil {
		return nil, err
	}
	s.routes[routeID] = working
	return cloneRoute(working), nil
}

// Split atomically truncates one route and creates the route receiving the
// moved tail.
func (s *RouteStore) Split(ctx context.Context, routeID string, fn ports.SplitMutator) (*domain.Route, *domain.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[routeID]
	if !ok {
		return nil, nil, domain.ErrNotFound.WithRoute(routeID)
	}

	working := cloneRoute(r)
	keep, moved, err := fn(working)
	if err != nil {
		return nil, nil, err
	}
	if moved == nil {
		return nil, nil, domain.ErrCannotSplitAtTail.WithRoute(routeID)
	}
	if err := commit(working, keep); err != nil {
		return nil, nil, err
	}
	if err := domain.ValidateSequence(moved.Stops); err != nil {
		return nil, nil, err
	}

	s.routes[routeID] = working
	s.routes[moved.ID] = cloneRoute(moved)
	return cloneRoute(working), cloneRoute(moved), nil
}

// Merge atomically rewrites the primary's stops and deletes the secondary.
func (s *RouteStore) Merge(ctx context.Context, primaryID, secondaryID string, fn ports.MergeMutator) (*domain.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	primary, ok := s.routes[primaryID]
	if !ok {
		return nil, domain.ErrNotFound.WithRoute(primaryID)
	}
	secondary, ok := s.routes[secondaryID]
	if !ok {
		return nil, domain.ErrNotFound.WithRoute(secondaryID)
	}

	working := cloneRoute(primary)
	stops, err := fn(working, cloneRoute(secondary))
	if err != nil {
		return nil, err
	}
	if err := commit(working, stops); err != nil {
		return nil, err
	}

	s.routes[primaryID] = working
	delete(s.routes, secondaryID)
	return cloneRoute(working), nil
}

// UpdateStatus enforces the forward-only lifecycle rule.
func (s *RouteStore) UpdateStatus(ctx context.Context, routeID string, next domain.RouteStatus) (*domain.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[routeID]
	if !ok {
		return nil, domain.ErrNotFound.WithRoute(routeID)
	}
	if !r.Status.CanTransitionTo(next) {
		return nil, domain.ErrInvalidTransition.WithRoute(routeID)
	}
	r.Status = next
	r.UpdatedAt = time.Now()
	return cloneRoute(r), nil
}

// ApplyMetrics commits recomputed totals iff the version tag still matches.
func (s *RouteStore) ApplyMetrics(ctx context.Context, routeID string, version int64, m domain.RouteMetrics) (*domain.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[routeID]
	if !ok {
		return nil, domain.ErrNotFound.WithRoute(routeID)
	}
	if r.Version != version {
		return nil, domain.ErrStaleMutation.WithRoute(routeID).WithVersion(r.Version)
	}
	r.TotalDistanceKm = m.TotalDistanceKm
	r.TotalDurationMin = m.TotalDurationMin
	r.MetricsStale = false
	r.UpdatedAt = time.Now()
	return cloneRoute(r), nil
}

// MarkMetricsStale flags the route's totals as advisory.
func (s *RouteStore) MarkMetricsStale(ctx context.Context, routeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[routeID]
	if !ok {
		return domain.ErrNotFound.WithRoute(routeID)
	}
	r.MetricsStale = true
	return nil
}
