package ports

import (
	"context"
	"time"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
)

// StopsMutator transforms a route's current ordered stop list into a new
// one. It runs inside the store's transactional boundary, so it observes a
// consistent route and its result is committed atomically.
type StopsMutator func(route *domain.Route) ([]domain.Stop, error)

// SplitMutator computes the stops the route keeps and the new draft route
// that receives the rest.
type SplitMutator func(route *domain.Route) (keep []domain.Stop, moved *domain.Route, err error)

// MergeMutator computes the combined stop list for the primary route; the
// secondary route is deleted on commit.
type MergeMutator func(primary, secondary *domain.Route) ([]domain.Stop, error)

// RouteRepository is the route & stop store. Every stop-list change in the
// system — topology edits and detector-driven completion updates alike —
// goes through MutateStops, Split, or Merge, all of which validate the
// contiguous-sequence invariant before committing and bump the route's
// mutation version. A violation fails with InvalidSequence and leaves the
// route unchanged.
type RouteRepository interface {
	Create(ctx context.Context, route *domain.Route) error
	GetByID(ctx context.Context, id string) (*domain.Route, error)
	List(ctx context.Context) ([]domain.Route, error)

	// MutateStops applies fn to one route under mutual exclusion and
	// returns the committed route.
	MutateStops(ctx context.Context, routeID string, fn StopsMutator) (*domain.Route, error)

	// Split atomically replaces routeID's stops with the kept list and
	// creates the moved route. Returns both committed routes.
	Split(ctx context.Context, routeID string, fn SplitMutator) (*domain.Route, *domain.Route, error)

	// Merge atomically replaces the primary's stops and deletes the
	// secondary route.
	Merge(ctx context.Context, primaryID, secondaryID string, fn MergeMutator) (*domain.Route, error)

	// UpdateStatus applies a lifecycle transition, enforcing the
	// forward-only rule.
	UpdateStatus(ctx context.Context, routeID string, next domain.RouteStatus) (*domain.Route, error)

	// ApplyMetrics commits recomputed distance/duration totals if version
	// still matches the route's mutation version; otherwise it fails with
	// StaleMutation and changes nothing.
	ApplyMetrics(ctx context.Context, routeID string, version int64, m domain.RouteMetrics) (*domain.Route, error)

	// MarkMetricsStale flags the route's totals as advisory after a
	// provider failure.
	MarkMetricsStale(ctx context.Context, routeID string) error
}

// PositionRepository is the append-only GPS position log.
type PositionRepository interface {
	Insert(ctx context.Context, p *domain.Position) error
	LatestByVehicle(ctx context.Context, vehicleID string) (*domain.Position, error)
	ListByVehicle(ctx context.Context, vehicleID string, since time.Time, limit int) ([]domain.Position, error)
	// PurgeOlderThan drops positions outside the retention window and
	// returns the number removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// GeofenceEventRepository is the append-only geofence audit log.
type GeofenceEventRepository interface {
	Insert(ctx context.Context, e *domain.GeofenceEvent) error
	ListByStop(ctx context.Context, stopID string, limit int) ([]domain.GeofenceEvent, error)
	ListByRoute(ctx context.Context, routeID string, limit int) ([]domain.GeofenceEvent, error)
}

// GeofenceStateRepository persists detector state per (vehicle, stop) as an
// optimization; the state is rebuildable from the position log, so
// implementations may evict freely.
type GeofenceStateRepository interface {
	// Get returns nil with no error when no state is stored.
	Get(ctx context.Context, vehicleID, stopID string) (*domain.GeofenceState, error)
	Put(ctx context.Context, s *domain.GeofenceState) error
	Delete(ctx context.Context, vehicleID, stopID string) error
}
