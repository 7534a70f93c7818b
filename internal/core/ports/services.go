package ports

import (
	"context"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
)

// DistanceProvider is the external road-network distance/duration oracle.
// Failures surface as ProviderUnavailable or NoRouteFound; callers never
// block a topology mutation on it.
type DistanceProvider interface {
	ComputeRoute(ctx context.Context, waypoints []domain.GeoPoint) (*domain.RouteMetrics, error)
}

// EventPublisher fans domain events out to a message broker. Delivery is
// at-least-once; payloads carry an event id so consumers can de-duplicate.
type EventPublisher interface {
	PublishPosition(ctx context.Context, p *domain.Position) error
	PublishGeofenceEvent(ctx context.Context, e *domain.GeofenceEvent) error
	PublishStopCompleted(ctx context.Context, routeID string, stop *domain.Stop) error
	PublishRouteStatus(ctx context.Context, routeID string, status domain.RouteStatus) error
}

// EventSubscriber consumes domain events from a message broker.
type EventSubscriber interface {
	SubscribePositions(ctx context.Context, handler func(ctx context.Context, p *domain.Position) error) error
	SubscribeGeofenceEvents(ctx context.Context, handler func(ctx context.Context, e *domain.GeofenceEvent) error) error
}

// RecomputeScheduler requests an asynchronous distance recompute for a
// route, tagged with the mutation version it was computed for. Retry and
// backoff policy belong to the scheduler's implementation.
type RecomputeScheduler interface {
	Schedule(ctx context.Context, routeID string, version int64) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// NotificationService sends notifications (push, email, etc.). Delivery is
// handled entirely outside this core.
type NotificationService interface {
	SendPush(ctx context.Context, userID, title, body string) error
}
