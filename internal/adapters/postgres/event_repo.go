package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
)

// EventRepo is the append-only geofence event audit log.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

// Insert appends one geofence event. Duplicate event ids are ignored so a
// redelivered message does not double-record a transition.
func (r *EventRepo) Insert(ctx context.Context, e *domain.GeofenceEvent) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO geofence_events (id, route_id, stop_id, vehicle_id, event_type,
		                             distance_m, position_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7::text, '')::uuid, $8)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.RouteID, e.StopID, e.VehicleID, e.Type, e.DistanceM, e.PositionID, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert geofence event: %w", err)
	}
	return nil
}

// ListByStop returns events for one stop, newest first.
func (r *EventRepo) ListByStop(ctx context.Context, stopID string, limit int) ([]domain.GeofenceEvent, error) {
	return r.list(ctx, `stop_id`, stopID, limit)
}

// ListByRoute returns events for one route, newest first.
func (r *EventRepo) ListByRoute(ctx context.Context, routeID string, limit int) ([]domain.GeofenceEvent, error) {
	return r.list(ctx, `route_id`, routeID, limit)
}

func (r *EventRepo) list(ctx context.Context, column, id string, limit int) ([]domain.GeofenceEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT id, route_id, stop_id, vehicle_id, event_type, distance_m, COALESCE(position_id::text, ''), occurred_at
		FROM geofence_events
		WHERE %s = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, column), id, limit)
	if err != nil {
		return nil, fmt.Errorf("list geofence events: %w", err)
	}
	defer rows.Close()

	var out []domain.GeofenceEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (*domain.GeofenceEvent, error) {
	var e domain.GeofenceEvent
	err := row.Scan(&e.ID, &e.RouteID, &e.StopID, &e.VehicleID, &e.Type,
		&e.DistanceM, &e.PositionID, &e.OccurredAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
