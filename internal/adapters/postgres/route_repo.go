package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/ports"
)

// RouteRepo implements ports.RouteRepository with pgx. The route row is
// locked FOR UPDATE for the duration of every mutator, which serializes
// manager edits and detector-driven completion updates per route.
type RouteRepo struct {
	db *DB
}

// NewRouteRepo creates a new RouteRepo.
func NewRouteRepo(db *DB) *RouteRepo {
	return &RouteRepo{db: db}
}

// Create inserts a route and its stops.
func (r *RouteRepo) Create(ctx context.Context, route *domain.Route) error {
	if err := domain.ValidateSequence(route.Stops); err != nil {
		return err
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO routes (id, name, status, vehicle_id, driver_id, return_to_origin,
		                    total_distance_km, total_duration_min, metrics_stale, version,
		                    created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, route.ID, route.Name, route.Status, route.VehicleID, route.DriverID,
		route.ReturnToOrigin, route.TotalDistanceKm, route.TotalDurationMin,
		route.MetricsStale, route.Version, route.CreatedAt, route.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert route: %w", err)
	}

	if err := writeStops(ctx, tx, route.ID, route.Stops); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID returns a route with its stops ordered by sequence number.
func (r *RouteRepo) GetByID(ctx context.Context, id string) (*domain.Route, error) {
	route, err := loadRoute(ctx, r.db.Pool, id, false)
	if err != nil {
		return nil, err
	}
	return route, nil
}

// List returns all routes with their stops.
func (r *RouteRepo) List(ctx context.Context) ([]domain.Route, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id FROM routes ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	routes := make([]domain.Route, 0, len(ids))
	for _, id := range ids {
		route, err := loadRoute(ctx, r.db.Pool, id, false)
		if err != nil {
			return nil, err
		}
		routes = append(routes, *route)
	}
	return routes, nil
}

// MutateStops applies fn inside a transaction holding the route row lock.
func (r *RouteRepo) MutateStops(ctx context.Context, routeID string, fn ports.StopsMutator) (*domain.Route, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	route, err := loadRoute(ctx, tx, routeID, true)
	if err != nil {
		return nil, err
	}

	stops, err := fn(route)
	if err != nil {
		return nil, err
	}
	if err := commitStops(ctx, tx, route, stops); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return route, nil
}

// Split atomically truncates routeID and creates the moved route.
func (r *RouteRepo) Split(ctx context.Context, routeID string, fn ports.SplitMutator) (*domain.Route, *domain.Route, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	route, err := loadRoute(ctx, tx, routeID, true)
	if err != nil {
		return nil, nil, err
	}

	keep, moved, err := fn(route)
	if err != nil {
		return nil, nil, err
	}
	if err := commitStops(ctx, tx, route, keep); err != nil {
		return nil, nil, err
	}
	if err := domain.ValidateSequence(moved.Stops); err != nil {
		return nil, nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO routes (id, name, status, vehicle_id, driver_id, return_to_origin,
		                    total_distance_km, total_duration_min, metrics_stale, version,
		                    created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, moved.ID, moved.Name, moved.Status, moved.VehicleID, moved.DriverID,
		moved.ReturnToOrigin, moved.TotalDistanceKm, moved.TotalDurationMin,
		moved.MetricsStale, moved.Version, moved.CreatedAt, moved.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert split route: %w", err)
	}
	if err := writeStops(ctx, tx, moved.ID, moved.Stops); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return route, moved, nil
}

// Merge atomically rewrites the primary's stops and deletes the secondary.
// Routes are locked in id order to avoid deadlock between concurrent merges.
func (r *RouteRepo) Merge(ctx context.Context, primaryID, secondaryID string, fn ports.MergeMutator) (*domain.Route, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	first, second := primaryID, secondaryID
	if second < first {
		first, second = second, first
	}
	if _, err := loadRoute(ctx, tx, first, true); err != nil {
		return nil, err
	}
	if _, err := loadRoute(ctx, tx, second, true); err != nil {
		return nil, err
	}

	primary, err := loadRoute(ctx, tx, primaryID, false)
	if err != nil {
		return nil, err
	}
	secondary, err := loadRoute(ctx, tx, secondaryID, false)
	if err != nil {
		return nil, err
	}

	stops, err := fn(primary, secondary)
	if err != nil {
		return nil, err
	}

	// Detach the secondary's stops first so re-inserted ids don't collide.
	if _, err := tx.Exec(ctx, `DELETE FROM stops WHERE route_id = $1`, secondaryID); err != nil {
		return nil, fmt.Errorf("delete secondary stops: %w", err)
	}
	if err := commitStops(ctx, tx, primary, stops); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM routes WHERE id = $1`, secondaryID); err != nil {
		return nil, fmt.Errorf("delete secondary route: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return primary, nil
}

// UpdateStatus enforces the forward-only lifecycle rule under the row lock.
func (r *RouteRepo) UpdateStatus(ctx context.Context, routeID string, next domain.RouteStatus) (*domain.Route, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	route, err := loadRoute(ctx, tx, routeID, true)
	if err != nil {
		return nil, err
	}
	if !route.Status.CanTransitionTo(next) {
		return nil, domain.ErrInvalidTransition.WithRoute(routeID)
	}

	_, err = tx.Exec(ctx, `UPDATE routes SET status = $1, updated_at = now() WHERE id = $2`, next, routeID)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	route.Status = next
	return route, nil
}

// ApplyMetrics commits totals only when the version tag still matches.
func (r *RouteRepo) ApplyMetrics(ctx context.Context, routeID string, version int64, m domain.RouteMetrics) (*domain.Route, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE routes
		SET total_distance_km = $1, total_duration_min = $2, metrics_stale = false, updated_at = now()
		WHERE id = $3 AND version = $4
	`, m.TotalDistanceKm, m.TotalDurationMin, routeID, version)
	if err != nil {
		return nil, fmt.Errorf("apply metrics: %w", err)
	}
	if tag.RowsAffected() == 0 {
		route, err := loadRoute(ctx, r.db.Pool, routeID, false)
		if err != nil {
			return nil, err
		}
		return nil, domain.ErrStaleMutation.WithRoute(routeID).WithVersion(route.Version)
	}
	return loadRoute(ctx, r.db.Pool, routeID, false)
}

// MarkMetricsStale flags the route's totals as advisory.
func (r *RouteRepo) MarkMetricsStale(ctx context.Context, routeID string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE routes SET metrics_stale = true WHERE id = $1`, routeID)
	return err
}

// --- helpers ---

// rowQuerier covers both pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// loadRoute reads a route and its stops. With forUpdate the route row is
// locked until the surrounding transaction ends.
func loadRoute(ctx context.Context, q rowQuerier, id string, forUpdate bool) (*domain.Route, error) {
	query := `
		SELECT id, name, status, COALESCE(vehicle_id, ''), COALESCE(driver_id, ''),
		       return_to_origin, total_distance_km, total_duration_min,
		       metrics_stale, version, created_at, updated_at
		FROM routes WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var route domain.Route
	err := q.QueryRow(ctx, query, id).Scan(
		&route.ID, &route.Name, &route.Status, &route.VehicleID, &route.DriverID,
		&route.ReturnToOrigin, &route.TotalDistanceKm, &route.TotalDurationMin,
		&route.MetricsStale, &route.Version, &route.CreatedAt, &route.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound.WithRoute(id)
		}
		return nil, fmt.Errorf("load route: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, route_id, sequence_number, COALESCE(name, ''), lat, lon, state,
		       arrival_time, departure_time, service_seconds, quantity, method, created_at
		FROM stops WHERE route_id = $1
		ORDER BY sequence_number
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load stops: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st domain.Stop
		var method []byte
		if err := rows.Scan(
			&st.ID, &st.RouteID, &st.SequenceNumber, &st.Name,
			&st.Location.Lat, &st.Location.Lon, &st.State,
			&st.ArrivalTime, &st.DepartureTime, &st.ServiceSeconds,
			&st.Quantity, &method, &st.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(method) > 0 {
			if err := json.Unmarshal(method, &st.Method); err != nil {
				return nil, fmt.Errorf("decode method for stop %s: %w", st.ID, err)
			}
		}
		route.Stops = append(route.Stops, st)
	}
	return &route, rows.Err()
}

// commitStops validates and writes a new stop list inside tx, bumping the
// route version when the topology changed.
func commitStops(ctx context.Context, tx pgx.Tx, route *domain.Route, stops []domain.Stop) error {
	domain.SortBySequence(stops)
	if err := domain.ValidateSequence(stops); err != nil {
		if de, ok := err.(*domain.Error); ok {
			return de.WithRoute(route.ID)
		}
		return err
	}

	topoChanged := domain.TopologyChanged(route.Stops, stops)

	if _, err := tx.Exec(ctx, `DELETE FROM stops WHERE route_id = $1`, route.ID); err != nil {
		return fmt.Errorf("clear stops: %w", err)
	}
	if err := writeStops(ctx, tx, route.ID, stops); err != nil {
		return err
	}

	route.Stops = stops
	if topoChanged {
		route.Version++
		route.MetricsStale = true
	}
	_, err := tx.Exec(ctx, `
		UPDATE routes SET version = $1, metrics_stale = $2, updated_at = now() WHERE id = $3
	`, route.Version, route.MetricsStale, route.ID)
	if err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	return nil
}

// writeStops batch-inserts stops for a route.
func writeStops(ctx context.Context, tx pgx.Tx, routeID string, stops []domain.Stop) error {
	if len(stops) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, st := range stops {
		method, err := json.Marshal(st.Method)
		if err != nil {
			return fmt.Errorf("encode method for stop %s: %w", st.ID, err)
		}
		batch.Queue(`
			INSERT INTO stops (id, route_id, sequence_number, name, lat, lon, state,
			                   arrival_time, departure_time, service_seconds, quantity, method, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, st.ID, routeID, st.SequenceNumber, st.Name,
			st.Location.Lat, st.Location.Lon, st.State,
			st.ArrivalTime, st.DepartureTime, st.ServiceSeconds,
			st.Quantity, method, st.CreatedAt)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range stops {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}
