package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
)

// PositionRepo is the append-only GPS position log backed by Postgres.
type PositionRepo struct {
	db *DB
}

// NewPositionRepo creates a new PositionRepo.
func NewPositionRepo(db *DB) *PositionRepo {
	return &PositionRepo{db: db}
}

// Insert appends one position reading.
func (r *PositionRepo) Insert(ctx context.Context, p *domain.Position) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO positions (id, vehicle_id, route_id, lat, lon, recorded_at, received_at,
		                       speed, heading, accuracy_m)
		VALUES ($1, $2, NULLIF($3::text, '')::uuid, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.VehicleID, p.RouteID, p.Location.Lat, p.Location.Lon,
		p.RecordedAt, p.ReceivedAt, p.Speed, p.Heading, p.AccuracyM)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// LatestByVehicle returns the most recently received position for a vehicle.
func (r *PositionRepo) LatestByVehicle(ctx context.Context, vehicleID string) (*domain.Position, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, vehicle_id, COALESCE(route_id::text, ''), lat, lon, recorded_at, received_at,
		       speed, heading, accuracy_m
		FROM positions
		WHERE vehicle_id = $1
		ORDER BY received_at DESC
		LIMIT 1
	`, vehicleID)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListByVehicle returns positions received after since, oldest first.
func (r *PositionRepo) ListByVehicle(ctx context.Context, vehicleID string, since time.Time, limit int) ([]domain.Position, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, vehicle_id, COALESCE(route_id::text, ''), lat, lon, recorded_at, received_at,
		       speed, heading, accuracy_m
		FROM positions
		WHERE vehicle_id = $1 AND received_at >= $2
		ORDER BY received_at
		LIMIT $3
	`, vehicleID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// PurgeOlderThan drops positions received before cutoff.
func (r *PositionRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM positions WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge positions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		&p.ID, &p.VehicleID, &p.RouteID, &p.Location.Lat, &p.Location.Lon,
		&p.RecordedAt, &p.ReceivedAt, &p.Speed, &p.Heading, &p.AccuracyM,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
