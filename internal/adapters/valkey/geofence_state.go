package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
)

// GeofenceStateStore keeps detector state per (vehicle, stop) in Valkey.
// State is rebuildable from the position log, so entries carry a TTL and a
// cold read simply starts the detector from outside.
type GeofenceStateStore struct {
	client valkey.Client
	ttl    time.Duration
}

// NewGeofenceStateStore wraps an existing cache client's connection.
func NewGeofenceStateStore(c *Cache, ttl time.Duration) *GeofenceStateStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &GeofenceStateStore{client: c.client, ttl: ttl}
}

func stateKey(vehicleID, stopID string) string {
	return fmt.Sprintf("geofence:%s:%s", vehicleID, stopID)
}

// Get returns nil with no error when no state is stored.
func (s *GeofenceStateStore) Get(ctx context.Context, vehicleID, stopID string) (*domain.GeofenceState, error) {
	cmd := s.client.Do(ctx, s.client.B().Get().Key(stateKey(vehicleID, stopID)).Build())
	if err := cmd.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	b, err := cmd.AsBytes()
	if err != nil {
		return nil, err
	}
	var st domain.GeofenceState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode geofence state: %w", err)
	}
	return &st, nil
}

// Put stores state, refreshing the TTL.
func (s *GeofenceStateStore) Put(ctx context.Context, st *domain.GeofenceState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode geofence state: %w", err)
	}
	cmd := s.client.Do(ctx,
		s.client.B().Set().Key(stateKey(st.VehicleID, st.StopID)).Value(string(b)).Ex(s.ttl).Build(),
	)
	return cmd.Error()
}

// Delete drops state for one (vehicle, stop) pair.
func (s *GeofenceStateStore) Delete(ctx context.Context, vehicleID, stopID string) error {
	cmd := s.client.Do(ctx, s.client.B().Del().Key(stateKey(vehicleID, stopID)).Build())
	return cmd.Error()
}
