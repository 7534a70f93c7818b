package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
)

// PositionLog implements ports.PositionRepository in memory.
type PositionLog struct {
	mu        sync.RWMutex
	positions []domain.Position
}

// NewPositionLog creates an empty PositionLog.
func NewPositionLog() *PositionLog {
	return &PositionLog{}
}

func (l *PositionLog) Insert(ctx context.Context, p *domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = append(l.positions, *p)
	return nil
}

func (l *PositionLog) LatestByVehicle(ctx context.Context, vehicleID string) (*domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.positions) - 1; i >= 0; i-- {
		if l.positions[i].VehicleID == vehicleID {
			p := l.positions[i]
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (l *PositionLog) ListByVehicle(ctx context.Context, vehicleID string, since time.Time, limit int) ([]domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Position
	for _, p := range l.positions {
		if p.VehicleID == vehicleID && !p.ReceivedAt.Before(since) {
			out = append(out, p)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (l *PositionLog) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.positions[:0]
	var purged int64
	for _, p := range l.positions {
		if p.ReceivedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, p)
	}
	l.positions = kept
	return purged, nil
}

// EventLog implements ports.GeofenceEventRepository in memory.
type EventLog struct {
	mu     sync.RWMutex
	events []domain.GeofenceEvent
}

// NewEventLog creates an empty EventLog.
func NewEventLog() *EventLog {
	return &EventLog{}
}

func (l *EventLog) Insert(ctx context.Context, e *domain.GeofenceEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, *e)
	return nil
}

func (l *EventLog) ListByStop(ctx context.Context, stopID string, limit int) ([]domain.GeofenceEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.GeofenceEvent
	for _, e := range l.events {
		if e.StopID == stopID {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (l *EventLog) ListByRoute(ctx context.Context, routeID string, limit int) ([]domain.GeofenceEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.GeofenceEvent
	for _, e := range l.events {
		if e.RouteID == routeID {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// StateStore implements ports.GeofenceStateRepository in memory.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]domain.GeofenceState
}

// NewStateStore creates an empty StateStore.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]domain.GeofenceState)}
}

func stateKey(vehicleID, stopID string) string {
	return vehicleID + ":" + stopID
}

func (s *StateStore) Get(ctx context.Context, vehicleID, stopID string) (*domain.GeofenceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[stateKey(vehicleID, stopID)]
	if !ok {
		return nil, nil
	}
	c := st
	return &c, nil
}

func (s *StateStore) Put(ctx context.Context, st *domain.GeofenceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[stateKey(st.VehicleID, st.StopID)] = *st
	return nil
}

func (s *StateStore) Delete(ctx context.Context, vehicleID, stopID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, stateKey(vehicleID, stopID))
	return nil
}
