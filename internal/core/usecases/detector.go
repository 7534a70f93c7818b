package usecases

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/ports"
	"github.com/ibaiondo/fleetroute/internal/pkg/geospatial"
)

// Detector is the per-(vehicle, stop) geofence state machine. Each position
// sample moves the pair through {outside, inside, dwelling} and may emit a
// single transition event:
//
//	outside → inside    first sample within the radius; emits enter
//	inside  → dwelling  still inside past the dwell threshold; emits dwell
//	inside/dwelling → outside  first sample beyond the radius; emits exit
//
// Distance is great-circle (haversine); there is no dead-reckoning between
// samples. Callers must feed positions in strictly increasing received_at
// order per vehicle.
type Detector struct {
	states  ports.GeofenceStateRepository
	radiusM float64
	dwell   time.Duration
}

// NewDetector creates a Detector with the given radius (meters) and dwell
// threshold.
func NewDetector(states ports.GeofenceStateRepository, radiusMeters float64, dwell time.Duration) *Detector {
	return &Detector{states: states, radiusM: radiusMeters, dwell: dwell}
}

// Evaluate runs one position against one stop. It returns the emitted
// event, or nil when the sample caused no transition. The returned state is
// the persisted post-sample state.
func (d *Detector) Evaluate(ctx context.Context, pos *domain.Position, stop *domain.Stop) (*domain.GeofenceEvent, *domain.GeofenceState, error) {
	if !stop.Location.Valid() || stop.Location.Zero() {
		return nil, nil, domain.ErrInvalidCoordinates.WithRoute(stop.RouteID).WithStop(stop.ID)
	}

	st, err := d.states.Get(ctx, pos.VehicleID, stop.ID)
	if err != nil {
		return nil, nil, err
	}
	if st == nil {
		st = &domain.GeofenceState{
			VehicleID:        pos.VehicleID,
			StopID:           stop.ID,
			Phase:            domain.PhaseOutside,
			LastTransitionAt: pos.ReceivedAt,
			LastSeenAt:       pos.ReceivedAt,
		}
	}

	dist := geospatial.Haversine(
		pos.Location.Lat, pos.Location.Lon,
		stop.Location.Lat, stop.Location.Lon,
	)
	inside := dist <= d.radiusM

	var event *domain.GeofenceEvent

	switch st.Phase {
	case domain.PhaseOutside:
		if inside {
			entered := pos.ReceivedAt
			st.Phase = domain.PhaseInside
			st.EnteredAt = &entered
			st.LastTransitionAt = entered
			st.TimeInside = 0
			st.DwellEmitted = false
			event = d.newEvent(pos, stop, domain.EventEnter, dist)
		}

	case domain.PhaseInside, domain.PhaseDwelling:
		st.TimeInside += pos.ReceivedAt.Sub(st.LastSeenAt)

		if !inside {
			st.Phase = domain.PhaseOutside
			st.EnteredAt = nil
			st.LastTransitionAt = pos.ReceivedAt
			st.DwellEmitted = false
			event = d.newEvent(pos, stop, domain.EventExit, dist)
			break
		}

		if st.Phase == domain.PhaseInside && !st.DwellEmitted &&
			st.EnteredAt != nil && pos.ReceivedAt.Sub(*st.EnteredAt) > d.dwell {
			st.Phase = domain.PhaseDwelling
			st.LastTransitionAt = pos.ReceivedAt
			st.DwellEmitted = true
			event = d.newEvent(pos, stop, domain.EventDwell, dist)
		}
	}

	st.LastSeenAt = pos.ReceivedAt
	if err := d.states.Put(ctx, st); err != nil {
		return nil, nil, err
	}

	return event, st, nil
}

func (d *Detector) newEvent(pos *domain.Position, stop *domain.Stop, typ domain.GeofenceEventType, dist float64) *domain.GeofenceEvent {
	return &domain.GeofenceEvent{
		ID:         uuid.NewString(),
		RouteID:    stop.RouteID,
		StopID:     stop.ID,
		VehicleID:  pos.VehicleID,
		Type:       typ,
		DistanceM:  dist,
		PositionID: pos.ID,
		OccurredAt: pos.ReceivedAt,
	}
}
