package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/ports"
)

// IngestInput is one raw position report from a driver device.
type IngestInput struct {
	VehicleID  string
	RouteID    string // optional
	Lat, Lon   float64
	RecordedAt time.Time
	Speed      float64
	Heading    float64
	AccuracyM  float64
}

// IngestResult is the stored position plus every geofence event it produced.
type IngestResult struct {
	Position *domain.Position       `json:"position"`
	Events   []domain.GeofenceEvent `json:"events"`
}

// IngestService validates and logs incoming positions and drives the
// geofence detector. Ingestion is parallel across vehicles; positions for
// one vehicle are serialized so the detector observes strictly increasing
// received_at. Late samples (device clock behind the vehicle's last
// processed recording) are appended to the log for audit but never replayed
// through the detector.
type IngestService struct {
	positions ports.PositionRepository
	routes    ports.RouteRepository
	events    ports.GeofenceEventRepository
	detector  *Detector
	publisher ports.EventPublisher

	mu           sync.Mutex
	vehicleLocks map[string]*sync.Mutex
	lastRecorded map[string]time.Time
}

// NewIngestService creates a new IngestService.
func NewIngestService(
	positions ports.PositionRepository,
	routes ports.RouteRepository,
	events ports.GeofenceEventRepository,
	detector *Detector,
	publisher ports.EventPublisher,
) *IngestService {
	return &IngestService{
		positions:    positions,
		routes:       routes,
		events:       events,
		detector:     detector,
		publisher:    publisher,
		vehicleLocks: make(map[string]*sync.Mutex),
		lastRecorded: make(map[string]time.Time),
	}
}

func (s *IngestService) lockVehicle(vehicleID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.vehicleLocks[vehicleID]
	if !ok {
		l = &sync.Mutex{}
		s.vehicleLocks[vehicleID] = l
	}
	return l
}

// Ingest processes one position report and returns all events it produced
// (zero, one, or more for overlapping geofences).
func (s *IngestService) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	if in.VehicleID == "" {
		return nil, domain.E(domain.CodeNotFound, "vehicle id is required")
	}
	loc := domain.GeoPoint{Lat: in.Lat, Lon: in.Lon}
	if !loc.Valid() {
		return nil, domain.ErrInvalidCoordinates
	}

	lock := s.lockVehicle(in.VehicleID)
	lock.Lock()
	defer lock.Unlock()

	pos := &domain.Position{
		ID:         uuid.NewString(),
		VehicleID:  in.VehicleID,
		RouteID:    in.RouteID,
		Location:   loc,
		RecordedAt: in.RecordedAt,
		ReceivedAt: time.Now(),
		Speed:      in.Speed,
		Heading:    in.Heading,
		AccuracyM:  in.AccuracyM,
	}

	if err := s.positions.Insert(ctx, pos); err != nil {
		return nil, err
	}
	if s.publisher != nil {
		_ = s.publisher.PublishPosition(ctx, pos)
	}

	// Out-of-order delivery: keep the sample for audit, skip detection.
	// Arrival/departure times are never corrected retroactively.
	s.mu.Lock()
	last, seen := s.lastRecorded[in.VehicleID]
	if !seen || !in.RecordedAt.Before(last) {
		s.lastRecorded[in.VehicleID] = in.RecordedAt
	}
	s.mu.Unlock()
	if seen && in.RecordedAt.Before(last) {
		slog.Info("late position logged without detection",
			"vehicle_id", in.VehicleID, "recorded_at", in.RecordedAt, "watermark", last)
		return &IngestResult{Position: pos}, nil
	}

	result := &IngestResult{Position: pos}
	if in.RouteID == "" {
		return result, nil
	}

	route, err := s.routes.GetByID(ctx, in.RouteID)
	if err != nil {
		slog.Warn("position references unknown route",
			"vehicle_id", in.VehicleID, "route_id", in.RouteID, "error", err)
		return result, nil
	}
	if route.Status != domain.RouteActive {
		return result, nil
	}

	// Check every non-completed stop, not only the nominal next one: a
	// vehicle may reach a later stop out of order.
	for i := range route.Stops {
		stop := &route.Stops[i]
		if stop.State == domain.StopCompleted {
			continue
		}

		event, _, err := s.detector.Evaluate(ctx, pos, stop)
		if err != nil {
			// One malformed stop never halts detection for the rest
			// of the route.
			slog.Warn("stop skipped during detection",
				"route_id", route.ID, "stop_id", stop.ID, "error", err)
			continue
		}
		if event == nil {
			continue
		}

		if err := s.events.Insert(ctx, event); err != nil {
			return nil, err
		}
		if s.publisher != nil {
			_ = s.publisher.PublishGeofenceEvent(ctx, event)
		}
		result.Events = append(result.Events, *event)

		s.applyTransition(ctx, route.ID, stop.ID, event)
	}

	return result, nil
}

// applyTransition translates enter/exit events into stop state changes,
// committed through the store's choke point so they cannot race a manager
// edit. A stop removed concurrently simply no longer exists in the mutator;
// the removal wins and the event stays in the audit log.
func (s *IngestService) applyTransition(ctx context.Context, routeID, stopID string, event *domain.GeofenceEvent) {
	switch event.Type {
	case domain.EventEnter:
		s.mutateStop(ctx, routeID, stopID, func(st *domain.Stop) bool {
			if st.ArrivalTime == nil {
				t := event.OccurredAt
				st.ArrivalTime = &t
			}
			if st.State == domain.StopPending {
				st.State = domain.StopArrived
			}
			return false
		})

	case domain.EventExit:
		completed := s.mutateStop(ctx, routeID, stopID, func(st *domain.Stop) bool {
			if st.ArrivalTime == nil || st.DepartureTime != nil {
				return false
			}
			t := event.OccurredAt
			st.DepartureTime = &t
			svc := int(t.Sub(*st.ArrivalTime).Seconds())
			st.ServiceSeconds = &svc
			st.State = domain.StopCompleted
			return true
		})
		if completed {
			s.afterCompletion(ctx, routeID, stopID)
		}
	}
}

// mutateStop applies fn to one stop through MutateStops. It returns fn's
// result, or false when the stop disappeared or the commit failed.
func (s *IngestService) mutateStop(ctx context.Context, routeID, stopID string, fn func(*domain.Stop) bool) bool {
	marked := false
	_, err := s.routes.MutateStops(ctx, routeID, func(r *domain.Route) ([]domain.Stop, error) {
		next := append([]domain.Stop(nil), r.Stops...)
		for i := range next {
			if next[i].ID == stopID {
				marked = fn(&next[i])
				return next, nil
			}
		}
		return next, nil // stop removed concurrently; nothing to do
	})
	if err != nil {
		slog.Error("stop state update failed",
			"route_id", routeID, "stop_id", stopID, "error", err)
		return false
	}
	return marked
}

// afterCompletion publishes stop_completed and closes out the route when
// this was the last open stop.
func (s *IngestService) afterCompletion(ctx context.Context, routeID, stopID string) {
	route, err := s.routes.GetByID(ctx, routeID)
	if err != nil {
		return
	}
	if s.publisher != nil {
		if st := route.StopByID(stopID); st != nil {
			_ = s.publisher.PublishStopCompleted(ctx, routeID, st)
		}
	}

	if !route.AllStopsCompleted() {
		return
	}
	updated, err := s.routes.UpdateStatus(ctx, routeID, domain.RouteCompleted)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidTransition) {
			slog.Error("route completion failed", "route_id", routeID, "error", err)
		}
		return
	}
	if s.publisher != nil {
		_ = s.publisher.PublishRouteStatus(ctx, routeID, updated.Status)
	}
}
