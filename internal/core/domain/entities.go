package domain

import (
	"time"
)

// RouteStatus is the lifecycle state of a delivery route.
type RouteStatus string

const (
	RouteDraft     RouteStatus = "draft"
	RoutePlanned   RouteStatus = "planned"
	RouteActive    RouteStatus = "active"
	RouteCompleted RouteStatus = "completed"
	RouteCancelled RouteStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s RouteStatus) Terminal() bool {
	return s == RouteCompleted || s == RouteCancelled
}

// rank orders the forward path draft → planned → active → completed.
func (s RouteStatus) rank() int {
	switch s {
	case RouteDraft:
		return 0
	case RoutePlanned:
		return 1
	case RouteActive:
		return 2
	case RouteCompleted:
		return 3
	}
	return -1
}

// CanTransitionTo reports whether next is a legal transition from s.
// Transitions are forward-only, except cancellation which is reachable
// from any non-terminal state.
func (s RouteStatus) CanTransitionTo(next RouteStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == RouteCancelled {
		return true
	}
	return next.rank() == s.rank()+1
}

// StopState is the completion state of a single stop.
type StopState string

const (
	StopPending   StopState = "pending"
	StopArrived   StopState = "arrived"
	StopCompleted StopState = "completed"
)

// Route is an ordered sequence of delivery stops assigned to one vehicle.
// Stops are exclusively owned by their route and kept sorted by
// SequenceNumber, which must form exactly {1..N}.
type Route struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Status           RouteStatus `json:"status"`
	Stops            []Stop      `json:"stops"`
	VehicleID        string      `json:"vehicle_id,omitempty"`
	DriverID         string      `json:"driver_id,omitempty"`
	ReturnToOrigin   bool        `json:"return_to_origin"`
	TotalDistanceKm  float64     `json:"total_distance_km"`
	TotalDurationMin float64     `json:"total_duration_min"`
	// MetricsStale marks the distance/duration totals as advisory until the
	// next recompute lands.
	MetricsStale bool `json:"metrics_stale"`
	// Version is a monotonic counter bumped on every stop mutation. Async
	// recomputes are tagged with it; stale results are discarded.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StopByID returns the stop with the given id, or nil.
func (r *Route) StopByID(stopID string) *Stop {
	for i := range r.Stops {
		if r.Stops[i].ID == stopID {
			return &r.Stops[i]
		}
	}
	return nil
}

// AllStopsCompleted reports whether every stop on the route is completed.
// Routes with no stops are never considered complete.
func (r *Route) AllStopsCompleted() bool {
	if len(r.Stops) == 0 {
		return false
	}
	for i := range r.Stops {
		if r.Stops[i].State != StopCompleted {
			return false
		}
	}
	return true
}

// NextPendingStop returns the non-completed stop with the lowest sequence
// number, or nil when all stops are completed.
func (r *Route) NextPendingStop() *Stop {
	var next *Stop
	for i := range r.Stops {
		s := &r.Stops[i]
		if s.State == StopCompleted {
			continue
		}
		if next == nil || s.SequenceNumber < next.SequenceNumber {
			next = s
		}
	}
	return next
}

// Stop is one delivery target on a route.
type Stop struct {
	ID             string         `json:"id"`
	RouteID        string         `json:"route_id"`
	SequenceNumber int            `json:"sequence_number"`
	Name           string         `json:"name,omitempty"`
	Location       GeoPoint       `json:"location"`
	State          StopState      `json:"state"`
	ArrivalTime    *time.Time     `json:"arrival_time,omitempty"`
	DepartureTime  *time.Time     `json:"departure_time,omitempty"`
	ServiceSeconds *int           `json:"service_seconds,omitempty"`
	Quantity       float64        `json:"quantity"`
	Method         DeliveryMethod `json:"method"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Position is a single GPS reading from a driver device. Positions are
// append-only; they are retained for a bounded window and then purged.
type Position struct {
	ID         string    `json:"id"`
	VehicleID  string    `json:"vehicle_id"`
	RouteID    string    `json:"route_id,omitempty"`
	Location   GeoPoint  `json:"location"`
	RecordedAt time.Time `json:"recorded_at"` // device clock
	ReceivedAt time.Time `json:"received_at"` // server clock
	Speed      float64   `json:"speed,omitempty"`    // m/s
	Heading    float64   `json:"heading,omitempty"`  // degrees
	AccuracyM  float64   `json:"accuracy,omitempty"` // meters
}

// GeofencePhase is the detector state for one (vehicle, stop) pair.
type GeofencePhase string

const (
	PhaseOutside  GeofencePhase = "outside"
	PhaseInside   GeofencePhase = "inside"
	PhaseDwelling GeofencePhase = "dwelling"
)

// GeofenceState tracks where a vehicle stands relative to one stop's
// geofence. It is derivable from the position log plus the stop location;
// persisting it is an optimization, not a source of truth.
type GeofenceState struct {
	VehicleID        string        `json:"vehicle_id"`
	StopID           string        `json:"stop_id"`
	Phase            GeofencePhase `json:"phase"`
	EnteredAt        *time.Time    `json:"entered_at,omitempty"`
	LastTransitionAt time.Time     `json:"last_transition_at"`
	TimeInside       time.Duration `json:"time_inside"`
	// DwellEmitted limits dwell to one event per continuous inside-interval.
	// Reset on exit.
	DwellEmitted bool      `json:"dwell_emitted"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// GeofenceEventType classifies detector transitions.
type GeofenceEventType string

const (
	EventEnter GeofenceEventType = "enter"
	EventDwell GeofenceEventType = "dwell"
	EventExit  GeofenceEventType = "exit"
)

// GeofenceEvent is an append-only audit record of a detector transition.
// A stop may accumulate several enter/exit pairs; route progress only
// honors the exit that completes a delivery.
type GeofenceEvent struct {
	ID         string            `json:"id"`
	RouteID    string            `json:"route_id"`
	StopID     string            `json:"stop_id"`
	VehicleID  string            `json:"vehicle_id"`
	Type       GeofenceEventType `json:"type"`
	DistanceM  float64           `json:"distance_to_target_m"`
	PositionID string            `json:"position_id"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// RouteProgress is the derived aggregate view of a route in flight.
type RouteProgress struct {
	RouteID        string      `json:"route_id"`
	Status         RouteStatus `json:"status"`
	CompletedStops int         `json:"completed_stops"`
	PendingStops   int         `json:"pending_stops"`
	NextStop       *Stop       `json:"next_stop,omitempty"`
	// DistanceToNextKm and ETA are straight-line estimates from the last
	// known position at an assumed average speed, not routed values.
	DistanceToNextKm *float64   `json:"distance_to_next_km,omitempty"`
	ETA              *time.Time `json:"eta,omitempty"`
	MetricsStale     bool       `json:"metrics_stale"`
}

// RouteLeg is the distance/duration of one leg between consecutive waypoints.
type RouteLeg struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
}

// RouteMetrics is the result of a Distance Provider computation over a
// route's ordered waypoints.
type RouteMetrics struct {
	Legs             []RouteLeg `json:"legs"`
	TotalDistanceKm  float64    `json:"total_distance_km"`
	TotalDurationMin float64    `json:"total_duration_min"`
}
