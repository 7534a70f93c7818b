package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ibaiondo/fleetroute/internal/adapters/memory"
	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/usecases"
)

// mockPublisher records every published message.
type mockPublisher struct {
	positions []string
	events    []domain.GeofenceEventType
	completed []string
	statuses  []domain.RouteStatus
}

func (m *mockPublisher) PublishPosition(ctx context.Context, p *domain.Position) error {
	m.positions = append(m.positions, p.VehicleID)
	return nil
}

func (m *mockPublisher) PublishGeofenceEvent(ctx context.Context, e *domain.GeofenceEvent) error {
	m.events = append(m.events, e.Type)
	return nil
}

func (m *mockPublisher) PublishStopCompleted(ctx context.Context, routeID string, stop *domain.Stop) error {
	m.completed = append(m.completed, stop.ID)
	return nil
}

func (m *mockPublisher) PublishRouteStatus(ctx context.Context, routeID string, status domain.RouteStatus) error {
	m.statuses = append(m.statuses, status)
	return nil
}

type ingestFixture struct {
	store     *memory.RouteStore
	positions *memory.PositionLog
	events    *memory.EventLog
	publisher *mockPublisher
	svc       *usecases.IngestService
}

func newIngestFixture() *ingestFixture {
	f := &ingestFixture{
		store:     memory.NewRouteStore(),
		positions: memory.NewPositionLog(),
		events:    memory.NewEventLog(),
		publisher: &mockPublisher{},
	}
	det := usecases.NewDetector(memory.NewStateStore(), 100, 5*time.Minute)
	f.svc = usecases.NewIngestService(f.positions, f.store, f.events, det, f.publisher)
	return f
}

func (f *ingestFixture) ingestAt(t *testing.T, routeID string, meters float64, at time.Time) *usecases.IngestResult {
	t.Helper()
	res, err := f.svc.Ingest(context.Background(), usecases.IngestInput{
		VehicleID:  "truck-1",
		RouteID:    routeID,
		Lat:        stopLoc.Lat + meters/111320.0,
		Lon:        stopLoc.Lon,
		RecordedAt: at,
	})
	if err != nil {
		t.Fatalf("ingest at %v: %v", at, err)
	}
	return res
}

func seedActiveRoute(t *testing.T, store *memory.RouteStore, locs ...domain.GeoPoint) *domain.Route {
	t.Helper()
	now := time.Now()
	route := &domain.Route{
		ID:        "route-active",
		Name:      "delivery run",
		Status:    domain.RouteActive,
		VehicleID: "truck-1",
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, loc := range locs {
		route.Stops = append(route.Stops, domain.Stop{
			ID:             "stop-" + string(rune('a'+i)),
			RouteID:        route.ID,
			SequenceNumber: i + 1,
			Location:       loc,
			State:          domain.StopPending,
			Method:         domain.DeliveryMethod{Kind: domain.MethodBox, BoxCount: 2},
			CreatedAt:      now,
		})
	}
	if err := store.Create(context.Background(), route); err != nil {
		t.Fatalf("seed route: %v", err)
	}
	return route
}

func TestIngestValidation(t *testing.T) {
	f := newIngestFixture()
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, usecases.IngestInput{Lat: 43, Lon: -2.9, RecordedAt: time.Now()})
	if err == nil {
		t.Error("expected error for missing vehicle id")
	}

	_, err = f.svc.Ingest(ctx, usecases.IngestInput{VehicleID: "truck-1", Lat: 95, Lon: 0, RecordedAt: time.Now()})
	if !errors.Is(err, domain.ErrInvalidCoordinates) {
		t.Errorf("expected invalid_coordinates, got %v", err)
	}
}

func TestIngestStoresAndPublishes(t *testing.T) {
	f := newIngestFixture()

	res := f.ingestAt(t, "", 500, time.Now())
	if res.Position == nil || res.Position.ID == "" {
		t.Fatal("position not assigned an id")
	}
	if len(res.Events) != 0 {
		t.Errorf("no route given, expected no events, got %d", len(res.Events))
	}

	latest, err := f.positions.LatestByVehicle(context.Background(), "truck-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != res.Position.ID {
		t.Error("stored position does not match result")
	}
	if len(f.publisher.positions) != 1 {
		t.Errorf("expected 1 published position, got %d", len(f.publisher.positions))
	}
}

func TestIngestArrivalThenDeparture(t *testing.T) {
	f := newIngestFixture()
	far := domain.GeoPoint{Lat: 43.40, Lon: -2.80}
	route := seedActiveRoute(t, f.store, stopLoc, far)
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	// Approach and cross into the first stop's fence.
	f.ingestAt(t, route.ID, 500, base)
	res := f.ingestAt(t, route.ID, 50, base.Add(time.Minute))
	if len(res.Events) != 1 || res.Events[0].Type != domain.EventEnter {
		t.Fatalf("expected enter event, got %+v", res.Events)
	}

	got, _ := f.store.GetByID(context.Background(), route.ID)
	first := got.Stops[0]
	if first.State != domain.StopArrived {
		t.Errorf("stop state %s, expected arrived", first.State)
	}
	if first.ArrivalTime == nil {
		t.Fatal("arrival time not set")
	}

	// Leaving completes the stop and records service time.
	res = f.ingestAt(t, route.ID, 400, base.Add(8*time.Minute))
	if len(res.Events) != 1 || res.Events[0].Type != domain.EventExit {
		t.Fatalf("expected exit event, got %+v", res.Events)
	}

	got, _ = f.store.GetByID(context.Background(), route.ID)
	first = got.Stops[0]
	if first.State != domain.StopCompleted {
		t.Errorf("stop state %s, expected completed", first.State)
	}
	if first.DepartureTime == nil || first.ServiceSeconds == nil {
		t.Fatal("departure time or service seconds not set")
	}
	if len(f.publisher.completed) != 1 {
		t.Errorf("expected 1 stop_completed publish, got %d", len(f.publisher.completed))
	}

	// Second stop still open, so the route stays active.
	if got.Status != domain.RouteActive {
		t.Errorf("route status %s, expected active", got.Status)
	}

	// Completion-state changes must not bump the mutation version.
	if got.Version != route.Version {
		t.Errorf("version bumped to %d by completion updates", got.Version)
	}
}

func TestIngestCompletesRoute(t *testing.T) {
	f := newIngestFixture()
	route := seedActiveRoute(t, f.store, stopLoc)
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	f.ingestAt(t, route.ID, 50, base)
	f.ingestAt(t, route.ID, 400, base.Add(5*time.Minute))

	got, _ := f.store.GetByID(context.Background(), route.ID)
	if got.Status != domain.RouteCompleted {
		t.Fatalf("route status %s, expected completed", got.Status)
	}
	if len(f.publisher.statuses) != 1 || f.publisher.statuses[0] != domain.RouteCompleted {
		t.Errorf("expected route_status publish of completed, got %v", f.publisher.statuses)
	}
}

func TestIngestLateSampleSkipsDetection(t *testing.T) {
	f := newIngestFixture()
	route := seedActiveRoute(t, f.store, stopLoc)
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	f.ingestAt(t, route.ID, 500, base.Add(10*time.Minute))

	// Device clock behind the watermark: stored, never detected.
	res := f.ingestAt(t, route.ID, 50, base)
	if len(res.Events) != 0 {
		t.Fatalf("late sample must not produce events, got %+v", res.Events)
	}

	positions, err := f.positions.ListByVehicle(context.Background(), "truck-1", time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 2 {
		t.Errorf("late sample should still be logged, have %d positions", len(positions))
	}

	got, _ := f.store.GetByID(context.Background(), route.ID)
	if got.Stops[0].State != domain.StopPending {
		t.Errorf("late sample changed stop state to %s", got.Stops[0].State)
	}
}

func TestIngestIgnoresInactiveRoute(t *testing.T) {
	f := newIngestFixture()
	now := time.Now()
	route := &domain.Route{
		ID: "route-draft", Name: "n", Status: domain.RouteDraft, Version: 1,
		CreatedAt: now, UpdatedAt: now,
		Stops: []domain.Stop{{
			ID: "s1", RouteID: "route-draft", SequenceNumber: 1,
			Location: stopLoc, State: domain.StopPending,
			Method: domain.DeliveryMethod{Kind: domain.MethodBox}, CreatedAt: now,
		}},
	}
	if err := f.store.Create(context.Background(), route); err != nil {
		t.Fatal(err)
	}

	res := f.ingestAt(t, route.ID, 50, time.Now())
	if len(res.Events) != 0 {
		t.Fatalf("draft route must not run detection, got %+v", res.Events)
	}
}

// TestIngestRemovalWinsOverCompletion removes the stop between the enter
// and exit samples. The removal is final: the detector never revisits the
// stop, nothing resurrects it, and no completion is published.
func TestIngestRemovalWinsOverCompletion(t *testing.T) {
	f := newIngestFixture()
	far := domain.GeoPoint{Lat: 43.40, Lon: -2.80}
	route := seedActiveRoute(t, f.store, stopLoc, far)
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	res := f.ingestAt(t, route.ID, 50, base)
	if len(res.Events) != 1 || res.Events[0].Type != domain.EventEnter {
		t.Fatalf("expected enter, got %+v", res.Events)
	}
	removedID := route.Stops[0].ID

	seq := usecases.NewSequencingService(f.store, &mockScheduler{})
	if _, err := seq.Remove(context.Background(), route.ID, removedID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	res = f.ingestAt(t, route.ID, 400, base.Add(5*time.Minute))
	if len(res.Events) != 0 {
		t.Fatalf("removed stop must not emit events, got %+v", res.Events)
	}

	got, _ := f.store.GetByID(context.Background(), route.ID)
	if len(got.Stops) != 1 || got.Stops[0].ID == removedID {
		t.Fatalf("removed stop came back: %+v", got.Stops)
	}
	if len(f.publisher.completed) != 0 {
		t.Error("removed stop must not publish stop_completed")
	}
	if got.Status != domain.RouteActive {
		t.Errorf("route status %s, expected active", got.Status)
	}

	// The enter event from before the removal stays in the audit log.
	events, err := f.events.ListByRoute(context.Background(), route.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].StopID != removedID {
		t.Errorf("audit log lost the pre-removal event: %+v", events)
	}
}
