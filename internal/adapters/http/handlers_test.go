package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/ibaiondo/fleetroute/internal/adapters/http"
	"github.com/ibaiondo/fleetroute/internal/adapters/memory"
	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/usecases"
)

type fixture struct {
	app   *fiber.App
	store *memory.RouteStore
}

func setupApp(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewRouteStore()
	positions := memory.NewPositionLog()
	events := memory.NewEventLog()
	detector := usecases.NewDetector(memory.NewStateStore(), 100, 5*time.Minute)

	deps := &handler.Dependencies{
		Routes:     usecases.NewRouteService(store, nil, nil),
		Sequencing: usecases.NewSequencingService(store, nil),
		Ingest:     usecases.NewIngestService(positions, store, events, detector, nil),
		Progress:   usecases.NewProgressService(store, positions, nil, 60),
		Positions:  positions,
		Events:     events,
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return &fixture{app: app, store: store}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	rec := httptest.NewRecorder()
	rec.Code = resp.StatusCode
	if _, err := rec.Body.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func createRoute(t *testing.T, f *fixture, stops int) domain.Route {
	t.Helper()
	in := usecases.CreateRouteInput{Name: "morning run", VehicleID: "truck-1"}
	for i := 0; i < stops; i++ {
		in.Stops = append(in.Stops, usecases.CreateStopInput{
			Name: fmt.Sprintf("stop %d", i+1),
			Lat:  43.26 + float64(i)*0.01,
			Lon:  -2.93,
			Method: domain.DeliveryMethod{
				Kind: domain.MethodBox, BoxCount: 1,
			},
		})
	}
	rec := f.do(t, "POST", "/v1/routes", in)
	if rec.Code != fiber.StatusCreated {
		t.Fatalf("create route: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[domain.Route](t, rec)
}

func TestCreateAndGetRoute(t *testing.T) {
	f := setupApp(t)

	route := createRoute(t, f, 3)
	if route.Status != domain.RouteDraft {
		t.Errorf("new route status %s, expected draft", route.Status)
	}
	if !route.MetricsStale {
		t.Error("new route should start metrics_stale")
	}
	for i, st := range route.Stops {
		if st.SequenceNumber != i+1 {
			t.Errorf("stop %d numbered %d", i, st.SequenceNumber)
		}
	}

	rec := f.do(t, "GET", "/v1/routes/"+route.ID, nil)
	if rec.Code != fiber.StatusOK {
		t.Fatalf("get route: status %d", rec.Code)
	}
	got := decode[domain.Route](t, rec)
	if got.ID != route.ID || len(got.Stops) != 3 {
		t.Errorf("got %s with %d stops", got.ID, len(got.Stops))
	}
}

func TestCreateRouteValidation(t *testing.T) {
	f := setupApp(t)

	rec := f.do(t, "POST", "/v1/routes", fiber.Map{"stops": []any{}})
	if rec.Code != fiber.StatusBadRequest {
		t.Errorf("missing name: status %d", rec.Code)
	}

	rec = f.do(t, "POST", "/v1/routes", usecases.CreateRouteInput{
		Name: "bad",
		Stops: []usecases.CreateStopInput{
			{Lat: 95, Lon: 0, Method: domain.DeliveryMethod{Kind: domain.MethodBox}},
		},
	})
	if rec.Code != fiber.StatusUnprocessableEntity {
		t.Errorf("bad coordinates: status %d body %s", rec.Code, rec.Body.String())
	}
	apiErr := decode[handler.APIError](t, rec)
	if apiErr.Code != string(domain.CodeInvalidCoordinates) {
		t.Errorf("error code %s", apiErr.Code)
	}
}

func TestGetRouteNotFound(t *testing.T) {
	f := setupApp(t)

	rec := f.do(t, "GET", "/v1/routes/does-not-exist", nil)
	if rec.Code != fiber.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
	apiErr := decode[handler.APIError](t, rec)
	if apiErr.Code != string(domain.CodeNotFound) {
		t.Errorf("error code %s", apiErr.Code)
	}
	if apiErr.RouteID != "does-not-exist" {
		t.Errorf("error route_id %s", apiErr.RouteID)
	}
}

func TestListRoutesPagination(t *testing.T) {
	f := setupApp(t)
	for i := 0; i < 5; i++ {
		createRoute(t, f, 1)
	}

	rec := f.do(t, "GET", "/v1/routes?offset=2&limit=2", nil)
	if rec.Code != fiber.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	page := decode[struct {
		Data       []domain.Route     `json:"data"`
		Pagination handler.Pagination `json:"pagination"`
	}](t, rec)
	if len(page.Data) != 2 {
		t.Errorf("page size %d, expected 2", len(page.Data))
	}
	if page.Pagination.Total != 5 {
		t.Errorf("total %d, expected 5", page.Pagination.Total)
	}
}

func TestReorderStops(t *testing.T) {
	f := setupApp(t)
	route := createRoute(t, f, 3)
	ids := []string{route.Stops[2].ID, route.Stops[0].ID, route.Stops[1].ID}

	rec := f.do(t, "POST", "/v1/routes/"+route.ID+"/reorder", fiber.Map{"order": ids})
	if rec.Code != fiber.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	got := decode[domain.Route](t, rec)
	for i, id := range ids {
		if got.Stops[i].ID != id {
			t.Fatalf("position %d: got %s, expected %s", i, got.Stops[i].ID, id)
		}
	}
	if got.Version != route.Version+1 {
		t.Errorf("version %d, expected bump from %d", got.Version, route.Version)
	}

	// Partial order is a sequence violation, not a bad request.
	rec = f.do(t, "POST", "/v1/routes/"+route.ID+"/reorder",
		fiber.Map{"order": ids[:2]})
	if rec.Code != fiber.StatusUnprocessableEntity {
		t.Errorf("partial order: status %d", rec.Code)
	}

	rec = f.do(t, "POST", "/v1/routes/"+route.ID+"/reorder", fiber.Map{})
	if rec.Code != fiber.StatusBadRequest {
		t.Errorf("empty order: status %d", rec.Code)
	}
}

func TestInsertAndRemoveStop(t *testing.T) {
	f := setupApp(t)
	route := createRoute(t, f, 2)

	rec := f.do(t, "POST", "/v1/routes/"+route.ID+"/stops", fiber.Map{
		"name": "extra", "lat": 43.27, "lon": -2.93,
		"method":        fiber.Map{"kind": "tank", "volume_l": 500, "product": "diesel"},
		"after_stop_id": route.Stops[0].ID,
	})
	if rec.Code != fiber.StatusCreated {
		t.Fatalf("insert: status %d body %s", rec.Code, rec.Body.String())
	}
	got := decode[domain.Route](t, rec)
	if len(got.Stops) != 3 {
		t.Fatalf("expected 3 stops, got %d", len(got.Stops))
	}
	inserted := got.Stops[1]
	if inserted.Name != "extra" || inserted.SequenceNumber != 2 {
		t.Errorf("inserted stop landed wrong: %+v", inserted)
	}
	if inserted.Method.Kind != domain.MethodTank {
		t.Errorf("method kind %s", inserted.Method.Kind)
	}

	rec = f.do(t, "DELETE", "/v1/routes/"+route.ID+"/stops/"+inserted.ID, nil)
	if rec.Code != fiber.StatusOK {
		t.Fatalf("remove: status %d", rec.Code)
	}
	got = decode[domain.Route](t, rec)
	if len(got.Stops) != 2 {
		t.Errorf("expected 2 stops after remove, got %d", len(got.Stops))
	}
	for i, st := range got.Stops {
		if st.SequenceNumber != i+1 {
			t.Errorf("stop %s numbered %d after remove", st.ID, st.SequenceNumber)
		}
	}

	rec = f.do(t, "DELETE", "/v1/routes/"+route.ID+"/stops/"+inserted.ID, nil)
	if rec.Code != fiber.StatusNotFound {
		t.Errorf("double remove: status %d", rec.Code)
	}
}

func TestSplitAndMerge(t *testing.T) {
	f := setupApp(t)
	route := createRoute(t, f, 4)

	rec := f.do(t, "POST", "/v1/routes/"+route.ID+"/split", fiber.Map{
		"after_stop_id": route.Stops[1].ID,
		"name":          "overflow",
	})
	if rec.Code != fiber.StatusOK {
		t.Fatalf("split: status %d body %s", rec.Code, rec.Body.String())
	}
	result := decode[struct {
		Route    domain.Route `json:"route"`
		NewRoute domain.Route `json:"new_route"`
	}](t, rec)
	if len(result.Route.Stops) != 2 || len(result.NewRoute.Stops) != 2 {
		t.Fatalf("split sizes %d/%d", len(result.Route.Stops), len(result.NewRoute.Stops))
	}

	// Splitting at the tail has nothing to move.
	rec = f.do(t, "POST", "/v1/routes/"+route.ID+"/split", fiber.Map{
		"after_stop_id": result.Route.Stops[1].ID,
	})
	if rec.Code != fiber.StatusConflict {
		t.Errorf("tail split: status %d", rec.Code)
	}

	rec = f.do(t, "POST", "/v1/routes/"+route.ID+"/merge", fiber.Map{
		"secondary_route_id": result.NewRoute.ID,
	})
	if rec.Code != fiber.StatusOK {
		t.Fatalf("merge: status %d body %s", rec.Code, rec.Body.String())
	}
	merged := decode[domain.Route](t, rec)
	if len(merged.Stops) != 4 {
		t.Errorf("merged route has %d stops", len(merged.Stops))
	}

	rec = f.do(t, "GET", "/v1/routes/"+result.NewRoute.ID, nil)
	if rec.Code != fiber.StatusNotFound {
		t.Errorf("secondary route should be gone, status %d", rec.Code)
	}
}

func TestChangeRouteStatus(t *testing.T) {
	f := setupApp(t)
	route := createRoute(t, f, 1)

	for _, next := range []domain.RouteStatus{domain.RoutePlanned, domain.RouteActive} {
		rec := f.do(t, "POST", "/v1/routes/"+route.ID+"/status", fiber.Map{"status": next})
		if rec.Code != fiber.StatusOK {
			t.Fatalf("to %s: status %d body %s", next, rec.Code, rec.Body.String())
		}
	}

	// Backward transition is rejected.
	rec := f.do(t, "POST", "/v1/routes/"+route.ID+"/status", fiber.Map{"status": "draft"})
	if rec.Code != fiber.StatusConflict {
		t.Errorf("backward transition: status %d", rec.Code)
	}
	apiErr := decode[handler.APIError](t, rec)
	if apiErr.Code != string(domain.CodeInvalidTransition) {
		t.Errorf("error code %s", apiErr.Code)
	}
}

func TestIngestPosition(t *testing.T) {
	f := setupApp(t)
	route := createRoute(t, f, 1)
	for _, next := range []domain.RouteStatus{domain.RoutePlanned, domain.RouteActive} {
		f.do(t, "POST", "/v1/routes/"+route.ID+"/status", fiber.Map{"status": next})
	}

	// Right on top of the only stop: enter fires immediately.
	rec := f.do(t, "POST", "/v1/positions", fiber.Map{
		"vehicle_id": "truck-1",
		"route_id":   route.ID,
		"lat":        route.Stops[0].Location.Lat,
		"lon":        route.Stops[0].Location.Lon,
	})
	if rec.Code != fiber.StatusAccepted {
		t.Fatalf("ingest: status %d body %s", rec.Code, rec.Body.String())
	}
	result := decode[usecases.IngestResult](t, rec)
	if result.Position == nil || result.Position.ID == "" {
		t.Fatal("no stored position in response")
	}
	if len(result.Events) != 1 || result.Events[0].Type != domain.EventEnter {
		t.Fatalf("expected enter event, got %+v", result.Events)
	}

	rec = f.do(t, "GET", "/v1/vehicles/truck-1/positions/latest", nil)
	if rec.Code != fiber.StatusOK {
		t.Fatalf("latest: status %d", rec.Code)
	}
	latest := decode[domain.Position](t, rec)
	if latest.ID != result.Position.ID {
		t.Error("latest position mismatch")
	}

	rec = f.do(t, "POST", "/v1/positions", fiber.Map{
		"vehicle_id": "truck-1", "lat": 123.0, "lon": 0.0,
	})
	if rec.Code != fiber.StatusUnprocessableEntity {
		t.Errorf("bad coordinates: status %d", rec.Code)
	}

	rec = f.do(t, "GET", "/v1/vehicles/unknown/positions/latest", nil)
	if rec.Code != fiber.StatusNotFound {
		t.Errorf("unknown vehicle: status %d", rec.Code)
	}
}

func TestRouteProgressEndpoint(t *testing.T) {
	f := setupApp(t)
	route := createRoute(t, f, 2)

	rec := f.do(t, "GET", "/v1/routes/"+route.ID+"/progress", nil)
	if rec.Code != fiber.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	progress := decode[domain.RouteProgress](t, rec)
	if progress.PendingStops != 2 || progress.CompletedStops != 0 {
		t.Errorf("counts %d/%d", progress.CompletedStops, progress.PendingStops)
	}
	if progress.NextStop == nil || progress.NextStop.ID != route.Stops[0].ID {
		t.Errorf("next stop %+v", progress.NextStop)
	}
}

func TestRouteEventsEndpoint(t *testing.T) {
	f := setupApp(t)
	route := createRoute(t, f, 1)
	for _, next := range []domain.RouteStatus{domain.RoutePlanned, domain.RouteActive} {
		f.do(t, "POST", "/v1/routes/"+route.ID+"/status", fiber.Map{"status": next})
	}
	f.do(t, "POST", "/v1/positions", fiber.Map{
		"vehicle_id": "truck-1",
		"route_id":   route.ID,
		"lat":        route.Stops[0].Location.Lat,
		"lon":        route.Stops[0].Location.Lon,
	})

	rec := f.do(t, "GET", "/v1/routes/"+route.ID+"/events", nil)
	if rec.Code != fiber.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	events := decode[[]domain.GeofenceEvent](t, rec)
	if len(events) != 1 || events[0].Type != domain.EventEnter {
		t.Fatalf("expected one enter event, got %+v", events)
	}

	rec = f.do(t, "GET", "/v1/stops/"+route.Stops[0].ID+"/events", nil)
	if rec.Code != fiber.StatusOK {
		t.Fatalf("stop events: status %d", rec.Code)
	}
	events = decode[[]domain.GeofenceEvent](t, rec)
	if len(events) != 1 {
		t.Fatalf("expected one stop event, got %d", len(events))
	}
}

func TestBadJSONBody(t *testing.T) {
	f := setupApp(t)

	req := httptest.NewRequest("POST", "/v1/routes", bytes.NewBufferString("{nope"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status %d", resp.StatusCode)
	}
}
