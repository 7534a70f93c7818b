package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/ibaiondo/fleetroute/internal/adapters/memory"
	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/usecases"
)

// mockScheduler records recompute requests.
type mockScheduler struct {
	calls []struct {
		RouteID string
		Version int64
	}
	err error
}

func (m *mockScheduler) Schedule(ctx context.Context, routeID string, version int64) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, struct {
		RouteID string
		Version int64
	}{routeID, version})
	return nil
}

func seedRoute(t *testing.T, store *memory.RouteStore, status domain.RouteStatus, ids ...string) *domain.Route {
	t.Helper()
	now := time.Now()
	route := &domain.Route{
		ID:        "route-" + ids[0],
		Name:      "test route",
		Status:    status,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, id := range ids {
		route.Stops = append(route.Stops, domain.Stop{
			ID:             id,
			RouteID:        route.ID,
			SequenceNumber: i + 1,
			Location:       domain.GeoPoint{Lat: 43.0 + float64(i)*0.01, Lon: -2.9},
			State:          domain.StopPending,
			Method:         domain.DeliveryMethod{Kind: domain.MethodBox, BoxCount: 1},
			CreatedAt:      now,
		})
	}
	if err := store.Create(context.Background(), route); err != nil {
		t.Fatalf("seed route: %v", err)
	}
	return route
}

func idsOf(r *domain.Route) []string {
	out := make([]string, len(r.Stops))
	for i, st := range r.Stops {
		out[i] = st.ID
	}
	return out
}

func TestInsertAfterThenRemove(t *testing.T) {
	store := memory.NewRouteStore()
	sched := &mockScheduler{}
	svc := usecases.NewSequencingService(store, sched)
	ctx := context.Background()

	route := seedRoute(t, store, domain.RouteDraft, "A", "B", "C")

	// Insert D directly after A: expect A, D, B, C.
	newStop := domain.Stop{
		ID:       "D",
		Location: domain.GeoPoint{Lat: 43.05, Lon: -2.9},
		Method:   domain.DeliveryMethod{Kind: domain.MethodBulk, WeightKg: 100},
	}
	updated, err := svc.Insert(ctx, route.ID, newStop, usecases.InsertAnchor{AfterStopID: "A"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	want := []string{"A", "D", "B", "C"}
	got := idsOf(updated)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("after insert: expected %v, got %v", want, got)
		}
	}
	for i, st := range updated.Stops {
		if st.SequenceNumber != i+1 {
			t.Fatalf("stop %s: sequence %d, expected %d", st.ID, st.SequenceNumber, i+1)
		}
	}
	if updated.Version != 2 {
		t.Errorf("insert should bump version to 2, got %d", updated.Version)
	}
	if !updated.MetricsStale {
		t.Error("insert should mark metrics stale")
	}

	// Remove B: expect A, D, C renumbered 1..3.
	updated, err = svc.Remove(ctx, route.ID, "B")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	want = []string{"A", "D", "C"}
	got = idsOf(updated)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("after remove: expected %v, got %v", want, got)
		}
	}
	if err := domain.ValidateSequence(updated.Stops); err != nil {
		t.Fatalf("sequence invalid after remove: %v", err)
	}

	if len(sched.calls) != 2 {
		t.Errorf("expected 2 recompute requests, got %d", len(sched.calls))
	}
	if sched.calls[1].Version != 3 {
		t.Errorf("remove recompute should carry version 3, got %d", sched.calls[1].Version)
	}
}

func TestInsertNearest(t *testing.T) {
	store := memory.NewRouteStore()
	svc := usecases.NewSequencingService(store, &mockScheduler{})
	ctx := context.Background()

	route := seedRoute(t, store, domain.RouteDraft, "A", "B", "C")

	// Right next to B (43.01): lands directly after it.
	stop := domain.Stop{
		ID:       "D",
		Location: domain.GeoPoint{Lat: 43.0101, Lon: -2.9},
		Method:   domain.DeliveryMethod{Kind: domain.MethodBox},
	}
	updated, err := svc.Insert(ctx, route.ID, stop, usecases.InsertAnchor{Nearest: true})
	if err != nil {
		t.Fatalf("insert nearest: %v", err)
	}
	got := idsOf(updated)
	want := []string{"A", "B", "D", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestInsertRejectsBadInput(t *testing.T) {
	store := memory.NewRouteStore()
	svc := usecases.NewSequencingService(store, &mockScheduler{})
	ctx := context.Background()
	route := seedRoute(t, store, domain.RouteDraft, "A")

	_, err := svc.Insert(ctx, route.ID, domain.Stop{
		Location: domain.GeoPoint{Lat: 120, Lon: 0},
		Method:   domain.DeliveryMethod{Kind: domain.MethodBox},
	}, usecases.InsertAnchor{})
	if !errors.Is(err, domain.ErrInvalidCoordinates) {
		t.Errorf("expected invalid_coordinates, got %v", err)
	}

	_, err = svc.Insert(ctx, route.ID, domain.Stop{
		Location: domain.GeoPoint{Lat: 43, Lon: -2.9},
		Method:   domain.DeliveryMethod{Kind: "pallet"},
	}, usecases.InsertAnchor{})
	if domain.CodeOf(err) != domain.CodeInvalidMethod {
		t.Errorf("expected invalid_method, got %v", err)
	}

	_, err = svc.Insert(ctx, route.ID, domain.Stop{
		Location: domain.GeoPoint{Lat: 43, Lon: -2.9},
		Method:   domain.DeliveryMethod{Kind: domain.MethodBox},
	}, usecases.InsertAnchor{AfterStopID: "nope"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not_found for bad anchor, got %v", err)
	}
}

func TestReorder(t *testing.T) {
	store := memory.NewRouteStore()
	svc := usecases.NewSequencingService(store, &mockScheduler{})
	ctx := context.Background()
	route := seedRoute(t, store, domain.RoutePlanned, "A", "B", "C")

	updated, err := svc.Reorder(ctx, route.ID, []string{"C", "A", "B"})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	got := idsOf(updated)
	want := []string{"C", "A", "B"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if updated.Version != 2 {
		t.Errorf("reorder should bump version, got %d", updated.Version)
	}

	// Re-applying the same order changes nothing, so no version bump.
	again, err := svc.Reorder(ctx, route.ID, []string{"C", "A", "B"})
	if err != nil {
		t.Fatalf("idempotent reorder: %v", err)
	}
	if again.Version != 2 {
		t.Errorf("no-op reorder must not bump version, got %d", again.Version)
	}

	// Partial, inflated, and alien orders all fail.
	for _, order := range [][]string{
		{"A", "B"},
		{"A", "B", "C", "C"},
		{"A", "B", "X"},
		{"A", "A", "B"},
	} {
		if _, err := svc.Reorder(ctx, route.ID, order); !errors.Is(err, domain.ErrIncompleteOrder) {
			t.Errorf("order %v: expected incomplete_order, got %v", order, err)
		}
	}

	// Completed routes reject reorder.
	done := seedRoute(t, store, domain.RouteCompleted, "X", "Y")
	if _, err := svc.Reorder(ctx, done.ID, []string{"Y", "X"}); !errors.Is(err, domain.ErrRouteCompleted) {
		t.Errorf("expected route_completed, got %v", err)
	}
}

func TestSplitAndMergeRestore(t *testing.T) {
	store := memory.NewRouteStore()
	svc := usecases.NewSequencingService(store, &mockScheduler{})
	ctx := context.Background()
	route := seedRoute(t, store, domain.RoutePlanned, "A", "B", "C", "D")

	kept, moved, err := svc.Split(ctx, route.ID, "B", "overflow")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(kept.Stops) != 2 || len(moved.Stops) != 2 {
		t.Fatalf("expected 2+2 stops, got %d+%d", len(kept.Stops), len(moved.Stops))
	}
	if moved.Status != domain.RouteDraft {
		t.Errorf("new route should be draft, got %s", moved.Status)
	}
	if !moved.MetricsStale {
		t.Error("new route should start with stale metrics")
	}
	for i, st := range moved.Stops {
		if st.SequenceNumber != i+1 {
			t.Errorf("moved stop %s: sequence %d", st.ID, st.SequenceNumber)
		}
		if st.RouteID != moved.ID {
			t.Errorf("moved stop %s still points at %s", st.ID, st.RouteID)
		}
	}

	// Merging back restores the original order.
	merged, err := svc.Merge(ctx, route.ID, moved.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	got := idsOf(merged)
	want := []string{"A", "B", "C", "D"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if _, err := store.GetByID(ctx, moved.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("secondary route should be deleted, got %v", err)
	}
}

func TestSplitEdgeCases(t *testing.T) {
	store := memory.NewRouteStore()
	svc := usecases.NewSequencingService(store, &mockScheduler{})
	ctx := context.Background()

	route := seedRoute(t, store, domain.RoutePlanned, "A", "B")
	if _, _, err := svc.Split(ctx, route.ID, "B", "x"); !errors.Is(err, domain.ErrCannotSplitAtTail) {
		t.Errorf("tail split: expected cannot_split_at_tail, got %v", err)
	}

	active := seedRoute(t, store, domain.RouteActive, "P", "Q")
	if _, _, err := svc.Split(ctx, active.ID, "P", "x"); !errors.Is(err, domain.ErrRouteActive) {
		t.Errorf("active split: expected route_active, got %v", err)
	}

	done := seedRoute(t, store, domain.RouteCompleted, "M", "N")
	if _, err := svc.Merge(ctx, route.ID, done.ID); !errors.Is(err, domain.ErrRouteCompleted) {
		t.Errorf("merge with completed: expected route_completed, got %v", err)
	}
}

// TestSequenceInvariantUnderRandomOps hammers one route with random edits
// and checks the contiguity invariant after every committed operation.
func TestSequenceInvariantUnderRandomOps(t *testing.T) {
	store := memory.NewRouteStore()
	svc := usecases.NewSequencingService(store, &mockScheduler{})
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	route := seedRoute(t, store, domain.RouteDraft, "A", "B", "C", "D", "E")
	nextID := 0

	for i := 0; i < 200; i++ {
		current, err := store.GetByID(ctx, route.ID)
		if err != nil {
			t.Fatalf("op %d: get: %v", i, err)
		}

		switch op := rng.Intn(3); {
		case op == 0: // insert at random position
			nextID++
			stop := domain.Stop{
				ID:       fmt.Sprintf("N%d", nextID),
				Location: domain.GeoPoint{Lat: 42 + rng.Float64(), Lon: -3 + rng.Float64()},
				Method:   domain.DeliveryMethod{Kind: domain.MethodBox, BoxCount: 1},
			}
			_, err = svc.Insert(ctx, route.ID, stop, usecases.InsertAnchor{Position: rng.Intn(len(current.Stops) + 2)})

		case op == 1 && len(current.Stops) > 1: // remove random stop
			victim := current.Stops[rng.Intn(len(current.Stops))].ID
			_, err = svc.Remove(ctx, route.ID, victim)

		default: // shuffle
			order := idsOf(current)
			rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
			_, err = svc.Reorder(ctx, route.ID, order)
		}
		if err != nil {
			t.Fatalf("op %d: %v", i, err)
		}

		after, err := store.GetByID(ctx, route.ID)
		if err != nil {
			t.Fatalf("op %d: reload: %v", i, err)
		}
		if err := domain.ValidateSequence(after.Stops); err != nil {
			t.Fatalf("op %d: invariant broken: %v", i, err)
		}
	}
}
