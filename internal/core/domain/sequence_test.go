package domain_test

import (
	"testing"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
)

func stops(nums ...int) []domain.Stop {
	out := make([]domain.Stop, len(nums))
	for i, n := range nums {
		out[i] = domain.Stop{ID: string(rune('a' + i)), SequenceNumber: n}
	}
	return out
}

func TestValidateSequence(t *testing.T) {
	cases := []struct {
		name string
		nums []int
		ok   bool
	}{
		{"empty", nil, true},
		{"single", []int{1}, true},
		{"contiguous", []int{1, 2, 3}, true},
		{"unsorted contiguous", []int{3, 1, 2}, true},
		{"gap", []int{1, 3, 4}, false},
		{"duplicate", []int{1, 2, 2}, false},
		{"zero", []int{0, 1, 2}, false},
		{"past end", []int{1, 2, 4}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := domain.ValidateSequence(stops(tc.nums...))
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected invalid_sequence error, got nil")
			}
			if !tc.ok && domain.CodeOf(err) != domain.CodeInvalidSequence {
				t.Fatalf("expected invalid_sequence, got %s", domain.CodeOf(err))
			}
		})
	}
}

func TestRenumber(t *testing.T) {
	s := stops(7, 3, 9)
	domain.Renumber(s, 1)
	for i, st := range s {
		if st.SequenceNumber != i+1 {
			t.Fatalf("stop %d: expected %d, got %d", i, i+1, st.SequenceNumber)
		}
	}
	if err := domain.ValidateSequence(s); err != nil {
		t.Fatalf("renumbered sequence invalid: %v", err)
	}
}

func TestTopologyChanged(t *testing.T) {
	base := []domain.Stop{
		{ID: "a", SequenceNumber: 1, Location: domain.GeoPoint{Lat: 43.26, Lon: -2.93}},
		{ID: "b", SequenceNumber: 2, Location: domain.GeoPoint{Lat: 43.27, Lon: -2.94}},
	}

	same := append([]domain.Stop(nil), base...)
	if domain.TopologyChanged(base, same) {
		t.Error("identical lists reported as changed")
	}

	// Completion-state updates are not topology changes.
	completed := append([]domain.Stop(nil), base...)
	completed[0].State = domain.StopCompleted
	if domain.TopologyChanged(base, completed) {
		t.Error("state change reported as topology change")
	}

	reordered := []domain.Stop{base[1], base[0]}
	domain.Renumber(reordered, 1)
	if !domain.TopologyChanged(base, reordered) {
		t.Error("reorder not reported as topology change")
	}

	shorter := base[:1]
	if !domain.TopologyChanged(base, shorter) {
		t.Error("removal not reported as topology change")
	}

	moved := append([]domain.Stop(nil), base...)
	moved[1].Location.Lat += 0.01
	if !domain.TopologyChanged(base, moved) {
		t.Error("relocation not reported as topology change")
	}
}

func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to domain.RouteStatus }{
		{domain.RouteDraft, domain.RoutePlanned},
		{domain.RoutePlanned, domain.RouteActive},
		{domain.RouteActive, domain.RouteCompleted},
		{domain.RouteDraft, domain.RouteCancelled},
		{domain.RouteActive, domain.RouteCancelled},
	}
	for _, tr := range allowed {
		if !tr.from.CanTransitionTo(tr.to) {
			t.Errorf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to domain.RouteStatus }{
		{domain.RouteDraft, domain.RouteActive},
		{domain.RouteActive, domain.RoutePlanned},
		{domain.RouteCompleted, domain.RouteActive},
		{domain.RouteCompleted, domain.RouteCancelled},
		{domain.RouteCancelled, domain.RouteDraft},
	}
	for _, tr := range denied {
		if tr.from.CanTransitionTo(tr.to) {
			t.Errorf("%s -> %s should be rejected", tr.from, tr.to)
		}
	}
}

func TestAllStopsCompleted(t *testing.T) {
	empty := &domain.Route{}
	if empty.AllStopsCompleted() {
		t.Error("empty route must not count as completed")
	}

	r := &domain.Route{Stops: []domain.Stop{
		{ID: "a", SequenceNumber: 1, State: domain.StopCompleted},
		{ID: "b", SequenceNumber: 2, State: domain.StopArrived},
	}}
	if r.AllStopsCompleted() {
		t.Error("route with an open stop reported completed")
	}
	r.Stops[1].State = domain.StopCompleted
	if !r.AllStopsCompleted() {
		t.Error("fully completed route not reported completed")
	}
}
