package workflows

import (
	"context"
	"errors"
	"fmt"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/ports"
	"github.com/ibaiondo/fleetroute/internal/core/usecases"
)

// RecomputeActivities holds the activity implementations for the route
// recompute workflow.
type RecomputeActivities struct {
	RecomputeService *usecases.RecomputeService
	Routes           ports.RouteRepository
}

// RecomputeRoute computes and commits route metrics. It reports false when
// the result was discarded because the route mutated since the request; any
// other failure is returned for the workflow's retry policy to handle.
func (a *RecomputeActivities) RecomputeRoute(ctx context.Context, routeID string, version int64) (bool, error) {
	err := a.RecomputeService.Recompute(ctx, routeID, version)
	if err != nil {
		if errors.Is(err, domain.ErrStaleMutation) {
			return false, nil
		}
		return false, fmt.Errorf("recompute route %s: %w", routeID, err)
	}
	return true, nil
}

// FlagMetricsStale marks a route's stored totals as advisory after the
// recompute gave up.
func (a *RecomputeActivities) FlagMetricsStale(ctx context.Context, routeID string) error {
	if err := a.Routes.MarkMetricsStale(ctx, routeID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("flag metrics stale %s: %w", routeID, err)
	}
	return nil
}
