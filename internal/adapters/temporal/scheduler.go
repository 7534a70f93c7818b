package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/ibaiondo/fleetroute/internal/workflows"
)

// Scheduler implements ports.RecomputeScheduler by starting a Temporal
// workflow per (route, version). The workflow id embeds both, so a repeat
// request for the same version is a no-op and a newer version starts its
// own run.
type Scheduler struct {
	client    client.Client
	taskQueue string
}

// NewScheduler creates a scheduler over an existing Temporal client.
func NewScheduler(c client.Client, taskQueue string) *Scheduler {
	return &Scheduler{client: c, taskQueue: taskQueue}
}

// Schedule starts the recompute workflow for the given route version.
func (s *Scheduler) Schedule(ctx context.Context, routeID string, version int64) error {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("recompute-%s-v%d", routeID, version),
		TaskQueue: s.taskQueue,
	}
	_, err := s.client.ExecuteWorkflow(ctx, opts, workflows.RecomputeWorkflow, workflows.RecomputeInput{
		RouteID: routeID,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("start recompute workflow: %w", err)
	}
	return nil
}
