package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// RecomputeInput is the input for the route recompute workflow. Version is
// the route's mutation version at the time the recompute was requested;
// results computed for an older version are discarded.
type RecomputeInput struct {
	RouteID string
	Version int64
}

// RecomputeWorkflow asks the distance provider for fresh route metrics and
// commits them if the route has not mutated since. Provider failures are
// retried with backoff; a stale result is a successful no-op.
func RecomputeWorkflow(ctx workflow.Context, input RecomputeInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting route recompute", "routeID", input.RouteID, "version", input.Version)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    2 * time.Minute,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var applied bool
	err := workflow.ExecuteActivity(ctx, "RecomputeRoute", input.RouteID, input.Version).Get(ctx, &applied)
	if err != nil {
		logger.Warn("recompute exhausted retries, flagging metrics stale", "routeID", input.RouteID, "error", err)
		_ = workflow.ExecuteActivity(ctx, "FlagMetricsStale", input.RouteID).Get(ctx, nil)
		return err
	}

	if !applied {
		logger.Info("recompute result superseded by a newer mutation", "routeID", input.RouteID, "version", input.Version)
		return nil
	}
	logger.Info("route metrics committed", "routeID", input.RouteID, "version", input.Version)
	return nil
}
