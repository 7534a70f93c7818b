package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/ibaiondo/fleetroute/internal/adapters/osrm"
	"github.com/ibaiondo/fleetroute/internal/adapters/postgres"
	"github.com/ibaiondo/fleetroute/internal/core/usecases"
	"github.com/ibaiondo/fleetroute/internal/pkg/config"
	"github.com/ibaiondo/fleetroute/internal/pkg/logging"
	"github.com/ibaiondo/fleetroute/internal/workflows"
)

// The recompute worker runs the distance recompute workflow: it calls the
// routing provider and commits totals back, discarding results that a newer
// mutation made stale.
func main() {
	cfg, err := config.Load("fleetroute-recompute")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	c, err := client.Dial(client.Options{
		HostPort: cfg.Temporal.HostPort,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	routeRepo := postgres.NewRouteRepo(db)
	provider := osrm.New(cfg.Provider.BaseURL)
	recomputeSvc := usecases.NewRecomputeService(routeRepo, provider)

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.RecomputeWorkflow)
	w.RegisterActivity(&workflows.RecomputeActivities{
		RecomputeService: recomputeSvc,
		Routes:           routeRepo,
	})

	slog.Info("recompute worker started", "task_queue", cfg.Temporal.TaskQueue, "provider", cfg.Provider.BaseURL)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
