package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/ibaiondo/fleetroute/internal/adapters/http"
	"github.com/ibaiondo/fleetroute/internal/adapters/memory"
	natsadapter "github.com/ibaiondo/fleetroute/internal/adapters/nats"
	"github.com/ibaiondo/fleetroute/internal/adapters/postgres"
	temporaladapter "github.com/ibaiondo/fleetroute/internal/adapters/temporal"
	"github.com/ibaiondo/fleetroute/internal/adapters/valkey"
	"github.com/ibaiondo/fleetroute/internal/core/ports"
	"github.com/ibaiondo/fleetroute/internal/core/usecases"
	"github.com/ibaiondo/fleetroute/internal/pkg/config"
	"github.com/ibaiondo/fleetroute/internal/pkg/logging"
	"github.com/ibaiondo/fleetroute/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("fleetroute-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
	}

	// NATS
	var publisher ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Temporal — schedules async distance recomputes
	var scheduler ports.RecomputeScheduler
	tc, err := client.Dial(client.Options{HostPort: cfg.Temporal.HostPort})
	if err != nil {
		slog.Warn("temporal unavailable, recomputes will not run", "error", err)
	} else {
		defer tc.Close()
		scheduler = temporaladapter.NewScheduler(tc, cfg.Temporal.TaskQueue)
	}

	// Repos
	routeRepo := postgres.NewRouteRepo(db)
	positionRepo := postgres.NewPositionRepo(db)
	eventRepo := postgres.NewEventRepo(db)

	// Detector state lives in Valkey; without it, fall back to in-process
	// state (lost on restart, rebuilt from incoming positions).
	var states ports.GeofenceStateRepository
	if cache != nil {
		states = valkey.NewGeofenceStateStore(cache, 24*time.Hour)
	} else {
		states = memory.NewStateStore()
	}

	// Use cases
	routeSvc := usecases.NewRouteService(routeRepo, scheduler, publisher)
	seqSvc := usecases.NewSequencingService(routeRepo, scheduler)
	detector := usecases.NewDetector(states, cfg.Geofence.RadiusMeters,
		time.Duration(cfg.Geofence.DwellMinutes*float64(time.Minute)))
	ingestSvc := usecases.NewIngestService(positionRepo, routeRepo, eventRepo, detector, publisher)
	var progressCache ports.CacheService
	if cache != nil {
		progressCache = cache
	}
	progressSvc := usecases.NewProgressService(routeRepo, positionRepo, progressCache, cfg.Progress.AvgSpeedKmh)

	deps := &http.Dependencies{
		Routes:     routeSvc,
		Sequencing: seqSvc,
		Ingest:     ingestSvc,
		Progress:   progressSvc,
		Positions:  positionRepo,
		Events:     eventRepo,
		NATS:       natsConn,
		DB:         db,
		Cache:      cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "FleetRoute API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
