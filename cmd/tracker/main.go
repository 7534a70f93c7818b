package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ibaiondo/fleetroute/internal/adapters/memory"
	natsadapter "github.com/ibaiondo/fleetroute/internal/adapters/nats"
	"github.com/ibaiondo/fleetroute/internal/adapters/postgres"
	"github.com/ibaiondo/fleetroute/internal/adapters/valkey"
	"github.com/ibaiondo/fleetroute/internal/core/domain"
	"github.com/ibaiondo/fleetroute/internal/core/ports"
	"github.com/ibaiondo/fleetroute/internal/core/usecases"
	"github.com/ibaiondo/fleetroute/internal/pkg/config"
	"github.com/ibaiondo/fleetroute/internal/pkg/logging"
)

// The tracker consumes GPS readings that device gateways publish straight
// to NATS, runs them through geofence detection, and enforces the position
// retention window.
func main() {
	cfg, err := config.Load("fleetroute-tracker")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache (detector state)
	var states ports.GeofenceStateRepository
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, keeping detector state in memory", "error", err)
		states = memory.NewStateStore()
	} else {
		defer cache.Close()
		states = valkey.NewGeofenceStateStore(cache, 24*time.Hour)
	}

	// NATS
	var publisher ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats publisher unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	// Repos + services
	routeRepo := postgres.NewRouteRepo(db)
	positionRepo := postgres.NewPositionRepo(db)
	eventRepo := postgres.NewEventRepo(db)

	detector := usecases.NewDetector(states, cfg.Geofence.RadiusMeters,
		time.Duration(cfg.Geofence.DwellMinutes*float64(time.Minute)))
	ingestSvc := usecases.NewIngestService(positionRepo, routeRepo, eventRepo, detector, publisher)

	err = sub.SubscribePositions(ctx, func(ctx context.Context, p *domain.Position) error {
		// Readings relayed by the API carry a server-assigned id and are
		// already stored and detected; only raw gateway readings go
		// through ingestion here.
		if p.ID != "" {
			return nil
		}
		_, err := ingestSvc.Ingest(ctx, usecases.IngestInput{
			VehicleID:  p.VehicleID,
			RouteID:    p.RouteID,
			Lat:        p.Location.Lat,
			Lon:        p.Location.Lon,
			RecordedAt: p.RecordedAt,
			Speed:      p.Speed,
			Heading:    p.Heading,
			AccuracyM:  p.AccuracyM,
		})
		return err
	})
	if err != nil {
		log.Fatalf("subscribe positions: %v", err)
	}

	slog.Info("tracker started",
		"radius_m", cfg.Geofence.RadiusMeters,
		"dwell_min", cfg.Geofence.DwellMinutes,
		"retention_h", cfg.Positions.RetentionHours)

	// Retention purge loop
	retention := time.Duration(cfg.Positions.RetentionHours) * time.Hour
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().Add(-retention)
				n, err := positionRepo.PurgeOlderThan(ctx, cutoff)
				if err != nil {
					slog.Error("position purge failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("purged old positions", "count", n, "cutoff", cutoff)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutting down tracker", "signal", sig.String())
	cancel()
}
